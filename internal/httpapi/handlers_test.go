package httpapi

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/config"
	"github.com/mronstro/rondb-tools/internal/coordinator"
	"github.com/mronstro/rondb-tools/internal/metrics"
	"github.com/mronstro/rondb-tools/internal/proxyconfig"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/store"
)

const testClusterSecret = "cluster-secret"

func testRouter(t *testing.T) http.Handler {
	t.Helper()
	dir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "favicon.png"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("<html></html>"), 0o644))

	logger := applog.New(applog.Config{Filename: filepath.Join(dir, "demo.log")})
	t.Cleanup(logger.Close)

	cfg := &config.Config{}
	cfg.Cluster.GUISecret = testClusterSecret
	cfg.App.MaxActiveDatabases = 6
	cfg.App.SessionTTL = 900 * time.Second

	st := store.New(filepath.Join(dir, "demo_state.json"))
	proxy := proxyconfig.NewWriter(
		filepath.Join(dir, "nginx-dynamic.conf"),
		filepath.Join(dir, "nginx.conf"),
		filepath.Join(dir, "nginx-error.log"),
		cfg.Cluster.GUISecret, 3000,
	)
	m := metrics.New(prometheus.NewRegistry())

	coord := coordinator.New(cfg, st, logger, nil, proxy, nil, m)
	return NewRouter(coord, logger, cfg.Cluster.GUISecret, dir)
}

func TestIndex_ServesStaticFileAndSetsCookie(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "<html>")
	require.Len(t, rec.Result().Cookies(), 1)
}

func TestFavicon_ServesStaticFile(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/favicon.png", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestFavicon_ReservedOperatorTokenStillServesFile(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/favicon.png", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: testClusterSecret})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestViewModel_FreshVisitorCanCreateDatabase(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/viewmodel", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var vm session.ViewModel
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &vm))
	assert.True(t, vm.CanCreateDatabase)
	assert.Equal(t, "Not created", vm.DBStatusText)
}

func TestViewModel_ReservedOperatorTokenGetsIdleViewModel(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/viewmodel", nil)
	req.AddCookie(&http.Cookie{Name: cookieName, Value: testClusterSecret})
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestTry_RedirectsToIndex(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/try?key=cluster-secret", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/", rec.Header().Get("Location"))
	require.Len(t, rec.Result().Cookies(), 1)
	assert.Equal(t, testClusterSecret, rec.Result().Cookies()[0].Value)
}

func TestMetrics_IsServedWithoutASessionCookie(t *testing.T) {
	router := testRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()

	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Result().Cookies())
}
