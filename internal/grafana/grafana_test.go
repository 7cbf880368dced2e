package grafana

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateViewerKey_SendsViewerRoleAndReturnsTheMintedKey(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody map[string]any

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"key": "glsa_minted_key"})
	}))
	defer server.Close()

	c := New(server.URL, "admin-token")
	key, err := c.CreateViewerKey(context.Background(), "demo-viewer-abc123", 15*time.Minute)

	require.NoError(t, err)
	assert.Equal(t, "glsa_minted_key", key)
	assert.Equal(t, "Bearer admin-token", gotAuth)
	assert.Equal(t, "/api/auth/keys", gotPath)
	assert.Equal(t, "demo-viewer-abc123", gotBody["name"])
	assert.Equal(t, "Viewer", gotBody["role"])
	assert.Equal(t, float64(900), gotBody["secondsToLive"])
}

func TestCreateViewerKey_PropagatesNonOKStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	c := New(server.URL, "wrong-token")
	_, err := c.CreateViewerKey(context.Background(), "demo-viewer-abc123", time.Minute)
	assert.ErrorContains(t, err, "status 401")
}

func TestDeleteKeyByName_SendsAuthenticatedDelete(t *testing.T) {
	var gotMethod, gotPath string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	c := New(server.URL, "admin-token")
	err := c.DeleteKeyByName(context.Background(), "demo-viewer-abc123")

	require.NoError(t, err)
	assert.Equal(t, http.MethodDelete, gotMethod)
	assert.Equal(t, "/api/auth/keys/uid/demo-viewer-abc123", gotPath)
}
