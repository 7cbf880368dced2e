package coordinator

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/config"
	"github.com/mronstro/rondb-tools/internal/metrics"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/store"
)

// tok returns a well-formed 20-hex-char session token for test fixtures.
func tok(n int) string { return fmt.Sprintf("%020d", n) }

func testCoordinator(t *testing.T) *Coordinator {
	t.Helper()
	dir := t.TempDir()

	logger := applog.New(applog.Config{Filename: filepath.Join(dir, "demo.log")})
	t.Cleanup(logger.Close)

	cfg := &config.Config{}
	cfg.App.MaxActiveDatabases = 2
	cfg.Node.RunDir = dir

	return &Coordinator{
		cfg:      cfg,
		sessions: map[string]*session.Session{},
		store:    store.New(filepath.Join(dir, "demo_state.json")),
		logger:   logger,
		metrics:  metrics.New(prometheus.NewRegistry()),
		shutdown: make(chan struct{}),
	}
}

func TestGenerateToken_ProducesAValidToken(t *testing.T) {
	token, err := GenerateToken()
	require.NoError(t, err)
	assert.Len(t, token, 20)
	assert.True(t, ValidToken(token))
}

func TestValidToken_RejectsMalformedInput(t *testing.T) {
	assert.False(t, ValidToken(""))
	assert.False(t, ValidToken("tooshort"))
	assert.False(t, ValidToken("UPPERCASEISNOTHEXCHR"))
	assert.False(t, ValidToken(tok(1)+"x"))
}

func TestWithSession_CreatesAndPersistsNewSession(t *testing.T) {
	c := testCoordinator(t)
	token := tok(1)

	var sawStatus session.Status
	var releaseCalls int
	err := c.WithSession(token, func(s *session.Session, release func()) {
		sawStatus = s.Status
		release()
		release() // must be idempotent
		releaseCalls++
	})
	require.NoError(t, err)
	assert.Equal(t, session.StatusNormal, sawStatus)
	assert.Equal(t, 1, releaseCalls)

	doc, err := c.store.Load()
	require.NoError(t, err)
	assert.Contains(t, doc.UserSessions, token)
}

func TestWithSession_ReusesExistingSession(t *testing.T) {
	c := testCoordinator(t)
	token := tok(2)
	db := "db_existing"
	c.sessions[token] = &session.Session{Status: session.StatusNormal, DB: &db}

	var sawDB *string
	err := c.WithSession(token, func(s *session.Session, release func()) {
		sawDB = s.DB
		release()
	})
	require.NoError(t, err)
	require.NotNil(t, sawDB)
	assert.Equal(t, db, *sawDB)
}

func TestCreateDatabase_RejectsWhenSessionAlreadyHasDatabase(t *testing.T) {
	c := testCoordinator(t)
	token := tok(3)
	db := "db_existing"
	c.sessions[token] = &session.Session{Status: session.StatusNormal, DB: &db}

	vm, err := c.CreateDatabase(token)
	require.ErrorIs(t, err, ErrBusy)
	assert.False(t, vm.CanCreateDatabase)
}

func TestCreateDatabase_RejectsWhileCreationAlreadyInFlight(t *testing.T) {
	c := testCoordinator(t)
	token := tok(4)
	c.sessions[token] = &session.Session{Status: session.StatusCreatingDatabase}

	_, err := c.CreateDatabase(token)
	require.ErrorIs(t, err, ErrBusy)
}

func TestCreateDatabase_RejectsAtCapacity(t *testing.T) {
	c := testCoordinator(t) // MaxActiveDatabases = 2
	db1, db2 := "db_one", "db_two"
	c.sessions[tok(10)] = &session.Session{Status: session.StatusNormal, DB: &db1}
	c.sessions[tok(11)] = &session.Session{Status: session.StatusNormal, DB: &db2}

	_, err := c.CreateDatabase(tok(12))
	require.ErrorIs(t, err, admission.ErrCapacityExceeded)
}

func TestRunLoadgen_RejectsWithoutADatabase(t *testing.T) {
	c := testCoordinator(t)
	token := tok(20)
	c.sessions[token] = &session.Session{Status: session.StatusNormal}

	_, err := c.RunLoadgen(token)
	require.ErrorIs(t, err, ErrBusy)
}

func TestRunLoadgen_RejectsWhileAlreadyRunning(t *testing.T) {
	c := testCoordinator(t)
	token := tok(21)
	db := "db_x"
	c.sessions[token] = &session.Session{Status: session.StatusNormal, DB: &db, LoadgenPids: []int{123}}

	_, err := c.RunLoadgen(token)
	require.ErrorIs(t, err, ErrBusy)
}

func TestRunLoadgen_RejectsWhileCreatingDatabase(t *testing.T) {
	c := testCoordinator(t)
	token := tok(22)
	db := "db_x"
	c.sessions[token] = &session.Session{Status: session.StatusCreatingDatabase, DB: &db}

	_, err := c.RunLoadgen(token)
	require.ErrorIs(t, err, ErrBusy)
}

func TestPersistLocked_RoundTripsSessionFields(t *testing.T) {
	c := testCoordinator(t)
	token := tok(30)
	db := "db_roundtrip"
	offset := 42
	c.sessions[token] = &session.Session{Status: session.StatusNormal, DB: &db, LoadgenPortOffset: &offset}
	c.nextPortOffset = 99

	require.NoError(t, c.persistLocked())

	doc, err := c.store.Load()
	require.NoError(t, err)
	assert.Equal(t, 99, doc.NextLoadgenPortOffset)
	require.Contains(t, doc.UserSessions, token)
	assert.Equal(t, db, *doc.UserSessions[token].DB)
	assert.Equal(t, offset, *doc.UserSessions[token].LoadgenPortOffset)
}
