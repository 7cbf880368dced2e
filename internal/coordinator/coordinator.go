// Package coordinator implements the session lifecycle coordinator
// (spec.md §4.9): the global↔session lock hierarchy, the create-database and
// run-loadgen state machines, the maintenance loop, and startup
// reconciliation. It is the one place in the module that is allowed to hold
// both locks at once, and it is the only place that touches every other
// package (store, sqlexec, supervisor, proxyconfig, grafana).
package coordinator

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/config"
	"github.com/mronstro/rondb-tools/internal/grafana"
	"github.com/mronstro/rondb-tools/internal/metrics"
	"github.com/mronstro/rondb-tools/internal/proxyconfig"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/sqlexec"
	"github.com/mronstro/rondb-tools/internal/store"
	"github.com/mronstro/rondb-tools/internal/supervisor"
)

var tokenPattern = regexp.MustCompile(`^[0-9a-f]{20}$`)

// Coordinator owns the global state lock, the in-memory session map, and
// every collaborator the lifecycle operations need.
type Coordinator struct {
	cfg *config.Config

	globalMu       sync.Mutex
	sessions       map[string]*session.Session
	nextPortOffset int

	store      *store.Store
	logger     *applog.Logger
	sqlExec    *sqlexec.Executor
	supervisor *supervisor.Supervisor
	proxy      *proxyconfig.Writer
	grafana    *grafana.Client
	metrics    *metrics.Metrics

	shutdown chan struct{}
	wg       sync.WaitGroup
}

// New wires a Coordinator from already-constructed collaborators. It does
// not load persisted state; call Reconcile for that (spec.md §4.11).
func New(cfg *config.Config, st *store.Store, logger *applog.Logger, pool *pgxpool.Pool,
	proxy *proxyconfig.Writer, grafanaClient *grafana.Client, m *metrics.Metrics) *Coordinator {
	return &Coordinator{
		cfg:        cfg,
		sessions:   map[string]*session.Session{},
		store:      st,
		logger:     logger,
		sqlExec:    sqlexec.New(pool),
		supervisor: supervisor.New(logger),
		proxy:      proxy,
		grafana:    grafanaClient,
		metrics:    m,
		shutdown:   make(chan struct{}),
	}
}

// lockGlobal acquires the outer lock. Per spec.md §5, this must always be
// acquired before any session lock.
func (c *Coordinator) lockGlobal() { c.globalMu.Lock() }

// unlockGlobal releases the outer lock. Safe to call at most once per
// lockGlobal; callers use releaseGlobalOnce to make the "drop early" pattern
// of spec.md §4.8 idempotent.
func (c *Coordinator) unlockGlobal() { c.globalMu.Unlock() }

// releaseGlobalOnce returns a one-shot idempotent closure that releases the
// global lock, matching spec.md §4.8 step 5.
func (c *Coordinator) releaseGlobalOnce() func() {
	var once sync.Once
	return func() {
		once.Do(c.unlockGlobal)
	}
}

// GenerateToken returns a fresh 20-hex-char session token (spec.md §3, §4.8).
func GenerateToken() (string, error) {
	buf := make([]byte, 10)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("coordinator: generate token: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// ValidToken reports whether s is a well-formed 20-hex-char session token.
func ValidToken(s string) bool { return tokenPattern.MatchString(s) }

// persistLocked snapshots the in-memory sessions into a store.Document and
// writes it. Callers must hold the global lock (and, for the session being
// mutated, its session lock) before calling this.
func (c *Coordinator) persistLocked() error {
	doc := &store.Document{
		NextLoadgenPortOffset: c.nextPortOffset,
		UserSessions:          c.sessions,
	}
	return c.store.Update(func(*store.Document) (*store.Document, error) {
		return doc, nil
	})
}

// snapshotLocked returns a copy of the session map holding a Clone of each
// session, taken under the global lock, suitable for rendering the proxy
// fragment without holding the global lock for the duration of the
// write+reload.
func (c *Coordinator) snapshotLocked() map[string]*session.Session {
	out := make(map[string]*session.Session, len(c.sessions))
	for k, v := range c.sessions {
		out[k] = v.Clone()
	}
	return out
}

// regenerateProxyConfig renders and installs the proxy fragment from a
// snapshot of the current sessions (spec.md §4.5). It must be called without
// the global lock held (the install+reload does file and subprocess I/O).
func (c *Coordinator) regenerateProxyConfig(ctx context.Context, snapshot map[string]*session.Session) {
	if err := c.proxy.Install(ctx, snapshot); err != nil {
		c.logger.Err("proxy config install/reload failed", applog.Fields{"cause": err.Error()})
	}
}

// updateMetricsLocked refreshes the gauge set from the current session map.
// Callers must hold the global lock.
func (c *Coordinator) updateMetricsLocked() {
	if c.metrics == nil {
		return
	}
	c.metrics.ActiveSessions.Set(float64(len(c.sessions)))
	c.metrics.ActiveDatabases.Set(float64(admission.CountActiveDatabases(c.sessions)))
	occupied := 0
	for _, s := range c.sessions {
		if s.LoadgenPortOffset != nil {
			occupied++
		}
	}
	c.metrics.PortOffsetsInUse.Set(float64(occupied))
}

// getOrCreateSessionLocked implements spec.md §4.8 steps 2-4: look up the
// session for token, creating and persisting a fresh one if absent. The
// global lock must already be held.
func (c *Coordinator) getOrCreateSessionLocked(token string) (*session.Session, error) {
	if token == c.cfg.Cluster.GUISecret {
		return nil, ErrReservedToken
	}
	if s, ok := c.sessions[token]; ok {
		return s, nil
	}
	s := session.New()
	c.sessions[token] = s
	if err := c.persistLocked(); err != nil {
		delete(c.sessions, token)
		return nil, err
	}
	c.updateMetricsLocked()
	return s, nil
}

// Shutdown signals the maintenance loop to stop and waits for it to exit
// between iterations (spec.md §5 "Cancellation and timeouts").
func (c *Coordinator) Shutdown() {
	close(c.shutdown)
	c.wg.Wait()
}

// backgroundCtx returns a fresh background context for a detached job.
// In-flight jobs are not cancelled on shutdown (spec.md §5); they complete
// their transition and persist it.
func backgroundCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 5*time.Minute)
}
