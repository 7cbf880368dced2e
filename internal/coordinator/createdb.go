package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/sqlexec"
)

// newDBName returns a fresh per-session database name matching spec.md §3's
// `db_<16 hex>` shape: a short hex suffix sliced off a fresh UUID, the
// teacher's own convention for a disposable identifier that never needs to
// round-trip back into a UUID.
func newDBName() (string, error) {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:16]
	return "db_" + suffix, nil
}

// grafanaKeyName derives the scoped Grafana API key name from a session
// token (SPEC_FULL.md §5.1), so minting and revocation always agree on the
// name without threading it separately through maintenance teardown.
func grafanaKeyName(token string) string {
	return "demo-viewer-" + token
}

// CreateDatabase implements spec.md §4.8 /create-database: it validates
// preconditions and admission under the lock pair, transitions the session
// to CREATING_DATABASE, persists, and releases the global lock before
// enqueueing the background job that actually creates and seeds the
// database. The returned view-model reflects the state right after the
// synchronous part returns.
func (c *Coordinator) CreateDatabase(token string) (session.ViewModel, error) {
	var vm session.ViewModel
	var opErr error

	err := c.WithSession(token, func(s *session.Session, releaseGlobal func()) {
		if s.Status != session.StatusNormal || s.DB != nil {
			releaseGlobal()
			opErr = ErrBusy
			vm = s.ViewModel()
			return
		}

		if admitErr := admission.CheckAdmission(c.sessions, c.cfg.App.MaxActiveDatabases); admitErr != nil {
			releaseGlobal()
			opErr = admitErr
			vm = s.ViewModel()
			return
		}

		dbName, genErr := newDBName()
		if genErr != nil {
			releaseGlobal()
			opErr = genErr
			vm = s.ViewModel()
			return
		}

		s.Status = session.StatusCreatingDatabase
		s.DB = &dbName
		s.UserMessage = nil
		exp := float64(time.Now().Add(c.cfg.App.SessionTTL).Unix())
		s.ExpiresAt = &exp

		if persistErr := c.persistLocked(); persistErr != nil {
			s.Status = session.StatusNormal
			s.DB = nil
			releaseGlobal()
			opErr = persistErr
			vm = s.ViewModel()
			return
		}
		c.updateMetricsLocked()
		releaseGlobal()

		vm = s.ViewModel()
		c.enqueueCreateDatabaseJob(token, dbName)
	})
	if err != nil {
		return session.ViewModel{}, err
	}
	return vm, opErr
}

// enqueueCreateDatabaseJob runs CreateDatabaseAndSeed off the request
// goroutine (spec.md §4.8 "drop the lock; enqueue a background job") and
// folds the result back into the session once it completes.
func (c *Coordinator) enqueueCreateDatabaseJob(token, dbName string) {
	go func() {
		ctx, cancel := backgroundCtx()
		defer cancel()

		stmts := sqlexec.CreateDatabaseAndSeed(dbName)
		sqlErr := c.sqlExec.Exec(ctx, stmts...)
		c.finishCreateDatabase(ctx, token, dbName, sqlErr)
	}()
}

// finishCreateDatabase re-acquires the lock pair, applies the outcome, and
// persists it. If the session vanished in the meantime (spec.md §4.9, the
// maintenance loop reclaimed it concurrently), a successfully created
// database is dropped as an orphan rather than left dangling.
func (c *Coordinator) finishCreateDatabase(ctx context.Context, token, dbName string, sqlErr error) {
	c.lockGlobal()
	s, ok := c.sessions[token]
	if !ok {
		c.unlockGlobal()
		if sqlErr == nil {
			if dropErr := c.sqlExec.Exec(ctx, sqlexec.DropDatabase(dbName)...); dropErr != nil {
				c.logger.Err("drop orphaned database failed", applog.Fields{"db": dbName, "cause": dropErr.Error()})
			}
		}
		return
	}
	s.Lock()
	release := c.releaseGlobalOnce()

	if sqlErr != nil {
		s.Status = session.StatusNormal
		s.DB = nil
		s.UserMessage = &session.UserMessage{Text: "Failed to create the database, please try again.", Severity: session.SeverityError}
		if c.metrics != nil {
			c.metrics.BackgroundJobFailures.Inc()
		}
		c.logger.Err("create-database failed", applog.Fields{"session": token, "db": dbName, "cause": sqlErr.Error()})
		if err := c.persistLocked(); err != nil {
			c.logger.Err("persist after create-database failure failed", applog.Fields{"session": token, "cause": err.Error()})
		}
		c.updateMetricsLocked()
		release()
		s.Unlock()

		if dropErr := c.sqlExec.Exec(ctx, sqlexec.DropDatabase(dbName)...); dropErr != nil {
			c.logger.Err("drop-database after failed create also failed", applog.Fields{"db": dbName, "cause": dropErr.Error()})
		}
		return
	}

	s.Status = session.StatusNormal
	s.UserMessage = &session.UserMessage{Text: "Database created.", Severity: session.SeverityInfo}
	if err := c.persistLocked(); err != nil {
		c.logger.Err("persist after create-database success failed", applog.Fields{"session": token, "cause": err.Error()})
	}
	c.updateMetricsLocked()
	snapshot := c.snapshotLocked()
	release()

	// Minting a Grafana key is an HTTP round-trip; do it only after the
	// global lock is dropped so it never blocks other sessions' admission
	// and allocation (spec.md §5). The session lock alone protects s here.
	if c.grafana != nil {
		if _, keyErr := c.grafana.CreateViewerKey(ctx, grafanaKeyName(token), 10*time.Minute); keyErr != nil {
			c.logger.Err("mint scoped grafana key failed", applog.Fields{"session": token, "cause": keyErr.Error()})
		} else {
			s.SetGrafanaKeyName(grafanaKeyName(token))
		}
	}
	s.Unlock()

	c.regenerateProxyConfig(ctx, snapshot)
}
