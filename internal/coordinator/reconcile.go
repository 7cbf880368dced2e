package coordinator

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/sqlexec"
	"github.com/mronstro/rondb-tools/internal/supervisor"
)

// recoveringDatabase is a session startup reconciliation found stuck in
// CREATING_DATABASE: its db must be dropped (best effort) once the global
// lock is released.
type recoveringDatabase struct {
	token string
	db    string
}

// recoveringLoadgen is a session startup reconciliation found stuck in
// STARTING_LOADGEN: its recorded pids must be terminated once the global
// lock is released.
type recoveringLoadgen struct {
	token string
	pids  []int
}

// Reconcile implements spec.md §4.11: it loads the persisted document into
// memory and, per session, resolves any status left mid-flight by a crash —
// CREATING_DATABASE drops the (possibly nonexistent) database and clears
// `db`; STARTING_LOADGEN terminates any recorded pids and clears them — both
// settling the session back to NORMAL. Sessions already NORMAL just get
// their dead load generator pids reaped. It persists the reconciled state,
// regenerates the proxy fragment, and then runs SPEC_FULL.md §5.2's stale
// PID-file sweep, folding in original_source's clean_stale_pid_files startup
// hook. Call once, before serving any request.
func (c *Coordinator) Reconcile(ctx context.Context) error {
	doc, err := c.store.Load()
	if err != nil {
		return fmt.Errorf("coordinator: reconcile: load persisted state: %w", err)
	}

	c.lockGlobal()
	c.sessions = doc.UserSessions
	c.nextPortOffset = doc.NextLoadgenPortOffset

	var recoveringDatabases []recoveringDatabase
	var recoveringLoadgens []recoveringLoadgen

	for token, s := range c.sessions {
		s.Lock()
		switch s.Status {
		case session.StatusCreatingDatabase:
			if s.DB != nil {
				recoveringDatabases = append(recoveringDatabases, recoveringDatabase{token: token, db: *s.DB})
			}
			s.Status = session.StatusNormal
			s.DB = nil
			s.ExpiresAt = nil
			s.UserMessage = nil
		case session.StatusStartingLoadgen:
			if len(s.LoadgenPids) > 0 {
				recoveringLoadgens = append(recoveringLoadgens, recoveringLoadgen{token: token, pids: append([]int(nil), s.LoadgenPids...)})
			}
			s.LoadgenPids = nil
			s.Status = session.StatusNormal
			s.UserMessage = nil
		default:
			c.reapDeadPidsLocked(token, s)
		}
		s.Unlock()
	}

	if err := c.persistLocked(); err != nil {
		c.unlockGlobal()
		return fmt.Errorf("coordinator: reconcile: persist reconciled state: %w", err)
	}
	c.updateMetricsLocked()
	snapshot := c.snapshotLocked()
	c.unlockGlobal()

	c.regenerateProxyConfig(ctx, snapshot)

	for _, r := range recoveringDatabases {
		if err := c.sqlExec.Exec(ctx, sqlexec.DropDatabase(r.db)...); err != nil {
			c.logger.Err("reconcile: drop database for crashed create failed", applog.Fields{"session": r.token, "db": r.db, "cause": err.Error()})
		}
	}
	for _, r := range recoveringLoadgens {
		if err := c.supervisor.TerminateGroup(ctx, r.pids); err != nil {
			c.logger.Err("reconcile: terminate loadgen for crashed start failed", applog.Fields{"session": r.token, "cause": err.Error()})
		}
		c.removePIDFilesForToken(r.token)
	}

	c.sweepStalePIDFiles(snapshot)
	return nil
}

// reapDeadPidsLocked drops any pid from s.LoadgenPids that is no longer
// alive. The caller holds both locks.
func (c *Coordinator) reapDeadPidsLocked(token string, s *session.Session) {
	if len(s.LoadgenPids) == 0 {
		return
	}
	alive := make([]int, 0, len(s.LoadgenPids))
	for _, pid := range s.LoadgenPids {
		if supervisor.ProcessAlive(pid) {
			alive = append(alive, pid)
		}
	}
	if len(alive) == len(s.LoadgenPids) {
		return
	}
	c.logger.Info("reconcile: loadgen pids no longer alive", applog.Fields{
		"session": token, "before": len(s.LoadgenPids), "after": len(alive),
	})
	if len(alive) == 0 {
		s.LoadgenPids = nil
	} else {
		s.LoadgenPids = alive
	}
}

// sweepStalePIDFiles globs RUN_DIR for leftover loadgen_*.pid marker files
// the coordinator writes next to each spawned process (SPEC_FULL.md §5.2) and
// removes any whose process is no longer alive. A pid file whose token is
// still a known session is left in place — that session already accounted
// for its processes above.
func (c *Coordinator) sweepStalePIDFiles(sessions map[string]*session.Session) {
	matches, err := filepath.Glob(filepath.Join(c.cfg.Node.RunDir, "loadgen_*.pid"))
	if err != nil {
		c.logger.Err("reconcile: glob pid marker files failed", applog.Fields{"cause": err.Error()})
		return
	}

	for _, path := range matches {
		token := tokenFromPIDFileName(path)
		if _, ok := sessions[token]; ok {
			continue
		}

		pid, err := readPIDFile(path)
		if err != nil {
			c.logger.Err("reconcile: read stale pid file failed", applog.Fields{"path": path, "cause": err.Error()})
			continue
		}
		if supervisor.ProcessAlive(pid) {
			c.logger.Info("reconcile: stale pid file still refers to a live process, leaving it", applog.Fields{"path": path, "pid": pid})
			continue
		}
		if err := os.Remove(path); err != nil {
			c.logger.Err("reconcile: remove stale pid file failed", applog.Fields{"path": path, "cause": err.Error()})
			continue
		}
		c.logger.Info("reconcile: removed stale pid file", applog.Fields{"path": path, "pid": pid})
	}
}

// tokenFromPIDFileName extracts the fixed-length session token from a
// "loadgen_<token>_<role>.pid" basename (role itself may contain
// underscores, e.g. "worker_3", so the token's fixed 20-hex-char width is
// used rather than splitting on "_").
func tokenFromPIDFileName(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".pid")
	base = strings.TrimPrefix(base, "loadgen_")
	if len(base) < 20 {
		return base
	}
	return base[:20]
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}
