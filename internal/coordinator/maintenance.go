package coordinator

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/sqlexec"
)

// expiredEntry is one session the maintenance sweep renamed out of the
// primary map, carrying everything teardown needs once the lock is dropped.
type expiredEntry struct {
	renamedToken string
	db           *string
	pids         []int
	grafanaKey   string
}

// renameToken builds the `<old>_removing_<6 hex>` key spec.md §4.10 step 1.a
// installs a session copy under, using the same short-hex-suffix convention
// as newDBName.
func renameToken(old string) string {
	suffix := strings.ReplaceAll(uuid.New().String(), "-", "")[:6]
	return old + "_removing_" + suffix
}

// RunMaintenanceLoop ticks every cfg.App.MaintenanceInterval until Shutdown
// is called (spec.md §4.10). Each tick renames expired sessions out of the
// in-memory map under the global lock, regenerates the proxy fragment, then
// tears down their databases and processes off-lock.
func (c *Coordinator) RunMaintenanceLoop() {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		ticker := time.NewTicker(c.cfg.App.MaintenanceInterval)
		defer ticker.Stop()
		for {
			select {
			case <-c.shutdown:
				return
			case <-ticker.C:
				c.runMaintenanceTick()
			}
		}
	}()
}

// runMaintenanceTick performs one sweep of spec.md §4.10: step 1 renames
// every expired NORMAL session to its `_removing_<6hex>` key under the
// global lock (revoking its access immediately, since the renamed key never
// matches a client's cookie token); step 2 regenerates the proxy fragment
// once the lock is released; step 3 tears down each renamed session's
// resources off-lock, then re-acquires the global lock just long enough to
// remove it from the map for good.
func (c *Coordinator) runMaintenanceTick() {
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.App.MaintenanceInterval)
	defer cancel()

	now := float64(time.Now().Unix())

	c.lockGlobal()
	var renamed []expiredEntry
	for token, s := range c.sessions {
		s.Lock()
		isExpired := s.Status == session.StatusNormal && s.ExpiresAt != nil && *s.ExpiresAt <= now
		if isExpired {
			newKey := renameToken(token)
			delete(c.sessions, token)
			c.sessions[newKey] = s
			renamed = append(renamed, expiredEntry{renamedToken: newKey, db: s.DB, pids: s.LoadgenPids, grafanaKey: s.GrafanaKeyName()})
		}
		s.Unlock()
	}

	if len(renamed) == 0 {
		c.unlockGlobal()
		return
	}

	// persistLocked snapshots the whole map, so one call here covers every
	// rename-install/remove-old pair performed in the loop above.
	if err := c.persistLocked(); err != nil {
		c.logger.Err("maintenance: persist after rename sweep failed", applog.Fields{"cause": err.Error()})
	}
	if c.metrics != nil {
		c.metrics.SessionsExpired.Add(float64(len(renamed)))
	}
	c.updateMetricsLocked()
	snapshot := c.snapshotLocked()
	c.unlockGlobal()

	c.regenerateProxyConfig(ctx, snapshot)

	for _, e := range renamed {
		c.tearDownRenamedSession(ctx, e)
	}
}

// tearDownRenamedSession terminates the session's load generator processes,
// drops its database, and revokes its scoped Grafana key, then re-acquires
// the global lock just to remove the renamed entry and persist (spec.md
// §4.10 step 3). No lock is held across the blocking teardown I/O.
func (c *Coordinator) tearDownRenamedSession(ctx context.Context, e expiredEntry) {
	if len(e.pids) > 0 {
		if err := c.supervisor.TerminateGroup(ctx, e.pids); err != nil {
			c.logger.Err("maintenance: terminate expired loadgen failed", applog.Fields{"session": e.renamedToken, "cause": err.Error()})
		}
		c.removePIDFilesForToken(e.renamedToken)
	}
	if e.db != nil {
		if err := c.sqlExec.Exec(ctx, sqlexec.DropDatabase(*e.db)...); err != nil {
			c.logger.Err("maintenance: drop expired database failed", applog.Fields{"session": e.renamedToken, "db": *e.db, "cause": err.Error()})
		}
	}
	if c.grafana != nil && e.grafanaKey != "" {
		// Best-effort: the key's own TTL reclaims it regardless (SPEC_FULL.md §5.1).
		_ = c.grafana.DeleteKeyByName(ctx, e.grafanaKey)
	}

	c.lockGlobal()
	delete(c.sessions, e.renamedToken)
	if err := c.persistLocked(); err != nil {
		c.logger.Err("maintenance: persist after teardown failed", applog.Fields{"session": e.renamedToken, "cause": err.Error()})
	}
	c.updateMetricsLocked()
	c.unlockGlobal()
}
