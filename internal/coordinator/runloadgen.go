package coordinator

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/session"
	"github.com/mronstro/rondb-tools/internal/sqlexec"
)

// RunLoadgen implements spec.md §4.8 /run-loadgen: it validates
// preconditions, allocates a port offset if the session does not already
// have one, transitions to STARTING_LOADGEN, persists, and releases the
// global lock before enqueueing the background job that probes the database
// and spawns the master/worker processes.
func (c *Coordinator) RunLoadgen(token string) (session.ViewModel, error) {
	var vm session.ViewModel
	var opErr error

	err := c.WithSession(token, func(s *session.Session, releaseGlobal func()) {
		if s.Status != session.StatusNormal || s.DB == nil || s.LoadgenPids != nil {
			releaseGlobal()
			opErr = ErrBusy
			vm = s.ViewModel()
			return
		}

		if s.LoadgenPortOffset == nil {
			offset, newNext, allocErr := admission.AllocatePortOffset(c.sessions, c.nextPortOffset)
			if allocErr != nil {
				releaseGlobal()
				opErr = allocErr
				vm = s.ViewModel()
				return
			}
			s.LoadgenPortOffset = &offset
			c.nextPortOffset = newNext
		}

		s.Status = session.StatusStartingLoadgen
		s.UserMessage = nil
		if persistErr := c.persistLocked(); persistErr != nil {
			s.Status = session.StatusNormal
			releaseGlobal()
			opErr = persistErr
			vm = s.ViewModel()
			return
		}
		c.updateMetricsLocked()

		offset := *s.LoadgenPortOffset
		dbName := *s.DB
		releaseGlobal()

		vm = s.ViewModel()
		c.enqueueRunLoadgenJob(token, dbName, offset)
	})
	if err != nil {
		return session.ViewModel{}, err
	}
	return vm, opErr
}

// enqueueRunLoadgenJob probes the database, spawns the load generator master
// and its workers, then folds the outcome back into the session (spec.md
// §4.8 /run-loadgen steps a-d).
func (c *Coordinator) enqueueRunLoadgenJob(token, dbName string, offset int) {
	go func() {
		ctx, cancel := backgroundCtx()
		defer cancel()

		if err := c.sqlExec.Exec(ctx, sqlexec.ProbeDatabase(dbName)...); err != nil {
			c.failRunLoadgen(ctx, token, nil, fmt.Errorf("database %s is not reachable: %w", dbName, err))
			return
		}

		masterPort := admission.MasterPort(offset)
		httpPort := admission.HTTPUIPort(offset)

		outLog := filepath.Join(c.cfg.Node.RunDir, fmt.Sprintf("loadgen_%s_master.out", token))
		errLog := filepath.Join(c.cfg.Node.RunDir, fmt.Sprintf("loadgen_%s_master.err", token))
		masterArgs := []string{
			"-f", c.cfg.App.LoadgenScriptsPath,
			"--host", c.cfg.Cluster.RDRSURI,
			"--batch-size=100",
			"--table-size=100000",
			fmt.Sprintf("--database-name=%s", dbName),
			fmt.Sprintf("--master-bind-port=%d", masterPort),
			fmt.Sprintf("--web-port=%d", httpPort),
			"--master",
		}
		masterPid, err := c.supervisor.Spawn(ctx, "locust", masterArgs, nil, outLog, errLog)
		if err != nil {
			c.failRunLoadgen(ctx, token, nil, fmt.Errorf("failed to spawn load generator master: %w", err))
			return
		}
		c.writePIDFile(token, "master", masterPid)
		pids := []int{masterPid}

		// Give the master a moment to open its bind port before workers dial
		// in (spec.md §4.8 /run-loadgen step c).
		time.Sleep(time.Second)

		for i := 0; i < c.cfg.App.LoadgenWorkerCount; i++ {
			wOut := filepath.Join(c.cfg.Node.RunDir, fmt.Sprintf("loadgen_%s_worker_%d.out", token, i))
			wErr := filepath.Join(c.cfg.Node.RunDir, fmt.Sprintf("loadgen_%s_worker_%d.err", token, i))
			workerArgs := []string{
				"-f", c.cfg.App.LoadgenScriptsPath,
				"--worker",
				fmt.Sprintf("--master-port=%d", masterPort),
			}
			pid, werr := c.supervisor.Spawn(ctx, "locust", workerArgs, nil, wOut, wErr)
			if werr != nil {
				c.failRunLoadgen(ctx, token, pids, fmt.Errorf("failed to spawn load generator worker %d: %w", i, werr))
				return
			}
			c.writePIDFile(token, fmt.Sprintf("worker_%d", i), pid)
			pids = append(pids, pid)
		}

		c.finishRunLoadgen(ctx, token, pids)
	}()
}

// failRunLoadgen terminates whatever pids were already started, then puts
// the session back to NORMAL with an error message (spec.md §4.8 /run-loadgen
// "on spawn failure").
func (c *Coordinator) failRunLoadgen(ctx context.Context, token string, startedPids []int, cause error) {
	if len(startedPids) > 0 {
		if err := c.supervisor.TerminateGroup(ctx, startedPids); err != nil {
			c.logger.Err("terminate partially started loadgen failed", applog.Fields{"session": token, "cause": err.Error()})
		}
	}

	c.lockGlobal()
	s, ok := c.sessions[token]
	if !ok {
		c.unlockGlobal()
		return
	}
	s.Lock()
	release := c.releaseGlobalOnce()

	s.Status = session.StatusNormal
	s.LoadgenPids = nil
	s.UserMessage = &session.UserMessage{Text: "Failed to start the load generator, please try again.", Severity: session.SeverityError}
	if c.metrics != nil {
		c.metrics.BackgroundJobFailures.Inc()
	}
	c.logger.Err("run-loadgen failed", applog.Fields{"session": token, "cause": cause.Error()})
	if err := c.persistLocked(); err != nil {
		c.logger.Err("persist after run-loadgen failure failed", applog.Fields{"session": token, "cause": err.Error()})
	}
	c.updateMetricsLocked()
	release()
	s.Unlock()

	c.removePIDFilesForToken(token)
}

// finishRunLoadgen records the spawned pids, puts the session back to
// NORMAL with a success message, persists, and regenerates the proxy
// fragment so the load generator's UI port becomes reachable (spec.md §4.8
// /run-loadgen step d).
func (c *Coordinator) finishRunLoadgen(ctx context.Context, token string, pids []int) {
	c.lockGlobal()
	s, ok := c.sessions[token]
	if !ok {
		c.unlockGlobal()
		if err := c.supervisor.TerminateGroup(ctx, pids); err != nil {
			c.logger.Err("terminate loadgen for vanished session failed", applog.Fields{"session": token, "cause": err.Error()})
		}
		return
	}
	s.Lock()

	s.Status = session.StatusNormal
	s.LoadgenPids = pids
	s.UserMessage = &session.UserMessage{Text: "Load generator started.", Severity: session.SeverityInfo}
	if err := c.persistLocked(); err != nil {
		c.logger.Err("persist after run-loadgen success failed", applog.Fields{"session": token, "cause": err.Error()})
	}
	c.updateMetricsLocked()
	snapshot := c.snapshotLocked()
	c.unlockGlobal()
	s.Unlock()

	c.regenerateProxyConfig(ctx, snapshot)
}
