// Package supervisor implements detached subprocess spawn and supervised
// termination with SIGTERM→SIGKILL escalation (spec.md §4.4). Grounded on
// the teacher's use of golang.org/x/sys (present in IAmSoThirsty-Project-AI's
// go.mod) for direct signal delivery, since os.Process.Signal cannot
// distinguish "already gone" from other failures as cleanly as unix.Kill's
// ESRCH does.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mronstro/rondb-tools/internal/applog"
)

const (
	sigtermAttempts = 20
	sigkillAttempts = 100
)

// sigtermInterval is the spacing between escalation attempts (spec.md §4.4:
// "every 1 s"). It is a var, not a const, purely so tests can shrink it
// instead of waiting out the full real-time escalation budget.
var sigtermInterval = time.Second

// Supervisor spawns and terminates detached child processes.
type Supervisor struct {
	logger *applog.Logger
}

// New returns a Supervisor that logs transitions through logger.
func New(logger *applog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Spawn starts name with args fully detached from this process: its own
// session (so it survives the coordinator's restart, spec.md §4.4
// rationale), stdin from /dev/null, stdout/stderr appended to the given
// files. It returns the child's OS pid. While this process runs, a
// background Wait reaps the child once it exits; if this process exits
// first, the child is reparented to init and reaped there.
func (s *Supervisor) Spawn(ctx context.Context, name string, args []string, env []string, stdoutPath, stderrPath string) (int, error) {
	devnull, err := os.OpenFile(os.DevNull, os.O_RDONLY, 0)
	if err != nil {
		return 0, fmt.Errorf("supervisor: open /dev/null: %w", err)
	}
	defer devnull.Close()

	outFile, err := os.OpenFile(stdoutPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("supervisor: open stdout log %s: %w", stdoutPath, err)
	}
	defer outFile.Close()

	errFile, err := os.OpenFile(stderrPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return 0, fmt.Errorf("supervisor: open stderr log %s: %w", stderrPath, err)
	}
	defer errFile.Close()

	cmd := exec.Command(name, args...)
	cmd.Stdin = devnull
	cmd.Stdout = outFile
	cmd.Stderr = errFile
	if env != nil {
		cmd.Env = env
	}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	if err := cmd.Start(); err != nil {
		return 0, fmt.Errorf("supervisor: start %s: %w", name, err)
	}
	pid := cmd.Process.Pid

	// Reap the child in the background so an exited child does not linger as
	// a zombie, which processAlive would still report as alive.
	go func() { _ = cmd.Wait() }()

	s.logger.Info("spawned detached process", applog.Fields{"pid": pid, "cmd": name})
	return pid, nil
}

// ProcessAlive reports whether pid still exists. Exported for the startup
// reconciliation pass (spec.md §4.11, SPEC_FULL.md §5.2), which checks pids
// recorded in the persisted document and leftover pid marker files without
// going through a Supervisor instance.
func ProcessAlive(pid int) bool { return processAlive(pid) }

// processAlive reports whether pid still exists, using signal 0 (spec.md
// §4.4 "process already gone" check).
func processAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	if errors.Is(err, unix.ESRCH) {
		return false
	}
	// EPERM or anything else: the process exists but we can't signal it;
	// treat conservatively as alive.
	return true
}

// Terminate sends SIGTERM every second for up to 20 attempts, then escalates
// to SIGKILL every second for up to 100 further attempts (spec.md §4.4).
// "Process already gone" at any point is success.
func (s *Supervisor) Terminate(ctx context.Context, pid int) error {
	if !processAlive(pid) {
		s.logger.Info("terminate: process already gone", applog.Fields{"pid": pid})
		return nil
	}

	ticker := time.NewTicker(sigtermInterval)
	defer ticker.Stop()

	sigtermCount := 0
	for sigtermCount < sigtermAttempts {
		sigtermCount++
		if err := unix.Kill(pid, unix.SIGTERM); err != nil && errors.Is(err, unix.ESRCH) {
			s.logger.Info("terminate: process gone after sigterm", applog.Fields{"pid": pid, "sigterm_count": sigtermCount})
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		if !processAlive(pid) {
			s.logger.Info("terminate: process exited", applog.Fields{"pid": pid, "sigterm_count": sigtermCount})
			return nil
		}
	}

	sigkillCount := 0
	for sigkillCount < sigkillAttempts {
		sigkillCount++
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && errors.Is(err, unix.ESRCH) {
			s.logger.Info("terminate: process gone after sigkill", applog.Fields{"pid": pid, "sigterm_count": sigtermCount, "sigkill_count": sigkillCount})
			return nil
		}
		if !processAlive(pid) {
			s.logger.Info("terminate: process exited", applog.Fields{"pid": pid, "sigterm_count": sigtermCount, "sigkill_count": sigkillCount})
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}

	s.logger.Err("supervisor giving up on process", applog.Fields{"pid": pid, "sigterm_count": sigtermCount, "sigkill_count": sigkillCount})
	return fmt.Errorf("supervisor: process %d did not terminate after %d sigterm and %d sigkill attempts", pid, sigtermCount, sigkillCount)
}

// TerminateGroup terminates every pid in parallel, returning once each has
// reached a terminal outcome (spec.md §4.4).
func (s *Supervisor) TerminateGroup(ctx context.Context, pids []int) error {
	var wg sync.WaitGroup
	errs := make([]error, len(pids))
	wg.Add(len(pids))
	for i, pid := range pids {
		go func(i, pid int) {
			defer wg.Done()
			errs[i] = s.Terminate(ctx, pid)
		}(i, pid)
	}
	wg.Wait()

	var joined error
	for _, err := range errs {
		if err != nil {
			joined = errors.Join(joined, err)
		}
	}
	return joined
}
