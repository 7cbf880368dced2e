package coordinator

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/mronstro/rondb-tools/internal/applog"
)

// pidFilePath mirrors the naming original_source's clean_stale_pid_files
// hook expects: "loadgen_<token>_<role>.pid" under RUN_DIR (SPEC_FULL.md §5.2).
func pidFilePath(runDir, token, role string) string {
	return filepath.Join(runDir, fmt.Sprintf("loadgen_%s_%s.pid", token, role))
}

// writePIDFile records a spawned process's pid next to the load generator's
// other per-session files. Failure is logged, not fatal: the marker file is
// a crash-recovery aid, not the source of truth (the persisted document is).
func (c *Coordinator) writePIDFile(token, role string, pid int) {
	path := pidFilePath(c.cfg.Node.RunDir, token, role)
	if err := os.WriteFile(path, []byte(fmt.Sprintf("%d\n", pid)), 0o644); err != nil {
		c.logger.Err("write pid marker file failed", applog.Fields{"path": path, "cause": err.Error()})
	}
}

// removePIDFilesForToken deletes every pid marker file belonging to token,
// used once its load generator has been torn down.
func (c *Coordinator) removePIDFilesForToken(token string) {
	matches, err := filepath.Glob(filepath.Join(c.cfg.Node.RunDir, fmt.Sprintf("loadgen_%s_*.pid", token)))
	if err != nil {
		c.logger.Err("glob pid marker files failed", applog.Fields{"session": token, "cause": err.Error()})
		return
	}
	for _, m := range matches {
		_ = os.Remove(m)
	}
}
