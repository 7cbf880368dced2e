// Package proxyconfig renders and installs the reverse-proxy access
// fragment (spec.md §4.5, §6): two nginx map blocks (access boolean, load-gen
// UI port) plus an always-present entry for the operator's cluster secret.
// Rendering is pure; installation reuses the same atomic-write primitive as
// the persistence store (google/renameio) and triggers an nginx reload.
package proxyconfig

import (
	"context"
	"fmt"
	"os/exec"
	"sort"
	"strings"

	"github.com/google/renameio/v2"

	"github.com/mronstro/rondb-tools/internal/admission"
	"github.com/mronstro/rondb-tools/internal/session"
)

// Writer renders and installs the nginx-dynamic.conf fragment.
type Writer struct {
	fragmentPath  string
	nginxMainConf string
	nginxErrorLog string
	clusterSecret string
	clusterPort   int
	nginxBinary   string
}

// NewWriter returns a Writer. clusterPort is the well-known port the
// operator's always-present GUI_SECRET maps to (spec.md §4.5, §9).
func NewWriter(fragmentPath, nginxMainConf, nginxErrorLog, clusterSecret string, clusterPort int) *Writer {
	return &Writer{
		fragmentPath:  fragmentPath,
		nginxMainConf: nginxMainConf,
		nginxErrorLog: nginxErrorLog,
		clusterSecret: clusterSecret,
		clusterPort:   clusterPort,
		nginxBinary:   "nginx",
	}
}

// Render builds the fragment text. It reads every session it is given, so
// callers pass either the live map with the global state lock held or a
// snapshot copied under that lock (the coordinator does the latter).
func Render(sessions map[string]*session.Session, clusterSecret string, clusterPort int) string {
	type row struct {
		secret string
		port   int
	}
	rows := make([]row, 0, len(sessions)+1)
	rows = append(rows, row{secret: clusterSecret, port: clusterPort})
	for secret, s := range sessions {
		port := 0
		if s.LoadgenPortOffset != nil {
			port = admission.HTTPUIPort(*s.LoadgenPortOffset)
		}
		rows = append(rows, row{secret: secret, port: port})
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].secret < rows[j].secret })

	var access, ports strings.Builder
	access.WriteString("map $cookie_x_auth $demo_access_ok {\n    default 0;\n")
	ports.WriteString("map $cookie_x_auth $demo_loadgen_port {\n    default 0;\n")
	for _, r := range rows {
		fmt.Fprintf(&access, "    %q 1;\n", r.secret)
		if r.port != 0 {
			fmt.Fprintf(&ports, "    %q %d;\n", r.secret, r.port)
		}
	}
	access.WriteString("}\n")
	ports.WriteString("}\n")

	return access.String() + "\n" + ports.String()
}

// Install atomically writes the rendered fragment then reloads nginx.
func (w *Writer) Install(ctx context.Context, sessions map[string]*session.Session) error {
	fragment := Render(sessions, w.clusterSecret, w.clusterPort)
	if err := renameio.WriteFile(w.fragmentPath, []byte(fragment), 0o644); err != nil {
		return fmt.Errorf("proxyconfig: atomic write %s: %w", w.fragmentPath, err)
	}
	return w.reload(ctx)
}

// reload spawns the nginx binary with its reload signal, pointing it at the
// main config and a separate error-log path that suppresses a known
// spurious warning (spec.md §4.5).
func (w *Writer) reload(ctx context.Context) error {
	cmd := exec.CommandContext(ctx, w.nginxBinary, "-s", "reload", "-c", w.nginxMainConf, "-e", w.nginxErrorLog)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return fmt.Errorf("proxyconfig: nginx reload failed: %w (%s)", err, strings.TrimSpace(string(out)))
	}
	return nil
}
