// Package bootstrap wires the orchestrator's collaborators from a loaded
// config.Config, shared by cmd/server (serve) and cmd/reconcile (a standalone
// run of the startup reconciliation pass) so neither binary repeats the
// other's construction order.
package bootstrap

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mronstro/rondb-tools/internal/applog"
	"github.com/mronstro/rondb-tools/internal/config"
	"github.com/mronstro/rondb-tools/internal/coordinator"
	"github.com/mronstro/rondb-tools/internal/grafana"
	"github.com/mronstro/rondb-tools/internal/metrics"
	"github.com/mronstro/rondb-tools/internal/proxyconfig"
	"github.com/mronstro/rondb-tools/internal/store"
)

const clusterSecretProxyPort = 3000

// Collaborators holds everything a binary needs to either serve traffic or
// run a one-shot operation, plus the Close func that releases the pool and
// flushes the logger.
type Collaborators struct {
	Logger      *applog.Logger
	Pool        *pgxpool.Pool
	Coordinator *coordinator.Coordinator
}

// Build connects to the database and constructs the coordinator and its
// collaborators. Callers must call Close when done.
func Build(ctx context.Context, cfg *config.Config) (*Collaborators, error) {
	logger := applog.New(applog.Config{
		Filename:   cfg.Node.DurableDir + "/orchestrator.log",
		MaxSizeMB:  cfg.Log.MaxSizeMB,
		MaxBackups: cfg.Log.MaxBackups,
		MaxAgeDays: cfg.Log.MaxAgeDays,
	})

	dsn := fmt.Sprintf("postgres://%s:%s@%s/postgres", "postgres", cfg.Cluster.MySQLPassword, cfg.Cluster.MySQLHost)
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		logger.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	st := store.New(cfg.Node.DurableDir + "/demo_state.json")
	proxy := proxyconfig.NewWriter(
		cfg.Node.ConfigFiles+"/nginx-dynamic.conf",
		cfg.Node.ConfigFiles+"/nginx.conf",
		cfg.Node.NginxErrLog,
		cfg.Cluster.GUISecret,
		clusterSecretProxyPort,
	)
	grafanaClient := grafana.New(cfg.Cluster.GrafanaHost, cfg.Cluster.GrafanaAdminKey)
	m := metrics.New(prometheus.DefaultRegisterer)

	coord := coordinator.New(cfg, st, logger, pool, proxy, grafanaClient, m)
	return &Collaborators{Logger: logger, Pool: pool, Coordinator: coord}, nil
}

// Close releases the pool and flushes the logger.
func (c *Collaborators) Close() {
	c.Pool.Close()
	c.Logger.Close()
}
