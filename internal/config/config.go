// Package config loads the orchestrator's configuration from the process
// environment using viper, the way the teacher service binds its nested
// configuration trees.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every environment-derived setting the orchestrator needs.
type Config struct {
	Node    NodeConfig
	Cluster ClusterConfig
	Log     LogConfig
	App     AppConfig
}

// NodeConfig carries the identity/filesystem layout variables from spec.md §6.
type NodeConfig struct {
	User         string `mapstructure:"node_user"`
	RunDir       string `mapstructure:"run_dir"`
	DurableDir   string `mapstructure:"durable_dir"`
	ConfigFiles  string `mapstructure:"config_files"`
	NginxErrLog  string `mapstructure:"nginx_error_log"`
}

// ClusterConfig carries the external-collaborator endpoints from spec.md §6.
type ClusterConfig struct {
	MySQLHost        string `mapstructure:"mysqld_pri_1"`
	MySQLPassword     string `mapstructure:"demo_mysql_pw"`
	GrafanaHost       string `mapstructure:"grafana_pri_1"`
	GrafanaAdminKey   string `mapstructure:"grafana_admin_key"`
	GUISecret         string `mapstructure:"gui_secret"`
	RDRSMajorVersion  int    `mapstructure:"rdrs_major_version"`
	RDRSURI           string `mapstructure:"rdrs_uri"`
}

// LogConfig controls the structured logger's rotation policy.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
}

// AppConfig holds the ambient tunables spec.md leaves as defaults.
type AppConfig struct {
	ListenAddr               string        `mapstructure:"listen_addr"`
	MaxActiveDatabases       int           `mapstructure:"max_active_databases"`
	SessionTTL               time.Duration `mapstructure:"session_ttl"`
	LoadgenWorkerCount       int           `mapstructure:"loadgen_worker_count"`
	MaintenanceInterval      time.Duration `mapstructure:"maintenance_interval"`
	LoadgenScriptsPath       string        `mapstructure:"loadgen_scripts_path"`
}

// Load reads the configuration from the environment, applying defaults for
// every variable spec.md doesn't mark required.
func Load() (*Config, error) {
	v := viper.New()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.max_size_mb", 100)
	v.SetDefault("log.max_backups", 5)
	v.SetDefault("log.max_age_days", 28)
	v.SetDefault("app.listen_addr", ":8080")
	v.SetDefault("app.max_active_databases", 6)
	v.SetDefault("app.session_ttl", 900*time.Second)
	v.SetDefault("app.loadgen_worker_count", 2)
	v.SetDefault("app.maintenance_interval", 10)
	v.SetDefault("app.loadgen_scripts_path", "loadgen_batch_read.py")

	bind := func(key, env string) {
		_ = v.BindEnv(key, env)
	}
	bind("node.node_user", "NODE_USER")
	bind("node.run_dir", "RUN_DIR")
	bind("node.durable_dir", "DURABLE_DIR")
	bind("node.config_files", "CONFIG_FILES")
	bind("node.nginx_error_log", "NGINX_ERROR_LOG")
	bind("cluster.mysqld_pri_1", "MYSQLD_PRI_1")
	bind("cluster.demo_mysql_pw", "DEMO_MYSQL_PW")
	bind("cluster.grafana_pri_1", "GRAFANA_PRI_1")
	bind("cluster.grafana_admin_key", "GRAFANA_ADMIN_KEY")
	bind("cluster.gui_secret", "GUI_SECRET")
	bind("cluster.rdrs_major_version", "RDRS_MAJOR_VERSION")
	bind("cluster.rdrs_uri", "RDRS_URI")
	bind("log.level", "LOG_LEVEL")
	bind("app.listen_addr", "HTTP_LISTEN_ADDR")
	bind("app.max_active_databases", "MAX_ACTIVE_DATABASES")
	bind("app.session_ttl", "SESSION_TTL")
	bind("app.loadgen_worker_count", "LOADGEN_WORKER_COUNT")
	bind("app.maintenance_interval", "MAINTENANCE_INTERVAL_SECONDS")
	bind("app.loadgen_scripts_path", "LOADGEN_SCRIPTS_PATH")

	cfg := &Config{
		Node: NodeConfig{
			User:        v.GetString("node.node_user"),
			RunDir:      v.GetString("node.run_dir"),
			DurableDir:  v.GetString("node.durable_dir"),
			ConfigFiles: v.GetString("node.config_files"),
			NginxErrLog: v.GetString("node.nginx_error_log"),
		},
		Cluster: ClusterConfig{
			MySQLHost:        v.GetString("cluster.mysqld_pri_1"),
			MySQLPassword:    v.GetString("cluster.demo_mysql_pw"),
			GrafanaHost:      v.GetString("cluster.grafana_pri_1"),
			GrafanaAdminKey:  v.GetString("cluster.grafana_admin_key"),
			GUISecret:        v.GetString("cluster.gui_secret"),
			RDRSMajorVersion: v.GetInt("cluster.rdrs_major_version"),
			RDRSURI:          v.GetString("cluster.rdrs_uri"),
		},
		Log: LogConfig{
			Level:      v.GetString("log.level"),
			MaxSizeMB:  v.GetInt("log.max_size_mb"),
			MaxBackups: v.GetInt("log.max_backups"),
			MaxAgeDays: v.GetInt("log.max_age_days"),
		},
		App: AppConfig{
			ListenAddr:          v.GetString("app.listen_addr"),
			MaxActiveDatabases:  v.GetInt("app.max_active_databases"),
			SessionTTL:          v.GetDuration("app.session_ttl"),
			LoadgenWorkerCount:  v.GetInt("app.loadgen_worker_count"),
			MaintenanceInterval: time.Duration(v.GetInt("app.maintenance_interval")) * time.Second,
			LoadgenScriptsPath:  v.GetString("app.loadgen_scripts_path"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that every required environment variable from spec.md §6
// was supplied.
func (c *Config) Validate() error {
	required := map[string]string{
		"NODE_USER":          c.Node.User,
		"RUN_DIR":            c.Node.RunDir,
		"DURABLE_DIR":        c.Node.DurableDir,
		"CONFIG_FILES":       c.Node.ConfigFiles,
		"MYSQLD_PRI_1":       c.Cluster.MySQLHost,
		"DEMO_MYSQL_PW":      c.Cluster.MySQLPassword,
		"GRAFANA_PRI_1":      c.Cluster.GrafanaHost,
		"GUI_SECRET":         c.Cluster.GUISecret,
		"RDRS_URI":           c.Cluster.RDRSURI,
		"NGINX_ERROR_LOG":    c.Node.NginxErrLog,
	}
	var missing []string
	for env, val := range required {
		if val == "" {
			missing = append(missing, env)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	if c.Cluster.RDRSMajorVersion <= 0 {
		return fmt.Errorf("RDRS_MAJOR_VERSION must be a positive integer")
	}
	return nil
}
