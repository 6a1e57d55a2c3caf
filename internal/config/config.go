package config

import (
	"time"
)

// Validation tags described here: https://pkg.go.dev/github.com/go-playground/validator/v10
type Config struct {
	Environment string `env:"ENVIRONMENT" flag:"environment"`
	Scan        struct {
		Port               int           `env:"SCAN_PORT"                flag:"scan-port"                validate:"omitempty,number"   desc:"device API TCP port"`
		ProbeTimeout       time.Duration `env:"SCAN_PROBE_TIMEOUT"       flag:"scan-probe-timeout"       desc:"timeout of one discovery probe"`
		ConnectTimeout     time.Duration `env:"SCAN_CONNECT_TIMEOUT"     flag:"scan-connect-timeout"     desc:"timeout of the reachability pre-filter dial"`
		ProbeConcurrency   int           `env:"SCAN_PROBE_CONCURRENCY"   flag:"scan-probe-concurrency"   validate:"omitempty,number"   desc:"full protocol probes in flight per batch"`
		ConnectConcurrency int           `env:"SCAN_CONNECT_CONCURRENCY" flag:"scan-connect-concurrency" validate:"omitempty,number"   desc:"reachability checks in flight per batch"`
	}
	Poller struct {
		Interval     time.Duration `env:"POLLER_INTERVAL"      flag:"poller-interval"`
		BatchSize    int           `env:"POLLER_BATCH_SIZE"    flag:"poller-batch-size"    validate:"omitempty,number"`
		ProbeTimeout time.Duration `env:"POLLER_PROBE_TIMEOUT" flag:"poller-probe-timeout"`
		HistorySize  int           `env:"POLLER_HISTORY_SIZE"  flag:"poller-history-size"  validate:"omitempty,number" desc:"retained poll results per device"`
	}
	Command struct {
		Timeout time.Duration `env:"COMMAND_TIMEOUT" flag:"command-timeout" desc:"timeout of one control command round trip"`
	}
	Store struct {
		DBPath string `env:"STORE_DB_PATH" flag:"store-db-path" desc:"filepath of the SQLite database"`
	}
	Log struct {
		Color        bool   `env:"LOG_COLOR"         flag:"log-color"`
		FolderPath   string `env:"LOG_FOLDER_PATH"   flag:"log-folder-path"   validate:"omitempty,dirpath" desc:"enables file logging and sets the folder path"`
		IsProd       bool   `env:"LOG_IS_PROD"       flag:"log-is-prod"       validate:""                  desc:"affects the format of the log output"`
		JSON         bool   `env:"LOG_JSON"          flag:"log-json"`
		LevelApp     string `env:"LOG_LEVEL_APP"     flag:"log-level-app"     validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelScanner string `env:"LOG_LEVEL_SCANNER" flag:"log-level-scanner" validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
		LevelPoller  string `env:"LOG_LEVEL_POLLER"  flag:"log-level-poller"  validate:"omitempty,oneof=debug info warn error dpanic panic fatal"`
	}
	Web struct {
		Address   string `env:"WEB_ADDRESS"    flag:"web-address"    validate:"omitempty,hostname_port" desc:"http server address host:port"`
		PublicUrl string `env:"WEB_PUBLIC_URL" flag:"web-public-url" validate:"omitempty,url"          desc:"public url of the service, falls back to web-address if empty"`
	}
}

func (cfg *Config) SetDefaults() {
	if cfg.Environment == "" {
		cfg.Environment = "development"
	}

	// Scan

	if cfg.Scan.Port == 0 {
		cfg.Scan.Port = 4028
	}
	if cfg.Scan.ProbeTimeout == 0 {
		cfg.Scan.ProbeTimeout = 1500 * time.Millisecond
	}
	if cfg.Scan.ConnectTimeout == 0 {
		cfg.Scan.ConnectTimeout = 1 * time.Second
	}
	if cfg.Scan.ProbeConcurrency == 0 {
		cfg.Scan.ProbeConcurrency = 20
	}
	if cfg.Scan.ConnectConcurrency == 0 {
		cfg.Scan.ConnectConcurrency = 100
	}

	// Poller

	if cfg.Poller.Interval == 0 {
		cfg.Poller.Interval = 30 * time.Second
	}
	if cfg.Poller.BatchSize == 0 {
		cfg.Poller.BatchSize = 30
	}
	if cfg.Poller.ProbeTimeout == 0 {
		cfg.Poller.ProbeTimeout = 3 * time.Second
	}
	if cfg.Poller.HistorySize == 0 {
		cfg.Poller.HistorySize = 60
	}

	// Command

	if cfg.Command.Timeout == 0 {
		cfg.Command.Timeout = 5 * time.Second
	}

	// Store

	if cfg.Store.DBPath == "" {
		cfg.Store.DBPath = "minerwatch.db"
	}

	// Log

	if cfg.Log.LevelApp == "" {
		cfg.Log.LevelApp = "debug"
	}
	if cfg.Log.LevelScanner == "" {
		cfg.Log.LevelScanner = "info"
	}
	if cfg.Log.LevelPoller == "" {
		cfg.Log.LevelPoller = "info"
	}

	// Web

	if cfg.Web.Address == "" {
		cfg.Web.Address = "0.0.0.0:8080"
	}
	if cfg.Web.PublicUrl == "" {
		cfg.Web.PublicUrl = "http://localhost:8080"
	}
}

// GetSanitized returns a copy of the config safe to expose over the API,
// explicitly adding each field to avoid accidentally leaking sensitive data
func (cfg *Config) GetSanitized() interface{} {
	publicCfg := Config{}

	publicCfg.Environment = cfg.Environment

	publicCfg.Scan = cfg.Scan
	publicCfg.Poller = cfg.Poller
	publicCfg.Command = cfg.Command

	publicCfg.Log.Color = cfg.Log.Color
	publicCfg.Log.FolderPath = cfg.Log.FolderPath
	publicCfg.Log.IsProd = cfg.Log.IsProd
	publicCfg.Log.JSON = cfg.Log.JSON
	publicCfg.Log.LevelApp = cfg.Log.LevelApp
	publicCfg.Log.LevelScanner = cfg.Log.LevelScanner
	publicCfg.Log.LevelPoller = cfg.Log.LevelPoller

	publicCfg.Web.Address = cfg.Web.Address
	publicCfg.Web.PublicUrl = cfg.Web.PublicUrl

	return publicCfg
}
