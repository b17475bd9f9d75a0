// Package config implements the process-wide immutable configuration
// (spec §3, §6): JSON file loading via QACTUAR_CONFIG, with CLI-flag
// overlay and documented defaults.
package config

import (
	"encoding/json"
	"os"
)

// ServerType selects one of the three execution models (spec §4.11).
type ServerType string

const (
	SimpleFork ServerType = "simple_fork"
	PreFork    ServerType = "prefork"
	AsyncOnly  ServerType = "async_only"
)

// Config is the process-wide, immutable-after-init configuration (spec
// §3). JSON keys are upper-case, matching the original Python
// implementation's config file convention (spec §6).
type Config struct {
	Host string `json:"HOST"`
	Port int    `json:"PORT"`

	ServerType ServerType `json:"SERVER_TYPE"`

	SelectSleepTime      float64 `json:"SELECT_SLEEP_TIME"`
	RecvTimeout          float64 `json:"RECV_TIMEOUT"`
	RecvBytes            int     `json:"RECV_BYTES"`
	RequestTimeout       float64 `json:"REQUEST_TIMEOUT"`
	ProcessPoolSize      int     `json:"PROCESS_POOL_SIZE"`
	MaxProcesses         int     `json:"MAX_PROCESSES"`
	CheckProcessInterval float64 `json:"CHECK_PROCESS_INTERVAL"`

	SSLCertPath string `json:"SSL_CERT_PATH"`
	SSLKeyPath  string `json:"SSL_KEY_PATH"`
	SSLCiphers  string `json:"SSL_CIPHERS"`

	AppDir string            `json:"APP_DIR"`
	Apps   map[string]string `json:"APPS"`

	GatherProcessStats bool `json:"GATHER_PROCESS_STATS"`

	Logs map[string]interface{} `json:"LOGS"`
}

// Default returns the documented defaults (spec §3, §6, and
// original_source's qactuar/config.py).
func Default() Config {
	return Config{
		Host:                 "localhost",
		Port:                 8000,
		ServerType:           SimpleFork,
		SelectSleepTime:      0.025,
		RecvTimeout:          0.001,
		RecvBytes:            65536,
		RequestTimeout:       60,
		ProcessPoolSize:      0, // 0 means "use host CPU count", spec §4.11.2
		MaxProcesses:         500,
		CheckProcessInterval: 1,
		Apps:                 map[string]string{},
	}
}

// Load reads the JSON config file named by the QACTUAR_CONFIG environment
// variable, overlaying it onto the defaults. Absent or invalid paths fall
// back to defaults with a warning left for the caller to log (spec §6:
// "when absent or invalid, defaults are used with a warning").
func Load() (cfg Config, usedDefault bool, err error) {
	cfg = Default()

	path := os.Getenv("QACTUAR_CONFIG")
	if path == "" {
		return cfg, true, nil
	}

	data, readErr := os.ReadFile(path)
	if readErr != nil {
		return cfg, true, readErr
	}

	if jsonErr := json.Unmarshal(data, &cfg); jsonErr != nil {
		return Default(), true, jsonErr
	}
	return cfg, false, nil
}
