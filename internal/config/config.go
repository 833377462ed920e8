// Package config loads WorkerConfig/APIConfig the way the corpus's own
// cobra+viper entry point does: flags bound into viper, an env prefix, an
// optional config file, and documented defaults (SPEC_FULL.md AMBIENT
// STACK).
package config

import (
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "PTYSUP"

// Defaults mirror SPEC_FULL.md's AMBIENT STACK configuration list.
const (
	DefaultCols                   = 120
	DefaultRows                   = 40
	DefaultReadySettleMs          = 100
	DefaultTaskCompleteDebounceMs = 1500
	DefaultStallTimeoutMs         = 10_000
	DefaultStallBackoffCapMs      = 30_000
	DefaultLogRingSize            = 1000
)

// WorkerConfig configures cmd/worker.
type WorkerConfig struct {
	Cols           int
	Rows           int
	LogRingSize    int
	StallEnabled   bool
	StallTimeoutMs int64
	LogFormat      string // "text" or "json"
	LogLevel       string
}

// APIConfig configures cmd/api, extending WorkerConfig with the HTTP
// listen address.
type APIConfig struct {
	WorkerConfig
	Addr string
}

// New builds a viper instance layered flags > env > config file > defaults,
// the same precedence and prefix style the corpus's own cobra+viper entry
// point uses (bound flags, SetEnvPrefix+AutomaticEnv, then an optional
// config file read on top of whatever isn't already set by a higher layer).
func New(flags *pflag.FlagSet, configFile string) (*viper.Viper, error) {
	v := viper.New()

	v.SetDefault("cols", DefaultCols)
	v.SetDefault("rows", DefaultRows)
	v.SetDefault("log-ring-size", DefaultLogRingSize)
	v.SetDefault("stall-enabled", true)
	v.SetDefault("stall-timeout-ms", DefaultStallTimeoutMs)
	v.SetDefault("log-format", "text")
	v.SetDefault("log-level", "info")
	v.SetDefault("addr", ":8080")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return nil, err
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	return v, nil
}

// LoadWorkerConfig reads a WorkerConfig out of v.
func LoadWorkerConfig(v *viper.Viper) WorkerConfig {
	return WorkerConfig{
		Cols:           v.GetInt("cols"),
		Rows:           v.GetInt("rows"),
		LogRingSize:    v.GetInt("log-ring-size"),
		StallEnabled:   v.GetBool("stall-enabled"),
		StallTimeoutMs: v.GetInt64("stall-timeout-ms"),
		LogFormat:      v.GetString("log-format"),
		LogLevel:       v.GetString("log-level"),
	}
}

// LoadAPIConfig reads an APIConfig out of v.
func LoadAPIConfig(v *viper.Viper) APIConfig {
	return APIConfig{
		WorkerConfig: LoadWorkerConfig(v),
		Addr:         v.GetString("addr"),
	}
}
