// Package config loads the runtime's process configuration the way the
// teacher's own internal/config/config.go does: sane defaults, an optional
// YAML file, and environment-variable overrides via viper.
package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/aosanya/agentruntime/internal/types"
)

// Config is the runtime's recognized configuration (spec.md §6).
type Config struct {
	AppName  string `mapstructure:"app_name"`
	LogLevel string `mapstructure:"log_level"`

	Allocator   AllocatorConfig    `mapstructure:"allocator"`
	DebugMgr    DebugManagerConfig `mapstructure:"debug_manager"`
	PerfMonitor PerfMonitorConfig  `mapstructure:"performance_monitor"`
	Retry       RetryConfig        `mapstructure:"retry"`

	SpecsDir string `mapstructure:"specs_dir"`
}

// AllocatorConfig holds the Resource Allocator's recognized keys.
type AllocatorConfig struct {
	StarvationThresholdMs   int     `mapstructure:"starvation_threshold_ms"`
	FairnessWindow          int     `mapstructure:"fairness_window"`
	PriorityBoostForStarved float64 `mapstructure:"priority_boost_for_starved"`
}

// StarvationThreshold converts the configured milliseconds into a duration.
func (a AllocatorConfig) StarvationThreshold() time.Duration {
	return time.Duration(a.StarvationThresholdMs) * time.Millisecond
}

// DebugManagerConfig holds the Debug Manager's recognized keys.
type DebugManagerConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	LogMessages      bool `mapstructure:"log_messages"`
	LogRouting       bool `mapstructure:"log_routing"`
	LogAgentState    bool `mapstructure:"log_agent_state"`
	LogWorkflowState bool `mapstructure:"log_workflow_state"`
}

// PerfMonitorConfig holds the Performance Monitor's recognized keys.
type PerfMonitorConfig struct {
	MaxHistorySize int `mapstructure:"max_history_size"`
}

// RetryConfig holds the default retry policy's recognized keys.
type RetryConfig struct {
	MaxRetries int    `mapstructure:"max_retries"`
	Backoff    string `mapstructure:"backoff"`
	TimeoutMs  int    `mapstructure:"timeout_ms"`
}

// RetryPolicy converts the configured retry settings into a types.RetryPolicy.
func (r RetryConfig) RetryPolicy() types.RetryPolicy {
	return types.RetryPolicy{
		MaxRetries: r.MaxRetries,
		Backoff:    types.BackoffStrategy(r.Backoff),
		RetryableErrors: map[types.ErrorCategory]struct{}{
			types.ErrorCategoryTransient: {},
		},
		Timeout: time.Duration(r.TimeoutMs) * time.Millisecond,
	}
}

// Load reads configuration from an optional file at configPath, a .env
// file if present, and CVXC_-prefixed environment variables, layered over
// the spec's documented defaults.
func Load(configPath string) (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		AppName:  "orchestratord",
		LogLevel: "info",
		Allocator: AllocatorConfig{
			StarvationThresholdMs:   5000,
			FairnessWindow:          100,
			PriorityBoostForStarved: 10,
		},
		DebugMgr: DebugManagerConfig{
			Enabled:          false,
			LogMessages:      true,
			LogRouting:       true,
			LogAgentState:    true,
			LogWorkflowState: true,
		},
		PerfMonitor: PerfMonitorConfig{
			MaxHistorySize: 10000,
		},
		Retry: RetryConfig{
			MaxRetries: 3,
			Backoff:    string(types.BackoffExponential),
			TimeoutMs:  5000,
		},
		SpecsDir: "./specs",
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		if filepath.IsAbs(configPath) {
			v.SetConfigFile(configPath)
		} else {
			v.AddConfigPath(filepath.Dir(configPath))
			ext := filepath.Ext(configPath)
			v.SetConfigName(filepath.Base(configPath[:len(configPath)-len(ext)]))
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/orchestratord")
	}

	v.SetEnvPrefix("CVXC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for _, key := range []string{
		"app_name", "log_level", "specs_dir",
		"allocator.starvation_threshold_ms", "allocator.fairness_window", "allocator.priority_boost_for_starved",
		"debug_manager.enabled", "debug_manager.log_messages", "debug_manager.log_routing",
		"debug_manager.log_agent_state", "debug_manager.log_workflow_state",
		"performance_monitor.max_history_size",
		"retry.max_retries", "retry.backoff", "retry.timeout_ms",
	} {
		_ = v.BindEnv(key)
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return cfg, nil
}
