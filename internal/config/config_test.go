package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(prev) })
}

func TestLoadAppliesDefaultsWithNoFile(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 5000, cfg.Allocator.StarvationThresholdMs)
	assert.Equal(t, 100, cfg.Allocator.FairnessWindow)
	assert.Equal(t, 10.0, cfg.Allocator.PriorityBoostForStarved)
	assert.Equal(t, 10000, cfg.PerfMonitor.MaxHistorySize)
	assert.Equal(t, 3, cfg.Retry.MaxRetries)
	assert.False(t, cfg.DebugMgr.Enabled)
	assert.True(t, cfg.DebugMgr.LogMessages)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestratord.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
allocator:
  starvation_threshold_ms: 9000
  fairness_window: 50
performance_monitor:
  max_history_size: 500
`), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 9000, cfg.Allocator.StarvationThresholdMs)
	assert.Equal(t, 50, cfg.Allocator.FairnessWindow)
	assert.Equal(t, 500, cfg.PerfMonitor.MaxHistorySize)
}

func TestLoadAppliesEnvironmentOverride(t *testing.T) {
	dir := t.TempDir()
	chdir(t, dir)
	t.Setenv("CVXC_ALLOCATOR_FAIRNESS_WINDOW", "250")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 250, cfg.Allocator.FairnessWindow)
}

func TestRetryPolicyConversion(t *testing.T) {
	rc := RetryConfig{MaxRetries: 3, Backoff: "exponential", TimeoutMs: 5000}
	policy := rc.RetryPolicy()
	assert.Equal(t, 3, policy.MaxRetries)
	assert.True(t, policy.IsRetryable("transient"))
	assert.False(t, policy.IsRetryable("validation"))
}

func TestAllocatorStarvationThresholdConversion(t *testing.T) {
	a := AllocatorConfig{StarvationThresholdMs: 2500}
	assert.Equal(t, int64(2500), a.StarvationThreshold().Milliseconds())
}
