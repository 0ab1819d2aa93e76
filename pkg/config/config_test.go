package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "thrash.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	path := writeConfig(t, "target: /tmp/testfile\n")
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/testfile", cfg.Target)
	assert.Equal(t, "sync", cfg.Workload.EngineType)
	assert.Equal(t, 4096, cfg.Workload.BlockSize)
	assert.Equal(t, 1, cfg.Workload.Workers)
	assert.Equal(t, 10*time.Second, cfg.Workload.Runtime)
	assert.Equal(t, "random", cfg.Workload.Pattern)
	assert.Equal(t, time.Second, cfg.Workload.RateCycle)
	assert.Equal(t, "monotonic", cfg.Workload.ClockSource)
}

func TestLoadFullWorkload(t *testing.T) {
	path := writeConfig(t, `
target: /dev/nvme0n1
workload:
  engine_type: uring
  direct: true
  read_pct: 70
  block_size: 65536
  workers: 4
  queue_depth: 32
  runtime: 30s
  pattern: zipf
  theta: 1.2
  random_repeat: true
  seed: 42
  rate: 104857600
  rate_min: 52428800
  rate_cycle: 500ms
  thinktime: 100us
  clock_source: cycles
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	w := cfg.Workload
	assert.Equal(t, "uring", w.EngineType)
	assert.True(t, w.Direct)
	assert.Equal(t, 70, w.ReadPct)
	assert.Equal(t, 65536, w.BlockSize)
	assert.Equal(t, 4, w.Workers)
	assert.Equal(t, 32, w.QueueDepth)
	assert.Equal(t, 30*time.Second, w.Runtime)
	assert.Equal(t, "zipf", w.Pattern)
	assert.InDelta(t, 1.2, w.Theta, 1e-9)
	assert.True(t, w.RandomRepeat)
	assert.Equal(t, int64(42), w.Seed)
	assert.Equal(t, uint64(104857600), w.Rate)
	assert.Equal(t, uint64(52428800), w.RateMin)
	assert.Equal(t, 500*time.Millisecond, w.RateCycle)
	assert.Equal(t, 100*time.Microsecond, w.Thinktime)
	assert.Equal(t, "cycles", w.ClockSource)
}

func TestLoadRejectsBadConfigs(t *testing.T) {
	cases := []struct {
		name string
		body string
	}{
		{"missing target", "workload:\n  workers: 2\n"},
		{"negative block size", "target: /tmp/f\nworkload:\n  block_size: -1\n"},
		{"read pct out of range", "target: /tmp/f\nworkload:\n  read_pct: 150\n"},
		{"unknown pattern", "target: /tmp/f\nworkload:\n  pattern: fractal\n"},
		{"malformed yaml", "target: [\n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tc.body))
			assert.Error(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	cfg := &Config{Target: "/tmp/f"}
	cfg.ApplyDefaults()
	require.NoError(t, cfg.Validate())
}
