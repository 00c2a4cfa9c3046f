package batchgen_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stonezone/batchgen"
)

func TestNewConfig_AppliesOptions(t *testing.T) {
	cfg, err := batchgen.NewConfig(
		batchgen.WithConcurrency(6),
		batchgen.WithPollInterval(50*time.Millisecond),
		batchgen.WithJobTimeout(time.Minute),
		batchgen.WithDispatchRate(2.5, 3),
		batchgen.WithDataDir("/var/lib/batchgen"),
		batchgen.WithCodec("msgpack"),
		batchgen.WithSweep(6*time.Hour, "@every 30m"),
	)
	require.NoError(t, err)

	assert.Equal(t, 6, cfg.Concurrency)
	assert.Equal(t, 50*time.Millisecond, cfg.PollInterval)
	assert.Equal(t, time.Minute, cfg.JobTimeout)
	assert.Equal(t, 2.5, cfg.DispatchRate)
	assert.Equal(t, 3, cfg.DispatchBurst)
	assert.Equal(t, filepath.Join("/var/lib/batchgen", "status"), cfg.StatusDir)
	assert.Equal(t, filepath.Join("/var/lib/batchgen", "batches"), cfg.BatchDir)
	assert.Equal(t, "msgpack", cfg.Codec)
	assert.Equal(t, 6*time.Hour, cfg.StatusMaxAge)
	assert.Equal(t, "@every 30m", cfg.SweepSchedule)
}

func TestNewConfig_DefaultsAreValid(t *testing.T) {
	cfg, err := batchgen.NewConfig()
	require.NoError(t, err)
	assert.Equal(t, batchgen.DefaultConfig(), cfg)
}

func TestNewConfig_RejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		opt  batchgen.Option
	}{
		{"zero concurrency", batchgen.WithConcurrency(0)},
		{"zero poll interval", batchgen.WithPollInterval(0)},
		{"negative timeout", batchgen.WithJobTimeout(-time.Second)},
		{"negative rate", batchgen.WithDispatchRate(-1, 1)},
		{"unknown codec", batchgen.WithCodec("xml")},
		{"zero max age", batchgen.WithSweep(0, "")},
		{"empty data dir", batchgen.WithDataDir("")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := batchgen.NewConfig(tt.opt)
			assert.ErrorIs(t, err, batchgen.ErrInvalidConfig)
		})
	}
}
