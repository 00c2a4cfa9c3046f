// Package config loads batchgen configuration from layered sources.
//
// Precedence (highest to lowest):
//  1. Command-line flags (--concurrency=4, --log-level=debug)
//  2. Environment variables (BATCHGEN_CONCURRENCY=4, BATCHGEN_LOG_LEVEL=debug)
//  3. Config file (YAML)
//  4. Default values
package config

import (
	"fmt"
	"strings"
	"sync"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/stonezone/batchgen"
	"github.com/stonezone/batchgen/retry"
)

// EnvPrefix prefixes every environment variable the loader reads.
const EnvPrefix = "BATCHGEN_"

// sections are nested key groups. Env and flag names address them with
// their first underscore or dash: LOG_LEVEL and --log-level map to log.level.
var sections = []string{"log", "retry"}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// Config is the full application configuration.
type Config struct {
	batchgen.Config `koanf:",squash"`

	Log   LogConfig    `koanf:"log"`
	Retry retry.Config `koanf:"retry"`
}

// DefaultConfig returns the baseline configuration.
func DefaultConfig() Config {
	return Config{
		Config: batchgen.DefaultConfig(),
		Log:    LogConfig{Level: "info", Format: "text"},
		Retry:  retry.DefaultConfig(),
	}
}

// DefaultConfigAsMap flattens DefaultConfig into koanf keys.
func DefaultConfigAsMap() map[string]any {
	def := DefaultConfig()
	return map[string]any{
		"concurrency":          def.Concurrency,
		"poll_interval":        def.PollInterval,
		"shutdown_timeout":     def.ShutdownTimeout,
		"completed_cache_size": def.CompletedCacheSize,
		"job_timeout":          def.JobTimeout,
		"dispatch_rate":        def.DispatchRate,
		"dispatch_burst":       def.DispatchBurst,
		"status_dir":           def.StatusDir,
		"batch_dir":            def.BatchDir,
		"codec":                def.Codec,
		"lock_timeout":         def.LockTimeout,
		"status_max_age":       def.StatusMaxAge,
		"sweep_schedule":       def.SweepSchedule,

		"log.level":  def.Log.Level,
		"log.format": def.Log.Format,

		"retry.max_retries":    def.Retry.MaxRetries,
		"retry.base_delay":     def.Retry.BaseDelay,
		"retry.max_delay":      def.Retry.MaxDelay,
		"retry.backoff_factor": def.Retry.BackoffFactor,
		"retry.jitter":         def.Retry.Jitter,
		"retry.adaptive":       def.Retry.Adaptive,
	}
}

// Manager loads and holds the current configuration.
type Manager struct {
	k      *koanf.Koanf
	mu     sync.RWMutex
	config Config
}

// NewManager returns a Manager holding DefaultConfig until Load is called.
func NewManager() *Manager {
	return &Manager{
		k:      koanf.New("."),
		config: DefaultConfig(),
	}
}

// Load merges defaults, the YAML file at path (skipped when empty), the
// environment and any changed flags, then validates the result.
func (m *Manager) Load(flags *pflag.FlagSet, path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := koanf.New(".")

	if err := k.Load(confmap.Provider(DefaultConfigAsMap(), "."), nil); err != nil {
		return fmt.Errorf("load defaults: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(envProvider(), nil); err != nil {
		return fmt.Errorf("load environment: %w", err)
	}

	if flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(flags, ".", k, flagValue), nil); err != nil {
			return fmt.Errorf("load flags: %w", err)
		}
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return fmt.Errorf("unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	m.k = k
	m.config = cfg
	return nil
}

// Get returns a copy of the current configuration.
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.config
}

// GetValue returns the raw value at a koanf key path, or nil.
func (m *Manager) GetValue(key string) any {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.k.Get(key)
}

// Validate checks the engine settings and the log section.
func (c Config) Validate() error {
	if err := c.Config.Validate(); err != nil {
		return err
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: log.format must be text or json, got %q", batchgen.ErrInvalidConfig, c.Log.Format)
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("%w: retry.max_retries must not be negative", batchgen.ErrInvalidConfig)
	}
	return nil
}

func envProvider() *env.Env {
	return env.Provider(EnvPrefix, ".", func(s string) string {
		return sectionKey(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "_")
	})
}

// flagValue maps a changed flag to its koanf key. Unchanged flags are
// skipped so their defaults never shadow file or environment values.
func flagValue(f *pflag.Flag) (string, any) {
	if !f.Changed {
		return "", nil
	}
	return sectionKey(f.Name, "-"), f.Value.String()
}

// sectionKey turns "log_level" into "log.level" and "status-dir" into
// "status_dir".
func sectionKey(name, sep string) string {
	for _, s := range sections {
		if rest, ok := strings.CutPrefix(name, s+sep); ok {
			return s + "." + strings.ReplaceAll(rest, sep, "_")
		}
	}
	return strings.ReplaceAll(name, sep, "_")
}

// BindFlags registers flags for the commonly overridden settings. Flag
// defaults are informational only; unchanged flags are ignored by Load.
func BindFlags(flags *pflag.FlagSet) {
	def := DefaultConfig()
	flags.Int("concurrency", def.Concurrency, "Number of worker goroutines")
	flags.Duration("poll-interval", def.PollInterval, "Worker poll interval on an empty queue")
	flags.Duration("job-timeout", def.JobTimeout, "Per-job deadline (0 disables)")
	flags.Float64("dispatch-rate", def.DispatchRate, "Max job starts per second (0 disables)")
	flags.String("status-dir", def.StatusDir, "Directory holding job status records")
	flags.String("batch-dir", def.BatchDir, "Directory holding batch records")
	flags.String("codec", def.Codec, "Record encoding (json, msgpack)")
	flags.Duration("lock-timeout", def.LockTimeout, "File lock acquisition timeout")
	flags.Duration("status-max-age", def.StatusMaxAge, "Age after which status records are swept")
	flags.String("sweep-schedule", def.SweepSchedule, "Cron expression for periodic sweeps")
	flags.String("log-level", def.Log.Level, "Log level (debug, info, warn, error)")
	flags.String("log-format", def.Log.Format, "Log format (text, json)")
}
