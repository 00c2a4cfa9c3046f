package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/stonezone/batchgen/config"
	"github.com/stonezone/batchgen/job"
	"github.com/stonezone/batchgen/store"
	"github.com/stonezone/batchgen/store/file"
	"github.com/stonezone/batchgen/store/memory"
)

const cliExecutable = "batchctl"

// app carries state shared by every subcommand once PersistentPreRunE ran.
type app struct {
	cfg    config.Config
	logger *slog.Logger
	store  store.Store
	render *renderer
}

// NewCommand constructs the batchctl root command.
func NewCommand() *cobra.Command {
	var (
		configFile      string
		envFile         string
		storageDisabled bool
		jsonOutput      bool
		noColor         bool
	)
	a := &app{}

	cmd := &cobra.Command{
		Use:   cliExecutable,
		Short: "Inspect batchgen batches and job status records",
		Long: "batchctl reads the status and batch directories written by a batchgen\n" +
			"engine. It works against a running process or the files a dead one left behind.",
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadEnvFile(envFile); err != nil {
				return err
			}

			mgr := config.NewManager()
			if err := mgr.Load(cmd.Flags(), configFile); err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			a.cfg = mgr.Get()

			logger, err := newLogger(cmd.ErrOrStderr(), a.cfg.Log)
			if err != nil {
				return err
			}
			a.logger = logger
			a.render = newRenderer(cmd.OutOrStdout(), jsonOutput, !noColor && os.Getenv("NO_COLOR") == "")

			if storageDisabled {
				a.store = memory.New()
				logger.Debug("storage disabled for this run")
				return nil
			}
			s, err := openStore(a.cfg, logger)
			if err != nil {
				return err
			}
			a.store = s
			return nil
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if a.store != nil {
				return a.store.Close()
			}
			return nil
		},
	}

	cmd.SilenceUsage = true

	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Configuration file path (YAML)")
	cmd.PersistentFlags().StringVar(&envFile, "env-file", "", "Load environment variables from this file (default .env when present)")
	cmd.PersistentFlags().BoolVar(&storageDisabled, "no-storage", false, "Use an empty in-memory store instead of the data directories")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Print machine-readable JSON")
	cmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")

	config.BindFlags(cmd.PersistentFlags())

	cmd.AddCommand(newBatchesCommand(a))
	cmd.AddCommand(newJobsCommand(a))
	cmd.AddCommand(newSweepCommand(a))
	cmd.AddCommand(newVersionCommand())

	return cmd
}

// loadEnvFile loads path, or .env from the working directory when path is
// empty and the file exists. Existing environment variables win.
func loadEnvFile(path string) error {
	if path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	return nil
}

// newLogger builds a text or JSON slog handler writing to w.
func newLogger(w io.Writer, cfg config.LogConfig) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.ToUpper(cfg.Level))); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", cfg.Level, err)
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

func openStore(cfg config.Config, logger *slog.Logger) (*file.Store, error) {
	codec, err := file.CodecByName(cfg.Codec)
	if err != nil {
		return nil, err
	}
	s, err := file.New(cfg.StatusDir, cfg.BatchDir,
		file.WithCodec(codec),
		file.WithLockTimeout(cfg.LockTimeout),
		file.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("open data directories: %w", err)
	}
	return s, nil
}

// currentJobs overlays each job's status record onto the copy held in the
// batch record. Records the sweep already removed keep the batch copy.
func currentJobs(ctx context.Context, s job.Store, jobs []*job.Job) []*job.Job {
	out := make([]*job.Job, len(jobs))
	for i, j := range jobs {
		if rec, ok := s.Read(ctx, j.ID); ok {
			out[i] = rec
			continue
		}
		out[i] = j
	}
	return out
}
