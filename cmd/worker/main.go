package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"fleetrun/lib/slog"
	"fleetrun/lib/worker"
)

func newRootCmd() *cobra.Command {
	cfg := &Config{
		CoordinatorAddress: defaultCoordinatorAddress,
		CompilerPath:       defaultCompilerPath,
		CacheDir:           defaultCacheDir,
	}
	var compilerArgs string

	cmd := &cobra.Command{
		Use:   "worker",
		Short: "dial a coordinator and execute tasks it dispatches",
		RunE: func(_ *cobra.Command, _ []string) error {
			cfg.CompilerArgs = splitCompilerArgs(compilerArgs)
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.CoordinatorAddress, "coordinator-address", cfg.CoordinatorAddress,
		"coordinator address as host:port")
	flags.StringVar(&cfg.CompilerPath, "compiler-path", cfg.CompilerPath,
		"compiler binary invoked with program source on stdin")
	flags.StringVar(&compilerArgs, "compiler-args", "",
		"comma-separated extra arguments appended after -o <output>")
	flags.StringVar(&cfg.CacheDir, "cache-dir", cfg.CacheDir,
		"directory in which compiled executables are cached")

	return cmd
}

func run(cfg *Config) error {
	logger := slog.GetDefaultLogger()

	logger.Info(&slog.LogRecord{Msg: "loaded config", Details: cfg})

	if err := cfg.Validate(); err != nil {
		logger.Error(&slog.LogRecord{Msg: "configuration is invalid", Error: err})
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	w := worker.New(cfg.toWorkerConfig(logger))
	if err := w.Run(ctx); err != nil {
		logger.Error(&slog.LogRecord{Msg: "worker terminated abnormally", Error: err})
		return err
	}
	logger.Info(&slog.LogRecord{Msg: "worker terminated normally"})
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
