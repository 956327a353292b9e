package main

import (
	"os"

	"github.com/spf13/cobra"

	"fleetrun/lib/slog"
)

func newRootCmd() *cobra.Command {
	cfg := &Config{
		ListenAddress: defaultListenAddress,
		NumTasks:      defaultNumTasks,
	}

	cmd := &cobra.Command{
		Use:   "dispatchd",
		Short: "split a file into blocks, dispatch them to workers, and sum a per-byte count",
		RunE: func(_ *cobra.Command, _ []string) error {
			return run(cfg)
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.InputFile, "file", "", "path to the file to scan (required)")
	flags.StringVar(&cfg.ProgramFile, "program-file", "", "path to the C source workers compile (required)")
	flags.StringVar(&cfg.TargetChar, "target", "", "the single character to count (required)")
	flags.IntVar(&cfg.NumTasks, "num-tasks", cfg.NumTasks, "number of blocks to split the file into")
	flags.StringVar(&cfg.ListenAddress, "listen-address", cfg.ListenAddress, "listen address as host:port")

	return cmd
}

func run(cfg *Config) error {
	logger := slog.GetDefaultLogger()

	logger.Info(&slog.LogRecord{Msg: "loaded config", Details: cfg})

	if err := cfg.Validate(); err != nil {
		logger.Error(&slog.LogRecord{Msg: "configuration is invalid", Error: err})
		return err
	}

	program, err := os.ReadFile(cfg.ProgramFile)
	if err != nil {
		logger.Error(&slog.LogRecord{Msg: "failed to read program file", Error: err})
		return err
	}

	blocks, err := sliceFile(cfg.InputFile, cfg.NumTasks)
	if err != nil {
		logger.Error(&slog.LogRecord{Msg: "failed to slice input file", Error: err})
		return err
	}

	total, err := runDispatch(logger, program, cfg.ListenAddress, blocks, cfg.TargetChar[0])
	if err != nil {
		logger.Error(&slog.LogRecord{Msg: "dispatch failed", Error: err})
		return err
	}

	logger.Info(&slog.LogRecord{Msg: "dispatch complete", Details: total})
	os.Stdout.WriteString(formatResult(total))
	return nil
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
