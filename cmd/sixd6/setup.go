package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sixd6/internal/logger"
)

// setup loads the config file and stores the configured logger in the
// context for every subcommand.
func setup(ctx context.Context, cmd *cli.Command) (context.Context, error) {
	c, err := LoadConfig(configFile)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: load config: %v", err), 1)
	}
	cfg = c
	applyLoggingConfig(cmd, cfg)

	level, err := logger.ParseLevel(logLevel)
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	if debug {
		level = slog.LevelDebug
	}
	log, err := logger.Setup(os.Stderr, logFormat, level, stderrIsTTY())
	if err != nil {
		return ctx, cli.Exit(fmt.Sprintf("error: %v", err), 1)
	}
	return logger.WithContext(ctx, log), nil
}
