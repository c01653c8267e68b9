package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sixd6/internal/version"
)

func main() {
	app := &cli.Command{
		Name:    "sixd6",
		Usage:   "Convert 6D6 datalogger recordings to MiniSEED",
		Version: version.String(),
		Flags:   append(loggingFlags(), configFlag()),
		Before:  setup,
		Action: func(ctx context.Context, cmd *cli.Command) error {
			return cli.ShowAppHelp(cmd)
		},
		Commands: []*cli.Command{
			convertCmd(),
			infoCmd(),
			copyCmd(),
			versionCmd(),
		},
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()
	if err := app.Run(ctx, os.Args); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
