package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sixd6/internal/convert"
	"github.com/samcharles93/sixd6/internal/logger"
	"github.com/samcharles93/sixd6/internal/writer"
	"github.com/samcharles93/sixd6/pkg/sixd6"
)

type convertFlags struct {
	station       string
	location      string
	network       string
	output        string
	cut           time.Duration
	anchorSpacing int64
	parallel      bool
	progress      bool
	noProgress    bool
}

func (f *convertFlags) cliFlags() []cli.Flag {
	return append([]cli.Flag{
		&cli.StringFlag{
			Name:        "station",
			Aliases:     []string{"s"},
			Usage:       "station code (1 to 5 characters, required)",
			Destination: &f.station,
		},
		&cli.StringFlag{
			Name:        "location",
			Aliases:     []string{"l"},
			Usage:       "location code",
			Destination: &f.location,
		},
		&cli.StringFlag{
			Name:        "network",
			Aliases:     []string{"n"},
			Usage:       "network code",
			Destination: &f.network,
		},
		&cli.StringFlag{
			Name:        "output",
			Aliases:     []string{"o"},
			Usage:       "output path template (%y %m %d %h %i %s %j %S %L %C %N %%)",
			Value:       writer.DefaultTemplate,
			Destination: &f.output,
		},
		&cli.DurationFlag{
			Name:        "cut",
			Usage:       "start a new file at every multiple of this period; 0 disables splitting",
			Value:       writer.DefaultCut,
			Destination: &f.cut,
		},
		&cli.Int64Flag{
			Name:        "anchor-spacing",
			Usage:       "minimum number of samples between applied time anchors",
			Value:       writer.DefaultAnchorSpacing,
			Destination: &f.anchorSpacing,
		},
		&cli.BoolFlag{
			Name:        "parallel",
			Usage:       "run every channel's writer on its own goroutine",
			Destination: &f.parallel,
		},
	}, progressFlags(&f.progress, &f.noProgress)...)
}

func convertCmd() *cli.Command {
	var f convertFlags

	return &cli.Command{
		Name:      "convert",
		Usage:     "Convert a 6D6 recording to MiniSEED files",
		ArgsUsage: "input.6d6",
		Flags:     f.cliFlags(),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			applyConvertConfig(cmd, cfg, &f)

			if cmd.NArg() != 1 {
				return cli.Exit("error: convert expects exactly one input file", 1)
			}
			if n := len(f.station); n == 0 || n > convert.MaxStationLength {
				return cli.Exit("error: --station is required and must have 1 to 5 characters", 1)
			}
			tmpl, err := writer.ParseTemplate(f.output)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}

			path := cmd.Args().First()
			src, err := sixd6.Open(path)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", path, err), 1)
			}
			defer func() { _ = src.Close() }()
			if err := dropPrivileges(); err != nil {
				return cli.Exit(fmt.Sprintf("error: drop privileges: %v", err), 1)
			}

			opts := convert.Options{
				Station:       f.station,
				Location:      f.location,
				Network:       f.network,
				Template:      tmpl,
				Cut:           f.cut,
				AnchorSpacing: f.anchorSpacing,
				Parallel:      f.parallel,
				Logger:        log,
			}
			if showProgress(f.progress, f.noProgress, cfg.Progress) {
				bar := newProgressBar(os.Stderr)
				opts.Progress = func(p convert.Progress) {
					bar.update(p.Percent(), p.Bytes(), p.Done)
				}
			}

			res, err := convert.Convert(ctx, src, opts)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: convert %s: %v", path, err), 1)
			}
			for _, file := range res.Files {
				log.Debug("wrote file", "path", file)
			}
			return nil
		},
	}
}
