package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sixd6/internal/archive"
	"github.com/samcharles93/sixd6/internal/logger"
	"github.com/samcharles93/sixd6/pkg/sixd6"
)

func copyCmd() *cli.Command {
	var progress, noProgress bool

	return &cli.Command{
		Name:      "copy",
		Usage:     "Copy a 6D6 recording verbatim from its storage medium",
		ArgsUsage: "/dev/sdX1 output.6d6",
		Flags:     progressFlags(&progress, &noProgress),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			log := logger.FromContext(ctx)
			if cmd.NArg() != 2 {
				return cli.Exit("error: copy expects an input and an output path", 1)
			}
			in, out := cmd.Args().Get(0), cmd.Args().Get(1)

			src, err := sixd6.OpenRaw(in)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: open %s: %v", in, err), 1)
			}
			defer func() { _ = src.Close() }()
			if err := dropPrivileges(); err != nil {
				return cli.Exit(fmt.Sprintf("error: drop privileges: %v", err), 1)
			}

			dst, err := os.Create(out)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: create %s: %v", out, err), 1)
			}

			var opts archive.Options
			if showProgress(progress, noProgress, cfg.Progress) {
				bar := newProgressBar(os.Stderr)
				opts.Progress = func(p archive.Progress) {
					bar.update(p.Percent(), p.Bytes, p.Bytes == p.Total)
				}
			}
			res, err := archive.Copy(ctx, dst, src, opts)
			err = errors.Join(err, dst.Close())
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: copy %s: %v", in, err), 1)
			}
			if res.Skipped {
				log.Warn("start header found in block 1, block 0 skipped")
			}
			log.Info("copied recording", "recorder", res.Start.RecorderID, "bytes", res.Bytes, "path", out)
			return nil
		},
	}
}
