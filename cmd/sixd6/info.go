package main

import (
	"context"
	"fmt"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/sixd6/internal/info"
	"github.com/samcharles93/sixd6/pkg/sixd6"
)

func infoCmd() *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:      "info",
		Usage:     "Show the headers of a 6D6 recording",
		ArgsUsage: "input.6d6",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "print one JSON object",
				Destination: &asJSON,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() != 1 {
				return cli.Exit("error: info expects exactly one input file", 1)
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

			s, err := info.Summarize(&src.Start, &src.End)
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %s: %v", path, err), 1)
			}
			if asJSON {
				err = s.WriteJSON(os.Stdout)
			} else {
				err = s.WriteText(os.Stdout)
			}
			if err != nil {
				return cli.Exit(fmt.Sprintf("error: %v", err), 1)
			}
			return nil
		},
	}
}
