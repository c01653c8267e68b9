package main

import (
	"github.com/urfave/cli/v3"
)

var (
	logLevel   string
	logFormat  string
	debug      bool
	configFile string
)

func loggingFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "log-level",
			Usage:       "log level (debug, info, warn, error)",
			Value:       "info",
			Destination: &logLevel,
		},
		&cli.StringFlag{
			Name:        "log-format",
			Usage:       "log format (pretty, json, text)",
			Value:       "pretty",
			Destination: &logFormat,
		},
		&cli.BoolFlag{
			Name:        "debug",
			Usage:       "enable debug logging (shorthand for --log-level=debug)",
			Destination: &debug,
		},
	}
}

func configFlag() cli.Flag {
	return &cli.StringFlag{
		Name:        "config",
		Usage:       "path to config file (default $XDG_CONFIG_HOME/sixd6/config.yaml)",
		Destination: &configFile,
	}
}

func progressFlags(progress, noProgress *bool) []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:        "progress",
			Usage:       "show progress on stderr (default when stderr is a terminal)",
			Destination: progress,
		},
		&cli.BoolFlag{
			Name:        "no-progress",
			Usage:       "never show progress",
			Destination: noProgress,
		},
	}
}

// showProgress resolves the progress flags against the config file default
// and whether stderr is a terminal.
func showProgress(progress, noProgress bool, cfg *bool) bool {
	switch {
	case noProgress:
		return false
	case progress:
		return true
	case cfg != nil:
		return *cfg
	default:
		return stderrIsTTY()
	}
}
