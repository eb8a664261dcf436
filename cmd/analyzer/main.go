package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

const logLevelFlag = "log-level"

func rootCommand() *cli.Command {
	return &cli.Command{
		Name:            "analyzer",
		Usage:           "Analyze household electricity costs and find savings",
		HideHelpCommand: true,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  logLevelFlag,
				Usage: "Log level (debug, info, warn, error); defaults to LOG_LEVEL",
			},
		},
		Commands: []*cli.Command{
			analyzeCommand(),
			chatCommand(),
			workerCommand(),
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCommand().Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
