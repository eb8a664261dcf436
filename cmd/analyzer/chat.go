package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
)

func chatCommand() *cli.Command {
	return &cli.Command{
		Name:      "chat",
		Usage:     "Ask the energy assistant; it picks the analysis tools itself",
		ArgsUsage: "<message>...",
		Flags: append(loginFlags(),
			&cli.StringFlag{Name: "invoice", Usage: "Invoice file the assistant should analyze"},
		),
		Action: func(ctx context.Context, cmd *cli.Command) error {
			message := strings.TrimSpace(strings.Join(cmd.Args().Slice(), " "))
			invoicePath := cmd.String("invoice")
			if message == "" && invoicePath == "" {
				return fmt.Errorf("a message or --invoice is required")
			}
			if message == "" {
				message = "Please analyze my electricity costs and show me how to save."
			}
			if invoicePath != "" {
				message += fmt.Sprintf("\n\nMy invoice is at: %s", invoicePath)
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if creds := credentials(cmd, cfg); creds != nil && cmd.String("email") != "" {
				// handed to the model as tool arguments; never logged
				message += fmt.Sprintf("\n\nSmart meter login: email %s, password %s", creds.Email, creds.Password)
				if creds.MeteringPointID != "" {
					message += ", metering point " + creds.MeteringPointID
				}
			}

			logger := logging.NewTextLogger(cfg.LogLevel, os.Stderr)
			a, err := newApp(ctx, cfg, logger)
			if err != nil {
				return err
			}
			defer a.Close()

			res := a.agent().Run(ctx, message, nil)
			logger.WithFields(logging.Fields{"turns": res.Turns, "tools": res.ToolCalls}).Debug("assistant finished")
			return writeReport(os.Stdout, res.Text)
		},
	}
}
