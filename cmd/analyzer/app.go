package main

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"github.com/urfave/cli/v3"

	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/agent"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/community"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/config"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/fetch"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/influxdb"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/invoice"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/llm"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/logging"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/models"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/pipeline"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/portal"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tariff"
	"github.com/kanna-karuppasamy/energy-cost-analyzer/internal/tools"
)

// app holds the wired components shared by every command.
type app struct {
	cfg      *config.Config
	logger   logging.Logger
	chat     llm.Provider
	registry *tools.Registry
	influx   *influxdb.Client
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	config.LoadEnv()
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load configuration: %w", err)
	}
	if lvl := cmd.String(logLevelFlag); lvl != "" {
		cfg.LogLevel = lvl
	}
	return cfg, nil
}

func newApp(ctx context.Context, cfg *config.Config, logger logging.Logger) (*app, error) {
	policy := fetch.PolicyFromConfig(cfg.Fetch)

	llmFetcher := fetch.New(&http.Client{Timeout: cfg.LLM.Timeout}, policy, logger)
	chat, err := llm.NewProvider(llm.ConfigFrom(cfg.LLM), llmFetcher)
	if err != nil {
		return nil, fmt.Errorf("chat model: %w", err)
	}
	vision, err := llm.NewProvider(llm.VisionConfigFrom(cfg.LLM), llmFetcher)
	if err != nil {
		return nil, fmt.Errorf("vision model: %w", err)
	}

	options, err := community.LoadCatalog(cfg.Community.CatalogPath)
	if err != nil {
		return nil, err
	}

	tariffs, err := tariff.NewClientFromConfig(cfg.Tariff, policy, logger)
	if err != nil {
		return nil, fmt.Errorf("tariff client: %w", err)
	}
	registry := tools.NewDefaultRegistry(tools.Deps{
		Invoices:    invoice.NewLLMExtractor(chat, vision, logger),
		Consumption: portal.SourceFromConfig(cfg.Portal, logger, policy),
		Tariffs:     tariffs,
		Community:   community.NewAdvisor(options),
		Credentials: models.Credentials{Email: cfg.Portal.Email, Password: cfg.Portal.Password},
		Logger:      logger,
	})

	a := &app{cfg: cfg, logger: logger, chat: chat, registry: registry}
	if cfg.InfluxDB.Enabled {
		client, err := influxdb.NewClient(ctx, cfg.InfluxDB, logger)
		if err != nil {
			return nil, err
		}
		a.influx = client
	}

	logger.WithFields(logging.Fields{
		"llm_provider":  cfg.LLM.Provider,
		"llm_model":     cfg.LLM.Model,
		"communities":   len(options),
		"influxdb":      cfg.InfluxDB.Enabled,
		"portal_login":  cfg.Portal.Email != "",
		"tariff_source": cfg.Tariff.BaseURL,
	}).Debug("components wired")
	return a, nil
}

func (a *app) orchestrator() *pipeline.Orchestrator {
	opts := []pipeline.Option{pipeline.WithLogger(a.logger)}
	if a.influx != nil {
		opts = append(opts, pipeline.WithPersister(a.influx))
	}
	return pipeline.New(a.registry, opts...)
}

func (a *app) agent() *agent.Agent {
	return agent.New(agent.Config{
		Provider: a.chat,
		Registry: a.registry,
		MaxTurns: a.cfg.Agent.MaxTurns,
		Logger:   a.logger,
	})
}

func (a *app) Close() {
	if a.influx != nil {
		a.influx.Close()
	}
}

// credentials prefers the login given on the command line over the configured one.
func credentials(cmd *cli.Command, cfg *config.Config) *models.Credentials {
	creds := &models.Credentials{
		Email:           cmd.String("email"),
		Password:        cmd.String("password"),
		MeteringPointID: cmd.String("metering-point"),
	}
	if creds.Email == "" || creds.Password == "" {
		creds.Email, creds.Password = cfg.Portal.Email, cfg.Portal.Password
	}
	if creds.Empty() {
		return nil
	}
	return creds
}

func loginFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "email", Usage: "Smart meter portal login (defaults to PORTAL_EMAIL)"},
		&cli.StringFlag{Name: "password", Usage: "Smart meter portal password (defaults to PORTAL_PASSWORD)"},
		&cli.StringFlag{Name: "metering-point", Usage: "Metering point id (AT00...)"},
	}
}

func writeReport(w io.Writer, text string) error {
	_, err := fmt.Fprintln(w, text)
	return err
}
