// Copyright 2024 AgriGenius Project
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package bootstrap assembles the advisory service from configuration.
package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/actions"
	"github.com/your-org/agrigenius/internal/advisory"
	"github.com/your-org/agrigenius/internal/audit"
	"github.com/your-org/agrigenius/internal/config"
	"github.com/your-org/agrigenius/internal/flow"
	"github.com/your-org/agrigenius/internal/gemini"
	"github.com/your-org/agrigenius/internal/health"
	"github.com/your-org/agrigenius/internal/llm"
	"github.com/your-org/agrigenius/internal/observability"
	"github.com/your-org/agrigenius/internal/openai"
)

// ServiceName identifies the service in health responses and traces.
const ServiceName = "agrigenius"

// App holds the wired service.
type App struct {
	Config   *config.Config
	Logger   *zap.Logger
	Flows    *advisory.Suite
	Registry *flow.Registry
	Actions  *actions.Suite
	Ledger   *audit.Ledger
	Health   *health.Manager

	provider        string
	model           string
	shutdownTracing observability.Shutdown
}

// Options overrides parts of the wiring, mainly for tests.
type Options struct {
	Version string
	// Generator replaces the configured model backend.
	Generator llm.Generator
	// Images replaces the configured encyclopedia image source.
	Images advisory.ImageSource
	// TraceWriter receives spans from the stdout exporter.
	TraceWriter io.Writer
}

// Build wires every component described by cfg.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts Options) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	shutdownTracing, err := observability.InitTracing(ctx, cfg.Tracing, observability.TracingOptions{
		Version: opts.Version,
		Writer:  opts.TraceWriter,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	ledger, err := audit.NewLedger(audit.Config{
		StorageType: cfg.Audit.StorageType,
		FilePath:    cfg.Audit.FilePath,
		DBPath:      cfg.Audit.DBPath,
	}, logger)
	if err != nil {
		_ = shutdownTracing(ctx)
		return nil, fmt.Errorf("failed to open audit ledger: %w", err)
	}

	app := &App{
		Config:          cfg,
		Logger:          logger,
		Ledger:          ledger,
		provider:        cfg.Model.Provider,
		shutdownTracing: shutdownTracing,
	}

	gen, images, err := app.buildModels(ctx, opts)
	if err != nil {
		_ = app.Close(ctx)
		return nil, err
	}

	app.Flows = advisory.NewSuite(gen, images,
		flow.WithLogger(logger),
		flow.WithHooks(ledger.Hook()))
	app.Registry = app.Flows.Registry()
	app.Actions = actions.NewSuite(app.Flows, logger)
	app.Health = app.buildHealth(opts.Version)

	logger.Info("Advisory service assembled",
		zap.String("provider", app.provider),
		zap.String("model", app.model),
		zap.Strings("flows", app.Registry.Names()),
		zap.String("audit_storage", ledger.StorageType()))

	return app, nil
}

func (a *App) buildModels(ctx context.Context, opts Options) (llm.Generator, advisory.ImageSource, error) {
	cfg := a.Config
	timeout := time.Duration(cfg.Model.TimeoutSeconds) * time.Second

	var geminiClient *gemini.Client
	newGemini := func() (*gemini.Client, error) {
		if geminiClient != nil {
			return geminiClient, nil
		}
		c, err := gemini.NewClient(ctx, gemini.Options{
			APIKey:      cfg.Gemini.APIKey,
			Model:       cfg.Gemini.Model,
			ImageModel:  cfg.Gemini.ImageModel,
			Temperature: cfg.Model.Temperature,
			Timeout:     timeout,
			MaxRetries:  cfg.Model.MaxRetries,
		}, a.Logger.Named("gemini"))
		if err != nil {
			return nil, fmt.Errorf("failed to create Gemini client: %w", err)
		}
		geminiClient = c
		return c, nil
	}

	gen := opts.Generator
	switch {
	case gen != nil:
		a.model = "custom"
	case cfg.Model.Provider == config.ProviderGemini:
		c, err := newGemini()
		if err != nil {
			return nil, nil, err
		}
		gen, a.model = c, c.Model()
	case cfg.Model.Provider == config.ProviderOpenAI:
		c, err := openai.NewClient(openai.Options{
			APIKey:      cfg.OpenAI.APIKey,
			BaseURL:     cfg.OpenAI.Endpoint,
			Model:       cfg.OpenAI.Model,
			Temperature: cfg.Model.Temperature,
			Timeout:     timeout,
			MaxRetries:  cfg.Model.MaxRetries,
		}, a.Logger.Named("openai"))
		if err != nil {
			return nil, nil, fmt.Errorf("failed to create OpenAI client: %w", err)
		}
		gen, a.model = c, c.Model()
	default:
		return nil, nil, fmt.Errorf("unsupported model provider: %s", cfg.Model.Provider)
	}

	images := opts.Images
	if images == nil {
		switch cfg.Encyclopedia.ImageSource {
		case config.ImageSourceGemini:
			c, err := newGemini()
			if err != nil {
				return nil, nil, err
			}
			images = advisory.NewGeneratedImages(c)
		default:
			images = advisory.PlaceholderImage(cfg.Encyclopedia.PlaceholderURL)
		}
	}

	return gen, images, nil
}

func (a *App) buildHealth(version string) *health.Manager {
	m := health.NewManager(ServiceName, version, a.Logger)
	m.AddChecker("model", health.ModelChecker(a.provider, a.model, a.credentialsConfigured()))
	m.AddChecker("flows", health.CatalogueChecker(a.Registry.Names))
	if a.Ledger.StorageType() != audit.StorageTypeNone {
		m.AddChecker("audit", health.PingChecker(a.Ledger.StorageType(), a.Ledger.Ping))
	}
	return m
}

func (a *App) credentialsConfigured() bool {
	if a.model == "custom" {
		return true
	}
	switch a.provider {
	case config.ProviderGemini:
		return a.Config.Gemini.APIKey != ""
	default:
		return a.Config.OpenAI.APIKey != ""
	}
}

// Close flushes traces and closes the ledger.
func (a *App) Close(ctx context.Context) error {
	var errs []error
	if a.Ledger != nil {
		errs = append(errs, a.Ledger.Close())
	}
	if a.shutdownTracing != nil {
		errs = append(errs, a.shutdownTracing(ctx))
	}
	return errors.Join(errs...)
}
