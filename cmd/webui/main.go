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

// Package main serves the AgriGenius advisory flows over HTTP. Form-action
// routes return the next UI state; the /api routes expose the raw flows.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/bootstrap"
	"github.com/your-org/agrigenius/internal/config"
	"github.com/your-org/agrigenius/internal/logging"
)

const (
	// DefaultPort is used when neither config nor PORT set one.
	DefaultPort = "8080"
	// ShutdownTimeout bounds graceful shutdown.
	ShutdownTimeout = 15 * time.Second
	// ReadHeaderTimeout guards against slow clients.
	ReadHeaderTimeout = 10 * time.Second
)

var version = "dev"

func main() {
	configPath := flag.String("config", "", "path to the config file (CONFIG_PATH takes precedence)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to load configuration", zap.Error(err))
	}

	logger, level, err := logging.New(cfg.Logging)
	if err != nil {
		bootLogger, _ := zap.NewProduction()
		bootLogger.Fatal("Failed to initialize logging", zap.Error(err))
	}
	defer func() { _ = logger.Sync() }()

	logConfiguration(logger, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.Build(ctx, cfg, logger, bootstrap.Options{Version: version})
	if err != nil {
		logger.Fatal("Failed to build application", zap.Error(err))
	}

	if err := config.WatchConfig(*configPath, logger, func(updated *config.Config) {
		level.SetLevel(logging.ParseLevel(updated.Logging.Level))
	}); err != nil {
		logger.Info("Config hot reload disabled", zap.Error(err))
	}

	server := NewWebUIServer(app, logger)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.Server.Port
	}
	if port == "" {
		port = DefaultPort
	}

	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           server.Router(),
		ReadHeaderTimeout: ReadHeaderTimeout,
	}

	go func() {
		logger.Info("Starting web server",
			zap.String("port", port),
			zap.String("service", bootstrap.ServiceName),
			zap.String("version", version))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down web server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown failed", zap.Error(err))
	}
	if err := app.Close(shutdownCtx); err != nil {
		logger.Error("Failed to release resources", zap.Error(err))
	}
}

// logConfiguration logs the effective configuration with credentials masked.
func logConfiguration(logger *zap.Logger, cfg *config.Config) {
	masked := cfg.MaskSensitiveValues()
	logger.Info("Configuration loaded successfully",
		zap.String("service", bootstrap.ServiceName),
		zap.String("provider", masked.Model.Provider),
		zap.String("openai_model", masked.OpenAI.Model),
		zap.String("openai_api_key", masked.OpenAI.APIKey),
		zap.String("gemini_model", masked.Gemini.Model),
		zap.String("gemini_api_key", masked.Gemini.APIKey),
		zap.Float64("temperature", masked.Model.Temperature),
		zap.Int("timeout_seconds", masked.Model.TimeoutSeconds),
		zap.Int("max_retries", masked.Model.MaxRetries),
		zap.String("image_source", masked.Encyclopedia.ImageSource),
		zap.String("audit_storage", masked.Audit.StorageType),
		zap.String("tracing_exporter", masked.Tracing.Exporter),
		zap.String("log_level", masked.Logging.Level))
}
