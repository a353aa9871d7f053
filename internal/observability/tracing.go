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

// Package observability wires OpenTelemetry tracing for flows and HTTP handlers.
package observability

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/your-org/agrigenius/internal/config"
)

const (
	ExporterNone   = "none"
	ExporterStdout = "stdout"
	ExporterOTLP   = "otlp"

	defaultServiceName = "agrigenius"
)

// Shutdown flushes and stops the tracer provider.
type Shutdown func(context.Context) error

// TracingOptions carries values that do not come from configuration.
type TracingOptions struct {
	Version string
	// Writer receives stdout spans. Defaults to os.Stdout.
	Writer io.Writer
}

// InitTracing installs a global tracer provider for cfg. With the "none"
// exporter nothing is installed and spans stay no-ops.
func InitTracing(ctx context.Context, cfg config.TracingConfig, opts TracingOptions, logger *zap.Logger) (Shutdown, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	exporterName := strings.ToLower(strings.TrimSpace(cfg.Exporter))
	if exporterName == "" || exporterName == ExporterNone {
		return func(context.Context) error { return nil }, nil
	}

	exporter, err := buildExporter(ctx, exporterName, cfg, opts)
	if err != nil {
		return nil, err
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = defaultServiceName
	}
	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceNameKey.String(serviceName),
		semconv.ServiceVersionKey.String(opts.Version),
		attribute.String("service.component", "advisory"),
	))
	if err != nil {
		logger.Warn("OpenTelemetry resource init failed (continuing)", zap.Error(err))
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter, sdktrace.WithBatchTimeout(5*time.Second)),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("OpenTelemetry tracing initialized",
		zap.String("service", serviceName),
		zap.String("exporter", exporterName),
		zap.String("endpoint", cfg.Endpoint))

	return tp.Shutdown, nil
}

func buildExporter(ctx context.Context, name string, cfg config.TracingConfig, opts TracingOptions) (sdktrace.SpanExporter, error) {
	switch name {
	case ExporterStdout:
		w := opts.Writer
		if w == nil {
			w = os.Stdout
		}
		return stdouttrace.New(stdouttrace.WithWriter(w))
	case ExporterOTLP:
		var otlpOpts []otlptracehttp.Option
		if cfg.Endpoint != "" {
			otlpOpts = append(otlpOpts, otlptracehttp.WithEndpoint(cfg.Endpoint))
		}
		if cfg.Insecure {
			otlpOpts = append(otlpOpts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, otlpOpts...)
	default:
		return nil, fmt.Errorf("unsupported trace exporter: %s", name)
	}
}

// sampleRatio clamps r to [0,1]; zero means sample everything.
func sampleRatio(r float64) float64 {
	switch {
	case r <= 0:
		return 1
	case r > 1:
		return 1
	default:
		return r
	}
}
