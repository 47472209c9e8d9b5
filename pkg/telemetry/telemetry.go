// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry tracing initialization and lifecycle
// management for the webapp.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/devmail/webapp/pkg/config"
)

// Options configures tracing. The zero value disables it.
type Options struct {
	Enabled        bool
	ServiceName    string
	ServiceVersion string
	// Exporter is "otlp" (default) or "none". "none" keeps spans in process,
	// which is useful for local runs and tests.
	Exporter string
	// Endpoint is the OTLP/HTTP collector URL, e.g. "http://otel-collector:4318".
	Endpoint     string
	SamplingRate float64
	Logger       *zap.SugaredLogger
}

// OptionsFromConfig maps the telemetry config section.
func OptionsFromConfig(cfg config.Telemetry, serviceVersion string, log *zap.SugaredLogger) Options {
	return Options{
		Enabled:        cfg.Enabled,
		ServiceName:    cfg.ServiceName,
		ServiceVersion: serviceVersion,
		Exporter:       "otlp",
		Endpoint:       cfg.Endpoint,
		SamplingRate:   cfg.SamplingRate,
		Logger:         log,
	}
}

// ShutdownFunc flushes pending spans and stops the provider.
type ShutdownFunc func(ctx context.Context) error

const shutdownTimeout = 5 * time.Second

// Init installs the global TracerProvider and W3C propagators. When tracing
// is disabled a no-op provider is installed and the returned ShutdownFunc
// does nothing.
func Init(ctx context.Context, opts Options) (trace.TracerProvider, ShutdownFunc, error) {
	if !opts.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, func(context.Context) error { return nil }, nil
	}

	log := opts.Logger
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	log = log.Named("telemetry")
	if opts.ServiceName == "" {
		opts.ServiceName = "webapp"
	}
	if opts.SamplingRate < 0 || opts.SamplingRate > 1 {
		log.Warnw("Sampling rate out of range, sampling every trace", "samplingRate", opts.SamplingRate)
		opts.SamplingRate = 1
	}

	res, err := newResource(opts.ServiceName, opts.ServiceVersion)
	if err != nil {
		return nil, nil, err
	}
	exporter, err := newExporter(ctx, opts.Exporter, opts.Endpoint)
	if err != nil {
		return nil, nil, err
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SamplingRate))),
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}
	tp := sdktrace.NewTracerProvider(providerOpts...)

	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
		log.Warnw("OpenTelemetry error", "error", err)
	}))

	log.Infow("Tracing enabled",
		"serviceName", opts.ServiceName,
		"exporter", exporterName(opts.Exporter),
		"endpoint", opts.Endpoint,
		"samplingRate", opts.SamplingRate)

	return tp, func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			return fmt.Errorf("shutdown tracer provider: %w", err)
		}
		return nil
	}, nil
}

// newResource uses a schemaless resource so the merge with resource.Default
// cannot fail on conflicting schema URLs.
func newResource(name, version string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", name),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}
	return res, nil
}

// newExporter returns nil for the "none" exporter.
func newExporter(ctx context.Context, name, endpoint string) (sdktrace.SpanExporter, error) {
	switch exporterName(name) {
	case "otlp":
		exp, err := otlptracehttp.New(ctx, otlptracehttp.WithEndpointURL(endpoint))
		if err != nil {
			return nil, fmt.Errorf("create otlp http exporter: %w", err)
		}
		return exp, nil
	case "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unknown trace exporter %q (want otlp or none)", name)
	}
}

func exporterName(name string) string {
	if name == "" {
		return "otlp"
	}
	return name
}
