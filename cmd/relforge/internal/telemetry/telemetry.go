// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry wires OpenTelemetry traces and metrics for relforge.
//
// Traces cover one span per pipeline stage (configure, build, package, run,
// publish). Metrics record build durations, stage failures, release outcomes
// and asset counts. Exporters:
//
//   - traces: "otlp" (gRPC), "stdout", "none"
//   - metrics: "prometheus" (text file written on Shutdown), "stdout", "none"
//
// relforge is a short-lived CLI, so the Prometheus exporter is not served over
// HTTP. Its registry is dumped to a node_exporter textfile-collector file.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// InstrumentationName scopes every tracer and meter created here.
const InstrumentationName = "github.com/AleutianAI/relforge"

var (
	// ErrNilContext is returned when Init receives a nil context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter is returned for an unsupported exporter name.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

// Config controls telemetry behavior.
type Config struct {
	ServiceName    string
	ServiceVersion string

	// TraceExporter selects "otlp", "stdout" or "none".
	TraceExporter string

	// MetricExporter selects "prometheus", "stdout" or "none".
	MetricExporter string

	// OTLPEndpoint is the gRPC receiver, e.g. "localhost:4317".
	OTLPEndpoint string
	OTLPInsecure bool

	// MetricsFile receives the Prometheus text exposition on Shutdown.
	MetricsFile string

	// Writer receives stdout exporter output. Default: os.Stderr, so that
	// telemetry never interleaves with the build tool's stdout.
	Writer io.Writer
}

// Provider owns the tracer and meter providers for one CLI invocation.
type Provider struct {
	Tracer  trace.Tracer
	Meter   metric.Meter
	Metrics *Metrics

	registry    *prometheus.Registry
	metricsFile string
	shutdowns   []func(context.Context) error
}

// Init builds a Provider from cfg.
//
// # Inputs
//
//   - ctx: Used for exporter connections
//   - cfg: Exporter selection
//
// # Outputs
//
//   - *Provider: Ready to use; call Shutdown on exit
//   - error: ErrUnknownExporter or an exporter construction failure
//
// # Example
//
//	tel, err := telemetry.Init(ctx, telemetry.Config{TraceExporter: "stdout", MetricExporter: "none"})
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
func Init(ctx context.Context, cfg Config) (*Provider, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}
	if cfg.ServiceName == "" {
		cfg.ServiceName = "relforge"
	}

	res := resource.NewWithAttributes(
		"",
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)

	p := &Provider{metricsFile: cfg.MetricsFile}

	switch cfg.TraceExporter {
	case "", "none":
		p.Tracer = tracenoop.NewTracerProvider().Tracer(InstrumentationName)
	default:
		tp, err := initTracer(ctx, cfg, res)
		if err != nil {
			return nil, fmt.Errorf("init tracer: %w", err)
		}
		p.Tracer = tp.Tracer(InstrumentationName)
		p.shutdowns = append(p.shutdowns, tp.Shutdown)
	}

	switch cfg.MetricExporter {
	case "", "none":
		p.Meter = metricnoop.NewMeterProvider().Meter(InstrumentationName)
	default:
		mp, err := p.initMeter(cfg, res)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("init meter: %w", err)
		}
		p.Meter = mp.Meter(InstrumentationName)
		p.shutdowns = append(p.shutdowns, mp.Shutdown)
	}

	metrics, err := NewMetrics(p.Meter)
	if err != nil {
		_ = p.Shutdown(ctx)
		return nil, err
	}
	p.Metrics = metrics
	return p, nil
}

// Nop returns a Provider whose tracer and meter discard everything.
func Nop() *Provider {
	p := &Provider{
		Tracer: tracenoop.NewTracerProvider().Tracer(InstrumentationName),
		Meter:  metricnoop.NewMeterProvider().Meter(InstrumentationName),
	}
	// noop instruments never fail to construct
	p.Metrics, _ = NewMetrics(p.Meter)
	return p
}

// Shutdown flushes exporters. With the Prometheus exporter the registry is
// first written to MetricsFile.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if p.registry != nil && p.metricsFile != "" {
		if err := os.MkdirAll(filepath.Dir(p.metricsFile), 0755); err != nil {
			errs = append(errs, err)
		} else if err := prometheus.WriteToTextfile(p.metricsFile, p.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics file: %w", err))
		}
	}
	for _, fn := range p.shutdowns {
		if err := fn(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

func initTracer(ctx context.Context, cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	var exporter sdktrace.SpanExporter
	var err error

	switch cfg.TraceExporter {
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		exporter, err = otlptracegrpc.New(ctx, opts...)
	case "stdout":
		exporter, err = stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.TraceExporter)
	}
	if err != nil {
		return nil, fmt.Errorf("create exporter: %w", err)
	}

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	), nil
}

func (p *Provider) initMeter(cfg Config, res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	switch cfg.MetricExporter {
	case "prometheus":
		p.registry = prometheus.NewRegistry()
		exporter, err := promexporter.New(promexporter.WithRegisterer(p.registry))
		if err != nil {
			return nil, fmt.Errorf("create prometheus exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(exporter),
		), nil

	case "stdout":
		exporter, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("create stdout metric exporter: %w", err)
		}
		return sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
		), nil

	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownExporter, cfg.MetricExporter)
	}
}
