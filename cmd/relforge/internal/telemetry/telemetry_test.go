// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package telemetry

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // exercising the nil guard
	_, err := Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_UnknownExporters(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	assert.ErrorIs(t, err, ErrUnknownExporter)

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_NoneIsNoop(t *testing.T) {
	p, err := Init(context.Background(), Config{TraceExporter: "none", MetricExporter: "none"})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "build")
	EndSpan(span, nil)
	p.Metrics.RecordBuild(ctx, "Release", time.Second)

	assert.Equal(t, "", TraceID(ctx))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_StdoutTraceExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := Init(context.Background(), Config{TraceExporter: "stdout", MetricExporter: "none", Writer: &buf})
	require.NoError(t, err)

	ctx, span := p.StartSpan(context.Background(), "publish")
	assert.NotEmpty(t, TraceID(ctx))
	EndSpan(span, errors.New("remote said no"))

	require.NoError(t, p.Shutdown(context.Background()))
	assert.Contains(t, buf.String(), "publish")
	assert.Contains(t, buf.String(), "remote said no")
}

func TestInit_PrometheusWritesTextfile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics", "relforge.prom")
	p, err := Init(context.Background(), Config{
		TraceExporter:  "none",
		MetricExporter: "prometheus",
		MetricsFile:    path,
	})
	require.NoError(t, err)

	ctx := context.Background()
	p.Metrics.RecordBuild(ctx, "Debug", 3*time.Second)
	p.Metrics.RecordRelease(ctx, "succeeded")
	p.Metrics.RecordAssets(ctx, "uploaded", 2)

	require.NoError(t, p.Shutdown(ctx))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	out := string(data)
	assert.Contains(t, out, "relforge_build_duration_seconds")
	assert.Contains(t, out, "relforge_releases_total")
	assert.Contains(t, out, `build_type="Debug"`)
}

func TestMetrics_RecordedValues(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	defer mp.Shutdown(context.Background())

	m, err := NewMetrics(mp.Meter("test"))
	require.NoError(t, err)

	ctx := context.Background()
	m.RecordStageFailure(ctx, "build")
	m.RecordStageFailure(ctx, "build")
	m.RecordAssets(ctx, "missing", 0)
	m.RecordAPIRequest(ctx, "create_release", 201)

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	sums := map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if s, ok := md.Data.(metricdata.Sum[int64]); ok {
				for _, dp := range s.DataPoints {
					sums[md.Name] += dp.Value
				}
			}
		}
	}
	assert.Equal(t, int64(2), sums["relforge.stage.failures"])
	assert.Equal(t, int64(1), sums["relforge.api.requests"])
	_, hasAssets := sums["relforge.assets"]
	assert.False(t, hasAssets)
}

func TestMetrics_NilSafe(t *testing.T) {
	var m *Metrics
	m.RecordBuild(context.Background(), "Release", time.Second)
	m.RecordRelease(context.Background(), "failed")
}

func TestNop(t *testing.T) {
	p := Nop()
	require.NotNil(t, p.Metrics)
	assert.NoError(t, p.Shutdown(context.Background()))

	var nilProvider *Provider
	ctx, span := nilProvider.StartSpan(context.Background(), "x")
	EndSpan(span, nil)
	assert.NotNil(t, ctx)
}
