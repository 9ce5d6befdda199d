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
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the pipeline instruments.
//
// Prometheus names after exporter translation:
//
//	relforge_build_duration_seconds    histogram  build_type
//	relforge_stage_failures_total      counter    stage
//	relforge_releases_total            counter    outcome
//	relforge_assets_total              counter    state (uploaded|missing|failed)
//	relforge_api_requests_total        counter    op, status
type Metrics struct {
	BuildDuration metric.Float64Histogram
	StageFailures metric.Int64Counter
	Releases      metric.Int64Counter
	Assets        metric.Int64Counter
	APIRequests   metric.Int64Counter
}

// NewMetrics creates the instruments on meter.
func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}
	var err error

	m.BuildDuration, err = meter.Float64Histogram(
		"relforge.build.duration",
		metric.WithDescription("Wall-clock duration of the compile step"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 30, 60, 120, 300, 600, 1200),
	)
	if err != nil {
		return nil, fmt.Errorf("create build duration histogram: %w", err)
	}

	m.StageFailures, err = meter.Int64Counter(
		"relforge.stage.failures",
		metric.WithDescription("External tool failures by stage"),
	)
	if err != nil {
		return nil, fmt.Errorf("create stage failures counter: %w", err)
	}

	m.Releases, err = meter.Int64Counter(
		"relforge.releases",
		metric.WithDescription("Release runs by outcome"),
	)
	if err != nil {
		return nil, fmt.Errorf("create releases counter: %w", err)
	}

	m.Assets, err = meter.Int64Counter(
		"relforge.assets",
		metric.WithDescription("Release assets by upload state"),
	)
	if err != nil {
		return nil, fmt.Errorf("create assets counter: %w", err)
	}

	m.APIRequests, err = meter.Int64Counter(
		"relforge.api.requests",
		metric.WithDescription("Hosting API requests by operation and status"),
	)
	if err != nil {
		return nil, fmt.Errorf("create api requests counter: %w", err)
	}

	return m, nil
}

// RecordBuild records one compile step duration.
func (m *Metrics) RecordBuild(ctx context.Context, buildType string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.BuildDuration.Record(ctx, elapsed.Seconds(), metric.WithAttributes(attribute.String("build_type", buildType)))
}

// RecordStageFailure counts one failed external tool invocation.
func (m *Metrics) RecordStageFailure(ctx context.Context, stage string) {
	if m == nil {
		return
	}
	m.StageFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("stage", stage)))
}

// RecordRelease counts one release run.
func (m *Metrics) RecordRelease(ctx context.Context, outcome string) {
	if m == nil {
		return
	}
	m.Releases.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
}

// RecordAssets adds n assets in state.
func (m *Metrics) RecordAssets(ctx context.Context, state string, n int) {
	if m == nil || n == 0 {
		return
	}
	m.Assets.Add(ctx, int64(n), metric.WithAttributes(attribute.String("state", state)))
}

// RecordAPIRequest counts one hosting API call.
func (m *Metrics) RecordAPIRequest(ctx context.Context, op string, status int) {
	if m == nil {
		return
	}
	m.APIRequests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("status", status),
	))
}
