// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry provides OpenTelemetry-based observability for timingoracle.
//
// This package initializes the OTel SDK with opinionated defaults for tracing
// and metrics, while allowing backend flexibility through exporter configuration.
//
// # Philosophy
//
// Be opinionated about the API, flexible about the backend. OpenTelemetry IS
// the abstraction layer. Recovery code uses OTel APIs directly, and operators
// swap backends by changing exporter configuration, not code.
//
// # Defaults
//
// Both exporters default to "none": a bench run should not need a collector.
// Set telemetry.trace_exporter to "otlp" or "stdout" and
// telemetry.metric_exporter to "prometheus" or "stdout" in the config file,
// or use the standard OTEL_* environment variables.
//
// When the Prometheus exporter is active, MetricsHandler returns the handler
// the status server mounts at /metrics.
//
// # Usage
//
//	shutdown, err := telemetry.Init(ctx, cfg)
//	if err != nil {
//	    return fmt.Errorf("init telemetry: %w", err)
//	}
//	defer shutdown(context.Background())
//
//	metrics, err := telemetry.NewMetrics(otel.Meter("timingoracle"))
//
// # Environment Variables
//
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint (default: localhost:4317)
//   - OTEL_TRACES_EXPORTER: otlp, stdout, or none (default: none)
//   - OTEL_METRICS_EXPORTER: prometheus, stdout, or none (default: none)
//   - TIMINGORACLE_ENV: environment name (default: bench)
//
// # Thread Safety
//
// All exported functions are safe for concurrent use after Init() returns.
package telemetry
