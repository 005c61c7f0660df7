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
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.opentelemetry.io/otel/trace/noop"
)

func TestDefaultConfig(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "")
	t.Setenv("OTEL_METRICS_EXPORTER", "")
	cfg := DefaultConfig()

	assert.Equal(t, "timingoracle", cfg.ServiceName)
	assert.Equal(t, ExporterNone, cfg.TraceExporter)
	assert.Equal(t, ExporterNone, cfg.MetricExporter)
	assert.Equal(t, "localhost:4317", cfg.OTLPEndpoint)
}

func TestDefaultConfig_Env(t *testing.T) {
	t.Setenv("OTEL_TRACES_EXPORTER", "stdout")
	t.Setenv("TIMINGORACLE_ENV", "lab-2")

	cfg := DefaultConfig()
	assert.Equal(t, "stdout", cfg.TraceExporter)
	assert.Equal(t, "lab-2", cfg.Environment)
}

func TestInit_NilContext(t *testing.T) {
	//nolint:staticcheck // nil context is the case under test
	_, err := Init(nil, Config{})
	assert.ErrorIs(t, err, ErrNilContext)
}

func TestInit_NoopExporters(t *testing.T) {
	shutdown, err := Init(context.Background(), Config{TraceExporter: ExporterNone, MetricExporter: ExporterNone})
	require.NoError(t, err)
	require.NotNil(t, shutdown)
	assert.NoError(t, shutdown(context.Background()))
}

func TestInit_UnknownExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "zipkin"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrUnknownExporter))
	assert.Contains(t, err.Error(), "unknown exporter type")

	_, err = Init(context.Background(), Config{MetricExporter: "statsd"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_OTLPIsOnlyRemoteTraceExporter(t *testing.T) {
	_, err := Init(context.Background(), Config{TraceExporter: "jaeger"})
	assert.ErrorIs(t, err, ErrUnknownExporter)
}

func TestInit_MeterFailureKeepsGlobalTracer(t *testing.T) {
	prevTP := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })
	otel.SetTracerProvider(noop.NewTracerProvider())

	_, err := Init(context.Background(), Config{
		ServiceName:    "test",
		TraceExporter:  ExporterStdout,
		MetricExporter: "statsd",
	})
	require.ErrorIs(t, err, ErrUnknownExporter)
	assert.Contains(t, err.Error(), "init meter")

	assert.IsType(t, noop.TracerProvider{}, otel.GetTracerProvider())
}

func TestInit_PrometheusServesMetrics(t *testing.T) {
	prevMP := otel.GetMeterProvider()
	t.Cleanup(func() { otel.SetMeterProvider(prevMP) })

	shutdown, err := Init(context.Background(), Config{ServiceName: "test", MetricExporter: ExporterPrometheus})
	require.NoError(t, err)
	defer shutdown(context.Background())

	handler := MetricsHandler()
	require.NotNil(t, handler)

	m, err := NewMetrics(otel.Meter("test"))
	require.NoError(t, err)
	m.RoundsTotal.Add(context.Background(), 3)

	srv := httptest.NewServer(handler)
	defer srv.Close()
	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), "timingoracle_rounds_total")
}

func TestNewMetrics(t *testing.T) {
	provider := sdkmetric.NewMeterProvider()
	defer provider.Shutdown(context.Background())

	m, err := NewMetrics(provider.Meter("test"))
	require.NoError(t, err)

	assert.NotNil(t, m.QueriesTotal)
	assert.NotNil(t, m.QueryErrorsTotal)
	assert.NotNil(t, m.Measurement)
	assert.NotNil(t, m.RoundsTotal)
	assert.NotNil(t, m.PrefixLength)
	assert.NotNil(t, m.RecoveriesTotal)
	assert.NotNil(t, m.RecoveryDuration)
}

func TestSpanHelpers(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	prevTP := otel.GetTracerProvider()
	otel.SetTracerProvider(provider)
	t.Cleanup(func() { otel.SetTracerProvider(prevTP) })

	ctx, span := StartSpan(context.Background(), "test", "Op.Fail")
	assert.NotEmpty(t, TraceID(ctx))
	AddSpanEvent(span, "armed", attribute.Int("position", 2))
	RecordError(span, errors.New("capture hung"), attribute.String("stage", "capture"))
	span.End()

	_, ok := StartSpan(context.Background(), "test", "Op.OK")
	SetSpanOK(ok)
	ok.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, codes.Error, spans[0].Status().Code)
	assert.Equal(t, "capture hung", spans[0].Status().Description)
	require.Len(t, spans[0].Events(), 2)
	assert.Equal(t, "armed", spans[0].Events()[0].Name)
	assert.Equal(t, codes.Ok, spans[1].Status().Code)

	assert.Empty(t, TraceID(context.Background()))
	RecordError(nil, errors.New("ignored"))
	RecordError(span, nil)
}
