// Copyright 2024 Google, LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// This file initializes the OpenTelemetry SDK: traces, metrics, and
// logs, all exported through the stdout exporters to a local telemetry
// file. The pipeline runs on a single machine next to the operator, so
// a local JSONL stream is the observability backend.
package telemetry

import (
	"context"
	"errors"
	"log/slog"
	"os"

	"go.opentelemetry.io/contrib/propagators/autoprop"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

// TelemetryFileName is the local sink for exported spans, metrics, and
// bridged log records.
const TelemetryFileName = "telemetry.jsonl"

// SetupOpenTelemetry initializes and configures the OpenTelemetry SDK
// for the entire application: tracing, metrics, and the logger
// provider backing the slog bridge. It returns a shutdown function
// that must be called on application exit so buffered telemetry is
// flushed before the process terminates.
//
// Inputs:
//   - ctx: The parent context, used for initialization.
//   - serviceName: The service name attached to all telemetry.
//
// Outputs:
//   - shutdown: Deferred by the caller to tear down all providers.
//   - err: An error if any part of the setup fails.
func SetupOpenTelemetry(ctx context.Context, serviceName string) (shutdown func(context.Context) error, err error) {
	var shutdownFuncs []func(context.Context) error

	// One function tears down every provider, joining errors.
	shutdown = func(ctx context.Context) error {
		var err error
		for _, fn := range shutdownFuncs {
			err = errors.Join(err, fn(ctx))
		}
		shutdownFuncs = nil
		return err
	}

	res, err := resource.New(ctx,
		resource.WithTelemetrySDK(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(serviceName),
		),
	)
	if errors.Is(err, resource.ErrPartialResource) || errors.Is(err, resource.ErrSchemaURLConflict) {
		slog.Warn("partial resource detection", "error", err)
	} else if err != nil {
		slog.Error("resource.New failed", "error", err)
		return nil, err
	}

	otel.SetTextMapPropagator(autoprop.NewTextMapPropagator())

	sink, err := os.OpenFile(TelemetryFileName, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	shutdownFuncs = append(shutdownFuncs, func(context.Context) error { return sink.Close() })

	// Traces.
	traceExporter, err := stdouttrace.New(stdouttrace.WithWriter(sink))
	if err != nil {
		slog.Error("unable to set up trace exporter", "error", err)
		return shutdown, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(traceExporter),
		sdktrace.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, tp.Shutdown)
	otel.SetTracerProvider(tp)

	// Metrics.
	mExporter, err := stdoutmetric.New(stdoutmetric.WithWriter(sink))
	if err != nil {
		slog.Error("unable to set up metric exporter", "error", err)
		return shutdown, err
	}
	mProvider := metric.NewMeterProvider(
		metric.WithReader(metric.NewPeriodicReader(mExporter)),
		metric.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, mProvider.Shutdown)
	otel.SetMeterProvider(mProvider)

	// Logs: backs the otelslog bridge installed by SetupLogging.
	lExporter, err := stdoutlog.New(stdoutlog.WithWriter(sink))
	if err != nil {
		slog.Error("unable to set up log exporter", "error", err)
		return shutdown, err
	}
	lProvider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(sdklog.NewBatchProcessor(lExporter)),
		sdklog.WithResource(res),
	)
	shutdownFuncs = append(shutdownFuncs, lProvider.Shutdown)
	global.SetLoggerProvider(lProvider)

	return shutdown, nil
}
