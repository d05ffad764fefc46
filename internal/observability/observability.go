// Package observability configures structured logging for the process.
//
// Records always go to stderr as text or JSON. When an OpenTelemetry logs
// exporter is configured through the standard OTEL_* environment variables,
// records are also bridged into the OpenTelemetry logs SDK.
package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// ServiceName identifies this process in exported telemetry.
const ServiceName = "sessionrelay"

// Instrument installs the default slog logger for level and format
// ("text" or "json"). The returned func flushes and stops any log exporter
// and must be called before exit.
func Instrument(ctx context.Context, level slog.Level, format string) (func(context.Context) error, error) {
	return instrument(ctx, os.Stderr, os.Getenv, level, format)
}

func instrument(ctx context.Context, w io.Writer, getenv func(string) string, level slog.Level, format string) (func(context.Context) error, error) {
	local, err := newLocalHandler(w, level, format)
	if err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, getenv)
	if err != nil {
		return nil, fmt.Errorf("creating log exporter: %w", err)
	}
	if exporter == nil {
		slog.SetDefault(slog.New(local))
		return func(context.Context) error { return nil }, nil
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(sdklog.NewBatchProcessor(exporter), severity(level))),
	)
	global.SetLoggerProvider(provider)

	otelHandler := otelslog.NewHandler(ServiceName, otelslog.WithLoggerProvider(provider))
	slog.SetDefault(slog.New(slogmulti.Fanout(local, otelHandler)))

	return provider.Shutdown, nil
}

// newLocalHandler returns the stderr handler with trace correlation.
func newLocalHandler(w io.Writer, level slog.Level, format string) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	var h slog.Handler
	switch format {
	case "", "text":
		h = slog.NewTextHandler(w, opts)
	case "json":
		h = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format: %q", format)
	}
	return traceHandler{h}, nil
}

// newExporter picks a log exporter from the environment, or nil when none is
// configured. OTEL_LOGS_EXPORTER=console writes OTLP-shaped records to stdout.
func newExporter(ctx context.Context, getenv func(string) string) (sdklog.Exporter, error) {
	switch strings.ToLower(getenv("OTEL_LOGS_EXPORTER")) {
	case "none":
		return nil, nil
	case "console":
		return stdoutlog.New()
	}

	if getenv("OTEL_EXPORTER_OTLP_LOGS_ENDPOINT") == "" && getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		return nil, nil
	}

	protocol := getenv("OTEL_EXPORTER_OTLP_LOGS_PROTOCOL")
	if protocol == "" {
		protocol = getenv("OTEL_EXPORTER_OTLP_PROTOCOL")
	}
	switch protocol {
	case "grpc":
		return otlploggrpc.New(ctx)
	case "", "http/protobuf":
		return otlploghttp.New(ctx)
	default:
		return nil, errors.New("unsupported OTLP protocol: " + protocol)
	}
}

// severity maps a slog level onto the minimum severity forwarded to the exporter.
func severity(level slog.Level) minsev.Severity {
	switch {
	case level < slog.LevelInfo:
		return minsev.SeverityDebug
	case level < slog.LevelWarn:
		return minsev.SeverityInfo
	case level < slog.LevelError:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
