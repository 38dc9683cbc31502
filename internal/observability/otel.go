package observability

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"go.opentelemetry.io/contrib/processors/minsev"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutlog"
	sdklog "go.opentelemetry.io/otel/sdk/log"
)

// newLoggerProvider builds an OpenTelemetry logger provider for the given exporter.
// Records below level are dropped before they reach the exporter.
func newLoggerProvider(ctx context.Context, exporter Exporter, endpoint string, stdout io.Writer, level slog.Level) (*sdklog.LoggerProvider, error) {
	var processor sdklog.Processor

	switch exporter {
	case ExporterStdout:
		exp, err := stdoutlog.New(stdoutlog.WithWriter(stdout))
		if err != nil {
			return nil, err
		}
		// Short-lived process: export synchronously so nothing is lost on exit.
		processor = sdklog.NewSimpleProcessor(exp)
	case ExporterOTLPHTTP:
		var opts []otlploghttp.Option
		if endpoint != "" {
			opts = append(opts, otlploghttp.WithEndpointURL(endpoint))
		}
		exp, err := otlploghttp.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		processor = sdklog.NewBatchProcessor(exp)
	case ExporterOTLPGRPC:
		var opts []otlploggrpc.Option
		if endpoint != "" {
			opts = append(opts, otlploggrpc.WithEndpointURL(endpoint))
		}
		exp, err := otlploggrpc.New(ctx, opts...)
		if err != nil {
			return nil, err
		}
		processor = sdklog.NewBatchProcessor(exp)
	default:
		return nil, fmt.Errorf("unsupported exporter: %s", exporter)
	}

	return sdklog.NewLoggerProvider(
		sdklog.WithProcessor(minsev.NewLogProcessor(processor, minSeverity(level))),
	), nil
}

// minSeverity maps a slog level to the closest OpenTelemetry minimum severity.
func minSeverity(level slog.Level) minsev.Severity {
	switch {
	case level <= slog.LevelDebug:
		return minsev.SeverityDebug
	case level <= slog.LevelInfo:
		return minsev.SeverityInfo
	case level <= slog.LevelWarn:
		return minsev.SeverityWarn
	default:
		return minsev.SeverityError
	}
}
