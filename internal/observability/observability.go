package observability

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/juju/lumberjack/v2"
	slogmulti "github.com/samber/slog-multi"
	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel"
)

// Format selects the local log line encoding.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// Exporter selects an optional OpenTelemetry log exporter.
type Exporter string

const (
	ExporterNone     Exporter = "none"
	ExporterStdout   Exporter = "stdout"
	ExporterOTLPHTTP Exporter = "otlphttp"
	ExporterOTLPGRPC Exporter = "otlpgrpc"
)

// instrumentationName identifies records bridged to OpenTelemetry.
const instrumentationName = "github.com/florianilch/vaultbackup"

// Options configures Instrument.
type Options struct {
	Level  slog.Level
	Format Format

	// Output receives log lines. When nil, lines are appended to File.
	Output io.Writer
	// File is rotated by renaming once it would grow beyond MaxSizeMB.
	File       string
	MaxSizeMB  int
	MaxBackups int

	Exporter Exporter
	// Endpoint overrides the OTLP endpoint URL; empty uses the OTEL_EXPORTER_OTLP_* variables.
	Endpoint string
	// ExporterOutput receives records of the stdout exporter. Defaults to Output or the log file.
	ExporterOutput io.Writer
}

// Instrument installs the default slog logger and returns a function that flushes
// and closes every output.
func Instrument(ctx context.Context, opts Options) (func(context.Context) error, error) {
	var shutdownFuncs []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for i := len(shutdownFuncs) - 1; i >= 0; i-- {
			if err := shutdownFuncs[i](ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	out := opts.Output
	if out == nil {
		if opts.File == "" {
			return nil, errors.New("log output or file required")
		}
		file := &lumberjack.Logger{
			Filename:   opts.File,
			MaxSize:    opts.MaxSizeMB, // megabytes
			MaxBackups: opts.MaxBackups,
			LocalTime:  true,
		}
		out = file
		shutdownFuncs = append(shutdownFuncs, func(context.Context) error {
			return file.Close()
		})
	}

	local, err := newLocalHandler(out, opts.Format, opts.Level)
	if err != nil {
		return nil, err
	}

	handler := local
	if opts.Exporter != "" && opts.Exporter != ExporterNone {
		exporterOut := opts.ExporterOutput
		if exporterOut == nil {
			exporterOut = out
		}
		provider, err := newLoggerProvider(ctx, opts.Exporter, opts.Endpoint, exporterOut, opts.Level)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("setting up %s log exporter: %w", opts.Exporter, err)
		}
		shutdownFuncs = append(shutdownFuncs, provider.Shutdown)

		// Exporter failures are reported locally only, so they cannot feed back into the exporter.
		localLogger := slog.New(local)
		otel.SetErrorHandler(otel.ErrorHandlerFunc(func(err error) {
			localLogger.Warn("telemetry export failed", "error", err)
		}))

		handler = slogmulti.Fanout(local, otelslog.NewHandler(instrumentationName, otelslog.WithLoggerProvider(provider)))
	}

	slog.SetDefault(slog.New(handler))

	return shutdown, nil
}

func newLocalHandler(w io.Writer, format Format, level slog.Level) (slog.Handler, error) {
	opts := &slog.HandlerOptions{Level: level}

	switch format {
	case FormatText, "":
		return slog.NewTextHandler(w, opts), nil
	case FormatJSON:
		return slog.NewJSONHandler(w, opts), nil
	default:
		return nil, fmt.Errorf("unsupported log format: %s", format)
	}
}
