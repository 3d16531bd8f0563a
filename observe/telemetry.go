package observe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// Exporter names accepted by TelemetryConfig.
const (
	ExporterNone       = "none"
	ExporterStdout     = "stdout"
	ExporterOTLP       = "otlp"
	ExporterPrometheus = "prometheus"
)

// TelemetryConfig configures the host application's telemetry providers.
//
// The library packages record spans and counters through the otel API
// only; wiring providers is the host's decision. NewTelemetry is the
// batteries-included way to do that wiring.
type TelemetryConfig struct {
	// ServiceName names the service on all exported telemetry. Required.
	ServiceName string

	// Version is the service version attached to the resource.
	Version string

	// TraceExporter selects the span exporter: none, stdout, or otlp.
	// Default: none.
	TraceExporter string

	// MetricExporter selects the metrics exporter: none, stdout, otlp, or
	// prometheus. Default: none.
	MetricExporter string

	// SampleRatio is the trace sampling ratio in [0, 1]. Values at or
	// above 1 sample everything. Default: 1.
	SampleRatio float64

	// OTLPEndpoint is the collector address for the otlp exporters. When
	// empty, the standard OTEL_EXPORTER_OTLP_ENDPOINT environment variable
	// is consulted.
	OTLPEndpoint string

	// Writer receives stdout-exported telemetry. Default: os.Stdout.
	Writer io.Writer
}

func (c *TelemetryConfig) validate() error {
	if c.ServiceName == "" {
		return errors.New("observe: service name is required")
	}
	switch c.TraceExporter {
	case "", ExporterNone, ExporterStdout, ExporterOTLP:
	default:
		return fmt.Errorf("observe: unknown trace exporter %q", c.TraceExporter)
	}
	switch c.MetricExporter {
	case "", ExporterNone, ExporterStdout, ExporterOTLP, ExporterPrometheus:
	default:
		return fmt.Errorf("observe: unknown metric exporter %q", c.MetricExporter)
	}
	if c.SampleRatio < 0 {
		return fmt.Errorf("observe: sample ratio must not be negative, got %f", c.SampleRatio)
	}
	return nil
}

// Telemetry owns the configured tracer and meter providers.
type Telemetry struct {
	tracer trace.Tracer
	meter  metric.Meter

	tracerProvider *sdktrace.TracerProvider
	meterProvider  *sdkmetric.MeterProvider
}

// NewTelemetry builds tracer and meter providers per cfg and registers
// them as the process globals. Call Shutdown on teardown to flush
// batched telemetry.
func NewTelemetry(ctx context.Context, cfg TelemetryConfig) (*Telemetry, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stdout
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.Version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("observe: build resource: %w", err)
	}

	t := &Telemetry{}

	if cfg.TraceExporter == "" || cfg.TraceExporter == ExporterNone {
		t.tracer = tracenoop.NewTracerProvider().Tracer(cfg.ServiceName)
	} else {
		exporter, err := newSpanExporter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		tp := sdktrace.NewTracerProvider(
			sdktrace.WithResource(res),
			sdktrace.WithSampler(samplerFor(cfg.SampleRatio)),
			sdktrace.WithBatcher(exporter),
		)
		otel.SetTracerProvider(tp)
		t.tracerProvider = tp
		t.tracer = tp.Tracer(cfg.ServiceName)
	}

	if cfg.MetricExporter == "" || cfg.MetricExporter == ExporterNone {
		t.meter = metricnoop.NewMeterProvider().Meter(cfg.ServiceName)
	} else {
		reader, err := newMetricReader(ctx, cfg)
		if err != nil {
			if t.tracerProvider != nil {
				_ = t.tracerProvider.Shutdown(ctx)
			}
			return nil, err
		}
		mp := sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(reader),
		)
		otel.SetMeterProvider(mp)
		t.meterProvider = mp
		t.meter = mp.Meter(cfg.ServiceName)
	}

	return t, nil
}

// Tracer returns the configured tracer.
func (t *Telemetry) Tracer() trace.Tracer {
	return t.tracer
}

// Meter returns the configured meter.
func (t *Telemetry) Meter() metric.Meter {
	return t.meter
}

// Shutdown flushes and stops the providers. Idempotent; returns the
// joined errors of both shutdowns.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	var errs []error
	if t.tracerProvider != nil {
		if err := t.tracerProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observe: tracer shutdown: %w", err))
		}
		t.tracerProvider = nil
	}
	if t.meterProvider != nil {
		if err := t.meterProvider.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("observe: meter shutdown: %w", err))
		}
		t.meterProvider = nil
	}
	return errors.Join(errs...)
}

// samplerFor maps the configured ratio to a sampler. Zero means
// unconfigured and samples everything; disabling tracing is done with
// ExporterNone, not a zero ratio.
func samplerFor(ratio float64) sdktrace.Sampler {
	if ratio <= 0 || ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	return sdktrace.TraceIDRatioBased(ratio)
}

func newSpanExporter(ctx context.Context, cfg TelemetryConfig) (sdktrace.SpanExporter, error) {
	switch cfg.TraceExporter {
	case ExporterStdout:
		return stdouttrace.New(stdouttrace.WithWriter(cfg.Writer))
	case ExporterOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if endpoint == "" {
			return nil, errors.New("observe: otlp endpoint not configured")
		}
		return otlptracegrpc.New(ctx, otlptracegrpc.WithEndpoint(endpoint))
	default:
		return nil, fmt.Errorf("observe: unknown trace exporter %q", cfg.TraceExporter)
	}
}

func newMetricReader(ctx context.Context, cfg TelemetryConfig) (sdkmetric.Reader, error) {
	switch cfg.MetricExporter {
	case ExporterStdout:
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer))
		if err != nil {
			return nil, fmt.Errorf("observe: stdout metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case ExporterOTLP:
		endpoint := cfg.OTLPEndpoint
		if endpoint == "" {
			endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
		}
		if endpoint == "" {
			return nil, errors.New("observe: otlp endpoint not configured")
		}
		exp, err := otlpmetricgrpc.New(ctx, otlpmetricgrpc.WithEndpoint(endpoint))
		if err != nil {
			return nil, fmt.Errorf("observe: otlp metric exporter: %w", err)
		}
		return sdkmetric.NewPeriodicReader(exp), nil
	case ExporterPrometheus:
		exp, err := prometheus.New()
		if err != nil {
			return nil, fmt.Errorf("observe: prometheus exporter: %w", err)
		}
		return exp, nil
	default:
		return nil, fmt.Errorf("observe: unknown metric exporter %q", cfg.MetricExporter)
	}
}
