// Package otel exports gRPC spans and metrics plus auth event logs to an OTLP collector,
// and adapts auth events to OTel log records.
package otel

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.39.0"
	"go.uber.org/zap"
)

const (
	defaultServiceName = "social-media-api"
	serviceNamespace   = "social"
	// metricInterval paces pushes of the otelgrpc request metrics.
	metricInterval = 30 * time.Second
)

// Config selects the collector. An empty Endpoint keeps all three providers in-process.
type Config struct {
	Endpoint    string
	ServiceName string
	Environment string
	// Version defaults to the main module version from the build info.
	Version string
	// Insecure forces plaintext even for https endpoints (OTEL_EXPORTER_OTLP_INSECURE).
	Insecure bool
}

// Providers carries the tracer provider used by otelgrpc, its meter provider, and the logger
// provider that auth events are emitted through.
type Providers struct {
	TracerProvider *sdktrace.TracerProvider
	MeterProvider  *metric.MeterProvider
	LoggerProvider *sdklog.LoggerProvider

	logger    *zap.Logger
	shutdowns []func(context.Context) error
}

// collector is a parsed OTLP gRPC target.
type collector struct {
	target   string
	insecure bool
}

// parseCollector accepts host:port or a URL with scheme and path
// (http://localhost:4317, https://collector:4317/v1/traces); only host:port is dialed.
// https implies TLS unless forceInsecure is set. ok is false for a blank endpoint.
func parseCollector(endpoint string, forceInsecure bool) (c collector, ok bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if endpoint == "" {
		return collector{}, false, nil
	}
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return collector{}, false, fmt.Errorf("invalid OTLP endpoint %q: %w", endpoint, err)
	}
	if u.Host == "" {
		return collector{}, false, fmt.Errorf("invalid OTLP endpoint %q: missing host", endpoint)
	}
	return collector{target: u.Host, insecure: forceInsecure || u.Scheme != "https"}, true, nil
}

func (c collector) spanExporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(c.target)}
	if c.insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	return otlptracegrpc.New(ctx, opts...)
}

func (c collector) metricExporter(ctx context.Context) (metric.Exporter, error) {
	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(c.target)}
	if c.insecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	return otlpmetricgrpc.New(ctx, opts...)
}

func (c collector) logExporter(ctx context.Context) (sdklog.Exporter, error) {
	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(c.target)}
	if c.insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	return otlploggrpc.New(ctx, opts...)
}

// NewProviders builds the providers for cfg. With no endpoint they record nothing outside the process.
// Exporters dial lazily, so a missing collector does not fail startup.
func NewProviders(ctx context.Context, cfg Config, logger *zap.Logger) (*Providers, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	col, export, err := parseCollector(cfg.Endpoint, cfg.Insecure)
	if err != nil {
		return nil, err
	}
	res := newResource(cfg)
	p := &Providers{logger: logger}

	traceOpts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}
	meterOpts := []metric.Option{metric.WithResource(res)}
	logOpts := []sdklog.LoggerProviderOption{sdklog.WithResource(res)}
	if export {
		spans, err := col.spanExporter(ctx)
		if err != nil {
			return nil, fmt.Errorf("otlp spans: %w", err)
		}
		metrics, err := col.metricExporter(ctx)
		if err != nil {
			_ = spans.Shutdown(ctx)
			return nil, fmt.Errorf("otlp metrics: %w", err)
		}
		logs, err := col.logExporter(ctx)
		if err != nil {
			_ = spans.Shutdown(ctx)
			_ = metrics.Shutdown(ctx)
			return nil, fmt.Errorf("otlp logs: %w", err)
		}
		traceOpts = append(traceOpts, sdktrace.WithBatcher(spans))
		meterOpts = append(meterOpts, metric.WithReader(metric.NewPeriodicReader(metrics, metric.WithInterval(metricInterval))))
		logOpts = append(logOpts, sdklog.WithProcessor(sdklog.NewBatchProcessor(logs)))
	}

	p.TracerProvider = sdktrace.NewTracerProvider(traceOpts...)
	p.MeterProvider = metric.NewMeterProvider(meterOpts...)
	p.LoggerProvider = sdklog.NewLoggerProvider(logOpts...)
	// Shutdown runs in reverse, so auth event logs flush first.
	p.shutdowns = []func(context.Context) error{p.TracerProvider.Shutdown, p.MeterProvider.Shutdown, p.LoggerProvider.Shutdown}

	if export {
		logger.Info("telemetry: exporting to OTLP collector", zap.String("target", col.target), zap.Bool("insecure", col.insecure))
	}
	return p, nil
}

// Shutdown flushes and stops every provider, returning all failures joined. Later calls are no-ops.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdowns) - 1; i >= 0; i-- {
		if err := p.shutdowns[i](ctx); err != nil {
			p.logger.Warn("telemetry: shutdown", zap.Error(err))
			errs = append(errs, err)
		}
	}
	p.shutdowns = nil
	return errors.Join(errs...)
}

// SetGlobal installs the tracer and meter providers for otelgrpc. Auth events take LoggerProvider directly.
func (p *Providers) SetGlobal() {
	if p.TracerProvider != nil {
		otel.SetTracerProvider(p.TracerProvider)
	}
	if p.MeterProvider != nil {
		otel.SetMeterProvider(p.MeterProvider)
	}
}

// newResource identifies this API process: one service.instance.id per start.
func newResource(cfg Config) *resource.Resource {
	name := cfg.ServiceName
	if name == "" {
		name = defaultServiceName
	}
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(name),
		semconv.ServiceNamespaceKey.String(serviceNamespace),
		semconv.ServiceInstanceIDKey.String(ulid.Make().String()),
		semconv.ProcessPIDKey.Int(os.Getpid()),
	}
	if v := serviceVersion(cfg.Version); v != "" {
		attrs = append(attrs, semconv.ServiceVersionKey.String(v))
	}
	if cfg.Environment != "" {
		attrs = append(attrs, semconv.DeploymentEnvironmentNameKey.String(cfg.Environment))
	}
	if host, err := os.Hostname(); err == nil {
		attrs = append(attrs, semconv.HostNameKey.String(host))
	}
	return resource.NewWithAttributes(semconv.SchemaURL, attrs...)
}

func serviceVersion(configured string) string {
	if configured != "" {
		return configured
	}
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "(devel)" {
		return info.Main.Version
	}
	return ""
}
