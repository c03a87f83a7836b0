// Package tracing sets up span export and HTTP server spans.
package tracing

import (
	"context"
	"log/slog"

	"github.com/labstack/echo/v4"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/fx"

	"github.com/markus-michalski/osticket-subticket-manager/internal/config"
	"github.com/markus-michalski/osticket-subticket-manager/internal/server"
	"github.com/markus-michalski/osticket-subticket-manager/internal/version"
	"github.com/markus-michalski/osticket-subticket-manager/pkg/logger"
)

var Module = fx.Module("tracing",
	fx.Provide(NewProvider),
	fx.Invoke(RegisterEchoMiddleware),
)

// Provider is the process-wide TracerProvider. It wraps an SDK provider
// when spans are exported and a no-op provider otherwise.
type Provider struct {
	trace.TracerProvider
	sdk *sdktrace.TracerProvider
}

// Exporting reports whether spans leave the process.
func (p *Provider) Exporting() bool { return p.sdk != nil }

// NewProvider builds the provider, installs it globally and flushes it on
// shutdown.
func NewProvider(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*Provider, error) {
	log = log.With(logger.Scope("tracing"))
	oc := cfg.Otel

	if !oc.Enabled() {
		log.Debug("span export off")
		p := &Provider{TracerProvider: noop.NewTracerProvider()}
		otel.SetTracerProvider(p.TracerProvider)
		return p, nil
	}

	sdk, err := newSDKProvider(context.Background(), oc, cfg.Environment)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(sdk)

	log.Info("exporting spans",
		slog.String("endpoint", oc.ExporterEndpoint),
		slog.String("service", oc.ServiceName),
		slog.Float64("sampling_rate", oc.SamplingRate),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			if err := sdk.ForceFlush(ctx); err != nil {
				log.Warn("span flush failed", logger.Error(err))
			}
			return sdk.Shutdown(ctx)
		},
	})

	return &Provider{TracerProvider: sdk, sdk: sdk}, nil
}

func newSDKProvider(ctx context.Context, oc config.OtelConfig, environment string) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(oc.ExporterEndpoint)}
	if oc.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	if oc.ExportTimeout > 0 {
		opts = append(opts, otlptracehttp.WithTimeout(oc.ExportTimeout))
	}

	exporter, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, err
	}

	res := resource.NewWithAttributes(semconv.SchemaURL,
		semconv.ServiceName(oc.ServiceName),
		semconv.ServiceVersion(version.Version),
		semconv.DeploymentEnvironment(environment),
	)

	return sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(oc.SamplingRate)),
	), nil
}

// sampler maps a rate onto a sampler. Rates outside (0, 1) are clamped.
func sampler(rate float64) sdktrace.Sampler {
	if rate >= 1 {
		return sdktrace.AlwaysSample()
	}
	if rate <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(rate))
}

// RegisterEchoMiddleware opens a server span per request. Probe paths are
// not traced.
func RegisterEchoMiddleware(e *echo.Echo, p *Provider, cfg *config.Config) {
	if !p.Exporting() {
		return
	}
	e.Use(otelecho.Middleware(cfg.Otel.ServiceName,
		otelecho.WithTracerProvider(p),
		otelecho.WithSkipper(server.IsProbePath),
	))
}
