// Package telemetry provides OpenTelemetry metrics for digestd.
//
// It manages a MeterProvider with an OTLP/HTTP exporter and graceful
// shutdown. Telemetry failures do not crash the daemon; they degrade
// gracefully to no-op instruments.
package telemetry

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"
	"go.uber.org/zap"
)

// Config controls metric export.
type Config struct {
	Enabled     bool
	Endpoint    string
	ServiceName string
	Insecure    bool
}

// Telemetry owns the metric provider lifecycle.
type Telemetry struct {
	meterProvider *sdkmetric.MeterProvider
	logger        *zap.Logger

	degraded atomic.Bool
}

// New creates a Telemetry instance and initializes the meter provider.
//
// If telemetry is disabled, returns a no-op instance. Exporter setup
// errors are logged but do not fail startup.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Telemetry, error) {
	t := &Telemetry{logger: logger}

	if !cfg.Enabled {
		return t, nil
	}
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("telemetry enabled but endpoint is empty")
	}

	// Standalone resource to avoid schema URL conflicts with
	// resource.Default(), which may use a different semconv version.
	res := resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
	)

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(stripScheme(cfg.Endpoint)),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	} else {
		opts = append(opts, otlpmetrichttp.WithTLSClientConfig(&tls.Config{MinVersion: tls.VersionTLS12}))
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		t.degraded.Store(true)
		logger.Warn("metric exporter setup failed, telemetry degraded", zap.Error(err))
		return t, nil
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter)),
	)
	t.meterProvider = mp
	otel.SetMeterProvider(mp)

	return t, nil
}

// Meter returns a meter for the given instrumentation scope.
//
// Returns a no-op meter if telemetry is disabled or degraded.
func (t *Telemetry) Meter(name string, opts ...metric.MeterOption) metric.Meter {
	if t == nil || t.meterProvider == nil {
		return otel.GetMeterProvider().Meter(name, opts...)
	}
	return t.meterProvider.Meter(name, opts...)
}

// Degraded reports whether exporter setup failed.
func (t *Telemetry) Degraded() bool {
	return t != nil && t.degraded.Load()
}

// Shutdown flushes pending metrics and shuts down the provider.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if t == nil || t.meterProvider == nil {
		return nil
	}
	if err := t.meterProvider.Shutdown(ctx); err != nil {
		return fmt.Errorf("meter provider shutdown: %w", err)
	}
	return nil
}

// stripScheme removes http:// or https:// from an endpoint URL.
// The OTLP HTTP exporter expects host:port, not a full URL.
func stripScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "https://")
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return endpoint
}
