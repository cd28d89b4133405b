package otel

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// NewMetricsProvider builds a meter provider that exports into a private
// Prometheus registry and returns that registry's scrape handler.
func NewMetricsProvider(ctx context.Context, serviceName string) (*sdkmetric.MeterProvider, http.Handler, error) {
	res, err := resource.New(ctx,
		resource.WithSchemaURL(semconv.SchemaURL),
		resource.WithAttributes(semconv.ServiceName(serviceName)),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("build metrics resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry))
	if err != nil {
		return nil, nil, fmt.Errorf("start prometheus exporter: %w", err)
	}
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	return provider, promhttp.HandlerFor(registry, promhttp.HandlerOpts{}), nil
}

// SetupMetrics registers a global meter provider backed by Prometheus and
// returns the handler to mount at /metrics plus a shutdown function.
func SetupMetrics(ctx context.Context, serviceName string) (http.Handler, func(context.Context) error, error) {
	provider, handler, err := NewMetricsProvider(ctx, serviceName)
	if err != nil {
		return nil, func(context.Context) error { return nil }, err
	}
	otel.SetMeterProvider(provider)
	return handler, provider.Shutdown, nil
}
