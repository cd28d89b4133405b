package service

import (
	"context"
	"log"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "toolgate.service"

// registerSessionGauge reports the transport's open session count.
func registerSessionGauge(meter metric.Meter, transport *HTTPTransport) (metric.Registration, error) {
	gauge, err := meter.Int64ObservableGauge(
		"toolgate.http.sessions",
		metric.WithDescription("Open HTTP transport sessions"),
	)
	if err != nil {
		return nil, err
	}
	return meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, int64(transport.SessionCount()))
		return nil
	}, gauge)
}

// mountMetrics exposes handler at GET /metrics and starts the session gauge.
func mountMetrics(transport *HTTPTransport, handler http.Handler) func() {
	if handler == nil {
		return func() {}
	}
	transport.Handle("GET /metrics", handler.ServeHTTP)

	registration, err := registerSessionGauge(otel.Meter(meterName), transport)
	if err != nil {
		log.Printf("register session gauge: %v", err)
		return func() {}
	}
	return func() {
		if err := registration.Unregister(); err != nil {
			log.Printf("unregister session gauge: %v", err)
		}
	}
}
