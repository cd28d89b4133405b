package domain

import (
	"context"
	"log"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "toolgate.dispatcher"

// Call outcomes recorded on toolgate.tool.calls.
const (
	outcomeOK              = "ok"
	outcomeDenied          = "denied"
	outcomeUnlocked        = "unlocked"
	outcomeAlreadyUnlocked = "already_unlocked"
	outcomeNotFound        = "not_found"
	outcomeError           = "error"
)

type dispatcherMetrics struct {
	calls          metric.Int64Counter
	unlocks        metric.Int64Counter
	notifyFailures metric.Int64Counter
}

var globalMetrics = sync.OnceValue(func() *dispatcherMetrics {
	return newDispatcherMetrics(otel.Meter(meterName))
})

func newDispatcherMetrics(meter metric.Meter) *dispatcherMetrics {
	m := &dispatcherMetrics{}
	var err error

	m.calls, err = meter.Int64Counter(
		"toolgate.tool.calls",
		metric.WithDescription("Tool calls by tool and outcome"),
	)
	logMetricInitError("toolgate.tool.calls", err)

	m.unlocks, err = meter.Int64Counter(
		"toolgate.session.unlocks",
		metric.WithDescription("Sessions moved from locked to unlocked"),
	)
	logMetricInitError("toolgate.session.unlocks", err)

	m.notifyFailures, err = meter.Int64Counter(
		"toolgate.notify.failures",
		metric.WithDescription("Notifications that could not be delivered"),
	)
	logMetricInitError("toolgate.notify.failures", err)

	return m
}

func (m *dispatcherMetrics) recordCall(ctx context.Context, tool, outcome string) {
	if m == nil || m.calls == nil {
		return
	}
	if outcome == outcomeNotFound {
		tool = "unknown"
	}
	m.calls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.name", tool),
		attribute.String("outcome", outcome),
	))
}

func (m *dispatcherMetrics) recordUnlock(ctx context.Context) {
	if m == nil || m.unlocks == nil {
		return
	}
	m.unlocks.Add(ctx, 1)
}

func (m *dispatcherMetrics) recordNotifyFailure(ctx context.Context, method string) {
	if m == nil || m.notifyFailures == nil {
		return
	}
	m.notifyFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("method", method)))
}

func logMetricInitError(name string, err error) {
	if err != nil {
		log.Printf("init metric %s: %v", name, err)
	}
}
