package otel

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce      sync.Once
	collabCounter        metric.Int64Counter
	collabDuration       metric.Float64Histogram
	announcementsCounter metric.Int64Counter
	deliveriesCounter    metric.Int64Counter
	eventsCounter        metric.Int64Counter
	sseConnectionsGauge  metric.Int64ObservableGauge
	sseEventsCounter     metric.Int64Counter
	sseConnections       int64
	sseConnectionsMu     sync.Mutex
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after InitMeterProvider.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		collabCounter, err = m.Int64Counter("agentsync_collaborations_total", metric.WithDescription("Collaboration status transitions"))
		if err != nil {
			return
		}
		collabDuration, err = m.Float64Histogram("agentsync_collaboration_duration_seconds", metric.WithDescription("Collaboration execution time from in_progress to terminal"))
		if err != nil {
			return
		}
		announcementsCounter, err = m.Int64Counter("agentsync_announcements_total", metric.WithDescription("Announcements by category and outcome (delivered, suppressed)"))
		if err != nil {
			return
		}
		deliveriesCounter, err = m.Int64Counter("agentsync_channel_deliveries_total", metric.WithDescription("Channel deliveries by channel and outcome"))
		if err != nil {
			return
		}
		eventsCounter, err = m.Int64Counter("agentsync_events_total", metric.WithDescription("Agent events by outcome (matched, unmatched, dropped)"))
		if err != nil {
			return
		}
		sseEventsCounter, err = m.Int64Counter("agentsync_sse_events_total", metric.WithDescription("Total SSE events published"))
		if err != nil {
			return
		}
		sseConnectionsGauge, err = m.Int64ObservableGauge("agentsync_sse_connections", metric.WithDescription("Current SSE subscriber count"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			sseConnectionsMu.Lock()
			n := sseConnections
			sseConnectionsMu.Unlock()
			o.ObserveInt64(sseConnectionsGauge, n)
			return nil
		}, sseConnectionsGauge)
	})
	return err
}

// RecordCollaboration records a collaboration entering status.
func RecordCollaboration(ctx context.Context, target, status string) {
	if collabCounter == nil {
		return
	}
	collabCounter.Add(ctx, 1, metric.WithAttributes(AttrAgent.String(target), AttrStatus.String(status)))
}

// RecordCollaborationDuration records how long an execution took to reach status.
func RecordCollaborationDuration(ctx context.Context, target, status string, d time.Duration) {
	if collabDuration == nil {
		return
	}
	collabDuration.Record(ctx, d.Seconds(), metric.WithAttributes(AttrAgent.String(target), AttrStatus.String(status)))
}

// RecordAnnouncement records one Announce call.
func RecordAnnouncement(ctx context.Context, category string, suppressed bool) {
	if announcementsCounter == nil {
		return
	}
	outcome := "delivered"
	if suppressed {
		outcome = "suppressed"
	}
	announcementsCounter.Add(ctx, 1, metric.WithAttributes(AttrCategory.String(category), AttrOutcome.String(outcome)))
}

// RecordDelivery records a single channel delivery attempt.
func RecordDelivery(ctx context.Context, channel string, err error) {
	if deliveriesCounter == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "failed"
	}
	deliveriesCounter.Add(ctx, 1, metric.WithAttributes(AttrChannel.String(channel), AttrOutcome.String(outcome)))
}

// RecordEvent records a dispatched agent event.
func RecordEvent(ctx context.Context, outcome string) {
	if eventsCounter == nil {
		return
	}
	eventsCounter.Add(ctx, 1, metric.WithAttributes(AttrOutcome.String(outcome)))
}

// RecordSSEEvent records one SSE event published.
func RecordSSEEvent(ctx context.Context) {
	if sseEventsCounter != nil {
		sseEventsCounter.Add(ctx, 1)
	}
}

// AddSSEConnection adds 1 to the SSE connection gauge (call on subscribe).
func AddSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections++
	sseConnectionsMu.Unlock()
}

// RemoveSSEConnection subtracts 1 from the SSE connection gauge (call on unsubscribe).
func RemoveSSEConnection() {
	sseConnectionsMu.Lock()
	sseConnections--
	if sseConnections < 0 {
		sseConnections = 0
	}
	sseConnectionsMu.Unlock()
}

// InFlightFunc returns the number of collaborations currently executing.
type InFlightFunc func() int64

// InitMetricsWithInFlight creates instruments and registers an in-flight gauge when fn is non-nil.
func InitMetricsWithInFlight(ctx context.Context, fn InFlightFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if fn == nil {
		return nil
	}
	m := Meter()
	gauge, err := m.Int64ObservableGauge("agentsync_collaborations_in_flight", metric.WithDescription("Collaborations currently executing"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(gauge, fn())
		return nil
	}, gauge)
	return err
}
