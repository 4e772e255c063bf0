package otel

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestInitMetrics_recorders(t *testing.T) {
	ctx := context.Background()
	handler, err := InitMeterProvider(ctx, "metrics-test")
	if err != nil {
		t.Fatalf("InitMeterProvider: %v", err)
	}
	if err := InitMetrics(ctx); err != nil {
		t.Fatalf("InitMetrics: %v", err)
	}
	RecordCollaboration(ctx, "knowledge_curator", "completed")
	RecordCollaborationDuration(ctx, "knowledge_curator", "completed", 120*time.Millisecond)
	RecordAnnouncement(ctx, "task", false)
	RecordAnnouncement(ctx, "message", true)
	RecordDelivery(ctx, "banner", nil)
	RecordDelivery(ctx, "desktop", errors.New("denied"))
	RecordEvent(ctx, "matched")
	RecordSSEEvent(ctx)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /metrics: status=%d", rec.Code)
	}
}

func TestAddSSEConnection_RemoveSSEConnection(t *testing.T) {
	AddSSEConnection()
	AddSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection()
	RemoveSSEConnection() // should not go negative
	sseConnectionsMu.Lock()
	defer sseConnectionsMu.Unlock()
	if sseConnections != 0 {
		t.Fatalf("sseConnections = %d, want 0", sseConnections)
	}
}

func TestInitMetricsWithInFlight(t *testing.T) {
	ctx := context.Background()
	_, _ = InitMeterProvider(ctx, "inflight-test")
	if err := InitMetricsWithInFlight(ctx, func() int64 { return 2 }); err != nil {
		t.Fatalf("InitMetricsWithInFlight: %v", err)
	}
	if err := InitMetricsWithInFlight(ctx, nil); err != nil {
		t.Fatalf("InitMetricsWithInFlight(nil): %v", err)
	}
}
