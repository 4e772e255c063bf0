package ui

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHandler(t *testing.T) {
	h := Handler()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /: status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "app.js") {
		t.Fatal("GET /: index should load app.js")
	}
}

func TestHandler_script(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/app.js", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("GET /app.js: status=%d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "EventSource") {
		t.Fatal("app.js should subscribe to the event stream")
	}
}

func TestHandler_unknownPath(t *testing.T) {
	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/nope.css", nil))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("GET /nope.css: status=%d", rec.Code)
	}
}
