package httpapi

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/ankittk/agentsync/internal/agents"
	"github.com/ankittk/agentsync/internal/collab"
	"github.com/ankittk/agentsync/internal/memory"
	"github.com/ankittk/agentsync/internal/messages"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/internal/preferences"
	"github.com/ankittk/agentsync/internal/rules"
	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/internal/ui"
	"github.com/ankittk/agentsync/internal/workspace"
	"github.com/ankittk/agentsync/pkg/models"
)

// defaultMaxRequestBodyBytes is the default limit for request body size (1 MiB) to prevent OOM.
const defaultMaxRequestBodyBytes = 1 << 20

// limitBody wraps r.Body with http.MaxBytesReader so handlers cannot read more than maxBytes.
func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT, PATCH to prevent OOM.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware sets CORS headers for dev mode (UI dev server on a different origin).
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func newServer(app *App, opts ServerOptions) *http.Server {
	mux := http.NewServeMux()

	dashboard := ui.Handler()
	mux.Handle("GET /{$}", dashboard)
	mux.Handle("GET /app.js", dashboard)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	if opts.MetricsHandler != nil {
		mux.Handle("/metrics", opts.MetricsHandler)
	} else {
		mux.HandleFunc("/metrics", func(w http.ResponseWriter, r *http.Request) {
			writeJSONError(w, http.StatusNotFound, "metrics disabled")
		})
	}
	mux.HandleFunc("GET /stream", app.Hub.Handler())
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{
			"home":               app.Home,
			"inference_provider": app.Config.Inference.Provider,
			"database_driver":    app.Config.Database.Driver,
			"desktop_host":       app.Config.Notify.DesktopHost,
			"digest_channels":    app.Capabilities.Names(),
		})
	})

	// --- Agents ---
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Agents.List())
	})
	mux.HandleFunc("GET /agents/{id}/journal", func(w http.ResponseWriter, r *http.Request) {
		id := r.PathValue("id")
		if !app.Agents.Has(id) {
			writeJSONError(w, http.StatusNotFound, agents.ErrUnknownAgent.Error())
			return
		}
		j := &memory.Journal{Home: app.Home, AgentID: id}
		limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
		content, err := j.Read(r.Context(), limit)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"agent": id, "journal": content})
	})
	mux.HandleFunc("GET /brief", func(w http.ResponseWriter, r *http.Request) {
		content, err := memory.ReadBrief(app.Home)
		if err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"content": content})
	})
	mux.HandleFunc("PUT /brief", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if err := memory.WriteBrief(app.Home, body.Content); err != nil {
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	// --- Rules ---
	mux.HandleFunc("GET /rules", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Rules.List())
	})
	mux.HandleFunc("POST /rules/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		rule, err := app.Rules.Toggle(r.Context(), r.PathValue("id"))
		if err != nil {
			if !errors.Is(err, rules.ErrNotFound) {
				app.announceFailure(r.Context(), "Rule change was not saved", err)
			}
			writeError(w, err)
			return
		}
		app.Hub.PublishJSON(map[string]any{"type": "rule_update", "rule": rule})
		writeJSON(w, rule)
	})

	// --- Events (automatic path) ---
	mux.HandleFunc("POST /events", func(w http.ResponseWriter, r *http.Request) {
		var ev models.Event
		if !decodeBody(w, r, &ev) {
			return
		}
		ack, err := app.EnqueueEvent(r.Context(), ev)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, ack)
	})

	// --- Collaborations ---
	mux.HandleFunc("GET /collaborations", func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		limit, _ := strconv.Atoi(q.Get("limit"))
		f := store.Filter{
			Status:      q.Get("status"),
			SourceAgent: q.Get("source"),
			TargetAgent: q.Get("target"),
			Priority:    q.Get("priority"),
			RuleID:      q.Get("rule_id"),
			Sort:        q.Get("sort"),
			Limit:       limit,
		}
		var list []models.Collaboration
		var err error
		if f.Status == "" && f.SourceAgent == "" && f.TargetAgent == "" && f.Priority == "" && f.RuleID == "" {
			list, err = app.Store.ListCollaborations(r.Context(), f.Sort, f.Limit)
		} else {
			list, err = app.Store.FilterCollaborations(r.Context(), f)
		}
		if err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if list == nil {
			list = []models.Collaboration{}
		}
		writeJSON(w, list)
	})
	mux.HandleFunc("POST /collaborations", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			RuleID  string          `json:"rule_id"`
			Context json.RawMessage `json:"context"`
			Wait    bool            `json:"wait"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		if body.RuleID == "" {
			writeJSONError(w, http.StatusBadRequest, "rule_id required")
			return
		}
		h, err := app.TriggerRule(r.Context(), body.RuleID, body.Context)
		if err != nil {
			writeError(w, err)
			return
		}
		if body.Wait {
			c, err := h.Wait(r.Context())
			if c.ID == "" {
				writeError(w, err)
				return
			}
			writeJSON(w, c)
			return
		}
		c, err := app.Store.GetCollaboration(r.Context(), h.ID())
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusAccepted, c)
	})
	mux.HandleFunc("GET /collaborations/in-flight", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"keys": app.Collab.InFlight()})
	})
	mux.HandleFunc("GET /collaborations/{id}", func(w http.ResponseWriter, r *http.Request) {
		c, err := app.Store.GetCollaboration(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, c)
	})
	mux.HandleFunc("DELETE /collaborations/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Collab.Remove(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	// --- Preferences ---
	mux.HandleFunc("GET /preferences", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Prefs.Get())
	})
	mux.HandleFunc("PUT /preferences", func(w http.ResponseWriter, r *http.Request) {
		// unspecified fields keep their current values
		p := app.Prefs.Get()
		if !decodeBody(w, r, &p) {
			return
		}
		if err := preferences.Validate(p); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if err := app.Prefs.Save(p); err != nil {
			app.announceFailure(r.Context(), "Preferences were not saved", err)
			writeJSONError(w, http.StatusInternalServerError, err.Error())
			return
		}
		app.Hub.PublishJSON(map[string]any{"type": "preferences_update", "preferences": p})
		writeJSON(w, p)
	})

	// --- Desktop permission ---
	mux.HandleFunc("GET /desktop/permission", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.Permission{State: app.Desktop.Permission()})
	})
	mux.HandleFunc("POST /desktop/permission", func(w http.ResponseWriter, r *http.Request) {
		var body models.Permission
		if r.ContentLength != 0 && !decodeBody(w, r, &body) {
			return
		}
		if body.State == "" {
			state, err := app.Desktop.RequestPermission(r.Context())
			if err != nil {
				slog.Debug("desktop permission request failed", "err", err)
			}
			writeJSON(w, models.Permission{State: state})
			return
		}
		hub, ok := app.Desktop.(*notify.HubHost)
		if !ok {
			writeJSONError(w, http.StatusBadRequest, "desktop host does not accept reported permissions")
			return
		}
		if err := hub.SetPermission(body.State); err != nil {
			writeJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		writeJSON(w, models.Permission{State: hub.Permission()})
	})

	// --- Shared tasks ---
	mux.HandleFunc("GET /tasks", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, app.Tasks.List())
	})
	mux.HandleFunc("POST /tasks", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Title string `json:"title"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		t, err := app.Tasks.Add(r.Context(), body.Title)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, t)
	})
	mux.HandleFunc("POST /tasks/{id}/toggle", func(w http.ResponseWriter, r *http.Request) {
		t, err := app.Tasks.ToggleComplete(r.Context(), r.PathValue("id"))
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, t)
	})
	mux.HandleFunc("POST /tasks/{id}/assign", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			AgentID string `json:"agent_id"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		t, err := app.Tasks.Assign(r.Context(), r.PathValue("id"), body.AgentID)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, t)
	})
	mux.HandleFunc("DELETE /tasks/{id}", func(w http.ResponseWriter, r *http.Request) {
		if err := app.Tasks.Delete(r.Context(), r.PathValue("id")); err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, map[string]any{"ok": true})
	})

	// --- Messages ---
	mux.HandleFunc("GET /messages", func(w http.ResponseWriter, r *http.Request) {
		msgs := app.Messages.List()
		if msgs == nil {
			msgs = []models.Message{}
		}
		writeJSON(w, msgs)
	})
	mux.HandleFunc("POST /messages", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			To   string `json:"to"`
			Text string `json:"text"`
		}
		if !decodeBody(w, r, &body) {
			return
		}
		m, err := app.Messages.Send(r.Context(), body.To, body.Text)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSONStatus(w, http.StatusCreated, m)
	})

	// --- Announcements ---
	mux.HandleFunc("POST /announce", func(w http.ResponseWriter, r *http.Request) {
		var body models.Announcement
		if !decodeBody(w, r, &body) {
			return
		}
		if !models.ValidCategory(body.Category) {
			writeJSONError(w, http.StatusBadRequest, "category must be message, task, or critical")
			return
		}
		if body.Text == "" {
			writeJSONError(w, http.StatusBadRequest, "text required")
			return
		}
		writeJSON(w, app.Router.Announce(r.Context(), body.Category, body.Text, notify.Options{Title: body.Title}))
	})
	mux.HandleFunc("POST /digest/flush", func(w http.ResponseWriter, r *http.Request) {
		pending := app.Digest.Pending()
		if err := app.Digest.Flush(r.Context()); err != nil {
			writeJSONError(w, http.StatusBadGateway, err.Error())
			return
		}
		writeJSON(w, map[string]any{"flushed": pending})
	})

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "agentsync")
	}
	return &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      0, // /stream and waited triggers are long-lived
		IdleTimeout:       60 * time.Second,
	}
}

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, store.ErrNotFound),
		errors.Is(err, rules.ErrNotFound),
		errors.Is(err, workspace.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, collab.ErrInFlight),
		errors.Is(err, ErrRuleDisabled),
		errors.Is(err, store.ErrTerminal):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidEvent):
		return http.StatusBadRequest
	case errors.Is(err, ErrQueueFull):
		return http.StatusServiceUnavailable
	case errors.Is(err, workspace.ErrEmptyTitle),
		errors.Is(err, workspace.ErrUnknownAgent),
		errors.Is(err, messages.ErrEmptyText),
		errors.Is(err, messages.ErrUnknownAgent):
		return http.StatusBadRequest
	case errors.Is(err, messages.ErrClosed):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, err error) {
	writeJSONError(w, statusFor(err), err.Error())
}

// decodeBody decodes the JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeJSONError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeJSONError(w, http.StatusBadRequest, "invalid json")
		return false
	}
	return true
}

// responseRecorder captures status code for logging and forwards Flusher if supported.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" || path == "/" || path == "/app.js" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends a JSON body {"error": "message"} with the given status code.
func writeJSONError(w http.ResponseWriter, code int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{"error": message})
}
