package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ankittk/agentsync/internal/agents"
	"github.com/ankittk/agentsync/internal/capabilities"
	"github.com/ankittk/agentsync/internal/collab"
	"github.com/ankittk/agentsync/internal/config"
	"github.com/ankittk/agentsync/internal/inference"
	"github.com/ankittk/agentsync/internal/localstore"
	"github.com/ankittk/agentsync/internal/messages"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/internal/otel"
	"github.com/ankittk/agentsync/internal/preferences"
	"github.com/ankittk/agentsync/internal/rules"
	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/internal/store/postgres"
	"github.com/ankittk/agentsync/internal/workspace"
	"github.com/ankittk/agentsync/pkg/models"
)

var (
	// ErrRuleDisabled is returned when manually triggering a disabled rule.
	ErrRuleDisabled = errors.New("rule is disabled")
	// ErrNoMatch is returned when an event matches no enabled rule.
	ErrNoMatch = errors.New("no enabled rule matches event")
	// ErrInvalidEvent is returned for events missing required fields.
	ErrInvalidEvent = errors.New("invalid event")
	// ErrQueueFull is returned when the event queue cannot take more work.
	ErrQueueFull = errors.New("event queue full")
)

// ServerOptions configures the HTTP server and the services behind it.
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string       // if set, require X-API-Key header or query api_key
	DBDriver       string       // "sqlite" (default) or "postgres"; overrides Config.Database
	DBURL          string       // for postgres: connection string (or set DATABASE_URL env)
	MetricsHandler http.Handler // if set, used for /metrics (e.g. OTel Prometheus handler)
	UseOtelHTTP    bool         // if true, wrap handler with otelhttp for request metrics

	// Config is the loaded configuration; nil means config.Default().
	Config *config.Config
	// Inferrer overrides the configured inference backend.
	Inferrer inference.Inferrer
	// KV overrides the client-local store (default: SQLite under Home).
	KV localstore.KV
	// PresenceSource overrides the random presence source.
	PresenceSource agents.PresenceSource
}

// App holds the HTTP server and every service the daemon runs.
type App struct {
	Server       *http.Server
	Hub          *SSEHub
	Store        store.Store
	KV           localstore.KV
	Agents       *agents.Registry
	Rules        *rules.RuleSet
	Prefs        *preferences.Store
	Router       *notify.Router
	Desktop      notify.DesktopHost
	Digest       *notify.DigestChannel
	Capabilities *capabilities.Registry
	Collab       *collab.Manager
	Tasks        *workspace.Workspace
	Messages     *messages.Log
	Presence     *agents.Simulator
	Config       config.Config
	Home         string

	// Events carries matched agent events to the dispatcher.
	Events chan models.Event

	closeKV func() error
}

// NewApp builds all services and registers the HTTP routes.
func NewApp(opts ServerOptions) (*App, error) {
	cfg := config.Default()
	if opts.Config != nil {
		cfg = *opts.Config
	}
	if opts.DBDriver != "" {
		cfg.Database.Driver = opts.DBDriver
	}
	if opts.DBURL != "" {
		cfg.Database.URL = opts.DBURL
	}

	var st store.Store
	var err error
	if cfg.Database.Driver == "postgres" {
		st, err = postgres.Open(cfg.Database.URL)
	} else {
		st, err = store.Open(opts.Home)
	}
	if err != nil {
		return nil, err
	}

	app := &App{
		Hub:    NewSSEHub(),
		Store:  st,
		Config: cfg,
		Home:   opts.Home,
		Events: make(chan models.Event, cfg.Collab.QueueSize),
	}
	if err := app.build(opts); err != nil {
		_ = app.Close()
		return nil, err
	}
	app.Server = newServer(app, opts)
	return app, nil
}

func (a *App) build(opts ServerOptions) error {
	ctx := context.Background()
	cfg := a.Config

	a.KV = opts.KV
	if a.KV == nil {
		kv, err := localstore.OpenSQLite(opts.Home)
		if err != nil {
			return fmt.Errorf("open local store: %w", err)
		}
		a.KV, a.closeKV = kv, kv.Close
	}

	a.Agents = agents.MustDefault()

	defs, err := rules.Defaults()
	if cfg.RulesFile != "" {
		defs, err = rules.LoadFile(cfg.RulesFile)
	}
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}
	a.Rules, err = rules.New(defs, rules.WithKnownAgents(a.Agents.Has), rules.WithStateStore(a.Store))
	if err != nil {
		return err
	}
	if err := a.Rules.Load(ctx); err != nil {
		return fmt.Errorf("load rule states: %w", err)
	}

	a.Prefs = preferences.New(a.KV)
	a.Prefs.Load()

	a.Capabilities = capabilities.NewRegistry()
	if cfg.Notify.DigestSlack != "" {
		a.Capabilities.Register(capabilities.SlackWebhook{WebhookURL: cfg.Notify.DigestSlack})
	}
	if cfg.Notify.DigestWebhook != "" {
		a.Capabilities.Register(capabilities.Webhook{URL: cfg.Notify.DigestWebhook})
	}

	if cfg.Notify.DesktopHost == "exec" {
		a.Desktop = notify.NewExecHost()
	} else {
		a.Desktop = notify.NewHubHost(a.Hub)
	}
	var player notify.Player = &notify.HubPlayer{Pub: a.Hub}
	if cfg.Notify.AudioPlayer == "exec" {
		player = &notify.ExecPlayer{Command: cfg.Notify.AudioCommand}
	}
	a.Digest = notify.NewDigestChannel(a.Capabilities, a.Prefs)
	a.Router = notify.NewRouter(a.Prefs, notify.Channels{
		Banner:  &notify.BannerChannel{Pub: a.Hub, TTL: cfg.Notify.BannerTTL},
		Desktop: &notify.DesktopChannel{Host: a.Desktop},
		Audio:   &notify.AudioChannel{Player: player},
		Digest:  a.Digest,
	})

	inf := opts.Inferrer
	if inf == nil {
		inf, err = inference.New(cfg.Inference)
		if err != nil {
			slog.Warn("inference backend unavailable, using stub", "provider", cfg.Inference.Provider, "err", err)
			inf = inference.NewStub()
		}
	}
	a.Collab, err = collab.New(collab.Options{
		Store:       a.Store,
		Inferrer:    inf,
		Announcer:   a.Router,
		Publisher:   a.Hub,
		Home:        opts.Home,
		ExecTimeout: cfg.Collab.ExecTimeout,
	})
	if err != nil {
		return err
	}
	if opts.MetricsHandler != nil {
		if err := otel.InitMetricsWithInFlight(ctx, a.Collab.InFlightCount); err != nil {
			slog.Warn("metrics init failed", "err", err)
		}
	}

	a.Tasks = workspace.New(workspace.Options{
		KV:         a.KV,
		Announcer:  a.Router,
		Publisher:  a.Hub,
		KnownAgent: a.Agents.Has,
	})
	a.Messages = messages.New(messages.Options{
		KV:         a.KV,
		Announcer:  a.Router,
		Publisher:  a.Hub,
		KnownAgent: a.Agents.Has,
		ReplyDelay: cfg.Messages.ReplyDelay,
	})

	src := opts.PresenceSource
	if src == nil {
		src = agents.NewRandomSource(uint64(time.Now().UnixNano()))
	}
	a.Presence = &agents.Simulator{
		Registry: a.Agents,
		Source:   src,
		Interval: cfg.Presence.Interval,
		OnChange: func(ag models.Agent) {
			a.Hub.PublishJSON(map[string]any{"type": "agent_presence", "agent": ag})
		},
	}
	return nil
}

// Close waits for running work and releases the stores.
func (a *App) Close() error {
	if a.Messages != nil {
		a.Messages.Close()
	}
	if a.Collab != nil {
		a.Collab.Wait()
	}
	var errs []error
	if a.closeKV != nil {
		errs = append(errs, a.closeKV())
	}
	if a.Store != nil {
		errs = append(errs, a.Store.Close())
	}
	return errors.Join(errs...)
}

// EnqueueEvent matches ev against the enabled rules and queues it for the
// dispatcher when a rule matches.
func (a *App) EnqueueEvent(ctx context.Context, ev models.Event) (models.EventAck, error) {
	if ev.SourceAgent == "" || ev.TargetAgent == "" || ev.TriggerType == "" {
		return models.EventAck{}, fmt.Errorf("%w: source_agent, target_agent and trigger_type required", ErrInvalidEvent)
	}
	if len(ev.Context) > 0 && !json.Valid(ev.Context) {
		return models.EventAck{}, fmt.Errorf("%w: context must be valid JSON", ErrInvalidEvent)
	}
	r, ok := a.Rules.Match(ev.SourceAgent, ev.TargetAgent, ev.TriggerType)
	if !ok {
		otel.RecordEvent(ctx, "unmatched")
		return models.EventAck{Accepted: true}, nil
	}
	select {
	case a.Events <- ev:
		otel.RecordEvent(ctx, "matched")
		return models.EventAck{Accepted: true, Matched: true, RuleID: r.ID}, nil
	default:
		otel.RecordEvent(ctx, "dropped")
		return models.EventAck{Matched: true, RuleID: r.ID}, ErrQueueFull
	}
}

// DispatchEvent re-matches ev (the rule may have been toggled since it was
// queued) and triggers a collaboration for the match.
func (a *App) DispatchEvent(ctx context.Context, ev models.Event) (*collab.Handle, error) {
	r, ok := a.Rules.Match(ev.SourceAgent, ev.TargetAgent, ev.TriggerType)
	if !ok {
		return nil, ErrNoMatch
	}
	return a.Collab.Trigger(ctx, collab.Request{
		Source:      r.SourceAgent,
		Target:      r.TargetAgent,
		TriggerType: r.TriggerType,
		Reason:      r.Description,
		Context:     ev.Context,
		Priority:    r.Priority,
		RuleID:      r.ID,
	})
}

// TriggerRule is the manual path: it bypasses matching but still refuses a
// disabled rule.
func (a *App) TriggerRule(ctx context.Context, ruleID string, evCtx json.RawMessage) (*collab.Handle, error) {
	r, err := a.Rules.Get(ruleID)
	if err != nil {
		return nil, err
	}
	if !r.Enabled {
		return nil, fmt.Errorf("%w: %s", ErrRuleDisabled, r.ID)
	}
	return a.Collab.Trigger(ctx, collab.Request{
		Source:      r.SourceAgent,
		Target:      r.TargetAgent,
		TriggerType: r.TriggerType,
		Reason:      "manual: " + r.ActionLabel,
		Context:     evCtx,
		Priority:    r.Priority,
		RuleID:      r.ID,
	})
}

// announceFailure raises a failure banner for a user action whose write was rejected.
func (a *App) announceFailure(ctx context.Context, text string, err error) {
	slog.Error(text, "err", err)
	a.Router.Announce(ctx, models.CategoryTask, fmt.Sprintf("%s: %v", text, err), notify.Failure())
}
