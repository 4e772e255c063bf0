// Package capabilities holds outbound integrations the digest channel posts to.
package capabilities

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"
)

// Message is one outbound post: a title line plus optional bullet items.
type Message struct {
	Title string    `json:"title"`
	Text  string    `json:"text,omitempty"`
	Items []string  `json:"items,omitempty"`
	At    time.Time `json:"at"`
}

// Capability is an integration that can deliver a Message (e.g. Slack).
type Capability interface {
	Name() string
	Notify(ctx context.Context, msg Message) error
}

// Registry holds configured capabilities by name.
type Registry struct {
	mu   sync.RWMutex
	caps map[string]Capability
}

func NewRegistry() *Registry {
	return &Registry{caps: make(map[string]Capability)}
}

func (r *Registry) Register(c Capability) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.caps[c.Name()] = c
}

func (r *Registry) Get(name string) Capability {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.caps[name]
}

// Names returns registered capability names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.caps))
	for n := range r.caps {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Len reports how many capabilities are registered.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.caps)
}

func (r *Registry) Notify(ctx context.Context, name string, msg Message) error {
	c := r.Get(name)
	if c == nil {
		return fmt.Errorf("capability %q not found", name)
	}
	return c.Notify(ctx, msg)
}

// NotifyAll posts msg to every capability and joins their errors.
func (r *Registry) NotifyAll(ctx context.Context, msg Message) error {
	var errs []error
	for _, n := range r.Names() {
		if err := r.Notify(ctx, n, msg); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", n, err))
		}
	}
	return errors.Join(errs...)
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned %d", resp.StatusCode)
	}
	return nil
}

// SlackWebhook sends messages to a Slack channel via incoming webhook URL.
type SlackWebhook struct {
	WebhookURL string
	Channel    string // optional override
	Username   string // optional
	Client     *http.Client
}

func (s SlackWebhook) Name() string { return "slack" }

func (s SlackWebhook) Notify(ctx context.Context, msg Message) error {
	if s.WebhookURL == "" {
		return errors.New("slack webhook URL not set")
	}
	payload := map[string]any{"text": slackText(msg)}
	if s.Channel != "" {
		payload["channel"] = s.Channel
	}
	if s.Username != "" {
		payload["username"] = s.Username
	}
	return postJSON(ctx, s.Client, s.WebhookURL, payload)
}

func slackText(msg Message) string {
	var b strings.Builder
	b.WriteString("*" + msg.Title + "*")
	if msg.Text != "" {
		b.WriteString("\n" + msg.Text)
	}
	for _, it := range msg.Items {
		b.WriteString("\n• " + it)
	}
	return b.String()
}

// Webhook posts the Message as JSON to an arbitrary endpoint (e.g. an email relay).
type Webhook struct {
	URL    string
	Client *http.Client
}

func (w Webhook) Name() string { return "webhook" }

func (w Webhook) Notify(ctx context.Context, msg Message) error {
	if w.URL == "" {
		return errors.New("webhook URL not set")
	}
	return postJSON(ctx, w.Client, w.URL, msg)
}
