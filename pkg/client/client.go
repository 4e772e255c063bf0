// Package client provides a Go SDK for the agentsync HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"

	"github.com/ankittk/agentsync/pkg/models"
)

// Client calls the agentsync HTTP API. It is safe for concurrent use.
type Client struct {
	BaseURL    string       // e.g. "http://localhost:3548"
	APIKey     string       // optional; sent as X-API-Key
	HTTPClient *http.Client // optional; nil uses http.DefaultClient
}

// New returns a client for the given base URL (e.g. "http://localhost:3548").
func New(baseURL, apiKey string) *Client {
	return &Client{BaseURL: baseURL, APIKey: apiKey}
}

// APIError is a non-2xx response.
type APIError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("api %s %s: %s", e.Method, e.Path, e.Message)
	}
	return fmt.Sprintf("api %s %s: status %d", e.Method, e.Path, e.Status)
}

func (c *Client) client() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return http.DefaultClient
}

func (c *Client) do(ctx context.Context, method, path string, body any) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		bodyReader = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, bodyReader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.APIKey != "" {
		req.Header.Set("X-API-Key", c.APIKey)
	}
	return c.client().Do(req)
}

func (c *Client) doJSON(ctx context.Context, method, path string, body any, out any) error {
	resp, err := c.do(ctx, method, path, body)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errBody struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&errBody)
		return &APIError{Method: method, Path: path, Status: resp.StatusCode, Message: errBody.Error}
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Health returns the /health response (ok: true).
func (c *Client) Health(ctx context.Context) (ok bool, err error) {
	var out struct {
		OK bool `json:"ok"`
	}
	err = c.doJSON(ctx, http.MethodGet, "/health", nil, &out)
	return out.OK, err
}

// Config returns the daemon's effective settings.
func (c *Client) Config(ctx context.Context) (map[string]any, error) {
	var out map[string]any
	err := c.doJSON(ctx, http.MethodGet, "/config", nil, &out)
	return out, err
}

// --- Agents ---

// Agents returns the registry with current presence.
func (c *Client) Agents(ctx context.Context) ([]models.Agent, error) {
	var out []models.Agent
	err := c.doJSON(ctx, http.MethodGet, "/agents", nil, &out)
	return out, err
}

// Journal returns the tail of an agent's collaboration journal (limit 0 = server default).
func (c *Client) Journal(ctx context.Context, agentID string, limit int) (string, error) {
	path := "/agents/" + url.PathEscape(agentID) + "/journal"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Journal string `json:"journal"`
	}
	err := c.doJSON(ctx, http.MethodGet, path, nil, &out)
	return out.Journal, err
}

// Brief returns the shared brief included in every prompt.
func (c *Client) Brief(ctx context.Context) (string, error) {
	var out struct {
		Content string `json:"content"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/brief", nil, &out)
	return out.Content, err
}

// SetBrief replaces the shared brief.
func (c *Client) SetBrief(ctx context.Context, content string) error {
	return c.doJSON(ctx, http.MethodPut, "/brief", map[string]string{"content": content}, nil)
}

// --- Rules and events ---

// Rules returns every rule with its current enablement.
func (c *Client) Rules(ctx context.Context) ([]models.Rule, error) {
	var out []models.Rule
	err := c.doJSON(ctx, http.MethodGet, "/rules", nil, &out)
	return out, err
}

// ToggleRule flips a rule's enabled flag and returns the updated rule.
func (c *Client) ToggleRule(ctx context.Context, ruleID string) (*models.Rule, error) {
	var out models.Rule
	err := c.doJSON(ctx, http.MethodPost, "/rules/"+url.PathEscape(ruleID)+"/toggle", nil, &out)
	return &out, err
}

// SendEvent reports an agent event. Matched events are queued for dispatch.
func (c *Client) SendEvent(ctx context.Context, ev models.Event) (*models.EventAck, error) {
	var out models.EventAck
	err := c.doJSON(ctx, http.MethodPost, "/events", ev, &out)
	return &out, err
}

// --- Collaborations ---

// ListOptions filters ListCollaborations. Zero values are omitted.
type ListOptions struct {
	Status   string
	Source   string
	Target   string
	Priority string
	RuleID   string
	Sort     string // e.g. "-created_at" (default), "updated_at"; "-" prefix sorts descending
	Limit    int
}

func (o ListOptions) query() string {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("status", o.Status)
	set("source", o.Source)
	set("target", o.Target)
	set("priority", o.Priority)
	set("rule_id", o.RuleID)
	set("sort", o.Sort)
	if o.Limit > 0 {
		q.Set("limit", strconv.Itoa(o.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// Collaborations lists collaborations.
func (c *Client) Collaborations(ctx context.Context, opts ListOptions) ([]models.Collaboration, error) {
	var out []models.Collaboration
	err := c.doJSON(ctx, http.MethodGet, "/collaborations"+opts.query(), nil, &out)
	return out, err
}

// Collaboration returns one collaboration by id.
func (c *Client) Collaboration(ctx context.Context, id string) (*models.Collaboration, error) {
	var out models.Collaboration
	err := c.doJSON(ctx, http.MethodGet, "/collaborations/"+url.PathEscape(id), nil, &out)
	return &out, err
}

// TriggerRule starts a collaboration for ruleID. With wait the call returns the terminal record.
func (c *Client) TriggerRule(ctx context.Context, ruleID string, evCtx json.RawMessage, wait bool) (*models.Collaboration, error) {
	body := map[string]any{"rule_id": ruleID, "wait": wait}
	if len(evCtx) > 0 {
		body["context"] = evCtx
	}
	var out models.Collaboration
	err := c.doJSON(ctx, http.MethodPost, "/collaborations", body, &out)
	return &out, err
}

// DeleteCollaboration removes a collaboration.
func (c *Client) DeleteCollaboration(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/collaborations/"+url.PathEscape(id), nil, nil)
}

// InFlight returns the source-target keys with a running collaboration.
func (c *Client) InFlight(ctx context.Context) ([]string, error) {
	var out struct {
		Keys []string `json:"keys"`
	}
	err := c.doJSON(ctx, http.MethodGet, "/collaborations/in-flight", nil, &out)
	return out.Keys, err
}

// --- Preferences and notifications ---

// Preferences returns the notification preferences.
func (c *Client) Preferences(ctx context.Context) (*models.Preferences, error) {
	var out models.Preferences
	err := c.doJSON(ctx, http.MethodGet, "/preferences", nil, &out)
	return &out, err
}

// UpdatePreferences merges fields (JSON keys of models.Preferences) into the stored preferences.
func (c *Client) UpdatePreferences(ctx context.Context, fields map[string]any) (*models.Preferences, error) {
	var out models.Preferences
	err := c.doJSON(ctx, http.MethodPut, "/preferences", fields, &out)
	return &out, err
}

// Announce sends an announcement through the router and reports per-channel outcomes.
func (c *Client) Announce(ctx context.Context, a models.Announcement) (*models.AnnounceReport, error) {
	var out models.AnnounceReport
	err := c.doJSON(ctx, http.MethodPost, "/announce", a, &out)
	return &out, err
}

// FlushDigest sends pending digest items now and returns how many were pending.
func (c *Client) FlushDigest(ctx context.Context) (int, error) {
	var out struct {
		Flushed int `json:"flushed"`
	}
	err := c.doJSON(ctx, http.MethodPost, "/digest/flush", nil, &out)
	return out.Flushed, err
}

// DesktopPermission returns the desktop notification permission state.
func (c *Client) DesktopPermission(ctx context.Context) (string, error) {
	var out models.Permission
	err := c.doJSON(ctx, http.MethodGet, "/desktop/permission", nil, &out)
	return out.State, err
}

// SetDesktopPermission reports a permission state; empty asks the host to prompt.
func (c *Client) SetDesktopPermission(ctx context.Context, state string) (string, error) {
	var body any
	if state != "" {
		body = models.Permission{State: state}
	}
	var out models.Permission
	err := c.doJSON(ctx, http.MethodPost, "/desktop/permission", body, &out)
	return out.State, err
}

// --- Shared tasks ---

// Tasks returns the shared task list.
func (c *Client) Tasks(ctx context.Context) ([]models.SharedTask, error) {
	var out []models.SharedTask
	err := c.doJSON(ctx, http.MethodGet, "/tasks", nil, &out)
	return out, err
}

// AddTask creates a shared task.
func (c *Client) AddTask(ctx context.Context, title string) (*models.SharedTask, error) {
	var out models.SharedTask
	err := c.doJSON(ctx, http.MethodPost, "/tasks", map[string]string{"title": title}, &out)
	return &out, err
}

// ToggleTask flips a task's completed flag.
func (c *Client) ToggleTask(ctx context.Context, id string) (*models.SharedTask, error) {
	var out models.SharedTask
	err := c.doJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/toggle", nil, &out)
	return &out, err
}

// AssignTask assigns a task to an agent; empty agentID clears the assignment.
func (c *Client) AssignTask(ctx context.Context, id, agentID string) (*models.SharedTask, error) {
	var out models.SharedTask
	err := c.doJSON(ctx, http.MethodPost, "/tasks/"+url.PathEscape(id)+"/assign", map[string]string{"agent_id": agentID}, &out)
	return &out, err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	return c.doJSON(ctx, http.MethodDelete, "/tasks/"+url.PathEscape(id), nil, nil)
}

// --- Messages ---

// Messages returns the message log.
func (c *Client) Messages(ctx context.Context) ([]models.Message, error) {
	var out []models.Message
	err := c.doJSON(ctx, http.MethodGet, "/messages", nil, &out)
	return out, err
}

// SendMessage sends a message from the user to an agent.
func (c *Client) SendMessage(ctx context.Context, to, text string) (*models.Message, error) {
	var out models.Message
	err := c.doJSON(ctx, http.MethodPost, "/messages", map[string]string{"to": to, "text": text}, &out)
	return &out, err
}
