// Package models provides shared types for the agentsync HTTP API and external tools.
// These types mirror the API JSON and are stable for use by pkg/client and other consumers.
package models

import (
	"encoding/json"
	"time"
)

// Agent is a named processing role that can be the source or target of a collaboration.
type Agent struct {
	ID                string    `json:"id"`
	DisplayName       string    `json:"display_name"`
	RoleColor         string    `json:"role_color"`
	Presence          string    `json:"presence"`
	PresenceUpdatedAt time.Time `json:"presence_updated_at,omitempty"`
}

// Rule maps a (source, target, trigger) triple to an action.
type Rule struct {
	ID          string `json:"id" yaml:"id"`
	SourceAgent string `json:"source_agent" yaml:"source_agent"`
	TargetAgent string `json:"target_agent" yaml:"target_agent"`
	TriggerType string `json:"trigger_type" yaml:"trigger_type"`
	ActionLabel string `json:"action_label" yaml:"action_label"`
	Description string `json:"description" yaml:"description"`
	Priority    string `json:"priority" yaml:"priority"`
	Enabled     bool   `json:"enabled" yaml:"enabled"`
}

// Key returns the in-flight tracking key for the rule (source-target pair).
func (r Rule) Key() string {
	return RuleKey(r.SourceAgent, r.TargetAgent)
}

// RuleKey builds the "source-target" key used for in-flight tracking.
func RuleKey(source, target string) string {
	return source + "-" + target
}

// Collaboration is a single unit of cross-agent work.
type Collaboration struct {
	ID            string          `json:"id"`
	RuleID        string          `json:"rule_id,omitempty"`
	SourceAgent   string          `json:"source_agent"`
	TargetAgent   string          `json:"target_agent"`
	TriggerReason string          `json:"trigger_reason"`
	Context       json.RawMessage `json:"context,omitempty"`
	Status        string          `json:"status"`
	Priority      string          `json:"priority"`
	Result        json.RawMessage `json:"result,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at,omitempty"`
}

// Preferences holds per-user notification settings.
type Preferences struct {
	DesktopNotifications     bool    `json:"desktop_notifications"`
	SoundAlerts              bool    `json:"sound_alerts"`
	EmailNotifications       bool    `json:"email_notifications"`
	NotifyOnMessages         bool    `json:"notify_on_messages"`
	NotifyOnTaskAssignment   bool    `json:"notify_on_task_assignment"`
	NotifyOnCriticalTriggers bool    `json:"notify_on_critical_triggers"`
	SoundVolume              float64 `json:"sound_volume"`
	EmailFrequency           string  `json:"email_frequency"`
}

// SharedTask is an item on the shared assignment board.
type SharedTask struct {
	ID         string    `json:"id"`
	Title      string    `json:"title"`
	Completed  bool      `json:"completed"`
	AssignedTo *string   `json:"assigned_to,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Message is one entry of the user↔agent message log.
type Message struct {
	ID        string    `json:"id"`
	From      string    `json:"from"`
	To        string    `json:"to"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Event is an agent event submitted for rule matching.
type Event struct {
	SourceAgent string          `json:"source_agent"`
	TargetAgent string          `json:"target_agent"`
	TriggerType string          `json:"trigger_type"`
	Context     json.RawMessage `json:"context,omitempty"`
}

// EventAck is the /events response.
type EventAck struct {
	Accepted bool   `json:"accepted"`
	Matched  bool   `json:"matched"`
	RuleID   string `json:"rule_id,omitempty"`
}

// Announcement is the /announce request body.
type Announcement struct {
	Category string `json:"category"`
	Text     string `json:"text"`
	Title    string `json:"title,omitempty"`
}

// AnnounceReport describes what happened to one announcement.
type AnnounceReport struct {
	Suppressed bool              `json:"suppressed"`
	Delivered  []string          `json:"delivered"`
	Skipped    []string          `json:"skipped,omitempty"`
	Failed     map[string]string `json:"failed,omitempty"`
}

// Permission is the /desktop/permission body.
type Permission struct {
	State string `json:"state"`
}
