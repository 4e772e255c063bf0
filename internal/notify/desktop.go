package notify

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"runtime"
	"strings"
	"sync"

	"github.com/ankittk/agentsync/pkg/models"
)

// Fixed desktop alert artwork.
const (
	DesktopIcon  = "/icons/agentsync-192.png"
	DesktopBadge = "/icons/agentsync-badge.png"
)

// Alert is one OS-level notification.
type Alert struct {
	Title string `json:"title"`
	Body  string `json:"body"`
	Icon  string `json:"icon"`
	Badge string `json:"badge"`
	Tag   string `json:"tag"`
}

// DesktopHost abstracts the host environment's notification API.
type DesktopHost interface {
	Permission() string
	RequestPermission(ctx context.Context) (string, error)
	Show(ctx context.Context, a Alert) error
}

// DesktopChannel shows system alerts when the host has granted permission.
type DesktopChannel struct {
	Host DesktopHost
}

func (d *DesktopChannel) Name() string { return ChannelDesktop }

// Deliver never blocks on a permission prompt; without a grant it returns ErrSkipped.
func (d *DesktopChannel) Deliver(ctx context.Context, n Notification) error {
	if d.Host == nil || d.Host.Permission() != models.PermissionGranted {
		return ErrSkipped
	}
	return d.Host.Show(ctx, Alert{
		Title: n.Title,
		Body:  n.Text,
		Icon:  DesktopIcon,
		Badge: DesktopBadge,
		Tag:   "agentsync-" + n.Category,
	})
}

// ValidPermission reports whether s is a permission state the host may report.
func ValidPermission(s string) bool {
	switch s {
	case models.PermissionGranted, models.PermissionDenied, models.PermissionDefault:
		return true
	}
	return false
}

// HubHost drives the browser Notification API of connected clients over SSE.
// Clients report the permission they hold through SetPermission.
type HubHost struct {
	Pub   Publisher
	mu    sync.RWMutex
	state string
}

// NewHubHost starts in the "default" (not yet asked) state.
func NewHubHost(pub Publisher) *HubHost {
	return &HubHost{Pub: pub, state: models.PermissionDefault}
}

func (h *HubHost) Permission() string {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.state
}

// RequestPermission asks connected clients to prompt the user and returns the
// state currently known; the answer arrives later through SetPermission.
func (h *HubHost) RequestPermission(context.Context) (string, error) {
	state := h.Permission()
	if state == models.PermissionDefault && h.Pub != nil {
		h.Pub.PublishJSON(map[string]any{"type": "desktop_permission_request"})
	}
	return state, nil
}

// SetPermission records the state reported by a client.
func (h *HubHost) SetPermission(state string) error {
	if !ValidPermission(state) {
		return fmt.Errorf("invalid permission state %q", state)
	}
	h.mu.Lock()
	h.state = state
	h.mu.Unlock()
	return nil
}

func (h *HubHost) Show(_ context.Context, a Alert) error {
	if h.Pub == nil {
		return errors.New("no publisher")
	}
	h.Pub.PublishJSON(map[string]any{"type": "desktop_notification", "alert": a})
	return nil
}

// ExecHost shows alerts with notify-send (Linux) or osascript (macOS).
// Permission is granted when the tool is installed.
type ExecHost struct {
	GOOS     string
	LookPath func(string) (string, error)
	Run      func(ctx context.Context, name string, args ...string) error
}

// NewExecHost returns an ExecHost for the running OS.
func NewExecHost() *ExecHost {
	return &ExecHost{
		GOOS:     runtime.GOOS,
		LookPath: exec.LookPath,
		Run: func(ctx context.Context, name string, args ...string) error {
			out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
			if err != nil {
				return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
			}
			return nil
		},
	}
}

func (e *ExecHost) tool() string {
	if e.GOOS == "darwin" {
		return "osascript"
	}
	return "notify-send"
}

func (e *ExecHost) Permission() string {
	if _, err := e.LookPath(e.tool()); err != nil {
		return models.PermissionDenied
	}
	return models.PermissionGranted
}

func (e *ExecHost) RequestPermission(context.Context) (string, error) {
	return e.Permission(), nil
}

func (e *ExecHost) Show(ctx context.Context, a Alert) error {
	if e.GOOS == "darwin" {
		script := fmt.Sprintf("display notification %q with title %q", a.Body, a.Title)
		return e.Run(ctx, "osascript", "-e", script)
	}
	return e.Run(ctx, "notify-send", "--app-name=agentsync", "--icon="+a.Icon, a.Title, a.Body)
}
