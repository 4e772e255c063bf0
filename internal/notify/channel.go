// Package notify routes announcements to the banner, desktop, audio and digest
// channels under the user's notification preferences.
package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ankittk/agentsync/pkg/models"
)

// Channel names.
const (
	ChannelBanner  = "banner"
	ChannelDesktop = "desktop"
	ChannelAudio   = "audio"
	ChannelDigest  = "digest"
)

// Banner severities.
const (
	SeverityInfo    = "info"
	SeveritySuccess = "success"
	SeverityError   = "error"
)

// ErrSkipped is returned by a channel that chose not to deliver (e.g. desktop
// permission not granted). The router records it as skipped, not failed.
var ErrSkipped = errors.New("delivery skipped")

// Notification is what a channel receives for one announcement.
type Notification struct {
	Category string
	Title    string
	Text     string
	Severity string
	Volume   float64
	At       time.Time
}

// Channel is one delivery mechanism.
type Channel interface {
	Name() string
	Deliver(ctx context.Context, n Notification) error
}

// ChannelError wraps a failure from a single channel.
type ChannelError struct {
	Channel string
	Err     error
}

func (e *ChannelError) Error() string { return fmt.Sprintf("%s channel: %v", e.Channel, e.Err) }
func (e *ChannelError) Unwrap() error { return e.Err }

// Publisher pushes a JSON event to connected clients (the SSE hub).
type Publisher interface {
	PublishJSON(v any)
}

// PublisherFunc adapts a function to Publisher.
type PublisherFunc func(v any)

func (f PublisherFunc) PublishJSON(v any) { f(v) }

// Announcer is the router surface other services depend on.
type Announcer interface {
	Announce(ctx context.Context, category, text string, opts Options) models.AnnounceReport
}

// SeverityFor maps a category to its banner severity.
func SeverityFor(category string) string {
	switch category {
	case models.CategoryTask:
		return SeveritySuccess
	case models.CategoryCritical:
		return SeverityError
	}
	return SeverityInfo
}

// TitleFor returns the category-specific desktop title.
func TitleFor(category string) string {
	switch category {
	case models.CategoryMessage:
		return "New Message"
	case models.CategoryTask:
		return "Task Update"
	case models.CategoryCritical:
		return "Critical Alert"
	}
	return "agentsync"
}
