package notify

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/ankittk/agentsync/internal/otel"
	"github.com/ankittk/agentsync/internal/preferences"
	"github.com/ankittk/agentsync/pkg/models"
)

// PreferenceSource returns the current preferences.
type PreferenceSource interface {
	Get() models.Preferences
}

// Options adjusts a single announcement.
type Options struct {
	Title    string // overrides the category title
	Severity string // overrides the banner severity (e.g. error for failures)
}

// FailureTitle heads banners for user actions whose write was rejected.
const FailureTitle = "Action Failed"

// Failure returns the options for an error-severity failure banner.
func Failure() Options {
	return Options{Title: FailureTitle, Severity: SeverityError}
}

// Channels groups the router's dispatchers. Nil entries are not configured.
type Channels struct {
	Banner  Channel
	Desktop Channel
	Audio   Channel
	Digest  Channel
}

// Router maps a category to the enabled subset of channels.
type Router struct {
	prefs    PreferenceSource
	channels Channels
	now      func() time.Time
}

// NewRouter returns a Router reading prefs on every Announce.
func NewRouter(prefs PreferenceSource, channels Channels) *Router {
	return &Router{prefs: prefs, channels: channels, now: time.Now}
}

// Announce delivers text under category. The category toggle is the only gate on
// the banner; desktop, audio and digest additionally need their own toggles.
// A failing or panicking channel never stops the others.
func (r *Router) Announce(ctx context.Context, category, text string, opts Options) models.AnnounceReport {
	rep := models.AnnounceReport{Delivered: []string{}}
	p := r.prefs.Get()
	if !preferences.Allows(p, category) {
		rep.Suppressed = true
		otel.RecordAnnouncement(ctx, category, true)
		slog.Debug("announcement suppressed", "category", category)
		return rep
	}
	otel.RecordAnnouncement(ctx, category, false)

	n := Notification{
		Category: category,
		Title:    TitleFor(category),
		Text:     text,
		Severity: SeverityFor(category),
		Volume:   p.SoundVolume,
		At:       r.now().UTC(),
	}
	if opts.Title != "" {
		n.Title = opts.Title
	}
	if opts.Severity != "" {
		n.Severity = opts.Severity
	}

	r.deliver(ctx, r.channels.Banner, n, &rep)
	if p.DesktopNotifications {
		r.deliver(ctx, r.channels.Desktop, n, &rep)
	}
	if p.SoundAlerts {
		r.deliver(ctx, r.channels.Audio, n, &rep)
	}
	if p.EmailNotifications {
		r.deliver(ctx, r.channels.Digest, n, &rep)
	}
	return rep
}

func (r *Router) deliver(ctx context.Context, ch Channel, n Notification, rep *models.AnnounceReport) {
	if ch == nil {
		return
	}
	name := ch.Name()
	err := safeDeliver(ctx, ch, n)
	otel.RecordDelivery(ctx, name, err)
	switch {
	case err == nil:
		rep.Delivered = append(rep.Delivered, name)
	case isSkipped(err):
		rep.Skipped = append(rep.Skipped, name)
	default:
		if rep.Failed == nil {
			rep.Failed = make(map[string]string)
		}
		rep.Failed[name] = err.Error()
		slog.Warn("channel delivery failed", "channel", name, "category", n.Category, "err", err)
	}
}

func safeDeliver(ctx context.Context, ch Channel, n Notification) (err error) {
	defer func() {
		if v := recover(); v != nil {
			err = &ChannelError{Channel: ch.Name(), Err: fmt.Errorf("panic: %v", v)}
		}
	}()
	if err := ch.Deliver(ctx, n); err != nil {
		if isSkipped(err) {
			return err
		}
		var ce *ChannelError
		if errors.As(err, &ce) {
			return err
		}
		return &ChannelError{Channel: ch.Name(), Err: err}
	}
	return nil
}

func isSkipped(err error) bool { return errors.Is(err, ErrSkipped) }
