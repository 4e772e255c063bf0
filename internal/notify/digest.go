package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/ankittk/agentsync/internal/capabilities"
	"github.com/ankittk/agentsync/pkg/models"
)

// DigestChannel batches announcements into email-style digests posted through
// capabilities. The buffer lives in memory only and is lost on restart.
type DigestChannel struct {
	Caps *capabilities.Registry
	// Frequency returns the current email frequency preference.
	Frequency func() string
	Now       func() time.Time

	mu        sync.Mutex
	buf       []Notification
	lastFlush time.Time
}

// NewDigestChannel returns a digest channel reading frequency from prefs.
func NewDigestChannel(caps *capabilities.Registry, prefs PreferenceSource) *DigestChannel {
	return &DigestChannel{
		Caps:      caps,
		Frequency: func() string { return prefs.Get().EmailFrequency },
		Now:       time.Now,
	}
}

func (d *DigestChannel) Name() string { return ChannelDigest }

func (d *DigestChannel) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

// Deliver sends immediately for realtime; otherwise it buffers until the period elapses.
func (d *DigestChannel) Deliver(ctx context.Context, n Notification) error {
	if d.Caps == nil || d.Caps.Len() == 0 {
		return ErrSkipped
	}
	if d.Frequency() == models.FrequencyRealtime {
		return d.Caps.NotifyAll(ctx, capabilities.Message{Title: n.Title, Text: n.Text, At: n.At})
	}
	d.mu.Lock()
	if d.lastFlush.IsZero() {
		d.lastFlush = d.now()
	}
	d.buf = append(d.buf, n)
	d.mu.Unlock()
	return nil
}

// Pending returns the number of buffered notifications.
func (d *DigestChannel) Pending() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buf)
}

// Period returns the flush interval for freq; zero for realtime.
func Period(freq string) time.Duration {
	switch freq {
	case models.FrequencyHourly:
		return time.Hour
	case models.FrequencyDaily:
		return 24 * time.Hour
	case models.FrequencyWeekly:
		return 7 * 24 * time.Hour
	}
	return 0
}

// FlushIfDue flushes when the current period has elapsed since the last flush.
func (d *DigestChannel) FlushIfDue(ctx context.Context) error {
	d.mu.Lock()
	due := len(d.buf) > 0 && d.now().Sub(d.lastFlush) >= Period(d.Frequency())
	d.mu.Unlock()
	if !due {
		return nil
	}
	return d.Flush(ctx)
}

// Flush posts every buffered notification as one digest. On failure the items
// are dropped and the error returned; there is no retry.
func (d *DigestChannel) Flush(ctx context.Context) error {
	d.mu.Lock()
	items := d.buf
	d.buf = nil
	d.lastFlush = d.now()
	d.mu.Unlock()
	if len(items) == 0 || d.Caps == nil {
		return nil
	}
	msg := capabilities.Message{
		Title: fmt.Sprintf("agentsync digest: %d notifications", len(items)),
		At:    d.now().UTC(),
	}
	for _, n := range items {
		msg.Items = append(msg.Items, fmt.Sprintf("[%s] %s: %s", n.Category, n.Title, n.Text))
	}
	if err := d.Caps.NotifyAll(ctx, msg); err != nil {
		slog.Warn("digest flush failed", "items", len(items), "err", err)
		return err
	}
	slog.Info("digest flushed", "items", len(items))
	return nil
}

// Run checks every interval whether a flush is due, and flushes once more on shutdown.
func (d *DigestChannel) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			_ = d.Flush(flushCtx)
			cancel()
			return nil
		case <-ticker.C:
			_ = d.FlushIfDue(ctx)
		}
	}
}
