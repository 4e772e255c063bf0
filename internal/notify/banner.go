package notify

import (
	"context"
	"errors"
	"time"
)

// DefaultBannerTTL is how long a banner stays on screen.
const DefaultBannerTTL = 4 * time.Second

// BannerEvent is the SSE payload for an in-app banner.
type BannerEvent struct {
	Type     string    `json:"type"`
	Category string    `json:"category"`
	Severity string    `json:"severity"`
	Title    string    `json:"title"`
	Text     string    `json:"text"`
	TTLMs    int64     `json:"ttl_ms"`
	At       time.Time `json:"at"`
}

// BannerChannel shows a transient, auto-dismissing in-app message.
type BannerChannel struct {
	Pub Publisher
	TTL time.Duration
}

func (b *BannerChannel) Name() string { return ChannelBanner }

func (b *BannerChannel) Deliver(_ context.Context, n Notification) error {
	if b.Pub == nil {
		return errors.New("no publisher")
	}
	ttl := b.TTL
	if ttl <= 0 {
		ttl = DefaultBannerTTL
	}
	severity := n.Severity
	if severity == "" {
		severity = SeverityFor(n.Category)
	}
	b.Pub.PublishJSON(BannerEvent{
		Type:     "banner",
		Category: n.Category,
		Severity: severity,
		Title:    n.Title,
		Text:     n.Text,
		TTLMs:    ttl.Milliseconds(),
		At:       n.At,
	})
	return nil
}
