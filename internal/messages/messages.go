// Package messages is the user/agent message log. A user message gets a
// simulated reply from the addressed agent after a fixed delay.
package messages

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/agentsync/internal/localstore"
	"github.com/ankittk/agentsync/internal/notify"
	"github.com/ankittk/agentsync/pkg/models"
)

// DefaultReplyDelay is used when Options.ReplyDelay is zero.
const DefaultReplyDelay = 1500 * time.Millisecond

var (
	// ErrEmptyText is returned when sending an empty message.
	ErrEmptyText = errors.New("message text required")
	// ErrUnknownAgent is returned when the recipient is not in the roster.
	ErrUnknownAgent = errors.New("unknown agent")
	// ErrClosed is returned by Send after Close.
	ErrClosed = errors.New("message log closed")
)

// Replier produces an agent's reply to a user message.
type Replier func(agentID, text string) string

// Options configures a Log. KV is required.
type Options struct {
	KV         localstore.KV
	Announcer  notify.Announcer
	Publisher  notify.Publisher
	KnownAgent func(id string) bool
	ReplyDelay time.Duration
	Replier    Replier
	Now        func() time.Time
}

// Log is the append-only message log.
type Log struct {
	opts Options

	mu     sync.Mutex
	msgs   []models.Message
	closed bool
	wg     sync.WaitGroup
}

// New returns a Log loaded from the local store.
func New(opts Options) *Log {
	if opts.ReplyDelay <= 0 {
		opts.ReplyDelay = DefaultReplyDelay
	}
	if opts.Replier == nil {
		opts.Replier = CannedReply
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Log{opts: opts, msgs: load(opts.KV)}
}

func load(kv localstore.KV) []models.Message {
	raw, ok, err := kv.Get(localstore.KeyMessages)
	if err != nil || !ok || raw == "" {
		if err != nil {
			slog.Debug("messages unreadable, starting empty", "err", err)
		}
		return nil
	}
	var msgs []models.Message
	if err := json.Unmarshal([]byte(raw), &msgs); err != nil {
		slog.Debug("messages malformed, starting empty", "err", err)
		return nil
	}
	return msgs
}

// List returns the log oldest first.
func (l *Log) List() []models.Message {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.Message(nil), l.msgs...)
}

// Send appends a user message to agent `to` and schedules the agent's reply.
func (l *Log) Send(ctx context.Context, to, text string) (models.Message, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return models.Message{}, ErrEmptyText
	}
	if to == models.UserParticipant || (l.opts.KnownAgent != nil && !l.opts.KnownAgent(to)) {
		return models.Message{}, fmt.Errorf("%w: %s", ErrUnknownAgent, to)
	}
	msg := models.Message{
		ID:        uuid.NewString(),
		From:      models.UserParticipant,
		To:        to,
		Text:      text,
		Timestamp: l.opts.Now().UTC(),
	}
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return models.Message{}, ErrClosed
	}
	if err := l.appendLocked(msg); err != nil {
		l.mu.Unlock()
		slog.Error("message write failed", "to", to, "err", err)
		if l.opts.Announcer != nil {
			l.opts.Announcer.Announce(ctx, models.CategoryMessage, fmt.Sprintf("Message to %s was not sent: %v", to, err), notify.Failure())
		}
		return models.Message{}, err
	}
	l.wg.Add(1)
	l.mu.Unlock()

	l.publish(msg)
	go l.reply(context.WithoutCancel(ctx), msg)
	return msg, nil
}

func (l *Log) reply(ctx context.Context, to models.Message) {
	defer l.wg.Done()
	time.Sleep(l.opts.ReplyDelay)

	msg := models.Message{
		ID:        uuid.NewString(),
		From:      to.To,
		To:        models.UserParticipant,
		Text:      l.opts.Replier(to.To, to.Text),
		Timestamp: l.opts.Now().UTC(),
	}
	l.mu.Lock()
	err := l.appendLocked(msg)
	l.mu.Unlock()
	if err != nil {
		slog.Warn("persist agent reply failed", "agent", msg.From, "err", err)
		return
	}
	slog.Debug("agent replied", "agent", msg.From, "id", msg.ID)
	l.publish(msg)
	if l.opts.Announcer != nil {
		l.opts.Announcer.Announce(ctx, models.CategoryMessage, fmt.Sprintf("%s: %s", msg.From, msg.Text), notify.Options{})
	}
}

// appendLocked persists the full log with m appended, then adopts it. Caller holds mu.
func (l *Log) appendLocked(m models.Message) error {
	next := append(append([]models.Message(nil), l.msgs...), m)
	data, err := json.Marshal(next)
	if err != nil {
		return err
	}
	if err := l.opts.KV.Set(localstore.KeyMessages, string(data)); err != nil {
		return fmt.Errorf("save messages: %w", err)
	}
	l.msgs = next
	return nil
}

// Close rejects further sends and waits for scheduled replies to land.
func (l *Log) Close() {
	l.mu.Lock()
	l.closed = true
	l.mu.Unlock()
	l.wg.Wait()
}

func (l *Log) publish(m models.Message) {
	if l.opts.Publisher != nil {
		l.opts.Publisher.PublishJSON(map[string]any{"type": "message", "message": m})
	}
}

var cannedReplies = map[string]string{
	"market_monitor":         "Market Monitor here. I'll keep an eye on signals related to: %q",
	"strategy_doc_generator": "Strategy Doc Generator here. I'll fold this into the next strategy draft: %q",
	"knowledge_curator":      "Knowledge Curator here. Filed under recent notes: %q",
}

// CannedReply is the default Replier.
func CannedReply(agentID, text string) string {
	if f, ok := cannedReplies[agentID]; ok {
		return fmt.Sprintf(f, text)
	}
	return fmt.Sprintf("Got: %q", text)
}
