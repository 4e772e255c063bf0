// Package memory keeps per-agent files under the home directory: a markdown
// journal of finished collaborations, an optional profile, and the shared brief.
package memory

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"
)

// JournalEntry is one finished collaboration as seen by the target agent.
type JournalEntry struct {
	CollaborationID string
	SourceAgent     string
	Reason          string
	Status          string
	Summary         string
	CreatedAt       time.Time
}

// Journal appends to and reads an agent's journal.md.
type Journal struct {
	Home    string
	AgentID string
}

var journalMu sync.Mutex

// Append adds an entry in markdown form, creating the agent directory if needed.
func (j *Journal) Append(_ context.Context, entry JournalEntry) error {
	agentDir := AgentDir(j.Home, j.AgentID)
	if err := os.MkdirAll(agentDir, 0o755); err != nil {
		return fmt.Errorf("create agent dir: %w", err)
	}
	journalMu.Lock()
	defer journalMu.Unlock()
	f, err := os.OpenFile(JournalPath(agentDir), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(formatJournalBlock(entry)); err != nil {
		return fmt.Errorf("write journal: %w", err)
	}
	return nil
}

func formatJournalBlock(e JournalEntry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "\n## %s %s", e.CreatedAt.UTC().Format("2006-01-02 15:04"), e.Status)
	if e.SourceAgent != "" {
		fmt.Fprintf(&b, " (from %s)", e.SourceAgent)
	}
	b.WriteString("\n\n")
	field := func(label, v string) {
		if v != "" {
			fmt.Fprintf(&b, "- **%s:** %s\n", label, v)
		}
	}
	field("Collaboration", e.CollaborationID)
	field("Reason", e.Reason)
	field("Summary", e.Summary)
	return b.String()
}

// Read returns the journal, or its last limitBytes when limitBytes > 0.
// A missing journal reads as empty.
func (j *Journal) Read(_ context.Context, limitBytes int) (string, error) {
	data, err := os.ReadFile(JournalPath(AgentDir(j.Home, j.AgentID)))
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", err
	}
	s := string(data)
	if limitBytes <= 0 || len(s) <= limitBytes {
		return s, nil
	}
	s = s[len(s)-limitBytes:]
	// start at an entry boundary when one is in range
	if i := strings.Index(s, "\n## "); i >= 0 {
		s = s[i:]
	}
	return s, nil
}

// Summary returns the recent journal tail for prompt context.
func (j *Journal) Summary(ctx context.Context, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 2000
	}
	s, err := j.Read(ctx, maxLen)
	if err != nil {
		return "", err
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return "(no prior collaborations)", nil
	}
	return s, nil
}
