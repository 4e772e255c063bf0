// Package store defines the persistence interface for collaborations and rule state,
// plus the shared query helpers both SQL backends use.
package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ankittk/agentsync/pkg/models"
)

var (
	// ErrNotFound is returned when a collaboration id does not exist.
	ErrNotFound = errors.New("collaboration not found")
	// ErrTerminal is returned when updating a completed or failed collaboration.
	ErrTerminal = errors.New("collaboration is terminal")
	// ErrInvalidTransition is returned for status changes the lifecycle does not allow.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// Filter selects collaborations by equality on the non-empty fields.
type Filter struct {
	Status      string
	SourceAgent string
	TargetAgent string
	Priority    string
	RuleID      string
	Sort        string
	Limit       int
}

// Patch is a partial collaboration update. Nil fields are left unchanged.
type Patch struct {
	Status *string
	Result json.RawMessage
}

// StatusPatch is shorthand for a status-only patch.
func StatusPatch(status string) Patch {
	return Patch{Status: &status}
}

// sortColumns whitelists sortable columns; a leading "-" means descending.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"priority":   "priority",
	"status":     "status",
}

// OrderBy translates a sort key such as "-created_at" into an ORDER BY clause.
// Empty means newest first.
func OrderBy(sortKey string) (string, error) {
	if sortKey == "" {
		sortKey = "-created_at"
	}
	dir := "ASC"
	key := sortKey
	if strings.HasPrefix(key, "-") {
		dir = "DESC"
		key = key[1:]
	}
	col, ok := sortColumns[key]
	if !ok {
		return "", fmt.Errorf("unsupported sort key %q", sortKey)
	}
	// id breaks ties between records created in the same millisecond.
	return fmt.Sprintf("ORDER BY %s %s, id %s", col, dir, dir), nil
}

// ClampLimit applies the default and maximum list sizes.
func ClampLimit(limit int) int {
	if limit <= 0 {
		return models.DefaultCollaborationLimit
	}
	if limit > models.MaxCollaborationListLimit {
		return models.MaxCollaborationListLimit
	}
	return limit
}

// Where builds a WHERE clause for f. placeholder returns the bind marker for the
// n-th argument (1-based): "?" for SQLite, "$n" for PostgreSQL.
func Where(f Filter, placeholder func(n int) string) (string, []any) {
	var conds []string
	var args []any
	add := func(col, val string) {
		if val == "" {
			return
		}
		args = append(args, val)
		conds = append(conds, col+" = "+placeholder(len(args)))
	}
	add("status", f.Status)
	add("source_agent", f.SourceAgent)
	add("target_agent", f.TargetAgent)
	add("priority", f.Priority)
	add("rule_id", f.RuleID)
	if len(conds) == 0 {
		return "", nil
	}
	return "WHERE " + strings.Join(conds, " AND "), args
}

// CheckTransition validates a status change against the collaboration lifecycle.
func CheckTransition(from, to string) error {
	if models.IsTerminal(from) {
		return fmt.Errorf("%w: status %s", ErrTerminal, from)
	}
	if from == to {
		return nil
	}
	if !models.CanTransition(from, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
	}
	return nil
}

// ValidateNew checks a collaboration before insert.
func ValidateNew(c models.Collaboration) error {
	if c.SourceAgent == "" || c.TargetAgent == "" {
		return errors.New("source_agent and target_agent required")
	}
	if c.SourceAgent == c.TargetAgent {
		return errors.New("source_agent and target_agent must differ")
	}
	if c.Status != "" && c.Status != models.StatusPending {
		return fmt.Errorf("new collaboration must be pending (got %q)", c.Status)
	}
	if c.Priority != "" && !models.ValidPriority(c.Priority) {
		return fmt.Errorf("invalid priority %q", c.Priority)
	}
	if len(c.Context) > 0 && !json.Valid(c.Context) {
		return errors.New("context must be valid JSON")
	}
	return nil
}

// NullableJSON returns nil for empty raw JSON so it is stored as SQL NULL.
func NullableJSON(raw json.RawMessage) any {
	if len(raw) == 0 {
		return nil
	}
	return string(raw)
}
