package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/ankittk/agentsync/pkg/models"
)

const collabColumns = `id, rule_id, source_agent, target_agent, trigger_reason, context, status, priority, result, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCollaboration(r rowScanner) (models.Collaboration, error) {
	var (
		c                  models.Collaboration
		ruleID, raw, res   sql.NullString
		createdAt, updated int64
	)
	if err := r.Scan(&c.ID, &ruleID, &c.SourceAgent, &c.TargetAgent, &c.TriggerReason, &raw, &c.Status, &c.Priority, &res, &createdAt, &updated); err != nil {
		return models.Collaboration{}, err
	}
	c.RuleID = ruleID.String
	if raw.Valid {
		c.Context = json.RawMessage(raw.String)
	}
	if res.Valid {
		c.Result = json.RawMessage(res.String)
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return c, nil
}

// PrepareNew assigns id, status, priority and timestamps to a collaboration about to be inserted.
func PrepareNew(c models.Collaboration) (models.Collaboration, error) {
	if err := ValidateNew(c); err != nil {
		return models.Collaboration{}, err
	}
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	c.Status = models.StatusPending
	if c.Priority == "" {
		c.Priority = models.PriorityMedium
	}
	now := time.Now().UTC().Truncate(time.Millisecond)
	c.CreatedAt = now
	c.UpdatedAt = now
	c.Result = nil
	return c, nil
}

func (s *sqliteStore) CreateCollaboration(ctx context.Context, c models.Collaboration) (models.Collaboration, error) {
	c, err := PrepareNew(c)
	if err != nil {
		return models.Collaboration{}, err
	}
	var ruleID any
	if c.RuleID != "" {
		ruleID = c.RuleID
	}
	_, err = s.stmtInsert.ExecContext(ctx, c.ID, ruleID, c.SourceAgent, c.TargetAgent, c.TriggerReason,
		NullableJSON(c.Context), c.Status, c.Priority, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return models.Collaboration{}, fmt.Errorf("insert collaboration: %w", err)
	}
	return c, nil
}

func (s *sqliteStore) ListCollaborations(ctx context.Context, sortKey string, limit int) ([]models.Collaboration, error) {
	return s.FilterCollaborations(ctx, Filter{Sort: sortKey, Limit: limit})
}

func (s *sqliteStore) FilterCollaborations(ctx context.Context, f Filter) ([]models.Collaboration, error) {
	order, err := OrderBy(f.Sort)
	if err != nil {
		return nil, err
	}
	where, args := Where(f, func(int) string { return "?" })
	q := fmt.Sprintf(`SELECT %s FROM collaborations %s %s LIMIT ?`, collabColumns, where, order)
	args = append(args, ClampLimit(f.Limit))
	rows, err := s.DB.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	out := []models.Collaboration{}
	for rows.Next() {
		c, err := scanCollaboration(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *sqliteStore) GetCollaboration(ctx context.Context, id string) (models.Collaboration, error) {
	c, err := scanCollaboration(s.stmtGet.QueryRowContext(ctx, id))
	if errors.Is(err, sql.ErrNoRows) {
		return models.Collaboration{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return c, err
}

func (s *sqliteStore) UpdateCollaboration(ctx context.Context, id string, p Patch) (models.Collaboration, error) {
	tx, err := s.DB.BeginTx(ctx, nil)
	if err != nil {
		return models.Collaboration{}, err
	}
	defer func() { _ = tx.Rollback() }()

	var current string
	err = tx.QueryRowContext(ctx, `SELECT status FROM collaborations WHERE id = ?`, id).Scan(&current)
	if errors.Is(err, sql.ErrNoRows) {
		return models.Collaboration{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return models.Collaboration{}, err
	}
	next := current
	if p.Status != nil {
		next = *p.Status
	}
	if err := CheckTransition(current, next); err != nil {
		return models.Collaboration{}, err
	}

	now := time.Now().UTC().UnixMilli()
	var res sql.Result
	if next == models.StatusFailed {
		// failed records never carry a result
		res, err = tx.ExecContext(ctx, `UPDATE collaborations SET status = ?, result = NULL, updated_at = ? WHERE id = ? AND status NOT IN ('completed','failed')`, next, now, id)
	} else {
		res, err = tx.ExecContext(ctx, `UPDATE collaborations SET status = ?, result = COALESCE(?, result), updated_at = ? WHERE id = ? AND status NOT IN ('completed','failed')`, next, NullableJSON(p.Result), now, id)
	}
	if err != nil {
		return models.Collaboration{}, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return models.Collaboration{}, fmt.Errorf("%w: %s", ErrTerminal, id)
	}
	if err := tx.Commit(); err != nil {
		return models.Collaboration{}, err
	}
	return s.GetCollaboration(ctx, id)
}

func (s *sqliteStore) DeleteCollaboration(ctx context.Context, id string) error {
	res, err := s.stmtDelete.ExecContext(ctx, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

func (s *sqliteStore) ListRuleStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.DB.QueryContext(ctx, `SELECT rule_id, enabled FROM rule_states`)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		var enabled int
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, err
		}
		out[id] = enabled != 0
	}
	return out, rows.Err()
}

func (s *sqliteStore) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	if ruleID == "" {
		return errors.New("rule id required")
	}
	v := 0
	if enabled {
		v = 1
	}
	_, err := s.DB.ExecContext(ctx, `
INSERT INTO rule_states(rule_id, enabled, updated_at) VALUES(?, ?, ?)
ON CONFLICT(rule_id) DO UPDATE SET enabled = excluded.enabled, updated_at = excluded.updated_at`,
		ruleID, v, time.Now().UTC().Unix())
	return err
}
