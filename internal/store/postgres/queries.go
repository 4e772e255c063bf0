package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/pkg/models"
)

const collabColumns = `id, rule_id, source_agent, target_agent, trigger_reason, context::text, status, priority, result::text, created_at, updated_at`

func dollar(n int) string { return "$" + strconv.Itoa(n) }

func scanCollaboration(r pgx.Row) (models.Collaboration, error) {
	var (
		c                  models.Collaboration
		ruleID, raw, res   *string
		createdAt, updated int64
	)
	if err := r.Scan(&c.ID, &ruleID, &c.SourceAgent, &c.TargetAgent, &c.TriggerReason, &raw, &c.Status, &c.Priority, &res, &createdAt, &updated); err != nil {
		return models.Collaboration{}, err
	}
	if ruleID != nil {
		c.RuleID = *ruleID
	}
	if raw != nil {
		c.Context = json.RawMessage(*raw)
	}
	if res != nil {
		c.Result = json.RawMessage(*res)
	}
	c.CreatedAt = time.UnixMilli(createdAt).UTC()
	c.UpdatedAt = time.UnixMilli(updated).UTC()
	return c, nil
}

func (s *Store) CreateCollaboration(ctx context.Context, c models.Collaboration) (models.Collaboration, error) {
	c, err := store.PrepareNew(c)
	if err != nil {
		return models.Collaboration{}, err
	}
	var ruleID any
	if c.RuleID != "" {
		ruleID = c.RuleID
	}
	_, err = s.Pool.Exec(ctx, `
INSERT INTO collaborations(id, rule_id, source_agent, target_agent, trigger_reason, context, status, priority, result, created_at, updated_at)
VALUES($1, $2, $3, $4, $5, $6::jsonb, $7, $8, NULL, $9, $10)`,
		c.ID, ruleID, c.SourceAgent, c.TargetAgent, c.TriggerReason, store.NullableJSON(c.Context),
		c.Status, c.Priority, c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli())
	if err != nil {
		return models.Collaboration{}, fmt.Errorf("insert collaboration: %w", err)
	}
	return c, nil
}

func (s *Store) ListCollaborations(ctx context.Context, sortKey string, limit int) ([]models.Collaboration, error) {
	return s.FilterCollaborations(ctx, store.Filter{Sort: sortKey, Limit: limit})
}

func (s *Store) FilterCollaborations(ctx context.Context, f store.Filter) ([]models.Collaboration, error) {
	order, err := store.OrderBy(f.Sort)
	if err != nil {
		return nil, err
	}
	where, args := store.Where(f, dollar)
	args = append(args, store.ClampLimit(f.Limit))
	q := fmt.Sprintf(`SELECT %s FROM collaborations %s %s LIMIT %s`, collabColumns, where, order, dollar(len(args)))
	rows, err := s.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

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

func (s *Store) GetCollaboration(ctx context.Context, id string) (models.Collaboration, error) {
	c, err := scanCollaboration(s.Pool.QueryRow(ctx, `SELECT `+collabColumns+` FROM collaborations WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Collaboration{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return c, err
}

func (s *Store) UpdateCollaboration(ctx context.Context, id string, p store.Patch) (models.Collaboration, error) {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return models.Collaboration{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var current string
	err = tx.QueryRow(ctx, `SELECT status FROM collaborations WHERE id = $1 FOR UPDATE`, id).Scan(&current)
	if errors.Is(err, pgx.ErrNoRows) {
		return models.Collaboration{}, fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	if err != nil {
		return models.Collaboration{}, err
	}
	next := current
	if p.Status != nil {
		next = *p.Status
	}
	if err := store.CheckTransition(current, next); err != nil {
		return models.Collaboration{}, err
	}

	now := time.Now().UTC().UnixMilli()
	if next == models.StatusFailed {
		_, err = tx.Exec(ctx, `UPDATE collaborations SET status = $1, result = NULL, updated_at = $2 WHERE id = $3`, next, now, id)
	} else {
		_, err = tx.Exec(ctx, `UPDATE collaborations SET status = $1, result = COALESCE($2::jsonb, result), updated_at = $3 WHERE id = $4`, next, store.NullableJSON(p.Result), now, id)
	}
	if err != nil {
		return models.Collaboration{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return models.Collaboration{}, err
	}
	return s.GetCollaboration(ctx, id)
}

func (s *Store) DeleteCollaboration(ctx context.Context, id string) error {
	tag, err := s.Pool.Exec(ctx, `DELETE FROM collaborations WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", store.ErrNotFound, id)
	}
	return nil
}

func (s *Store) ListRuleStates(ctx context.Context) (map[string]bool, error) {
	rows, err := s.Pool.Query(ctx, `SELECT rule_id, enabled FROM rule_states`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]bool)
	for rows.Next() {
		var id string
		var enabled bool
		if err := rows.Scan(&id, &enabled); err != nil {
			return nil, err
		}
		out[id] = enabled
	}
	return out, rows.Err()
}

func (s *Store) SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error {
	if ruleID == "" {
		return errors.New("rule id required")
	}
	_, err := s.Pool.Exec(ctx, `
INSERT INTO rule_states(rule_id, enabled, updated_at) VALUES($1, $2, $3)
ON CONFLICT (rule_id) DO UPDATE SET enabled = EXCLUDED.enabled, updated_at = EXCLUDED.updated_at`,
		ruleID, enabled, time.Now().UTC().Unix())
	return err
}
