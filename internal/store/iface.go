package store

import (
	"context"

	"github.com/ankittk/agentsync/pkg/models"
)

// Store is the persistence interface for collaborations and rule enablement.
// Implementations: *sqliteStore (SQLite, default) and *postgres.Store (PostgreSQL).
type Store interface {
	// Collaborations
	CreateCollaboration(ctx context.Context, c models.Collaboration) (models.Collaboration, error)
	ListCollaborations(ctx context.Context, sortKey string, limit int) ([]models.Collaboration, error)
	FilterCollaborations(ctx context.Context, f Filter) ([]models.Collaboration, error)
	GetCollaboration(ctx context.Context, id string) (models.Collaboration, error)
	UpdateCollaboration(ctx context.Context, id string, p Patch) (models.Collaboration, error)
	DeleteCollaboration(ctx context.Context, id string) error

	// Rule enablement overrides
	ListRuleStates(ctx context.Context) (map[string]bool, error)
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error

	// Lifecycle
	Close() error
}
