package postgres

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/ankittk/agentsync/internal/store"
	"github.com/ankittk/agentsync/pkg/models"
)

func TestOpen_skipIfNoDatabaseURL(t *testing.T) {
	dsn := os.Getenv("DATABASE_URL")
	if dsn == "" {
		t.Skip("DATABASE_URL not set, skipping postgres test")
	}
	st, err := Open(dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer func() { _ = st.Close() }()
	ctx := context.Background()

	c, err := st.CreateCollaboration(ctx, models.Collaboration{
		SourceAgent: "market_monitor", TargetAgent: "knowledge_curator",
		Context: []byte(`{"k":1}`), Priority: models.PriorityLow,
	})
	if err != nil {
		t.Fatalf("CreateCollaboration: %v", err)
	}
	t.Cleanup(func() { _ = st.DeleteCollaboration(context.Background(), c.ID) })

	if _, err := st.UpdateCollaboration(ctx, c.ID, store.StatusPatch(models.StatusFailed)); err != nil {
		t.Fatalf("UpdateCollaboration: %v", err)
	}
	_, err = st.UpdateCollaboration(ctx, c.ID, store.StatusPatch(models.StatusCompleted))
	if !errors.Is(err, store.ErrTerminal) {
		t.Fatalf("update terminal: got %v, want ErrTerminal", err)
	}
	if err := st.SetRuleEnabled(ctx, "pg-test-rule", false); err != nil {
		t.Fatalf("SetRuleEnabled: %v", err)
	}
	states, err := st.ListRuleStates(ctx)
	if err != nil {
		t.Fatalf("ListRuleStates: %v", err)
	}
	if enabled, ok := states["pg-test-rule"]; !ok || enabled {
		t.Fatalf("rule state: got %v, %v", enabled, ok)
	}
}
