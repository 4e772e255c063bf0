// Package rules holds the deployment's toggleable trigger→action rules and
// matches agent events against them.
package rules

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/ankittk/agentsync/pkg/models"
)

//go:embed defaults.yaml
var defaultsYAML []byte

var (
	ErrNotFound     = errors.New("rule not found")
	ErrDuplicateID  = errors.New("duplicate rule id")
	ErrDuplicateKey = errors.New("duplicate rule key")
	ErrSelfRule     = errors.New("rule source and target must differ")
	ErrUnknownAgent = errors.New("rule references unknown agent")
	ErrInvalidRule  = errors.New("invalid rule")
)

// StateStore persists per-rule enabled overrides.
type StateStore interface {
	ListRuleStates(ctx context.Context) (map[string]bool, error)
	SetRuleEnabled(ctx context.Context, ruleID string, enabled bool) error
}

// Option configures a RuleSet.
type Option func(*RuleSet)

// WithKnownAgents restricts source/target to agents for which known returns true.
func WithKnownAgents(known func(id string) bool) Option {
	return func(rs *RuleSet) { rs.known = known }
}

// WithStateStore persists toggles and lets Load restore them.
func WithStateStore(s StateStore) Option {
	return func(rs *RuleSet) { rs.states = s }
}

type triple struct{ source, target, trigger string }

// RuleSet is the validated rule table. Safe for concurrent use.
type RuleSet struct {
	mu     sync.RWMutex
	byID   map[string]*models.Rule
	byKey  map[triple]*models.Rule
	known  func(string) bool
	states StateStore
}

// New validates defs and builds a RuleSet. Rules sharing a (source, target, trigger)
// triple are rejected rather than given an arbitrary precedence.
func New(defs []models.Rule, opts ...Option) (*RuleSet, error) {
	rs := &RuleSet{
		byID:  make(map[string]*models.Rule, len(defs)),
		byKey: make(map[triple]*models.Rule, len(defs)),
	}
	for _, o := range opts {
		o(rs)
	}
	for i := range defs {
		r := defs[i]
		if err := rs.validate(r); err != nil {
			return nil, err
		}
		rs.byID[r.ID] = &r
		rs.byKey[triple{r.SourceAgent, r.TargetAgent, r.TriggerType}] = &r
	}
	return rs, nil
}

func (rs *RuleSet) validate(r models.Rule) error {
	if r.ID == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidRule)
	}
	if r.SourceAgent == "" || r.TargetAgent == "" || r.TriggerType == "" {
		return fmt.Errorf("%w: %s: source, target and trigger are required", ErrInvalidRule, r.ID)
	}
	if r.SourceAgent == r.TargetAgent {
		return fmt.Errorf("%w: %s (%s)", ErrSelfRule, r.ID, r.SourceAgent)
	}
	if !models.ValidPriority(r.Priority) {
		return fmt.Errorf("%w: %s: priority %q", ErrInvalidRule, r.ID, r.Priority)
	}
	if rs.known != nil {
		for _, a := range []string{r.SourceAgent, r.TargetAgent} {
			if !rs.known(a) {
				return fmt.Errorf("%w: %s: %s", ErrUnknownAgent, r.ID, a)
			}
		}
	}
	if _, dup := rs.byID[r.ID]; dup {
		return fmt.Errorf("%w: %s", ErrDuplicateID, r.ID)
	}
	k := triple{r.SourceAgent, r.TargetAgent, r.TriggerType}
	if other, dup := rs.byKey[k]; dup {
		return fmt.Errorf("%w: %s and %s both match %s/%s/%s", ErrDuplicateKey, other.ID, r.ID, k.source, k.target, k.trigger)
	}
	return nil
}

// Load overlays persisted enabled flags. Unknown ids in the store are ignored.
func (rs *RuleSet) Load(ctx context.Context) error {
	if rs.states == nil {
		return nil
	}
	states, err := rs.states.ListRuleStates(ctx)
	if err != nil {
		return fmt.Errorf("load rule states: %w", err)
	}
	rs.mu.Lock()
	defer rs.mu.Unlock()
	for id, enabled := range states {
		if r, ok := rs.byID[id]; ok {
			r.Enabled = enabled
		} else {
			slog.Debug("ignoring state for unknown rule", "rule_id", id)
		}
	}
	return nil
}

// Match returns the enabled rule for the exact triple.
func (rs *RuleSet) Match(source, target, trigger string) (models.Rule, bool) {
	r, ok := rs.Lookup(source, target, trigger)
	if !ok || !r.Enabled {
		return models.Rule{}, false
	}
	return r, true
}

// Lookup returns the rule for the exact triple regardless of enabled.
func (rs *RuleSet) Lookup(source, target, trigger string) (models.Rule, bool) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.byKey[triple{source, target, trigger}]
	if !ok {
		return models.Rule{}, false
	}
	return *r, true
}

// Get returns the rule with id.
func (rs *RuleSet) Get(id string) (models.Rule, error) {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	r, ok := rs.byID[id]
	if !ok {
		return models.Rule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *r, nil
}

// List returns every rule, disabled included, sorted by id.
func (rs *RuleSet) List() []models.Rule {
	rs.mu.RLock()
	defer rs.mu.RUnlock()
	out := make([]models.Rule, 0, len(rs.byID))
	for _, r := range rs.byID {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Toggle flips enabled for id.
func (rs *RuleSet) Toggle(ctx context.Context, id string) (models.Rule, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.byID[id]
	if !ok {
		return models.Rule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rs.setLocked(ctx, r, !r.Enabled)
}

// SetEnabled sets enabled for id; setting the current value still persists it.
func (rs *RuleSet) SetEnabled(ctx context.Context, id string, enabled bool) (models.Rule, error) {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	r, ok := rs.byID[id]
	if !ok {
		return models.Rule{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return rs.setLocked(ctx, r, enabled)
}

// setLocked writes the state before touching memory so a failed write leaves the rule as it was.
func (rs *RuleSet) setLocked(ctx context.Context, r *models.Rule, enabled bool) (models.Rule, error) {
	if rs.states != nil {
		if err := rs.states.SetRuleEnabled(ctx, r.ID, enabled); err != nil {
			return *r, fmt.Errorf("persist rule %s: %w", r.ID, err)
		}
	}
	r.Enabled = enabled
	slog.Info("rule toggled", "rule_id", r.ID, "enabled", enabled)
	return *r, nil
}

// Defaults returns the embedded deployment rule table.
func Defaults() ([]models.Rule, error) {
	return Parse(defaultsYAML)
}

// LoadFile reads a YAML rule list from path.
func LoadFile(path string) ([]models.Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML list of rules.
func Parse(data []byte) ([]models.Rule, error) {
	var defs []models.Rule
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse rules: %w", err)
	}
	return defs, nil
}
