package rules

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Observer is notified after every evaluation an Engine performs.
// err is nil when the evaluation produced a result.
type Observer interface {
	ObserveEvaluation(shape Shape, condition Condition, result bool, err error, elapsed time.Duration)
}

// Engine evaluates inline and stored rules for one tenant.
// Evaluation itself is stateless; the engine only owns the rule catalog and
// the cache of active rules. Safe for concurrent use.
type Engine struct {
	store    RuleStore
	cache    RulesCache
	opts     Options
	observer Observer
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithOptions sets the evaluation policy.
func WithOptions(opts Options) EngineOption {
	return func(en *Engine) { en.opts = opts }
}

// WithCache replaces the default in-memory rules cache.
func WithCache(cache RulesCache) EngineOption {
	return func(en *Engine) { en.cache = cache }
}

// WithObserver registers an evaluation observer.
func WithObserver(o Observer) EngineOption {
	return func(en *Engine) { en.observer = o }
}

// NewEngine creates a new rules engine over store and warms the active
// rules cache.
func NewEngine(ctx context.Context, store RuleStore, options ...EngineOption) (*Engine, error) {
	en := &Engine{
		store: store,
		opts:  Options{},
	}
	for _, option := range options {
		option(en)
	}
	if en.cache == nil {
		en.cache = NewInMemoryRulesCache(DefaultCacheConfig())
	}

	if _, err := en.activeRules(ctx); err != nil {
		return nil, fmt.Errorf("failed to load rules: %w", err)
	}

	return en, nil
}

// Options returns the evaluation policy of the engine.
func (en *Engine) Options() Options {
	return en.opts
}

// Validate evaluates an inline rule against data.
func (en *Engine) Validate(data any, spec Spec) (*EvaluationResult, error) {
	start := time.Now()

	payload, err := NewPayload(data)
	if err != nil {
		return nil, err
	}

	result, err := Validate(payload, spec, en.opts)

	if en.observer != nil {
		matched := result != nil && result.Result
		en.observer.ObserveEvaluation(payload.Shape(), spec.Condition, matched, err, time.Since(start))
	}

	return result, err
}

// AddRule validates and stores a new rule. A missing ID is generated.
func (en *Engine) AddRule(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}

	if r.ID == "" {
		r.ID = uuid.NewString()
	}

	if err := en.store.Add(ctx, r); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// UpdateRule validates and replaces an existing rule.
func (en *Engine) UpdateRule(ctx context.Context, r *Rule) error {
	if err := ValidateRule(r); err != nil {
		return err
	}

	if err := en.store.Update(ctx, r); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// DeleteRule removes a rule from the store.
func (en *Engine) DeleteRule(ctx context.Context, ruleID string) error {
	if err := en.store.Delete(ctx, ruleID); err != nil {
		return err
	}

	en.cache.Invalidate()
	return nil
}

// GetRule returns a stored rule.
func (en *Engine) GetRule(ctx context.Context, ruleID string) (*Rule, error) {
	return en.store.Get(ctx, ruleID)
}

// ListRules returns every stored rule, active or not.
func (en *Engine) ListRules(ctx context.Context) ([]*Rule, error) {
	return en.store.List(ctx)
}

// EvaluateRule evaluates one stored rule against data. Inactive rules are
// evaluated too; the caller asked for them by ID. The outcome carries the
// evaluated rule's Spec, read from the store once.
// The returned error is non-nil when the rule cannot be loaded or its
// evaluation failed; in the latter case the outcome carries the same error.
func (en *Engine) EvaluateRule(ctx context.Context, ruleID string, data any) (*RuleOutcome, error) {
	rule, err := en.store.Get(ctx, ruleID)
	if err != nil {
		return nil, err
	}

	outcome := en.evaluate(rule, data)
	return outcome, outcome.Error
}

// EvaluateAll evaluates every active rule against data. Each rule is
// evaluated independently and a failing rule does not stop the others.
func (en *Engine) EvaluateAll(ctx context.Context, data any) ([]*RuleOutcome, error) {
	rules, err := en.activeRules(ctx)
	if err != nil {
		return nil, err
	}

	outcomes := make([]*RuleOutcome, 0, len(rules))
	for _, rule := range rules {
		outcomes = append(outcomes, en.evaluate(rule, data))
	}

	return outcomes, nil
}

func (en *Engine) evaluate(rule *Rule, data any) *RuleOutcome {
	spec := rule.Spec()
	result, err := en.Validate(data, spec)
	return &RuleOutcome{
		RuleID:   rule.ID,
		RuleName: rule.Name,
		Spec:     spec,
		Result:   result,
		Error:    err,
	}
}

// activeRules serves the active rules from the cache, loading them from the
// store on a miss. A load that raced a mutation is returned to its caller
// but not cached.
func (en *Engine) activeRules(ctx context.Context) ([]*Rule, error) {
	rules, generation := en.cache.Snapshot()
	if rules != nil {
		return rules, nil
	}

	rules, err := en.store.ListActive(ctx)
	if err != nil {
		return nil, err
	}
	if rules == nil {
		rules = []*Rule{}
	}
	en.cache.Fill(generation, rules)
	return rules, nil
}

// IsEvaluationError reports whether err was raised while evaluating a rule,
// as opposed to a catalog or storage failure.
func IsEvaluationError(err error) bool {
	_, ok := KindOf(err)
	return ok || errors.Is(err, ErrUnsupportedPayload)
}
