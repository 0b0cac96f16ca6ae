// Package rules implements the deterministic rule engine that assigns a
// GTD classification to a canonical email record.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
)

// ConfigError marks a rule whose configuration cannot be evaluated, such
// as an invalid regular expression. The rule is skipped and the error is
// recorded in the reasoning trail; classification itself never fails.
type ConfigError struct {
	RuleID string
	Reason string
	Err    error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("rule %s misconfigured: %s: %v", e.RuleID, e.Reason, e.Err)
	}
	return fmt.Sprintf("rule %s misconfigured: %s", e.RuleID, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Err }

// IsConfigError reports whether err (or any error in its chain) is a
// ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}

// Result is the outcome of classifying one email.
type Result struct {
	Metadata   model.ClassificationMetadata
	Confidence float64

	// Reasoning is the ordered, human-readable audit trail. It is never
	// empty: the no-match fallback states so explicitly.
	Reasoning []string
}

// Engine evaluates an ordered set of active category rules. It holds no
// per-message state, so one engine may classify any number of messages
// concurrently.
type Engine struct {
	rules   []model.CategoryRule
	weights map[model.RuleOperator]float64
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithWeights overrides the per-operator evidence weights of the
// confidence policy.
func WithWeights(weights map[model.RuleOperator]float64) Option {
	return func(e *Engine) { e.weights = weights }
}

// WithClock overrides the engine's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine builds an engine over the given ruleset. Inactive rules are
// dropped; the rest are ordered by descending priority, ties broken by
// ascending rule ID, so evaluation order is deterministic for identical
// input.
func NewEngine(ruleset []model.CategoryRule, opts ...Option) *Engine {
	active := make([]model.CategoryRule, 0, len(ruleset))
	for _, r := range ruleset {
		if r.IsActive {
			active = append(active, r)
		}
	}
	sort.SliceStable(active, func(i, j int) bool {
		pi, pj := active[i].Priority.Rank(), active[j].Priority.Rank()
		if pi != pj {
			return pi > pj
		}
		return active[i].ID < active[j].ID
	})

	e := &Engine{
		rules:   active,
		weights: defaultWeights(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Rules returns the active rules in evaluation order.
func (e *Engine) Rules() []model.CategoryRule { return e.rules }

// Classify evaluates every active rule against the email and applies the
// winning rule's actions. With no match it falls back to UNCLASSIFIED at
// MEDIUM priority with zero confidence. The call always produces a
// result; only rule configuration problems are noted, never fatal.
func (e *Engine) Classify(email model.EmailMetadata) Result {
	var (
		winner        *model.CategoryRule
		winnerReasons []string
		winnerConf    float64
		preamble      []string
	)

	for i := range e.rules {
		rule := &e.rules[i]

		matched, reasons, conf, err := e.evalRule(email, rule)
		if err != nil {
			preamble = append(preamble, fmt.Sprintf(
				"rule %q (%s) skipped: %v", rule.Name, rule.ID, err,
			))
			continue
		}
		if !matched {
			continue
		}

		// Rules are pre-sorted, so the first match is the winner.
		winner = rule
		winnerReasons = reasons
		winnerConf = conf
		break
	}

	if winner == nil {
		reasoning := append(preamble,
			"no rule matched; falling back to UNCLASSIFIED",
		)
		return Result{
			Metadata: model.ClassificationMetadata{
				Category:      model.CategoryUnclassified,
				Priority:      model.PriorityMedium,
				ActionStatus:  model.ActionNotStarted,
				Labels:        []string{},
				Confidence:    0,
				LastUpdated:   e.now().UTC(),
				LastUpdatedBy: model.UpdatedBySystem,
			},
			Confidence: 0,
			Reasoning:  reasoning,
		}
	}

	meta, actionReasons := e.applyActions(winner)
	meta.Confidence = winnerConf
	meta.LastUpdated = e.now().UTC()
	meta.LastUpdatedBy = model.UpdatedBySystem

	reasoning := append(preamble, winnerReasons...)
	reasoning = append(reasoning, actionReasons...)

	return Result{
		Metadata:   meta,
		Confidence: winnerConf,
		Reasoning:  reasoning,
	}
}

// evalRule tests every condition of one rule (logical AND) and computes
// the rule's confidence from the evidence weights of its conditions.
func (e *Engine) evalRule(
	email model.EmailMetadata,
	rule *model.CategoryRule,
) (matched bool, reasons []string, confidence float64, err error) {
	reasons = make([]string, 0, len(rule.Conditions))

	for _, cond := range rule.Conditions {
		ok, err := evalCondition(email, cond)
		if err != nil {
			return false, nil, 0, &ConfigError{
				RuleID: rule.ID,
				Reason: fmt.Sprintf(
					"condition %s %s %q", cond.Field, cond.Operator, cond.Value,
				),
				Err: err,
			}
		}
		if !ok {
			return false, nil, 0, nil
		}
		reasons = append(reasons, fmt.Sprintf(
			"rule %q: %s %s %q matched",
			rule.Name, cond.Field, cond.Operator, cond.Value,
		))
	}

	return true, reasons, e.confidence(rule.Conditions), nil
}

// applyActions seeds the metadata from the winning rule and applies its
// actions in declaration order.
func (e *Engine) applyActions(rule *model.CategoryRule) (model.ClassificationMetadata, []string) {
	meta := model.ClassificationMetadata{
		Category:     rule.Category,
		Priority:     rule.Priority,
		ActionStatus: model.ActionNotStarted,
		Labels:       []string{},
	}

	reasons := []string{fmt.Sprintf(
		"rule %q won: category %s, priority %s",
		rule.Name, rule.Category, rule.Priority,
	)}

	for _, action := range rule.Actions {
		switch action.Type {
		case model.ActionSetCategory:
			meta.Category = model.EmailCategory(action.Value)
			reasons = append(reasons, fmt.Sprintf("set category to %s", action.Value))

		case model.ActionSetPriority:
			meta.Priority = model.Priority(action.Value)
			reasons = append(reasons, fmt.Sprintf("set priority to %s", action.Value))

		case model.ActionAddLabel:
			if !containsString(meta.Labels, action.Value) {
				meta.Labels = append(meta.Labels, action.Value)
			}
			reasons = append(reasons, fmt.Sprintf("added label %q", action.Value))

		case model.ActionRemoveLabel:
			meta.Labels = removeString(meta.Labels, action.Value)
			reasons = append(reasons, fmt.Sprintf("removed label %q", action.Value))

		case model.ActionSetDueDate:
			if t, err := parseRuleTime(action.Value); err == nil {
				meta.DueDate = &t
				reasons = append(reasons, fmt.Sprintf(
					"set due date to %s", t.Format(time.RFC3339),
				))
			} else {
				reasons = append(reasons, fmt.Sprintf(
					"ignored unparsable due date %q", action.Value,
				))
			}

		case model.ActionSetProject:
			meta.Project = action.Value
			reasons = append(reasons, fmt.Sprintf("set project to %q", action.Value))

		case model.ActionSetContext:
			meta.Context = action.Value
			reasons = append(reasons, fmt.Sprintf("set context to %q", action.Value))

		default:
			reasons = append(reasons, fmt.Sprintf(
				"ignored unknown action %q", action.Type,
			))
		}
	}

	return meta, reasons
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func removeString(list []string, s string) []string {
	out := list[:0]
	for _, v := range list {
		if v != s {
			out = append(out, v)
		}
	}
	return out
}
