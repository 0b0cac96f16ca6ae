package rules

import "github.com/nhle/gtd-mail/internal/model"

// Confidence policy: each condition contributes evidence weighted by how
// unambiguous its operator is; an exact equality is stronger evidence
// than a substring or regex hit. The weights combine as accumulated
// evidence,
//
//	confidence = 1 - Π(1 - w_i)
//
// which keeps the score in [0,1], makes it reproducible for identical
// input, and guarantees that adding a condition never lowers it.

// unconditionalConfidence is the score of a matching rule that has no
// conditions at all (a catch-all).
const unconditionalConfidence = 0.5

func defaultWeights() map[model.RuleOperator]float64 {
	return map[model.RuleOperator]float64{
		model.OpEquals:      1.0,
		model.OpStartsWith:  0.85,
		model.OpEndsWith:    0.85,
		model.OpGreaterThan: 0.8,
		model.OpLessThan:    0.8,
		model.OpContains:    0.7,
		model.OpRegex:       0.6,
	}
}

// confidence scores a matched rule from its conditions.
func (e *Engine) confidence(conditions []model.RuleCondition) float64 {
	if len(conditions) == 0 {
		return unconditionalConfidence
	}

	remaining := 1.0
	for _, cond := range conditions {
		w, ok := e.weights[cond.Operator]
		if !ok {
			w = 0.5
		}
		remaining *= 1 - w
	}

	conf := 1 - remaining
	if conf < 0 {
		conf = 0
	}
	if conf > 1 {
		conf = 1
	}
	return conf
}
