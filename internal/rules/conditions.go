package rules

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
)

// stringProjectors maps each textual rule field to its projection of the
// canonical record. Keeping the dispatch in a table (rather than nested
// branching) makes each projector and comparator testable on its own.
var stringProjectors = map[model.RuleField]func(*model.EmailMetadata) string{
	model.FieldSubject: func(m *model.EmailMetadata) string {
		return m.Subject
	},
	model.FieldBody: func(m *model.EmailMetadata) string {
		if m.PreviewText != "" {
			return m.PreviewText
		}
		return m.Snippet
	},
	model.FieldSender: func(m *model.EmailMetadata) string {
		if m.Sender.Name == "" {
			return m.Sender.Email
		}
		return m.Sender.Name + " " + m.Sender.Email
	},
	model.FieldRecipients: func(m *model.EmailMetadata) string {
		var parts []string
		for _, lists := range [][]model.EmailAddress{
			m.Recipients.To, m.Recipients.CC, m.Recipients.BCC,
		} {
			for _, a := range lists {
				parts = append(parts, a.Email)
			}
		}
		return strings.Join(parts, " ")
	},
	model.FieldLabels: func(m *model.EmailMetadata) string {
		return strings.Join(m.Labels, " ")
	},
}

// stringComparators maps each textual operator to its case-sensitive
// comparison.
var stringComparators = map[model.RuleOperator]func(projected, value string) bool{
	model.OpContains:   strings.Contains,
	model.OpEquals:     func(p, v string) bool { return p == v },
	model.OpStartsWith: strings.HasPrefix,
	model.OpEndsWith:   strings.HasSuffix,
}

// evalCondition applies one condition to the email. The returned error
// is always a configuration problem (bad regex, bad operand, operator
// not meaningful for the field), never a property of the message.
func evalCondition(email model.EmailMetadata, cond model.RuleCondition) (bool, error) {
	switch cond.Field {
	case model.FieldDate:
		return evalDate(email.Date, cond)
	case model.FieldAttachments:
		return evalAttachments(&email, cond)
	}

	project, ok := stringProjectors[cond.Field]
	if !ok {
		return false, fmt.Errorf("unknown field %q", cond.Field)
	}
	projected := project(&email)

	// Label membership: contains/equals test the set, not the joined
	// string.
	if cond.Field == model.FieldLabels &&
		(cond.Operator == model.OpContains || cond.Operator == model.OpEquals) {
		return email.HasLabel(cond.Value), nil
	}

	switch cond.Operator {
	case model.OpRegex:
		re, err := regexp.Compile(cond.Value)
		if err != nil {
			return false, fmt.Errorf("invalid regex: %w", err)
		}
		return re.MatchString(projected), nil

	case model.OpGreaterThan, model.OpLessThan:
		return false, fmt.Errorf(
			"operator %s is only meaningful for date and attachments",
			cond.Operator,
		)
	}

	compare, ok := stringComparators[cond.Operator]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
	return compare(projected, cond.Value), nil
}

// evalDate compares the message date chronologically. String operators
// fall back to the RFC 3339 projection of the date.
func evalDate(date time.Time, cond model.RuleCondition) (bool, error) {
	switch cond.Operator {
	case model.OpGreaterThan, model.OpLessThan, model.OpEquals:
		t, err := parseRuleTime(cond.Value)
		if err != nil {
			return false, fmt.Errorf("invalid date operand: %w", err)
		}
		switch cond.Operator {
		case model.OpGreaterThan:
			return date.After(t), nil
		case model.OpLessThan:
			return date.Before(t), nil
		default:
			return date.Equal(t), nil
		}

	case model.OpRegex:
		re, err := regexp.Compile(cond.Value)
		if err != nil {
			return false, fmt.Errorf("invalid regex: %w", err)
		}
		return re.MatchString(date.Format(time.RFC3339)), nil
	}

	compare, ok := stringComparators[cond.Operator]
	if !ok {
		return false, fmt.Errorf("unknown operator %q", cond.Operator)
	}
	return compare(date.Format(time.RFC3339), cond.Value), nil
}

// evalAttachments compares the attachment count. The canonical record
// tracks presence, not an exact count, so the projection is 0 or 1.
func evalAttachments(email *model.EmailMetadata, cond model.RuleCondition) (bool, error) {
	count := 0
	if email.HasAttachments {
		count = 1
	}

	n, err := strconv.Atoi(cond.Value)
	if err != nil {
		return false, fmt.Errorf("invalid attachment count operand: %w", err)
	}

	switch cond.Operator {
	case model.OpGreaterThan:
		return count > n, nil
	case model.OpLessThan:
		return count < n, nil
	case model.OpEquals:
		return count == n, nil
	}
	return false, fmt.Errorf(
		"operator %s is not meaningful for attachments", cond.Operator,
	)
}

// parseRuleTime accepts RFC 3339 timestamps and bare dates as rule
// operands.
func parseRuleTime(value string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, value); err == nil {
		return t, nil
	}
	t, err := time.Parse("2006-01-02", value)
	if err != nil {
		return time.Time{}, fmt.Errorf("parsing %q: %w", value, err)
	}
	return t, nil
}
