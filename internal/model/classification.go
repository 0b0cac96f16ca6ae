package model

import "time"

// EmailCategory is a GTD-style bucket assigned to a message.
type EmailCategory string

const (
	CategoryActionable       EmailCategory = "ACTIONABLE"
	CategoryToRead           EmailCategory = "TO_READ"
	CategoryReference        EmailCategory = "REFERENCE"
	CategoryAwaitingResponse EmailCategory = "AWAITING_RESPONSE"
	CategoryDelegated        EmailCategory = "DELEGATED"
	CategoryScheduled        EmailCategory = "SCHEDULED"
	CategoryArchived         EmailCategory = "ARCHIVED"
	CategoryTrash            EmailCategory = "TRASH"
	CategorySpam             EmailCategory = "SPAM"
	CategoryUnclassified     EmailCategory = "UNCLASSIFIED"
)

// Priority expresses how urgently a message needs attention.
type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityMedium Priority = "MEDIUM"
	PriorityLow    Priority = "LOW"
	PriorityNone   Priority = "NONE"
)

// Rank returns the numeric weight of a priority; higher means more urgent.
// Unknown priorities rank below NONE.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 4
	case PriorityHigh:
		return 3
	case PriorityMedium:
		return 2
	case PriorityLow:
		return 1
	case PriorityNone:
		return 0
	}
	return -1
}

// ActionStatus tracks progress on an actionable message.
type ActionStatus string

const (
	ActionNotStarted ActionStatus = "NOT_STARTED"
	ActionInProgress ActionStatus = "IN_PROGRESS"
	ActionWaiting    ActionStatus = "WAITING"
	ActionCompleted  ActionStatus = "COMPLETED"
	ActionDeferred   ActionStatus = "DEFERRED"
	ActionCancelled  ActionStatus = "CANCELLED"
)

// UpdatedBy identifies who last wrote a classification record.
type UpdatedBy string

const (
	UpdatedBySystem UpdatedBy = "system"
	UpdatedByUser   UpdatedBy = "user"
)

// ClassificationMetadata is the classification state attached to one
// message for one user. Records with LastUpdatedBy set to "user" are never
// silently overwritten by an automatic pass; only an explicit user action
// or a forced re-run may replace them.
type ClassificationMetadata struct {
	Category     EmailCategory `json:"category"`
	Priority     Priority      `json:"priority"`
	ActionStatus ActionStatus  `json:"action_status"`
	Labels       []string      `json:"labels"`

	DueDate       *time.Time `json:"due_date,omitempty"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`

	// EstimatedDuration is the expected handling time in minutes.
	EstimatedDuration int `json:"estimated_duration,omitempty"`

	Project string `json:"project,omitempty"`
	Context string `json:"context,omitempty"`

	// Confidence is a score in [0,1] expressing how strongly the evidence
	// supports this classification.
	Confidence float64 `json:"confidence"`

	LastUpdated   time.Time `json:"last_updated"`
	LastUpdatedBy UpdatedBy `json:"last_updated_by"`
}

// ClassificationRecord binds one classification to its message and owner
// for persistence, together with the reasoning trail that produced it.
type ClassificationRecord struct {
	EmailID   string                 `json:"email_id"`
	UserID    string                 `json:"user_id"`
	Metadata  ClassificationMetadata `json:"metadata"`
	Reasoning []string               `json:"reasoning"`
}

// RuleField names the part of a message a condition inspects.
type RuleField string

const (
	FieldSubject     RuleField = "subject"
	FieldBody        RuleField = "body"
	FieldSender      RuleField = "sender"
	FieldRecipients  RuleField = "recipients"
	FieldDate        RuleField = "date"
	FieldAttachments RuleField = "attachments"
	FieldLabels      RuleField = "labels"
)

// RuleOperator names the comparison a condition applies.
type RuleOperator string

const (
	OpContains    RuleOperator = "contains"
	OpEquals      RuleOperator = "equals"
	OpStartsWith  RuleOperator = "startsWith"
	OpEndsWith    RuleOperator = "endsWith"
	OpRegex       RuleOperator = "regex"
	OpGreaterThan RuleOperator = "greaterThan"
	OpLessThan    RuleOperator = "lessThan"
)

// RuleCondition is a single field/operator/value test. All conditions of
// one rule must hold for the rule to match.
type RuleCondition struct {
	Field    RuleField    `json:"field"`
	Operator RuleOperator `json:"operator"`
	Value    string       `json:"value"`
}

// RuleActionType names an effect a matched rule applies.
type RuleActionType string

const (
	ActionSetCategory RuleActionType = "setCategory"
	ActionSetPriority RuleActionType = "setPriority"
	ActionAddLabel    RuleActionType = "addLabel"
	ActionRemoveLabel RuleActionType = "removeLabel"
	ActionSetDueDate  RuleActionType = "setDueDate"
	ActionSetProject  RuleActionType = "setProject"
	ActionSetContext  RuleActionType = "setContext"
)

// RuleAction is a single effect applied in declaration order when its
// rule wins.
type RuleAction struct {
	Type  RuleActionType `json:"type"`
	Value string         `json:"value"`
}

// CategoryRule is one ordered classification rule. Rules are configured
// outside the core and only read by it; IsActive=false disables a rule
// without deleting it.
type CategoryRule struct {
	// ID is the unique rule identifier. It doubles as the deterministic
	// tie-breaker when two matching rules share a priority.
	ID string `json:"id"`

	// Name is the user-facing rule label.
	Name string `json:"name"`

	// Description is an optional longer explanation.
	Description string `json:"description,omitempty"`

	// Category is the category the rule assigns when it wins.
	Category EmailCategory `json:"category"`

	// Priority is both the classification priority the rule assigns and
	// its weight when competing with other matching rules.
	Priority Priority `json:"priority"`

	Conditions []RuleCondition `json:"conditions"`
	Actions    []RuleAction    `json:"actions"`

	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ClassificationCorrection records a user replacing an automatic
// classification with their own.
type ClassificationCorrection struct {
	ID        string                 `json:"id"`
	EmailID   string                 `json:"email_id"`
	UserID    string                 `json:"user_id"`
	Original  ClassificationMetadata `json:"original"`
	Corrected ClassificationMetadata `json:"corrected"`
	Reason    string                 `json:"reason,omitempty"`
	CreatedAt time.Time              `json:"created_at"`
}

// ClassificationFeedback records a user's verdict on whether an automatic
// classification was correct.
type ClassificationFeedback struct {
	ID             string                 `json:"id"`
	EmailID        string                 `json:"email_id"`
	UserID         string                 `json:"user_id"`
	Classification ClassificationMetadata `json:"classification"`
	IsCorrect      bool                   `json:"is_correct"`
	Feedback       string                 `json:"feedback,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}

// ClassificationModel describes a classifier backend. Only the rule-based
// type is implemented; the record shape reserves room for model-based
// classifiers without committing to one.
type ClassificationModel struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Type        string    `json:"type"` // "rule-based", "ml", "hybrid"
	Status      string    `json:"status"`
	LastTrained time.Time `json:"last_trained,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}
