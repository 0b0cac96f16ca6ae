package store

import (
	"context"

	"github.com/nhle/gtd-mail/internal/model"
)

// EmailFilter controls filtering, sorting, and pagination for email queries.
type EmailFilter struct {
	AccountID *string
	IsRead    *bool
	Query     *string // search subject + sender
	SortBy    string  // "received_at", "date", "sender_email", "subject"
	SortDesc  bool
	Limit     int
	Offset    int
}

// ClassificationFilter controls filtering for classification queries.
type ClassificationFilter struct {
	Category     *string
	Priority     *string
	ActionStatus *string
	UpdatedBy    *string // "system" or "user"
	Limit        int
	Offset       int
}

// Store defines the persistence interface for emails, classifications,
// category rules, accounts, and classification feedback.
type Store interface {
	// === Emails ===

	UpsertEmails(ctx context.Context, userID string, emails []model.EmailMetadata) error
	GetEmails(ctx context.Context, userID string, filter EmailFilter) ([]model.EmailMetadata, error)
	GetEmailByID(ctx context.Context, userID, emailID string) (*model.EmailMetadata, error)

	// === Classifications ===

	UpsertClassification(ctx context.Context, rec model.ClassificationRecord) error
	GetClassification(ctx context.Context, userID, emailID string) (*model.ClassificationRecord, error)
	GetClassifications(ctx context.Context, userID string, filter ClassificationFilter) ([]model.ClassificationRecord, error)

	// === Category rules ===

	UpsertRule(ctx context.Context, userID string, rule model.CategoryRule) error
	GetRules(ctx context.Context, userID string) ([]model.CategoryRule, error)
	DeleteRule(ctx context.Context, userID, ruleID string) error

	// === Accounts ===

	UpsertAccount(ctx context.Context, account model.EmailAccount) error
	GetAccounts(ctx context.Context, userID string) ([]model.EmailAccount, error)
	GetAccountByID(ctx context.Context, accountID string) (*model.EmailAccount, error)
	UpdateAccountStatus(ctx context.Context, accountID string, status model.AccountStatus) error
	UpdateSyncState(ctx context.Context, accountID string, state model.SyncState, lastError string) error

	// === Corrections and feedback ===

	RecordCorrection(ctx context.Context, c model.ClassificationCorrection) error
	GetCorrections(ctx context.Context, userID, emailID string) ([]model.ClassificationCorrection, error)
	RecordFeedback(ctx context.Context, f model.ClassificationFeedback) error

	Close() error
}

// BlobStore persists classification backup documents outside the
// relational store, keyed by user and email.
type BlobStore interface {
	PutClassification(ctx context.Context, userID, emailID string, data []byte) error
	GetClassification(ctx context.Context, userID, emailID string) ([]byte, error)
}
