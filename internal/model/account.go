package model

import "time"

// AccountStatus is the connection state of a configured mail account.
type AccountStatus string

const (
	AccountActive       AccountStatus = "active"
	AccountError        AccountStatus = "error"
	AccountDisconnected AccountStatus = "disconnected"
)

// EmailAccount is a configured connection to one remote mailbox.
// Credentials are not stored here; they live in the encrypted vault,
// keyed by the account ID.
type EmailAccount struct {
	// ID is the internal unique identifier for this account.
	ID string `json:"id"`

	// UserID is the owner of the account.
	UserID string `json:"user_id"`

	// Provider identifies which client variant serves this account.
	Provider EmailProvider `json:"provider"`

	// Email is the mailbox address.
	Email string `json:"email"`

	// DisplayName is the user-facing label for the account.
	DisplayName string `json:"display_name"`

	// IsPrimary marks the user's main account.
	IsPrimary bool `json:"is_primary"`

	// Status tracks whether the account is usable. An account whose
	// credentials were rejected is flagged disconnected rather than
	// retried.
	Status AccountStatus `json:"status"`

	// LastError holds the most recent sync failure, if any.
	LastError string `json:"last_error,omitempty"`

	// LastSyncAt is when the account last completed a fetch.
	LastSyncAt time.Time `json:"last_sync_at,omitempty"`

	Settings EmailAccountSettings `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EmailAccountSettings controls how an account is synced.
type EmailAccountSettings struct {
	// SyncFrequencyMin is the polling interval in minutes.
	SyncFrequencyMin int `json:"sync_frequency_min"`

	// MaxEmailsPerSync bounds one fetch batch.
	MaxEmailsPerSync int `json:"max_emails_per_sync"`

	// FoldersToSync lists provider folders to include. Empty means the
	// provider default (INBOX).
	FoldersToSync []string `json:"folders_to_sync,omitempty"`

	// ExcludePatterns lists sender/subject patterns to skip.
	ExcludePatterns []string `json:"exclude_patterns,omitempty"`

	// RetentionDays is how long fetched metadata is kept.
	RetentionDays int `json:"retention_days"`
}

// SyncState is the lifecycle state of one account's sync.
type SyncState string

const (
	SyncIdle       SyncState = "idle"
	SyncInProgress SyncState = "in_progress"
	SyncError      SyncState = "error"
)

// SyncStats summarizes one completed sync pass.
type SyncStats struct {
	TotalEmails   int `json:"total_emails"`
	NewEmails     int `json:"new_emails"`
	UpdatedEmails int `json:"updated_emails"`
	FailedEmails  int `json:"failed_emails"`
}

// EmailSyncStatus reports the current sync condition of one account.
type EmailSyncStatus struct {
	AccountID  string    `json:"account_id"`
	State      SyncState `json:"state"`
	LastSyncAt time.Time `json:"last_sync_at"`
	Error      string    `json:"error,omitempty"`
	Stats      SyncStats `json:"stats"`
}
