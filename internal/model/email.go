package model

import "time"

// EmailProvider identifies the remote mail service an account lives on.
type EmailProvider string

const (
	ProviderGmail   EmailProvider = "GMAIL"
	ProviderOutlook EmailProvider = "OUTLOOK"
	ProviderIMAP    EmailProvider = "IMAP"
)

// SnippetLength is the maximum length of the snippet preview stored on a
// canonical email record.
const SnippetLength = 200

// EmailAddress is a mailbox with an optional display name. It is a plain
// value type with no identity of its own.
type EmailAddress struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// EmailRecipients groups the ordered recipient lists of a message.
type EmailRecipients struct {
	To  []EmailAddress `json:"to"`
	CC  []EmailAddress `json:"cc,omitempty"`
	BCC []EmailAddress `json:"bcc,omitempty"`
}

// EmailMetadata is the canonical message record every provider is
// normalized into. It is created on fetch and never mutated afterwards;
// classification state is stored separately, keyed by email and user.
type EmailMetadata struct {
	// ID is the provider-scoped message identifier.
	ID string `json:"id"`

	// AccountID is the identifier of the configured account instance
	// the message was fetched through.
	AccountID string `json:"account_id"`

	// ProviderID is the message's identifier within its provider.
	ProviderID string `json:"provider_id"`

	// ThreadID is the provider's conversation identifier, if any.
	ThreadID string `json:"thread_id"`

	// Subject is the decoded subject line.
	Subject string `json:"subject"`

	// Sender is the parsed From address.
	Sender EmailAddress `json:"sender"`

	// Recipients holds the parsed To/Cc/Bcc lists.
	Recipients EmailRecipients `json:"recipients"`

	// Date is the message date from its headers. Never zero: providers
	// that omit it get the fetch time instead.
	Date time.Time `json:"date"`

	// ReceivedAt is when the message arrived at the mailbox. Never zero.
	ReceivedAt time.Time `json:"received_at"`

	// Size is the message size in bytes as reported by the provider.
	Size int64 `json:"size"`

	// Labels holds provider labels, folders or categories.
	Labels []string `json:"labels"`

	IsRead         bool `json:"is_read"`
	IsStarred      bool `json:"is_starred"`
	IsDraft        bool `json:"is_draft"`
	IsSent         bool `json:"is_sent"`
	IsTrash        bool `json:"is_trash"`
	IsSpam         bool `json:"is_spam"`
	HasAttachments bool `json:"has_attachments"`

	// Snippet is a short preview of the body, at most SnippetLength runes.
	Snippet string `json:"snippet"`

	// PreviewText is the full decoded body text, best effort. Empty when
	// the body could not be decoded.
	PreviewText string `json:"preview_text"`
}

// Truncate shortens s to at most SnippetLength runes for use as a snippet.
func Truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= SnippetLength {
		return s
	}
	return string(runes[:SnippetLength])
}

// HasLabel reports whether the message carries the given label.
func (m *EmailMetadata) HasLabel(label string) bool {
	for _, l := range m.Labels {
		if l == label {
			return true
		}
	}
	return false
}
