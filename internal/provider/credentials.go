package provider

import (
	"time"

	"github.com/nhle/gtd-mail/internal/model"
)

// OAuthCredentials are the tokens and client secrets for an OAuth-based
// provider (Gmail, Outlook).
type OAuthCredentials struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	Scope        []string  `json:"scope"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
}

// Expired reports whether the access token has reached its expiry.
func (c OAuthCredentials) Expired(now time.Time) bool {
	return !c.ExpiresAt.After(now)
}

// IMAPCredentials are the connection settings for a raw IMAP mailbox.
type IMAPCredentials struct {
	Host     string `json:"host"`
	Port     int    `json:"port"`
	Username string `json:"username"`
	Password string `json:"password"`
	UseTLS   bool   `json:"use_tls"`
}

// Credentials is the tagged union over all provider credential kinds.
// The Provider tag determines which variant field is set and which client
// may consume it; a mismatch is rejected by Validate rather than papered
// over at use sites.
type Credentials struct {
	Provider model.EmailProvider `json:"provider"`
	OAuth    *OAuthCredentials   `json:"oauth,omitempty"`
	IMAP     *IMAPCredentials    `json:"imap,omitempty"`
}

// Validate checks that the tag and the populated variant agree.
func (c Credentials) Validate() error {
	switch c.Provider {
	case model.ProviderGmail, model.ProviderOutlook:
		if c.OAuth == nil {
			return &UnsupportedProviderError{
				Provider: c.Provider,
				Reason:   "missing OAuth credentials",
			}
		}
		if c.IMAP != nil {
			return &UnsupportedProviderError{
				Provider: c.Provider,
				Reason:   "IMAP credentials on an OAuth provider",
			}
		}
	case model.ProviderIMAP:
		if c.IMAP == nil {
			return &UnsupportedProviderError{
				Provider: c.Provider,
				Reason:   "missing IMAP credentials",
			}
		}
		if c.OAuth != nil {
			return &UnsupportedProviderError{
				Provider: c.Provider,
				Reason:   "OAuth credentials on an IMAP provider",
			}
		}
	default:
		return &UnsupportedProviderError{Provider: c.Provider}
	}
	return nil
}
