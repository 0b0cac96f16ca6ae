// Package provider defines the contract every mail provider client
// implements and the credential and error types shared by the Gmail,
// Outlook and IMAP variants.
package provider

import (
	"context"

	"github.com/nhle/gtd-mail/internal/model"
)

// DefaultMaxResults bounds a fetch batch when the caller passes a
// non-positive limit.
const DefaultMaxResults = 50

// Client is the capability every provider variant implements. A fetch is
// read-only and idempotent with respect to provider state: no message is
// marked read or otherwise modified as a side effect.
type Client interface {
	// Provider returns the variant tag.
	Provider() model.EmailProvider

	// FetchEmails retrieves up to maxResults messages as canonical
	// records, best-effort ordered newest first. A single malformed
	// message never fails the batch; it is skipped and counted in the
	// returned FetchStats.
	FetchEmails(ctx context.Context, maxResults int) ([]model.EmailMetadata, error)
}

// StatsReporter is implemented by clients that track per-batch skip
// counts alongside their results.
type StatsReporter interface {
	// LastFetchStats returns counters for the most recent FetchEmails
	// call on this client.
	LastFetchStats() FetchStats
}

// FetchStats counts the outcome of one fetch batch.
type FetchStats struct {
	// Listed is how many messages the provider reported.
	Listed int

	// Fetched is how many canonical records were produced.
	Fetched int

	// Skipped is how many messages failed to parse and were dropped.
	Skipped int
}

// NormalizeMax clamps a caller-supplied batch bound to a usable value.
func NormalizeMax(maxResults int) int {
	if maxResults <= 0 {
		return DefaultMaxResults
	}
	return maxResults
}
