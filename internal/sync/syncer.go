// Package sync runs the fetch-and-classify pipeline for configured mail
// accounts, either as a single pass or as a background polling loop.
package sync

import (
	"context"
	"fmt"
	"time"

	"github.com/nhle/gtd-mail/internal/classify"
	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
	"github.com/nhle/gtd-mail/internal/provider/gmail"
	"github.com/nhle/gtd-mail/internal/provider/imap"
	"github.com/nhle/gtd-mail/internal/provider/outlook"
	"github.com/nhle/gtd-mail/internal/store"
)

// fetchTimeout is the maximum time allowed for a single fetch operation.
const fetchTimeout = 30 * time.Second

// credentialSource resolves and refreshes account credentials. Satisfied
// by *vault.Vault.
type credentialSource interface {
	Resolve(ctx context.Context, accountID string) (provider.Credentials, error)
	RefreshIfExpired(ctx context.Context, accountID string, creds provider.Credentials) (provider.Credentials, error)
}

// classifier runs batch classification. Satisfied by
// *classify.Orchestrator.
type classifier interface {
	ClassifyBatch(ctx context.Context, emails []model.EmailMetadata, userID string, force bool) (classify.BatchResult, error)
}

// clientFactory builds a provider client for one account. Overridable in
// tests.
type clientFactory func(ctx context.Context, account model.EmailAccount, creds provider.Credentials) (provider.Client, error)

// newProviderClient is the production client factory: it picks the
// client variant from the account's provider tag.
func newProviderClient(
	ctx context.Context,
	account model.EmailAccount,
	creds provider.Credentials,
) (provider.Client, error) {
	switch account.Provider {
	case model.ProviderGmail:
		return gmail.NewClient(ctx, account.ID, creds)
	case model.ProviderOutlook:
		return outlook.NewClient(account.ID, creds, "")
	case model.ProviderIMAP:
		return imap.NewClient(account.ID, creds)
	default:
		return nil, &provider.UnsupportedProviderError{
			Provider: account.Provider,
			Reason:   "no client for this provider",
		}
	}
}

// Syncer performs one fetch-and-classify pass per account.
type Syncer struct {
	store      store.Store
	creds      credentialSource
	classifier classifier
	newClient  clientFactory
}

// NewSyncer creates a Syncer over the given collaborators.
func NewSyncer(s store.Store, creds credentialSource, c classifier) *Syncer {
	return &Syncer{
		store:      s,
		creds:      creds,
		classifier: c,
		newClient:  newProviderClient,
	}
}

// SyncAccount fetches the newest messages for one account, stores them,
// and classifies the batch. Account status and sync state are updated as
// a side effect: rejected credentials flag the account disconnected so
// it is not retried until the user reconnects it.
func (s *Syncer) SyncAccount(ctx context.Context, account model.EmailAccount) (model.SyncStats, error) {
	if err := s.store.UpdateSyncState(ctx, account.ID, model.SyncInProgress, ""); err != nil {
		return model.SyncStats{}, err
	}

	stats, err := s.syncOnce(ctx, account)
	if err != nil {
		s.recordFailure(ctx, account, err)
		return stats, err
	}

	if err := s.store.UpdateSyncState(ctx, account.ID, model.SyncIdle, ""); err != nil {
		return stats, err
	}
	if account.Status != model.AccountActive {
		if err := s.store.UpdateAccountStatus(ctx, account.ID, model.AccountActive); err != nil {
			return stats, err
		}
	}
	return stats, nil
}

// syncOnce is the body of one pass: resolve credentials, fetch, upsert,
// classify.
func (s *Syncer) syncOnce(ctx context.Context, account model.EmailAccount) (model.SyncStats, error) {
	creds, err := s.creds.Resolve(ctx, account.ID)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("resolving credentials: %w", err)
	}
	creds, err = s.creds.RefreshIfExpired(ctx, account.ID, creds)
	if err != nil {
		return model.SyncStats{}, fmt.Errorf("refreshing credentials: %w", err)
	}

	client, err := s.newClient(ctx, account, creds)
	if err != nil {
		return model.SyncStats{}, err
	}

	maxEmails := account.Settings.MaxEmailsPerSync
	if maxEmails <= 0 {
		maxEmails = provider.DefaultMaxResults
	}

	fetchCtx, cancel := context.WithTimeout(ctx, fetchTimeout)
	defer cancel()

	emails, err := client.FetchEmails(fetchCtx, maxEmails)
	if err != nil {
		return model.SyncStats{}, err
	}

	stats := model.SyncStats{TotalEmails: len(emails)}
	if len(emails) == 0 {
		return stats, nil
	}

	newIDs, err := s.countNew(ctx, account, emails)
	if err != nil {
		return stats, err
	}
	stats.NewEmails = newIDs
	stats.UpdatedEmails = len(emails) - newIDs

	if err := s.store.UpsertEmails(ctx, account.UserID, emails); err != nil {
		return stats, fmt.Errorf("storing emails: %w", err)
	}

	batch, err := s.classifier.ClassifyBatch(ctx, emails, account.UserID, false)
	if err != nil {
		return stats, fmt.Errorf("classifying batch: %w", err)
	}
	stats.FailedEmails = batch.Failed

	return stats, nil
}

// countNew reports how many of the fetched messages are not in the store
// yet.
func (s *Syncer) countNew(
	ctx context.Context,
	account model.EmailAccount,
	emails []model.EmailMetadata,
) (int, error) {
	existing, err := s.store.GetEmails(ctx, account.UserID, store.EmailFilter{
		AccountID: &account.ID,
		Limit:     1000,
	})
	if err != nil {
		return 0, fmt.Errorf("listing existing emails: %w", err)
	}

	existingIDs := make(map[string]bool, len(existing))
	for _, m := range existing {
		existingIDs[m.ID] = true
	}

	n := 0
	for _, m := range emails {
		if !existingIDs[m.ID] {
			n++
		}
	}
	return n, nil
}

// recordFailure stores the failure on the account. Credentials the
// provider rejected outright disconnect the account; everything else
// marks it errored but eligible for the next poll.
func (s *Syncer) recordFailure(ctx context.Context, account model.EmailAccount, syncErr error) {
	// Best effort: the original error is what the caller sees.
	_ = s.store.UpdateSyncState(ctx, account.ID, model.SyncError, syncErr.Error())

	switch {
	case provider.NeedsReconnect(syncErr):
		_ = s.store.UpdateAccountStatus(ctx, account.ID, model.AccountDisconnected)
	case provider.IsAuthError(syncErr):
		_ = s.store.UpdateAccountStatus(ctx, account.ID, model.AccountError)
	}
}
