// Package vault manages provider credentials: encrypted at rest,
// decrypted only for the duration of one operation, with OAuth token
// refresh serialized per account.
package vault

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// TokenRefresher exchanges a refresh token for fresh OAuth credentials
// against one provider's token endpoint.
type TokenRefresher interface {
	Refresh(
		ctx context.Context,
		creds provider.OAuthCredentials,
	) (provider.OAuthCredentials, error)
}

// Vault resolves, refreshes and persists per-account credentials.
// Decrypted credentials are returned by value and re-derived from the
// encrypted store on every operation; nothing is cached in memory.
type Vault struct {
	store      SecretStore
	box        *cipherBox
	refreshers map[model.EmailProvider]TokenRefresher
	now        func() time.Time

	mu           sync.Mutex
	accountLocks map[string]*sync.Mutex
}

// New builds a vault over the given secret store. encryptionKey is the
// base64-encoded 32-byte AES key protecting stored blobs.
func New(
	store SecretStore,
	encryptionKey string,
	refreshers map[model.EmailProvider]TokenRefresher,
) (*Vault, error) {
	box, err := newCipherBox(encryptionKey)
	if err != nil {
		return nil, err
	}
	if refreshers == nil {
		refreshers = map[model.EmailProvider]TokenRefresher{}
	}
	return &Vault{
		store:        store,
		box:          box,
		refreshers:   refreshers,
		now:          time.Now,
		accountLocks: make(map[string]*sync.Mutex),
	}, nil
}

// Resolve decrypts and returns the current credentials for an account.
func (v *Vault) Resolve(
	ctx context.Context,
	accountID string,
) (provider.Credentials, error) {
	if err := ctx.Err(); err != nil {
		return provider.Credentials{}, err
	}

	blob, err := v.store.Get(accountID)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf(
			"resolving credentials for account %s: %w", accountID, err,
		)
	}

	plaintext, err := v.box.open(blob)
	if err != nil {
		return provider.Credentials{}, fmt.Errorf(
			"resolving credentials for account %s: %w", accountID, err,
		)
	}

	var creds provider.Credentials
	if err := json.Unmarshal(plaintext, &creds); err != nil {
		return provider.Credentials{}, fmt.Errorf(
			"unmarshaling credentials for account %s: %w", accountID, err,
		)
	}
	if err := creds.Validate(); err != nil {
		return provider.Credentials{}, err
	}
	return creds, nil
}

// Store encrypts and persists credentials for an account.
func (v *Vault) Store(
	ctx context.Context,
	accountID string,
	creds provider.Credentials,
) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := creds.Validate(); err != nil {
		return err
	}

	plaintext, err := json.Marshal(creds)
	if err != nil {
		return fmt.Errorf("marshaling credentials: %w", err)
	}
	blob, err := v.box.seal(plaintext)
	if err != nil {
		return err
	}
	if err := v.store.Set(accountID, blob); err != nil {
		return fmt.Errorf(
			"storing credentials for account %s: %w", accountID, err,
		)
	}
	return nil
}

// Delete removes an account's credentials from the store.
func (v *Vault) Delete(ctx context.Context, accountID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return v.store.Delete(accountID)
}

// RefreshIfExpired returns usable credentials for a fetch. IMAP
// credentials pass through untouched. For OAuth variants whose access
// token has expired, the refresh token is exchanged for a new one; the
// rotated credentials are persisted back to the encrypted store before
// they are returned, so a crash after the exchange cannot lose them.
//
// Refresh is a per-account critical section: concurrent callers on the
// same expiring token take one lock, and whoever loses the race finds
// the token already fresh and skips the second exchange.
func (v *Vault) RefreshIfExpired(
	ctx context.Context,
	accountID string,
	creds provider.Credentials,
) (provider.Credentials, error) {
	if creds.Provider == model.ProviderIMAP {
		return creds, nil
	}
	if creds.OAuth == nil {
		return provider.Credentials{}, &provider.UnsupportedProviderError{
			Provider: creds.Provider,
			Reason:   "missing OAuth credentials",
		}
	}
	if !creds.OAuth.Expired(v.now()) {
		return creds, nil
	}

	lock := v.lockFor(accountID)
	lock.Lock()
	defer lock.Unlock()

	// Re-read under the lock: another caller may have refreshed while
	// we waited.
	current, err := v.Resolve(ctx, accountID)
	if err == nil && current.OAuth != nil && !current.OAuth.Expired(v.now()) {
		return current, nil
	}
	if err == nil && current.OAuth != nil {
		creds = current
	}

	refresher, ok := v.refreshers[creds.Provider]
	if !ok {
		return provider.Credentials{}, &provider.UnsupportedProviderError{
			Provider: creds.Provider,
			Reason:   "no token refresher registered",
		}
	}

	fresh, err := refresher.Refresh(ctx, *creds.OAuth)
	if err != nil {
		return provider.Credentials{}, err
	}

	next := provider.Credentials{
		Provider: creds.Provider,
		OAuth:    &fresh,
	}
	// Persist before returning: the rotated refresh token must survive
	// a crash between exchange and use.
	if err := v.Store(ctx, accountID, next); err != nil {
		return provider.Credentials{}, err
	}
	return next, nil
}

func (v *Vault) lockFor(accountID string) *sync.Mutex {
	v.mu.Lock()
	defer v.mu.Unlock()
	lock, ok := v.accountLocks[accountID]
	if !ok {
		lock = &sync.Mutex{}
		v.accountLocks[accountID] = lock
	}
	return lock
}
