// Command gtdmail fetches mail from configured accounts, normalizes it
// into a local store, and classifies it with the user's category rules.
// It runs either a single sync pass (-once) or a background polling
// daemon.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/nhle/gtd-mail/internal/classify"
	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/store"
	"github.com/nhle/gtd-mail/internal/sync"
	"github.com/nhle/gtd-mail/internal/vault"

	"github.com/nhle/gtd-mail/internal/provider/gmail"
	"github.com/nhle/gtd-mail/internal/provider/outlook"
)

// defaultUserID identifies the local single-user profile. Multi-user
// keys exist so the store layout matches a hosted deployment.
const defaultUserID = "local"

func main() {
	configPath := flag.String("config", model.DefaultConfigPath(), "path to config file")
	once := flag.Bool("once", false, "run a single sync pass and exit")
	userID := flag.String("user", defaultUserID, "user profile to sync and classify for")
	flag.Parse()

	if err := run(*configPath, *userID, *once); err != nil {
		log.Fatalf("gtdmail: %v", err)
	}
}

func run(configPath, userID string, once bool) error {
	cfg, err := model.LoadConfig(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Vault.EncryptionKey == "" {
		return fmt.Errorf("no encryption key configured; set vault.encryption_key or GTDMAIL_ENCRYPTION_KEY")
	}

	db, err := store.NewSQLiteStore(cfg.Storage.DBPath)
	if err != nil {
		return fmt.Errorf("opening store: %w", err)
	}
	defer db.Close()

	blobs, err := store.NewFileBlobStore(cfg.Storage.BlobDir)
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}

	secrets := vault.NewKeyringStore(cfg.Vault.CredentialDir)
	v, err := vault.New(secrets, cfg.Vault.EncryptionKey, map[model.EmailProvider]vault.TokenRefresher{
		model.ProviderGmail:   gmail.Authenticator{},
		model.ProviderOutlook: outlook.Authenticator{},
	})
	if err != nil {
		return fmt.Errorf("opening vault: %w", err)
	}

	orchestrator := classify.New(db, blobs)
	syncer := sync.NewSyncer(db, v, orchestrator)

	accounts := accountsFromConfig(cfg, userID)
	if len(accounts) == 0 {
		return fmt.Errorf("no enabled accounts configured")
	}

	for _, account := range accounts {
		if err := db.UpsertAccount(context.Background(), account); err != nil {
			return fmt.Errorf("registering account %s: %w", account.Email, err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if once {
		return syncAll(ctx, syncer, accounts)
	}
	return poll(ctx, syncer, accounts)
}

// syncAll runs one pass over every account. The first failure is
// remembered but does not stop the remaining accounts.
func syncAll(ctx context.Context, syncer *sync.Syncer, accounts []model.EmailAccount) error {
	var firstErr error
	for _, account := range accounts {
		stats, err := syncer.SyncAccount(ctx, account)
		if err != nil {
			log.Printf("account %s (%s): sync failed: %v", account.Email, account.Provider, err)
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		log.Printf("account %s (%s): %d fetched, %d new, %d classification failures",
			account.Email, account.Provider,
			stats.TotalEmails, stats.NewEmails, stats.FailedEmails)
	}
	return firstErr
}

// poll runs the background polling loop until interrupted.
func poll(ctx context.Context, syncer *sync.Syncer, accounts []model.EmailAccount) error {
	poller := sync.NewPoller(syncer)
	for _, account := range accounts {
		poller.RegisterAccount(account)
	}

	poller.Start(ctx)
	defer poller.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case result := <-poller.Results():
			switch {
			case result.NeedsReconnect:
				log.Printf("account %s: credentials rejected; reconnect the account", result.AccountID)
			case result.Err != nil:
				log.Printf("account %s: sync failed: %v", result.AccountID, result.Err)
			default:
				log.Printf("account %s: %d fetched, %d new",
					result.AccountID, result.Stats.TotalEmails, result.Stats.NewEmails)
			}
		}
	}
}

// accountsFromConfig converts configured accounts into runtime account
// records for the given user profile.
func accountsFromConfig(cfg *model.AppConfig, userID string) []model.EmailAccount {
	var accounts []model.EmailAccount
	for _, ac := range cfg.Accounts {
		if !ac.Enabled {
			continue
		}
		accounts = append(accounts, model.EmailAccount{
			ID:          ac.ID,
			UserID:      userID,
			Provider:    model.EmailProvider(ac.Provider),
			Email:       ac.Email,
			DisplayName: ac.Name,
			Status:      model.AccountActive,
			Settings: model.EmailAccountSettings{
				SyncFrequencyMin: ac.PollIntervalSec / 60,
				MaxEmailsPerSync: ac.MaxEmailsPerSync,
			},
		})
	}
	return accounts
}
