package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/nhle/gtd-mail/internal/model"
)

// UpsertAccount inserts or replaces an email account record.
// If the account has no ID, a new UUID is generated.
func (s *SQLiteStore) UpsertAccount(ctx context.Context, account model.EmailAccount) error {
	if account.ID == "" {
		account.ID = uuid.New().String()
	}

	settings, err := json.Marshal(account.Settings)
	if err != nil {
		return fmt.Errorf("marshaling settings for account %s: %w", account.ID, err)
	}

	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO accounts (
			id, user_id, provider, email_address, display_name, is_primary,
			status, sync_state, last_error, last_sync_at, settings,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		account.ID, account.UserID, string(account.Provider),
		account.Email, account.DisplayName, boolToInt(account.IsPrimary),
		string(account.Status), string(model.SyncIdle), account.LastError,
		nullTime(&account.LastSyncAt), string(settings),
		createdAt.UTC(), time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting account %s: %w", account.ID, err)
	}
	return nil
}

// GetAccounts retrieves all accounts belonging to one user.
func (s *SQLiteStore) GetAccounts(ctx context.Context, userID string) ([]model.EmailAccount, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM accounts WHERE user_id = ? ORDER BY created_at ASC",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	var accounts []model.EmailAccount
	for rows.Next() {
		a, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, a)
	}

	return accounts, rows.Err()
}

// GetAccountByID retrieves a single account by its ID.
func (s *SQLiteStore) GetAccountByID(ctx context.Context, accountID string) (*model.EmailAccount, error) {
	rows, err := s.db.QueryxContext(ctx, "SELECT * FROM accounts WHERE id = ?", accountID)
	if err != nil {
		return nil, fmt.Errorf("querying account %s: %w", accountID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying account %s: %w", accountID, err)
		}
		return nil, ErrNotFound
	}

	a, err := scanAccount(rows)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// UpdateAccountStatus sets the connection status of one account. The
// last error is cleared when the account returns to active.
func (s *SQLiteStore) UpdateAccountStatus(
	ctx context.Context,
	accountID string,
	status model.AccountStatus,
) error {
	query := "UPDATE accounts SET status = ?, updated_at = ? WHERE id = ?"
	if status == model.AccountActive {
		query = "UPDATE accounts SET status = ?, last_error = '', updated_at = ? WHERE id = ?"
	}
	res, err := s.db.ExecContext(ctx, query, string(status), time.Now().UTC(), accountID)
	if err != nil {
		return fmt.Errorf("updating status for account %s: %w", accountID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

// UpdateSyncState records the sync lifecycle state of one account and
// stamps last_sync_at when a pass returns to idle. lastError replaces
// the stored error message, so a clean pass clears it.
func (s *SQLiteStore) UpdateSyncState(
	ctx context.Context,
	accountID string,
	state model.SyncState,
	lastError string,
) error {
	now := time.Now().UTC()

	var err error
	if state == model.SyncIdle {
		_, err = s.db.ExecContext(ctx,
			"UPDATE accounts SET sync_state = ?, last_error = ?, last_sync_at = ?, updated_at = ? WHERE id = ?",
			string(state), lastError, now, now, accountID,
		)
	} else {
		_, err = s.db.ExecContext(ctx,
			"UPDATE accounts SET sync_state = ?, last_error = ?, updated_at = ? WHERE id = ?",
			string(state), lastError, now, accountID,
		)
	}
	if err != nil {
		return fmt.Errorf("updating sync state for account %s: %w", accountID, err)
	}
	return nil
}

// scanAccount scans an account row. Column order follows the accounts
// table definition.
func scanAccount(rows *sqlx.Rows) (model.EmailAccount, error) {
	var (
		a          model.EmailAccount
		provider   string
		isPrimary  int
		status     string
		syncState  string
		lastSyncAt sql.NullTime
		settings   string
	)

	err := rows.Scan(
		&a.ID, &a.UserID, &provider, &a.Email, &a.DisplayName, &isPrimary,
		&status, &syncState, &a.LastError, &lastSyncAt, &settings,
		&a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		return model.EmailAccount{}, fmt.Errorf("scanning account row: %w", err)
	}

	a.Provider = model.EmailProvider(provider)
	a.IsPrimary = isPrimary != 0
	a.Status = model.AccountStatus(status)
	if lastSyncAt.Valid {
		a.LastSyncAt = lastSyncAt.Time
	}

	if settings != "" {
		if err := json.Unmarshal([]byte(settings), &a.Settings); err != nil {
			return model.EmailAccount{}, fmt.Errorf("unmarshaling account settings: %w", err)
		}
	}

	return a, nil
}
