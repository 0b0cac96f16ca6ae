package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	"github.com/nhle/gtd-mail/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("store: not found")

// SQLiteStore implements the Store interface using a local SQLite database.
type SQLiteStore struct {
	db *sqlx.DB
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath,
// enables WAL mode, and runs any pending schema migrations.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	db, err := sqlx.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}

	// Enable WAL mode for better concurrent read performance.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	// Enable foreign keys.
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling foreign keys: %w", err)
	}

	s := &SQLiteStore{db: db}
	if err := s.runMigrations(); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return s, nil
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// runMigrations checks the current schema version and applies any
// outstanding migrations in order.
func (s *SQLiteStore) runMigrations() error {
	currentVersion := 0

	// Check if schema_version table exists.
	var tableCount int
	err := s.db.Get(
		&tableCount,
		"SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name='schema_version'",
	)
	if err != nil {
		return fmt.Errorf("checking schema_version table: %w", err)
	}

	if tableCount > 0 {
		err = s.db.Get(&currentVersion, "SELECT COALESCE(MAX(version), 0) FROM schema_version")
		if err != nil {
			return fmt.Errorf("reading schema version: %w", err)
		}
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := s.db.Exec(m.sql); err != nil {
			return fmt.Errorf("applying migration v%d: %w", m.version, err)
		}
	}

	return nil
}

// UpsertEmails inserts or replaces a batch of canonical email records
// for one user. Records are keyed (email_id, user_id).
func (s *SQLiteStore) UpsertEmails(
	ctx context.Context,
	userID string,
	emails []model.EmailMetadata,
) error {
	if len(emails) == 0 {
		return nil
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	const query = `
		INSERT OR REPLACE INTO emails (
			email_id, user_id, account_id, provider_id, thread_id,
			subject, sender_name, sender_email, recipients,
			date, received_at, size, labels,
			is_read, is_starred, is_draft, is_sent, is_trash, is_spam,
			has_attachments, snippet, preview_text, fetched_at
		) VALUES (
			?, ?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?,
			?, ?, ?, ?, ?, ?,
			?, ?, ?, ?
		)`

	stmt, err := tx.PreparexContext(ctx, query)
	if err != nil {
		return fmt.Errorf("preparing upsert statement: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, m := range emails {
		recipients, err := json.Marshal(m.Recipients)
		if err != nil {
			return fmt.Errorf("marshaling recipients for email %s: %w", m.ID, err)
		}
		labels, err := json.Marshal(m.Labels)
		if err != nil {
			return fmt.Errorf("marshaling labels for email %s: %w", m.ID, err)
		}

		_, err = stmt.ExecContext(ctx,
			m.ID, userID, m.AccountID, m.ProviderID, m.ThreadID,
			m.Subject, m.Sender.Name, m.Sender.Email, string(recipients),
			m.Date.UTC(), m.ReceivedAt.UTC(), m.Size, string(labels),
			boolToInt(m.IsRead), boolToInt(m.IsStarred), boolToInt(m.IsDraft),
			boolToInt(m.IsSent), boolToInt(m.IsTrash), boolToInt(m.IsSpam),
			boolToInt(m.HasAttachments), m.Snippet, m.PreviewText, now,
		)
		if err != nil {
			return fmt.Errorf("upserting email %s: %w", m.ID, err)
		}
	}

	return tx.Commit()
}

// GetEmails retrieves email records for one user matching the filter.
func (s *SQLiteStore) GetEmails(
	ctx context.Context,
	userID string,
	filter EmailFilter,
) ([]model.EmailMetadata, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	if filter.AccountID != nil {
		conditions = append(conditions, "account_id = ?")
		args = append(args, *filter.AccountID)
	}
	if filter.IsRead != nil {
		conditions = append(conditions, "is_read = ?")
		args = append(args, boolToInt(*filter.IsRead))
	}
	if filter.Query != nil && *filter.Query != "" {
		conditions = append(conditions, "(subject LIKE ? OR sender_email LIKE ? OR sender_name LIKE ?)")
		q := "%" + *filter.Query + "%"
		args = append(args, q, q, q)
	}

	query := "SELECT * FROM emails WHERE " + strings.Join(conditions, " AND ")

	// Determine sort column.
	sortBy := "received_at"
	if filter.SortBy != "" {
		allowedSorts := map[string]bool{
			"received_at":  true,
			"date":         true,
			"sender_email": true,
			"subject":      true,
			"size":         true,
		}
		if allowedSorts[filter.SortBy] {
			sortBy = filter.SortBy
		}
	}

	direction := "ASC"
	if filter.SortDesc {
		direction = "DESC"
	}
	query += fmt.Sprintf(" ORDER BY %s %s", sortBy, direction)

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying emails: %w", err)
	}
	defer rows.Close()

	var emails []model.EmailMetadata
	for rows.Next() {
		m, err := scanEmail(rows)
		if err != nil {
			return nil, err
		}
		emails = append(emails, m)
	}

	return emails, rows.Err()
}

// GetEmailByID retrieves a single email record by its composite key.
func (s *SQLiteStore) GetEmailByID(
	ctx context.Context,
	userID, emailID string,
) (*model.EmailMetadata, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM emails WHERE email_id = ? AND user_id = ?",
		emailID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying email %s: %w", emailID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying email %s: %w", emailID, err)
		}
		return nil, ErrNotFound
	}

	m, err := scanEmail(rows)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// scanEmail scans an email row from a sqlx.Rows result set. Column order
// follows the emails table definition.
func scanEmail(rows *sqlx.Rows) (model.EmailMetadata, error) {
	var (
		m          model.EmailMetadata
		userID     string
		recipients string
		labels     string
		isRead     int
		isStarred  int
		isDraft    int
		isSent     int
		isTrash    int
		isSpam     int
		hasAttach  int
		fetchedAt  time.Time
	)

	err := rows.Scan(
		&m.ID, &userID, &m.AccountID, &m.ProviderID, &m.ThreadID,
		&m.Subject, &m.Sender.Name, &m.Sender.Email, &recipients,
		&m.Date, &m.ReceivedAt, &m.Size, &labels,
		&isRead, &isStarred, &isDraft, &isSent, &isTrash, &isSpam,
		&hasAttach, &m.Snippet, &m.PreviewText, &fetchedAt,
	)
	if err != nil {
		return model.EmailMetadata{}, fmt.Errorf("scanning email row: %w", err)
	}

	m.IsRead = isRead != 0
	m.IsStarred = isStarred != 0
	m.IsDraft = isDraft != 0
	m.IsSent = isSent != 0
	m.IsTrash = isTrash != 0
	m.IsSpam = isSpam != 0
	m.HasAttachments = hasAttach != 0

	if recipients != "" {
		if err := json.Unmarshal([]byte(recipients), &m.Recipients); err != nil {
			return model.EmailMetadata{}, fmt.Errorf("unmarshaling recipients: %w", err)
		}
	}
	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &m.Labels); err != nil {
			return model.EmailMetadata{}, fmt.Errorf("unmarshaling labels: %w", err)
		}
	}

	return m, nil
}

// nullTime converts a possibly-zero time into a nullable SQL value.
func nullTime(t *time.Time) interface{} {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC()
}

// timePtr converts a nullable SQL time back into a *time.Time.
func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

// boolToInt converts a boolean to 0 or 1 for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
