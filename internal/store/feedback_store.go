package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nhle/gtd-mail/internal/model"
)

// RecordCorrection stores a user's correction of an automatic
// classification. Corrections are append-only.
func (s *SQLiteStore) RecordCorrection(ctx context.Context, c model.ClassificationCorrection) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	original, err := json.Marshal(c.Original)
	if err != nil {
		return fmt.Errorf("marshaling original classification: %w", err)
	}
	corrected, err := json.Marshal(c.Corrected)
	if err != nil {
		return fmt.Errorf("marshaling corrected classification: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO corrections (
			id, email_id, user_id, original, corrected, reason, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.EmailID, c.UserID,
		string(original), string(corrected), c.Reason, c.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording correction for email %s: %w", c.EmailID, err)
	}
	return nil
}

// GetCorrections retrieves the correction history for one email, oldest
// first.
func (s *SQLiteStore) GetCorrections(
	ctx context.Context,
	userID, emailID string,
) ([]model.ClassificationCorrection, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT id, email_id, user_id, original, corrected, reason, created_at
		 FROM corrections WHERE email_id = ? AND user_id = ?
		 ORDER BY created_at ASC, id ASC`,
		emailID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying corrections: %w", err)
	}
	defer rows.Close()

	var corrections []model.ClassificationCorrection
	for rows.Next() {
		var (
			c         model.ClassificationCorrection
			original  string
			corrected string
		)
		err := rows.Scan(
			&c.ID, &c.EmailID, &c.UserID, &original, &corrected,
			&c.Reason, &c.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning correction row: %w", err)
		}
		if err := json.Unmarshal([]byte(original), &c.Original); err != nil {
			return nil, fmt.Errorf("unmarshaling original classification: %w", err)
		}
		if err := json.Unmarshal([]byte(corrected), &c.Corrected); err != nil {
			return nil, fmt.Errorf("unmarshaling corrected classification: %w", err)
		}
		corrections = append(corrections, c)
	}

	return corrections, rows.Err()
}

// RecordFeedback stores a user's accuracy verdict on a classification.
func (s *SQLiteStore) RecordFeedback(ctx context.Context, f model.ClassificationFeedback) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}

	classification, err := json.Marshal(f.Classification)
	if err != nil {
		return fmt.Errorf("marshaling feedback classification: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO feedback (
			id, email_id, user_id, classification, is_correct, feedback, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		f.ID, f.EmailID, f.UserID,
		string(classification), boolToInt(f.IsCorrect), f.Feedback, f.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("recording feedback for email %s: %w", f.EmailID, err)
	}
	return nil
}
