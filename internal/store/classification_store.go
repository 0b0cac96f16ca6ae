package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/nhle/gtd-mail/internal/model"
)

// UpsertClassification writes one classification record keyed by
// (email_id, user_id). An existing row for the same key is replaced.
func (s *SQLiteStore) UpsertClassification(
	ctx context.Context,
	rec model.ClassificationRecord,
) error {
	if rec.EmailID == "" || rec.UserID == "" {
		return fmt.Errorf("classification record requires email_id and user_id")
	}

	labels, err := json.Marshal(rec.Metadata.Labels)
	if err != nil {
		return fmt.Errorf("marshaling classification labels: %w", err)
	}
	reasoning, err := json.Marshal(rec.Reasoning)
	if err != nil {
		return fmt.Errorf("marshaling reasoning: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO classifications (
			email_id, user_id, category, priority, action_status, labels,
			due_date, scheduled_date, estimated_duration, project, context_tag,
			confidence, reasoning, updated_by, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (email_id, user_id) DO UPDATE SET
			category = excluded.category,
			priority = excluded.priority,
			action_status = excluded.action_status,
			labels = excluded.labels,
			due_date = excluded.due_date,
			scheduled_date = excluded.scheduled_date,
			estimated_duration = excluded.estimated_duration,
			project = excluded.project,
			context_tag = excluded.context_tag,
			confidence = excluded.confidence,
			reasoning = excluded.reasoning,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at`,
		rec.EmailID, rec.UserID,
		string(rec.Metadata.Category), string(rec.Metadata.Priority),
		string(rec.Metadata.ActionStatus), string(labels),
		nullTime(rec.Metadata.DueDate), nullTime(rec.Metadata.ScheduledDate),
		rec.Metadata.EstimatedDuration, rec.Metadata.Project, rec.Metadata.Context,
		rec.Metadata.Confidence, string(reasoning),
		string(rec.Metadata.LastUpdatedBy), rec.Metadata.LastUpdated.UTC(),
	)
	if err != nil {
		return fmt.Errorf("upserting classification for email %s: %w", rec.EmailID, err)
	}
	return nil
}

// GetClassification retrieves the classification for one email and user,
// or ErrNotFound when the email has not been classified yet.
func (s *SQLiteStore) GetClassification(
	ctx context.Context,
	userID, emailID string,
) (*model.ClassificationRecord, error) {
	rows, err := s.db.QueryxContext(ctx,
		"SELECT * FROM classifications WHERE email_id = ? AND user_id = ?",
		emailID, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("querying classification for email %s: %w", emailID, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, fmt.Errorf("querying classification for email %s: %w", emailID, err)
		}
		return nil, ErrNotFound
	}

	rec, err := scanClassification(rows)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// GetClassifications retrieves classification records for one user
// matching the filter, newest first.
func (s *SQLiteStore) GetClassifications(
	ctx context.Context,
	userID string,
	filter ClassificationFilter,
) ([]model.ClassificationRecord, error) {
	conditions := []string{"user_id = ?"}
	args := []interface{}{userID}

	if filter.Category != nil {
		conditions = append(conditions, "category = ?")
		args = append(args, *filter.Category)
	}
	if filter.Priority != nil {
		conditions = append(conditions, "priority = ?")
		args = append(args, *filter.Priority)
	}
	if filter.ActionStatus != nil {
		conditions = append(conditions, "action_status = ?")
		args = append(args, *filter.ActionStatus)
	}
	if filter.UpdatedBy != nil {
		conditions = append(conditions, "updated_by = ?")
		args = append(args, *filter.UpdatedBy)
	}

	query := "SELECT * FROM classifications WHERE " +
		strings.Join(conditions, " AND ") + " ORDER BY updated_at DESC"

	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", filter.Limit)
	}
	if filter.Offset > 0 {
		query += fmt.Sprintf(" OFFSET %d", filter.Offset)
	}

	rows, err := s.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying classifications: %w", err)
	}
	defer rows.Close()

	var recs []model.ClassificationRecord
	for rows.Next() {
		rec, err := scanClassification(rows)
		if err != nil {
			return nil, err
		}
		recs = append(recs, rec)
	}

	return recs, rows.Err()
}

// scanClassification scans a classification row. Column order follows
// the classifications table definition.
func scanClassification(rows *sqlx.Rows) (model.ClassificationRecord, error) {
	var (
		rec           model.ClassificationRecord
		category      string
		priority      string
		actionStatus  string
		labels        string
		dueDate       sql.NullTime
		scheduledDate sql.NullTime
		reasoning     string
		updatedBy     string
		updatedAt     time.Time
	)

	err := rows.Scan(
		&rec.EmailID, &rec.UserID, &category, &priority, &actionStatus, &labels,
		&dueDate, &scheduledDate, &rec.Metadata.EstimatedDuration,
		&rec.Metadata.Project, &rec.Metadata.Context,
		&rec.Metadata.Confidence, &reasoning, &updatedBy, &updatedAt,
	)
	if err != nil {
		return model.ClassificationRecord{}, fmt.Errorf("scanning classification row: %w", err)
	}

	rec.Metadata.Category = model.EmailCategory(category)
	rec.Metadata.Priority = model.Priority(priority)
	rec.Metadata.ActionStatus = model.ActionStatus(actionStatus)
	rec.Metadata.DueDate = timePtr(dueDate)
	rec.Metadata.ScheduledDate = timePtr(scheduledDate)
	rec.Metadata.LastUpdatedBy = model.UpdatedBy(updatedBy)
	rec.Metadata.LastUpdated = updatedAt

	if labels != "" {
		if err := json.Unmarshal([]byte(labels), &rec.Metadata.Labels); err != nil {
			return model.ClassificationRecord{}, fmt.Errorf("unmarshaling classification labels: %w", err)
		}
	}
	if reasoning != "" {
		if err := json.Unmarshal([]byte(reasoning), &rec.Reasoning); err != nil {
			return model.ClassificationRecord{}, fmt.Errorf("unmarshaling reasoning: %w", err)
		}
	}

	return rec, nil
}
