// Package classify coordinates the rule engine with the persistence
// layer: it loads a user's ruleset, classifies messages, and commits the
// results as structured rows plus filesystem backup blobs.
package classify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/rules"
	"github.com/nhle/gtd-mail/internal/store"
)

// batchConcurrency bounds parallel classification within one batch.
const batchConcurrency = 8

// ErrUserClassified is returned when an automatic pass would overwrite a
// record the user set by hand and force was not given.
var ErrUserClassified = errors.New("classification was set by user; pass force to overwrite")

// backupDocument is the blob payload written next to every structured
// classification row.
type backupDocument struct {
	EmailID    string                       `json:"email_id"`
	UserID     string                       `json:"user_id"`
	Metadata   model.ClassificationMetadata `json:"metadata"`
	Reasoning  []string                     `json:"reasoning"`
	BackedUpAt time.Time                    `json:"backed_up_at"`
}

// BatchResult summarizes one batch classification pass.
type BatchResult struct {
	Records []model.ClassificationRecord
	Failed  int
}

// Orchestrator runs the classification pipeline for one store.
type Orchestrator struct {
	store store.Store
	blobs store.BlobStore
	now   func() time.Time

	// newEngine builds an engine over a loaded ruleset. Overridable in
	// tests.
	newEngine func([]model.CategoryRule) *rules.Engine
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithClock overrides the orchestrator's clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

// WithEngineFactory overrides how engines are built from a ruleset.
func WithEngineFactory(f func([]model.CategoryRule) *rules.Engine) Option {
	return func(o *Orchestrator) { o.newEngine = f }
}

// New creates an Orchestrator over the given stores.
func New(s store.Store, blobs store.BlobStore, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		store: s,
		blobs: blobs,
		now:   time.Now,
		newEngine: func(ruleset []model.CategoryRule) *rules.Engine {
			return rules.NewEngine(ruleset)
		},
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// ClassifyOne classifies a single email for one user and persists the
// result. A record last written by the user is returned untouched unless
// force is set.
func (o *Orchestrator) ClassifyOne(
	ctx context.Context,
	email model.EmailMetadata,
	userID string,
	force bool,
) (*model.ClassificationRecord, error) {
	if err := validateKeys(email.ID, userID); err != nil {
		return nil, err
	}

	engine, err := o.engineFor(ctx, userID)
	if err != nil {
		return nil, err
	}

	return o.classifyWith(ctx, engine, email, userID, force)
}

// ClassifyBatch classifies a batch of emails for one user with bounded
// parallelism. Each message is evaluated and committed independently:
// one failed write is counted, logged, and does not block the rest.
func (o *Orchestrator) ClassifyBatch(
	ctx context.Context,
	emails []model.EmailMetadata,
	userID string,
	force bool,
) (BatchResult, error) {
	if userID == "" {
		return BatchResult{}, fmt.Errorf("user id is required")
	}
	if len(emails) == 0 {
		return BatchResult{}, nil
	}

	engine, err := o.engineFor(ctx, userID)
	if err != nil {
		return BatchResult{}, err
	}

	var (
		mu      gosync.Mutex
		records []model.ClassificationRecord
		failed  int
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for _, email := range emails {
		email := email
		g.Go(func() error {
			rec, err := o.classifyWith(gctx, engine, email, userID, force)
			if errors.Is(err, ErrUserClassified) {
				// The stored record stands; nothing to re-commit.
				return nil
			}
			if err != nil {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				log.Printf("classify: email %s: %v", email.ID, err)
				mu.Lock()
				failed++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			records = append(records, *rec)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return BatchResult{Records: records, Failed: failed}, err
	}
	return BatchResult{Records: records, Failed: failed}, nil
}

// ApplyCorrection records a user's correction and replaces the stored
// classification with the corrected metadata, marked as user-written.
func (o *Orchestrator) ApplyCorrection(
	ctx context.Context,
	correction model.ClassificationCorrection,
) error {
	if err := validateKeys(correction.EmailID, correction.UserID); err != nil {
		return err
	}

	if err := o.store.RecordCorrection(ctx, correction); err != nil {
		return fmt.Errorf("recording correction: %w", err)
	}

	meta := correction.Corrected
	meta.LastUpdated = o.now().UTC()
	meta.LastUpdatedBy = model.UpdatedByUser

	rec := model.ClassificationRecord{
		EmailID:  correction.EmailID,
		UserID:   correction.UserID,
		Metadata: meta,
		Reasoning: []string{
			fmt.Sprintf("corrected by user: %s -> %s",
				correction.Original.Category, correction.Corrected.Category),
		},
	}
	if err := o.store.UpsertClassification(ctx, rec); err != nil {
		return fmt.Errorf("persisting corrected classification: %w", err)
	}
	o.backup(ctx, rec)
	return nil
}

// RecordFeedback stores a user's accuracy verdict without altering the
// classification itself.
func (o *Orchestrator) RecordFeedback(
	ctx context.Context,
	feedback model.ClassificationFeedback,
) error {
	if err := validateKeys(feedback.EmailID, feedback.UserID); err != nil {
		return err
	}
	return o.store.RecordFeedback(ctx, feedback)
}

// engineFor loads the user's ruleset and builds an engine over it.
func (o *Orchestrator) engineFor(ctx context.Context, userID string) (*rules.Engine, error) {
	ruleset, err := o.store.GetRules(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("loading rules for user %s: %w", userID, err)
	}
	return o.newEngine(ruleset), nil
}

// classifyWith runs one email through an already-built engine and
// commits the result.
func (o *Orchestrator) classifyWith(
	ctx context.Context,
	engine *rules.Engine,
	email model.EmailMetadata,
	userID string,
	force bool,
) (*model.ClassificationRecord, error) {
	if err := validateKeys(email.ID, userID); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	existing, err := o.store.GetClassification(ctx, userID, email.ID)
	if err != nil && !errors.Is(err, store.ErrNotFound) {
		return nil, fmt.Errorf("loading classification for email %s: %w", email.ID, err)
	}
	if existing != nil && existing.Metadata.LastUpdatedBy == model.UpdatedByUser && !force {
		return existing, ErrUserClassified
	}

	result := engine.Classify(email)

	rec := model.ClassificationRecord{
		EmailID:   email.ID,
		UserID:    userID,
		Metadata:  result.Metadata,
		Reasoning: result.Reasoning,
	}
	if err := o.store.UpsertClassification(ctx, rec); err != nil {
		return nil, fmt.Errorf("persisting classification for email %s: %w", email.ID, err)
	}
	o.backup(ctx, rec)

	return &rec, nil
}

// backup writes the blob copy of one committed record. The structured
// row is already durable, so a backup failure is logged, not returned.
func (o *Orchestrator) backup(ctx context.Context, rec model.ClassificationRecord) {
	if o.blobs == nil {
		return
	}

	doc := backupDocument{
		EmailID:    rec.EmailID,
		UserID:     rec.UserID,
		Metadata:   rec.Metadata,
		Reasoning:  rec.Reasoning,
		BackedUpAt: o.now().UTC(),
	}
	data, err := json.Marshal(doc)
	if err != nil {
		log.Printf("classify: marshaling backup for email %s: %v", rec.EmailID, err)
		return
	}
	if err := o.blobs.PutClassification(ctx, rec.UserID, rec.EmailID, data); err != nil {
		log.Printf("classify: writing backup for email %s: %v", rec.EmailID, err)
	}
}

// validateKeys rejects classification requests without both identifiers.
func validateKeys(emailID, userID string) error {
	if emailID == "" {
		return fmt.Errorf("email id is required")
	}
	if userID == "" {
		return fmt.Errorf("user id is required")
	}
	return nil
}
