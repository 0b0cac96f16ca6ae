package classify_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/gtd-mail/internal/classify"
	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/store"
	"github.com/nhle/gtd-mail/tests/testutil"
)

const testUser = "user-1"

func newOrchestrator(t *testing.T) (*classify.Orchestrator, *store.SQLiteStore, *store.FileBlobStore) {
	t.Helper()

	s := testutil.NewTestStore(t)
	blobs, err := store.NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}
	return classify.New(s, blobs), s, blobs
}

func invoiceRule() model.CategoryRule {
	return model.CategoryRule{
		ID:       "r-invoices",
		Name:     "invoices",
		Category: model.CategoryActionable,
		Priority: model.PriorityHigh,
		Conditions: []model.RuleCondition{
			{Field: model.FieldSubject, Operator: model.OpContains, Value: "Invoice"},
		},
		Actions: []model.RuleAction{
			{Type: model.ActionAddLabel, Value: "finance"},
		},
		IsActive: true,
	}
}

func invoiceEmail(id string) model.EmailMetadata {
	return model.EmailMetadata{
		ID:         id,
		AccountID:  "acct-1",
		Subject:    "Invoice #42 due",
		Sender:     model.EmailAddress{Email: "billing@vendor.example"},
		Date:       time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		ReceivedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestClassifyOnePersistsRecordAndBackup(t *testing.T) {
	o, s, blobs := newOrchestrator(t)
	ctx := context.Background()

	if err := s.UpsertRule(ctx, testUser, invoiceRule()); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	rec, err := o.ClassifyOne(ctx, invoiceEmail("e1"), testUser, false)
	if err != nil {
		t.Fatalf("ClassifyOne: %v", err)
	}

	if rec.Metadata.Category != model.CategoryActionable {
		t.Errorf("Category = %q, want ACTIONABLE", rec.Metadata.Category)
	}
	if rec.Metadata.Priority != model.PriorityHigh {
		t.Errorf("Priority = %q, want HIGH", rec.Metadata.Priority)
	}
	if rec.Metadata.LastUpdatedBy != model.UpdatedBySystem {
		t.Errorf("LastUpdatedBy = %q, want system", rec.Metadata.LastUpdatedBy)
	}
	if len(rec.Reasoning) == 0 {
		t.Error("expected a reasoning trail")
	}

	stored, err := s.GetClassification(ctx, testUser, "e1")
	if err != nil {
		t.Fatalf("GetClassification: %v", err)
	}
	if diff := cmp.Diff(rec, stored); diff != "" {
		t.Errorf("stored record mismatch (-want +got):\n%s", diff)
	}

	data, err := blobs.GetClassification(ctx, testUser, "e1")
	if err != nil {
		t.Fatalf("reading backup blob: %v", err)
	}
	var doc struct {
		EmailID  string                       `json:"email_id"`
		UserID   string                       `json:"user_id"`
		Metadata model.ClassificationMetadata `json:"metadata"`
	}
	if err := json.Unmarshal(data, &doc); err != nil {
		t.Fatalf("unmarshaling backup blob: %v", err)
	}
	if doc.EmailID != "e1" || doc.UserID != testUser {
		t.Errorf("backup keys = %q/%q", doc.EmailID, doc.UserID)
	}
	if doc.Metadata.Category != model.CategoryActionable {
		t.Errorf("backup category = %q", doc.Metadata.Category)
	}
}

func TestClassifyOneNoRulesFallsBack(t *testing.T) {
	o, _, _ := newOrchestrator(t)

	rec, err := o.ClassifyOne(context.Background(), invoiceEmail("e1"), testUser, false)
	if err != nil {
		t.Fatalf("ClassifyOne: %v", err)
	}
	if rec.Metadata.Category != model.CategoryUnclassified {
		t.Errorf("Category = %q, want UNCLASSIFIED", rec.Metadata.Category)
	}
	if rec.Metadata.Confidence != 0 {
		t.Errorf("Confidence = %v, want 0", rec.Metadata.Confidence)
	}
}

func TestClassifyOneUserProtection(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	ctx := context.Background()

	userRec := model.ClassificationRecord{
		EmailID: "e1",
		UserID:  testUser,
		Metadata: model.ClassificationMetadata{
			Category:      model.CategoryReference,
			Priority:      model.PriorityLow,
			LastUpdated:   time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
			LastUpdatedBy: model.UpdatedByUser,
		},
		Reasoning: []string{"filed by hand"},
	}
	if err := s.UpsertClassification(ctx, userRec); err != nil {
		t.Fatalf("UpsertClassification: %v", err)
	}
	if err := s.UpsertRule(ctx, testUser, invoiceRule()); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	got, err := o.ClassifyOne(ctx, invoiceEmail("e1"), testUser, false)
	if !errors.Is(err, classify.ErrUserClassified) {
		t.Fatalf("err = %v, want ErrUserClassified", err)
	}
	if diff := cmp.Diff(&userRec, got); diff != "" {
		t.Errorf("protected record mismatch (-want +got):\n%s", diff)
	}

	// force replaces the user's record with a fresh automatic pass.
	forced, err := o.ClassifyOne(ctx, invoiceEmail("e1"), testUser, true)
	if err != nil {
		t.Fatalf("ClassifyOne force: %v", err)
	}
	if forced.Metadata.LastUpdatedBy != model.UpdatedBySystem {
		t.Errorf("forced LastUpdatedBy = %q, want system", forced.Metadata.LastUpdatedBy)
	}
	if forced.Metadata.Category != model.CategoryActionable {
		t.Errorf("forced Category = %q, want ACTIONABLE", forced.Metadata.Category)
	}
}

func TestClassifyOneValidation(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	if _, err := o.ClassifyOne(ctx, model.EmailMetadata{}, testUser, false); err == nil {
		t.Error("expected error for missing email id")
	}
	if _, err := o.ClassifyOne(ctx, invoiceEmail("e1"), "", false); err == nil {
		t.Error("expected error for missing user id")
	}
}

func TestClassifyBatch(t *testing.T) {
	o, s, _ := newOrchestrator(t)
	ctx := context.Background()

	if err := s.UpsertRule(ctx, testUser, invoiceRule()); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}

	// e2 is already user-classified and must survive the batch untouched.
	userRec := model.ClassificationRecord{
		EmailID: "e2",
		UserID:  testUser,
		Metadata: model.ClassificationMetadata{
			Category:      model.CategoryDelegated,
			LastUpdated:   time.Date(2025, 5, 1, 8, 0, 0, 0, time.UTC),
			LastUpdatedBy: model.UpdatedByUser,
		},
	}
	if err := s.UpsertClassification(ctx, userRec); err != nil {
		t.Fatalf("UpsertClassification: %v", err)
	}

	emails := []model.EmailMetadata{
		invoiceEmail("e1"),
		invoiceEmail("e2"),
		invoiceEmail("e3"),
	}
	res, err := o.ClassifyBatch(ctx, emails, testUser, false)
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}

	if res.Failed != 0 {
		t.Errorf("Failed = %d, want 0", res.Failed)
	}
	got := map[string]bool{}
	for _, rec := range res.Records {
		got[rec.EmailID] = true
	}
	if !got["e1"] || !got["e3"] || got["e2"] {
		t.Errorf("classified = %v, want e1 and e3 only", got)
	}

	stored, err := s.GetClassification(ctx, testUser, "e2")
	if err != nil {
		t.Fatalf("GetClassification e2: %v", err)
	}
	if stored.Metadata.Category != model.CategoryDelegated {
		t.Errorf("e2 category = %q, user record should stand", stored.Metadata.Category)
	}
}

func TestClassifyBatchCountsFailures(t *testing.T) {
	o, _, _ := newOrchestrator(t)

	emails := []model.EmailMetadata{
		invoiceEmail("e1"),
		{}, // no ID, cannot be keyed
	}
	res, err := o.ClassifyBatch(context.Background(), emails, testUser, false)
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if res.Failed != 1 {
		t.Errorf("Failed = %d, want 1", res.Failed)
	}
	if len(res.Records) != 1 || res.Records[0].EmailID != "e1" {
		t.Errorf("records = %+v, want only e1", res.Records)
	}
}

func TestClassifyBatchEmpty(t *testing.T) {
	o, _, _ := newOrchestrator(t)

	res, err := o.ClassifyBatch(context.Background(), nil, testUser, false)
	if err != nil {
		t.Fatalf("ClassifyBatch: %v", err)
	}
	if len(res.Records) != 0 || res.Failed != 0 {
		t.Errorf("result = %+v, want empty", res)
	}
}

func TestApplyCorrection(t *testing.T) {
	fixed := time.Date(2025, 5, 2, 10, 0, 0, 0, time.UTC)
	s := testutil.NewTestStore(t)
	blobs, err := store.NewFileBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileBlobStore: %v", err)
	}
	o := classify.New(s, blobs, classify.WithClock(func() time.Time { return fixed }))
	ctx := context.Background()

	if err := s.UpsertRule(ctx, testUser, invoiceRule()); err != nil {
		t.Fatalf("UpsertRule: %v", err)
	}
	original, err := o.ClassifyOne(ctx, invoiceEmail("e1"), testUser, false)
	if err != nil {
		t.Fatalf("ClassifyOne: %v", err)
	}

	corrected := original.Metadata
	corrected.Category = model.CategoryReference
	corrected.Priority = model.PriorityNone

	err = o.ApplyCorrection(ctx, model.ClassificationCorrection{
		EmailID:   "e1",
		UserID:    testUser,
		Original:  original.Metadata,
		Corrected: corrected,
		Reason:    "vendor newsletter, keep for reference",
	})
	if err != nil {
		t.Fatalf("ApplyCorrection: %v", err)
	}

	stored, err := s.GetClassification(ctx, testUser, "e1")
	if err != nil {
		t.Fatalf("GetClassification: %v", err)
	}
	if stored.Metadata.Category != model.CategoryReference {
		t.Errorf("Category = %q, want corrected REFERENCE", stored.Metadata.Category)
	}
	if stored.Metadata.LastUpdatedBy != model.UpdatedByUser {
		t.Errorf("LastUpdatedBy = %q, want user", stored.Metadata.LastUpdatedBy)
	}
	if !stored.Metadata.LastUpdated.Equal(fixed) {
		t.Errorf("LastUpdated = %v, want %v", stored.Metadata.LastUpdated, fixed)
	}
	if len(stored.Reasoning) != 1 ||
		stored.Reasoning[0] != "corrected by user: ACTIONABLE -> REFERENCE" {
		t.Errorf("reasoning = %v", stored.Reasoning)
	}

	history, err := s.GetCorrections(ctx, testUser, "e1")
	if err != nil {
		t.Fatalf("GetCorrections: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("got %d corrections, want 1", len(history))
	}

	// The corrected record is now user-owned and protected.
	if _, err := o.ClassifyOne(ctx, invoiceEmail("e1"), testUser, false); !errors.Is(err, classify.ErrUserClassified) {
		t.Fatalf("err = %v, want ErrUserClassified after correction", err)
	}
}

func TestRecordFeedback(t *testing.T) {
	o, _, _ := newOrchestrator(t)
	ctx := context.Background()

	err := o.RecordFeedback(ctx, model.ClassificationFeedback{
		EmailID:   "e1",
		UserID:    testUser,
		IsCorrect: true,
	})
	if err != nil {
		t.Fatalf("RecordFeedback: %v", err)
	}

	if err := o.RecordFeedback(ctx, model.ClassificationFeedback{UserID: testUser}); err == nil {
		t.Error("expected error for missing email id")
	}
}

func TestClassifyWithoutBlobStore(t *testing.T) {
	s := testutil.NewTestStore(t)
	o := classify.New(s, nil)

	if _, err := o.ClassifyOne(context.Background(), invoiceEmail("e1"), testUser, false); err != nil {
		t.Fatalf("ClassifyOne without blob store: %v", err)
	}
}
