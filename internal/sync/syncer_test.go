package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/nhle/gtd-mail/internal/classify"
	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
	"github.com/nhle/gtd-mail/internal/store"
	"github.com/nhle/gtd-mail/tests/testutil"
)

type fakeCreds struct {
	resolveErr error
	refreshErr error
}

func (f *fakeCreds) Resolve(ctx context.Context, accountID string) (provider.Credentials, error) {
	if f.resolveErr != nil {
		return provider.Credentials{}, f.resolveErr
	}
	return provider.Credentials{
		Provider: model.ProviderGmail,
		OAuth:    &provider.OAuthCredentials{AccessToken: "tok"},
	}, nil
}

func (f *fakeCreds) RefreshIfExpired(ctx context.Context, accountID string, creds provider.Credentials) (provider.Credentials, error) {
	if f.refreshErr != nil {
		return provider.Credentials{}, f.refreshErr
	}
	return creds, nil
}

type fakeClassifier struct {
	batches int
	failed  int
	err     error
}

func (f *fakeClassifier) ClassifyBatch(ctx context.Context, emails []model.EmailMetadata, userID string, force bool) (classify.BatchResult, error) {
	f.batches++
	if f.err != nil {
		return classify.BatchResult{}, f.err
	}
	return classify.BatchResult{Failed: f.failed}, nil
}

type fakeClient struct {
	emails     []model.EmailMetadata
	err        error
	maxResults int
}

func (f *fakeClient) Provider() model.EmailProvider { return model.ProviderGmail }

func (f *fakeClient) FetchEmails(ctx context.Context, maxResults int) ([]model.EmailMetadata, error) {
	f.maxResults = maxResults
	if f.err != nil {
		return nil, f.err
	}
	return f.emails, nil
}

func syncEmail(id string) model.EmailMetadata {
	return model.EmailMetadata{
		ID:         id,
		AccountID:  "a1",
		Subject:    "hello " + id,
		Sender:     model.EmailAddress{Email: "peer@x.com"},
		Date:       time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
		ReceivedAt: time.Date(2025, 5, 1, 9, 0, 0, 0, time.UTC),
	}
}

func syncAccount() model.EmailAccount {
	return model.EmailAccount{
		ID:       "a1",
		UserID:   "user-1",
		Provider: model.ProviderGmail,
		Email:    "me@gmail.example",
		Status:   model.AccountActive,
	}
}

// newTestSyncer wires a Syncer over a real store with a canned client.
func newTestSyncer(t *testing.T, client provider.Client) (*Syncer, *store.SQLiteStore, *fakeClassifier) {
	t.Helper()

	s := testutil.NewTestStore(t)
	cl := &fakeClassifier{}
	syncer := NewSyncer(s, &fakeCreds{}, cl)
	syncer.newClient = func(ctx context.Context, account model.EmailAccount, creds provider.Credentials) (provider.Client, error) {
		return client, nil
	}

	if err := s.UpsertAccount(context.Background(), syncAccount()); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}
	return syncer, s, cl
}

func TestSyncAccountSuccess(t *testing.T) {
	client := &fakeClient{emails: []model.EmailMetadata{syncEmail("e1"), syncEmail("e2")}}
	syncer, s, cl := newTestSyncer(t, client)
	ctx := context.Background()

	// e1 was fetched on a previous pass.
	if err := s.UpsertEmails(ctx, "user-1", []model.EmailMetadata{syncEmail("e1")}); err != nil {
		t.Fatalf("UpsertEmails: %v", err)
	}

	stats, err := syncer.SyncAccount(ctx, syncAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	want := model.SyncStats{TotalEmails: 2, NewEmails: 1, UpdatedEmails: 1}
	if diff := cmp.Diff(want, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if cl.batches != 1 {
		t.Errorf("classifier ran %d times, want 1", cl.batches)
	}

	stored, err := s.GetEmails(ctx, "user-1", store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(stored) != 2 {
		t.Errorf("store holds %d emails, want 2", len(stored))
	}

	acct, err := s.GetAccountByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if acct.LastSyncAt.IsZero() {
		t.Error("LastSyncAt should be stamped after a clean pass")
	}
	if acct.LastError != "" {
		t.Errorf("LastError = %q, want empty", acct.LastError)
	}
}

func TestSyncAccountRestoresErroredAccount(t *testing.T) {
	client := &fakeClient{emails: []model.EmailMetadata{syncEmail("e1")}}
	syncer, s, _ := newTestSyncer(t, client)
	ctx := context.Background()

	if err := s.UpdateAccountStatus(ctx, "a1", model.AccountError); err != nil {
		t.Fatalf("UpdateAccountStatus: %v", err)
	}

	account := syncAccount()
	account.Status = model.AccountError
	if _, err := syncer.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}

	acct, err := s.GetAccountByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if acct.Status != model.AccountActive {
		t.Errorf("Status = %q, want active after a clean pass", acct.Status)
	}
}

func TestSyncAccountEmptyMailbox(t *testing.T) {
	syncer, _, cl := newTestSyncer(t, &fakeClient{})

	stats, err := syncer.SyncAccount(context.Background(), syncAccount())
	if err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if diff := cmp.Diff(model.SyncStats{}, stats); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}
	if cl.batches != 0 {
		t.Error("classifier should not run on an empty fetch")
	}
}

func TestSyncAccountBatchBound(t *testing.T) {
	client := &fakeClient{}
	syncer, _, _ := newTestSyncer(t, client)
	ctx := context.Background()

	account := syncAccount()
	account.Settings.MaxEmailsPerSync = 7
	if _, err := syncer.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if client.maxResults != 7 {
		t.Errorf("maxResults = %d, want configured 7", client.maxResults)
	}

	account.Settings.MaxEmailsPerSync = 0
	if _, err := syncer.SyncAccount(ctx, account); err != nil {
		t.Fatalf("SyncAccount: %v", err)
	}
	if client.maxResults != provider.DefaultMaxResults {
		t.Errorf("maxResults = %d, want default %d", client.maxResults, provider.DefaultMaxResults)
	}
}

func TestSyncAccountReconnectDisconnects(t *testing.T) {
	client := &fakeClient{err: &provider.AuthError{
		Provider:  model.ProviderGmail,
		Reconnect: true,
		Message:   "refresh token revoked",
	}}
	syncer, s, _ := newTestSyncer(t, client)
	ctx := context.Background()

	_, err := syncer.SyncAccount(ctx, syncAccount())
	if !provider.NeedsReconnect(err) {
		t.Fatalf("err = %v, want reconnect required", err)
	}

	acct, gErr := s.GetAccountByID(ctx, "a1")
	if gErr != nil {
		t.Fatalf("GetAccountByID: %v", gErr)
	}
	if acct.Status != model.AccountDisconnected {
		t.Errorf("Status = %q, want disconnected", acct.Status)
	}
	if acct.LastError == "" {
		t.Error("LastError should record the failure")
	}
}

func TestSyncAccountAuthErrorFlagsError(t *testing.T) {
	client := &fakeClient{err: &provider.AuthError{
		Provider: model.ProviderGmail,
		Message:  "access token rejected",
	}}
	syncer, s, _ := newTestSyncer(t, client)
	ctx := context.Background()

	if _, err := syncer.SyncAccount(ctx, syncAccount()); err == nil {
		t.Fatal("expected error")
	}

	acct, err := s.GetAccountByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if acct.Status != model.AccountError {
		t.Errorf("Status = %q, want error", acct.Status)
	}
}

func TestSyncAccountTransientErrorKeepsStatus(t *testing.T) {
	client := &fakeClient{err: &provider.TransientError{
		Provider: model.ProviderGmail,
		Message:  "upstream 503",
	}}
	syncer, s, _ := newTestSyncer(t, client)
	ctx := context.Background()

	if _, err := syncer.SyncAccount(ctx, syncAccount()); !provider.IsTransient(err) {
		t.Fatalf("err = %v, want transient", err)
	}

	acct, err := s.GetAccountByID(ctx, "a1")
	if err != nil {
		t.Fatalf("GetAccountByID: %v", err)
	}
	if acct.Status != model.AccountActive {
		t.Errorf("Status = %q, transient failures should not change it", acct.Status)
	}
	if acct.LastError == "" {
		t.Error("LastError should record the failure")
	}
}

func TestSyncAccountCredentialResolveFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	syncer := NewSyncer(s, &fakeCreds{resolveErr: errors.New("vault sealed")}, &fakeClassifier{})

	if err := s.UpsertAccount(context.Background(), syncAccount()); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}

	if _, err := syncer.SyncAccount(context.Background(), syncAccount()); err == nil {
		t.Fatal("expected error from credential resolution")
	}
}

func TestSyncAccountClassifierFailure(t *testing.T) {
	s := testutil.NewTestStore(t)
	cl := &fakeClassifier{err: errors.New("rules unavailable")}
	syncer := NewSyncer(s, &fakeCreds{}, cl)
	syncer.newClient = func(ctx context.Context, account model.EmailAccount, creds provider.Credentials) (provider.Client, error) {
		return &fakeClient{emails: []model.EmailMetadata{syncEmail("e1")}}, nil
	}

	ctx := context.Background()
	if err := s.UpsertAccount(ctx, syncAccount()); err != nil {
		t.Fatalf("UpsertAccount: %v", err)
	}

	if _, err := syncer.SyncAccount(ctx, syncAccount()); err == nil {
		t.Fatal("expected error from classifier")
	}

	// The fetched emails are already durable even though the pass failed.
	stored, err := s.GetEmails(ctx, "user-1", store.EmailFilter{})
	if err != nil {
		t.Fatalf("GetEmails: %v", err)
	}
	if len(stored) != 1 {
		t.Errorf("store holds %d emails, want 1", len(stored))
	}
}
