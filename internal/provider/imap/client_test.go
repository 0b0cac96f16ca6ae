package imap

import (
	"context"
	"errors"
	"fmt"
	gosync "sync"
	"testing"
	"time"

	goimap "github.com/emersion/go-imap/v2"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// fakeSession serves a synthetic mailbox and counts disconnects.
type fakeSession struct {
	mu          gosync.Mutex
	count       uint32
	selectErr   error
	fetchErr    error
	delivered   int
	disconnects int

	// failAfter makes fetch deliver that many messages before
	// returning fetchErr, mimicking a stream that breaks mid-batch.
	failAfter int

	// block, when non-nil, is closed by the test to let fetch proceed.
	block chan struct{}
}

func (f *fakeSession) selectInbox() (uint32, error) {
	if f.selectErr != nil {
		return 0, f.selectErr
	}
	return f.count, nil
}

func (f *fakeSession) fetch(set goimap.SeqSet, handle func(fetchedMessage) bool) error {
	if f.block != nil {
		<-f.block
	}
	if f.fetchErr != nil && f.failAfter == 0 {
		return f.fetchErr
	}

	nums, ok := set.Nums()
	if !ok {
		return errors.New("dynamic sequence set")
	}
	for _, seq := range nums {
		f.mu.Lock()
		f.delivered++
		f.mu.Unlock()

		cont := handle(fetchedMessage{
			seq: seq,
			uid: seq + 1000,
			envelope: &goimap.Envelope{
				Subject: fmt.Sprintf("message %d", seq),
				Date:    time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
				From:    []goimap.Address{{Name: "Sender", Mailbox: "sender", Host: "example.com"}},
			},
			flags:        []goimap.Flag{goimap.FlagSeen},
			internalDate: time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(seq) * time.Minute),
			raw:          []byte("Subject: x\r\n\r\nplain body"),
		})
		if !cont {
			return nil
		}
		if f.failAfter > 0 && f.delivered >= f.failAfter {
			return f.fetchErr
		}
	}
	return nil
}

func (f *fakeSession) disconnect() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.disconnects++
	return nil
}

func (f *fakeSession) disconnectCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.disconnects
}

func imapCreds() provider.Credentials {
	return provider.Credentials{
		Provider: model.ProviderIMAP,
		IMAP: &provider.IMAPCredentials{
			Host: "imap.example.com", Port: 993,
			Username: "u", Password: "p", UseTLS: true,
		},
	}
}

func newTestClient(t *testing.T, sess *fakeSession) *Client {
	t.Helper()
	c, err := NewClient("acct-1", imapCreds())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	c.dial = func(provider.IMAPCredentials) (session, error) {
		return sess, nil
	}
	return c
}

func TestFetchEmailsBounded(t *testing.T) {
	sess := &fakeSession{count: 100}
	c := newTestClient(t, sess)

	emails, err := c.FetchEmails(context.Background(), 10)
	if err != nil {
		t.Fatalf("FetchEmails() error = %v", err)
	}
	if len(emails) != 10 {
		t.Errorf("got %d emails, want exactly 10", len(emails))
	}
	if sess.delivered > 10 {
		t.Errorf("session delivered %d messages, fetch should stop at 10", sess.delivered)
	}
	if n := sess.disconnectCount(); n != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", n)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %s after fetch, want disconnected", got)
	}

	// Newest first.
	for i := 1; i < len(emails); i++ {
		if emails[i].ReceivedAt.After(emails[i-1].ReceivedAt) {
			t.Errorf("emails not sorted newest first at index %d", i)
		}
	}

	stats := c.LastFetchStats()
	if stats.Fetched != 10 || stats.Skipped != 0 {
		t.Errorf("stats = %+v, want 10 fetched, 0 skipped", stats)
	}
}

func TestFetchEmailsSmallMailbox(t *testing.T) {
	sess := &fakeSession{count: 3}
	c := newTestClient(t, sess)

	emails, err := c.FetchEmails(context.Background(), 50)
	if err != nil {
		t.Fatalf("FetchEmails() error = %v", err)
	}
	if len(emails) != 3 {
		t.Errorf("got %d emails, want 3", len(emails))
	}
	if n := sess.disconnectCount(); n != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", n)
	}
}

func TestFetchEmailsEmptyMailbox(t *testing.T) {
	sess := &fakeSession{count: 0}
	c := newTestClient(t, sess)

	emails, err := c.FetchEmails(context.Background(), 50)
	if err != nil {
		t.Fatalf("FetchEmails() error = %v", err)
	}
	if emails != nil {
		t.Errorf("got %v, want nil for empty mailbox", emails)
	}
}

func TestFetchEmailsSelectFailure(t *testing.T) {
	sess := &fakeSession{count: 5, selectErr: errors.New("no such mailbox")}
	c := newTestClient(t, sess)

	_, err := c.FetchEmails(context.Background(), 50)
	if err == nil {
		t.Fatal("FetchEmails() succeeded despite select failure")
	}
	if !provider.IsTransient(err) {
		t.Errorf("select failure should be transient, got %v", err)
	}
	if n := sess.disconnectCount(); n != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", n)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
}

func TestFetchEmailsMidStreamFailure(t *testing.T) {
	streamErr := errors.New("connection reset by peer")
	sess := &fakeSession{count: 10, failAfter: 3, fetchErr: streamErr}
	c := newTestClient(t, sess)

	emails, err := c.FetchEmails(context.Background(), 10)
	if err == nil {
		t.Fatalf("FetchEmails() returned %d emails with nil error despite broken stream", len(emails))
	}
	if !provider.IsTransient(err) {
		t.Errorf("stream failure should be transient, got %v", err)
	}
	if !errors.Is(err, streamErr) {
		t.Errorf("FetchEmails() error = %v, want it to wrap the stream error", err)
	}
	if emails != nil {
		t.Errorf("got %d emails alongside an error, want none", len(emails))
	}
	if n := sess.disconnectCount(); n != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", n)
	}
	if got := c.State(); got != StateDisconnected {
		t.Errorf("State() = %s, want disconnected", got)
	}
}

func TestFetchEmailsContextCancelForcesDisconnect(t *testing.T) {
	sess := &fakeSession{count: 5, block: make(chan struct{})}
	c := newTestClient(t, sess)

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchEmails(ctx, 50)
		done <- err
	}()

	// Cancel while the session is mid-fetch, then release it.
	waitFor(t, func() bool { return c.State() == StateFetching })
	cancel()
	waitFor(t, func() bool { return sess.disconnectCount() == 1 })
	close(sess.block)

	err := <-done
	if !errors.Is(err, context.Canceled) {
		t.Errorf("FetchEmails() error = %v, want context.Canceled", err)
	}
	if n := sess.disconnectCount(); n != 1 {
		t.Errorf("disconnect called %d times, want exactly 1", n)
	}
}

func TestFetchEmailsRejectsConcurrentUse(t *testing.T) {
	sess := &fakeSession{count: 5, block: make(chan struct{})}
	c := newTestClient(t, sess)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = c.FetchEmails(context.Background(), 50)
	}()

	waitFor(t, func() bool { return c.State() != StateDisconnected })

	if _, err := c.FetchEmails(context.Background(), 50); err == nil {
		t.Error("second FetchEmails() on a busy client should fail")
	}

	close(sess.block)
	<-done
}

func TestNewClientRejectsWrongProvider(t *testing.T) {
	creds := provider.Credentials{
		Provider: model.ProviderGmail,
		OAuth:    &provider.OAuthCredentials{AccessToken: "t"},
	}
	if _, err := NewClient("acct-1", creds); err == nil {
		t.Fatal("NewClient() accepted GMAIL credentials")
	}
}

func TestLastNSeqSet(t *testing.T) {
	cases := []struct {
		count  uint32
		n      int
		wantLo uint32
	}{
		{count: 100, n: 10, wantLo: 91},
		{count: 10, n: 10, wantLo: 1},
		{count: 3, n: 50, wantLo: 1},
	}
	for _, tc := range cases {
		set := lastNSeqSet(tc.count, tc.n)
		nums, ok := set.Nums()
		if !ok {
			t.Fatalf("lastNSeqSet(%d, %d) produced a dynamic set", tc.count, tc.n)
		}
		if nums[0] != tc.wantLo || nums[len(nums)-1] != tc.count {
			t.Errorf("lastNSeqSet(%d, %d) = [%d..%d], want [%d..%d]",
				tc.count, tc.n, nums[0], nums[len(nums)-1], tc.wantLo, tc.count)
		}
	}
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached in time")
}
