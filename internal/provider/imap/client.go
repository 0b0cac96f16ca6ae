// Package imap implements the IMAP provider client. The underlying
// protocol session is event driven; the client wraps it in an explicit
// state machine so callers see a single blocking FetchEmails call.
package imap

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	goimap "github.com/emersion/go-imap/v2"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// State is the connection lifecycle state of the client.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateReady
	StateFetching
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateFetching:
		return "fetching"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// fetchedMessage is one message as delivered by the session, after the
// session has accumulated its header and body chunks.
type fetchedMessage struct {
	seq          uint32
	uid          uint32
	envelope     *goimap.Envelope
	flags        []goimap.Flag
	internalDate time.Time
	size         int64
	raw          []byte
}

// session is the minimal protocol surface the state machine drives. The
// production implementation wraps go-imap's client; tests substitute a
// fake to exercise transitions and disconnect accounting.
type session interface {
	// selectInbox opens INBOX read-only and returns the message count.
	selectInbox() (uint32, error)

	// fetch streams the messages in set, invoking handle for each one
	// as it completes. handle returns false to stop the stream early.
	fetch(set goimap.SeqSet, handle func(fetchedMessage) bool) error

	// disconnect logs out and closes the connection.
	disconnect() error
}

// dialFunc opens an authenticated session.
type dialFunc func(creds provider.IMAPCredentials) (session, error)

// Client fetches messages from one IMAP mailbox. Each FetchEmails call
// runs the full Disconnected → Connecting → Ready → Fetching →
// Disconnected cycle; the connection never outlives the call.
type Client struct {
	accountID string
	creds     provider.IMAPCredentials
	dial      dialFunc

	mu             sync.Mutex
	state          State
	sess           session
	disconnectOnce *sync.Once
	disconnects    int

	stats provider.FetchStats
}

// NewClient builds an IMAP client for the given account credentials.
func NewClient(accountID string, creds provider.Credentials) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.Provider != model.ProviderIMAP {
		return nil, &provider.UnsupportedProviderError{
			Provider: creds.Provider,
			Reason:   "imap client requires IMAP credentials",
		}
	}
	return &Client{
		accountID: accountID,
		creds:     *creds.IMAP,
		dial:      dialIMAP,
	}, nil
}

// Provider returns the variant tag.
func (c *Client) Provider() model.EmailProvider { return model.ProviderIMAP }

// State returns the current connection state.
func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastFetchStats returns counters for the most recent FetchEmails call.
func (c *Client) LastFetchStats() provider.FetchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// FetchEmails connects, selects INBOX and streams the newest maxResults
// messages. The fetch stops as soon as either the requested count is
// reached or the range is exhausted, and both paths release the
// connection exactly once. A cancelled context forces the disconnect
// before the error is surfaced.
func (c *Client) FetchEmails(
	ctx context.Context,
	maxResults int,
) ([]model.EmailMetadata, error) {
	maxResults = provider.NormalizeMax(maxResults)

	if err := c.connect(ctx); err != nil {
		return nil, err
	}
	// A timed-out session must still disconnect before the timeout
	// error reaches the caller.
	stop := context.AfterFunc(ctx, func() { c.disconnect() })
	defer stop()
	defer c.disconnect()

	sess := c.currentSession()
	if sess == nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("imap session closed before fetch")
	}

	count, err := sess.selectInbox()
	if err != nil {
		c.disconnect()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, &provider.TransientError{
			Provider: model.ProviderIMAP,
			Message:  "selecting INBOX",
			Err:      err,
		}
	}

	if count == 0 {
		c.setStats(provider.FetchStats{})
		return nil, nil
	}

	set := lastNSeqSet(count, maxResults)
	c.setState(StateFetching)

	var (
		emails  []model.EmailMetadata
		listed  int
		skipped int
	)
	fetchErr := sess.fetch(set, func(fm fetchedMessage) bool {
		listed++
		meta, err := normalizeMessage(c.accountID, fm)
		if err != nil {
			// A single unparsable message never fails the batch.
			skipped++
			return len(emails) < maxResults
		}
		emails = append(emails, *meta)
		return len(emails) < maxResults
	})

	c.disconnect()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	if fetchErr != nil {
		// A broken stream fails the batch even when some messages were
		// already collected; the caller must not mistake a truncated
		// batch for a complete one.
		return nil, &provider.TransientError{
			Provider: model.ProviderIMAP,
			Message:  fmt.Sprintf("fetching messages: stream failed after %d", len(emails)),
			Err:      fetchErr,
		}
	}

	// Newest first: sequence numbers ascend with age, so flip them.
	sort.SliceStable(emails, func(i, j int) bool {
		return emails[i].ReceivedAt.After(emails[j].ReceivedAt)
	})

	c.setStats(provider.FetchStats{
		Listed:  listed,
		Fetched: len(emails),
		Skipped: skipped,
	})
	return emails, nil
}

// connect performs the Disconnected → Connecting → Ready transition. Any
// dial or login failure drops straight back to Disconnected.
func (c *Client) connect(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateDisconnected {
		c.mu.Unlock()
		return fmt.Errorf("imap client busy: state %s", c.state)
	}
	c.state = StateConnecting
	c.mu.Unlock()

	if err := ctx.Err(); err != nil {
		c.setState(StateDisconnected)
		return err
	}

	sess, err := c.dial(c.creds)
	if err != nil {
		c.setState(StateDisconnected)
		return err
	}

	c.mu.Lock()
	c.sess = sess
	c.state = StateReady
	c.disconnectOnce = &sync.Once{}
	c.mu.Unlock()
	return nil
}

// disconnect releases the current connection. It is safe to call any
// number of times per connection; only the first call reaches the wire.
func (c *Client) disconnect() {
	c.mu.Lock()
	once := c.disconnectOnce
	sess := c.sess
	c.mu.Unlock()

	if once == nil || sess == nil {
		return
	}
	once.Do(func() {
		_ = sess.disconnect()
		c.mu.Lock()
		c.state = StateDisconnected
		c.sess = nil
		c.disconnects++
		c.mu.Unlock()
	})
}

func (c *Client) currentSession() session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) setStats(s provider.FetchStats) {
	c.mu.Lock()
	c.stats = s
	c.mu.Unlock()
}

// lastNSeqSet selects the highest (newest) n sequence numbers out of
// count messages.
func lastNSeqSet(count uint32, n int) goimap.SeqSet {
	lo := uint32(1)
	if uint32(n) < count {
		lo = count - uint32(n) + 1
	}
	var set goimap.SeqSet
	set.AddRange(lo, count)
	return set
}
