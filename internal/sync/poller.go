package sync

import (
	"context"
	gosync "sync"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// defaultPollInterval is used when an account has no sync frequency
// configured.
const defaultPollInterval = 5 * time.Minute

// SyncResult reports the outcome of one completed sync pass.
type SyncResult struct {
	AccountID string
	Stats     model.SyncStats
	Err       error

	// NeedsReconnect is set when the pass failed because the provider
	// rejected the stored credentials outright.
	NeedsReconnect bool
}

// Poller orchestrates background polling of registered accounts. Each
// account gets its own goroutine ticking at the account's configured
// interval; results are delivered on a channel.
type Poller struct {
	syncer   *Syncer
	accounts []model.EmailAccount

	statuses     map[string]*model.EmailSyncStatus
	disconnected map[string]bool
	resultCh     chan SyncResult
	triggers     map[string]chan struct{}
	stopCh       chan struct{}

	mu      gosync.Mutex
	running bool
}

// NewPoller creates a Poller over the given syncer.
func NewPoller(s *Syncer) *Poller {
	return &Poller{
		syncer:       s,
		statuses:     make(map[string]*model.EmailSyncStatus),
		disconnected: make(map[string]bool),
		resultCh:     make(chan SyncResult, 16),
		triggers:     make(map[string]chan struct{}),
		stopCh:       make(chan struct{}),
	}
}

// RegisterAccount adds an account to the polling set. Disconnected
// accounts are registered but skipped until reconnected.
func (p *Poller) RegisterAccount(account model.EmailAccount) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.accounts = append(p.accounts, account)
	p.statuses[account.ID] = &model.EmailSyncStatus{
		AccountID: account.ID,
		State:     model.SyncIdle,
	}
	p.triggers[account.ID] = make(chan struct{}, 1)
}

// Start launches one polling goroutine per registered account. Calling
// Start on a running poller is a no-op.
func (p *Poller) Start(ctx context.Context) {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return
	}
	p.running = true
	accounts := make([]model.EmailAccount, len(p.accounts))
	copy(accounts, p.accounts)
	p.mu.Unlock()

	for _, account := range accounts {
		go p.pollAccount(ctx, account)
	}
}

// Stop halts all polling goroutines.
func (p *Poller) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.running {
		return
	}

	close(p.stopCh)
	p.running = false
}

// Results returns the channel sync outcomes are delivered on.
func (p *Poller) Results() <-chan SyncResult {
	return p.resultCh
}

// TriggerAccount requests an immediate sync of one account. Each
// account has its own trigger channel so a request can only be picked
// up by that account's loop. Requests for unregistered accounts are
// dropped, as are duplicates while one is already pending.
func (p *Poller) TriggerAccount(accountID string) {
	p.mu.Lock()
	trigger := p.triggers[accountID]
	p.mu.Unlock()

	if trigger == nil {
		return
	}
	select {
	case trigger <- struct{}{}:
	default:
	}
}

// TriggerAll requests an immediate sync of every registered account.
func (p *Poller) TriggerAll() {
	p.mu.Lock()
	accounts := make([]model.EmailAccount, len(p.accounts))
	copy(accounts, p.accounts)
	p.mu.Unlock()

	for _, account := range accounts {
		p.TriggerAccount(account.ID)
	}
}

// Statuses returns a snapshot of the current sync status of all
// registered accounts.
func (p *Poller) Statuses() []model.EmailSyncStatus {
	p.mu.Lock()
	defer p.mu.Unlock()

	statuses := make([]model.EmailSyncStatus, 0, len(p.statuses))
	for _, s := range p.statuses {
		statuses = append(statuses, *s)
	}
	return statuses
}

// pollAccount runs the polling loop for a single account.
func (p *Poller) pollAccount(ctx context.Context, account model.EmailAccount) {
	p.mu.Lock()
	trigger := p.triggers[account.ID]
	p.mu.Unlock()

	interval := time.Duration(account.Settings.SyncFrequencyMin) * time.Minute
	if interval <= 0 {
		interval = defaultPollInterval
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	// Initial pass immediately.
	p.syncAndReport(ctx, account)

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.syncAndReport(ctx, account)
		case <-trigger:
			p.syncAndReport(ctx, account)
		}
	}
}

// syncAndReport performs one pass, updates the status snapshot, and
// sends the result. A disconnected account is skipped entirely until the
// user reconnects it.
func (p *Poller) syncAndReport(ctx context.Context, account model.EmailAccount) {
	if p.isDisconnected(account.ID) {
		return
	}

	p.setStatus(account.ID, model.SyncInProgress, model.SyncStats{}, nil)

	stats, err := p.syncer.SyncAccount(ctx, account)

	result := SyncResult{AccountID: account.ID, Stats: stats, Err: err}
	if err != nil {
		result.NeedsReconnect = provider.NeedsReconnect(err)
		if result.NeedsReconnect {
			p.markDisconnected(account.ID)
		}
		p.setStatus(account.ID, model.SyncError, stats, err)
	} else {
		p.setStatus(account.ID, model.SyncIdle, stats, nil)
	}

	select {
	case p.resultCh <- result:
	case <-p.stopCh:
	case <-ctx.Done():
	}
}

// isDisconnected reports whether a previous pass flagged the account's
// credentials as rejected.
func (p *Poller) isDisconnected(accountID string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.disconnected[accountID]
}

// markDisconnected takes the account out of the polling rotation until
// Reconnect is called.
func (p *Poller) markDisconnected(accountID string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.disconnected[accountID] = true
}

// Reconnect puts a disconnected account back into the polling rotation,
// typically after the user re-authorized it.
func (p *Poller) Reconnect(accountID string) {
	p.mu.Lock()
	delete(p.disconnected, accountID)
	p.mu.Unlock()

	p.TriggerAccount(accountID)
}

// setStatus updates the status snapshot for one account.
func (p *Poller) setStatus(accountID string, state model.SyncState, stats model.SyncStats, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.statuses[accountID]
	if !ok {
		s = &model.EmailSyncStatus{AccountID: accountID}
		p.statuses[accountID] = s
	}

	s.State = state
	s.Stats = stats
	if state == model.SyncIdle {
		s.LastSyncAt = time.Now()
		s.Error = ""
	}
	if err != nil {
		s.Error = err.Error()
	}
}
