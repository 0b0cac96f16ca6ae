// Package gmail implements the Gmail provider client on top of the
// Gmail REST API (google.golang.org/api/gmail/v1).
package gmail

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"golang.org/x/oauth2"
	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"
	gmailapi "google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

const (
	// Gmail quota units per call, per
	// https://developers.google.com/gmail/api/v1/reference/quota
	quotaUnitsMessagesGet     = 5
	quotaUnitsPerMessagesList = 1

	quotaUnitsPerSecond = 250
	rateLimitPerSecond  = quotaUnitsPerSecond * 0.8
	rateLimitBurst      = quotaUnitsPerSecond

	// detailConcurrency bounds in-flight detail requests so one batch
	// cannot blow through the per-minute request quota.
	detailConcurrency = 5
)

// Client fetches messages from one Gmail account and normalizes them
// into the canonical model. Token refresh is the vault's job: the client
// consumes credentials as given and reports expiry as an AuthError.
type Client struct {
	accountID string
	svc       *gmailapi.Service
	limiter   *rate.Limiter

	mu    sync.Mutex
	stats provider.FetchStats
}

// NewClient builds a Gmail client for the given account credentials.
// Extra client options are mainly for tests (endpoint override).
func NewClient(
	ctx context.Context,
	accountID string,
	creds provider.Credentials,
	opts ...option.ClientOption,
) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.Provider != model.ProviderGmail {
		return nil, &provider.UnsupportedProviderError{
			Provider: creds.Provider,
			Reason:   "gmail client requires GMAIL credentials",
		}
	}

	src := oauth2.StaticTokenSource(&oauth2.Token{
		AccessToken: creds.OAuth.AccessToken,
	})
	httpClient := oauth2.NewClient(ctx, src)

	allOpts := append(
		[]option.ClientOption{option.WithHTTPClient(httpClient)},
		opts...,
	)
	svc, err := gmailapi.NewService(ctx, allOpts...)
	if err != nil {
		return nil, fmt.Errorf("creating gmail service: %w", err)
	}

	return &Client{
		accountID: accountID,
		svc:       svc,
		limiter:   rate.NewLimiter(rateLimitPerSecond, rateLimitBurst),
	}, nil
}

// Provider returns the variant tag.
func (c *Client) Provider() model.EmailProvider { return model.ProviderGmail }

// LastFetchStats returns counters for the most recent FetchEmails call.
func (c *Client) LastFetchStats() provider.FetchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// FetchEmails lists up to maxResults message IDs and fetches each one's
// full detail with a bounded fan-out, preserving the provider's
// newest-first list order. A message that fails to parse is skipped; it
// never fails the batch.
func (c *Client) FetchEmails(
	ctx context.Context,
	maxResults int,
) ([]model.EmailMetadata, error) {
	maxResults = provider.NormalizeMax(maxResults)

	if err := c.limiter.WaitN(ctx, quotaUnitsPerMessagesList); err != nil {
		return nil, err
	}

	list, err := c.svc.Users.Messages.List("me").
		MaxResults(int64(maxResults)).
		Context(ctx).
		Do()
	if err != nil {
		return nil, c.mapError("listing messages", err)
	}

	ids := list.Messages
	if len(ids) > maxResults {
		ids = ids[:maxResults]
	}

	// Fixed fan-out of detail requests; results keep list order.
	results := make([]*model.EmailMetadata, len(ids))
	skipped := make([]bool, len(ids))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(detailConcurrency)

	for i, id := range ids {
		g.Go(func() error {
			meta, err := c.fetchDetail(gctx, id.Id)
			if err != nil {
				if provider.IsAuthError(err) || provider.IsTransient(err) {
					return err
				}
				// Contained: a single malformed message must not
				// abort the batch.
				skipped[i] = true
				return nil
			}
			results[i] = meta
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	emails := make([]model.EmailMetadata, 0, len(ids))
	nSkipped := 0
	for i, meta := range results {
		if meta != nil {
			emails = append(emails, *meta)
		} else if skipped[i] {
			nSkipped++
		}
	}

	c.mu.Lock()
	c.stats = provider.FetchStats{
		Listed:  len(ids),
		Fetched: len(emails),
		Skipped: nSkipped,
	}
	c.mu.Unlock()

	return emails, nil
}

// fetchDetail retrieves one message in full format and normalizes it.
func (c *Client) fetchDetail(
	ctx context.Context,
	id string,
) (*model.EmailMetadata, error) {
	if err := c.limiter.WaitN(ctx, quotaUnitsMessagesGet); err != nil {
		return nil, err
	}

	msg, err := c.svc.Users.Messages.Get("me", id).
		Format("full").
		Context(ctx).
		Do()
	if err != nil {
		mapped := c.mapError(fmt.Sprintf("getting message %s", id), err)
		if provider.IsAuthError(mapped) || provider.IsTransient(mapped) {
			return nil, mapped
		}
		return nil, &provider.MalformedMessageError{
			Provider:  model.ProviderGmail,
			MessageID: id,
			Err:       err,
		}
	}

	meta, err := normalizeMessage(c.accountID, msg)
	if err != nil {
		return nil, &provider.MalformedMessageError{
			Provider:  model.ProviderGmail,
			MessageID: id,
			Err:       err,
		}
	}
	return meta, nil
}

// mapError translates Gmail API failures into the shared error taxonomy.
func (c *Client) mapError(op string, err error) error {
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized:
			return &provider.AuthError{
				Provider: model.ProviderGmail,
				Message:  op + ": access token rejected",
				Err:      err,
			}
		case apiErr.Code == http.StatusTooManyRequests,
			apiErr.Code >= http.StatusInternalServerError:
			return &provider.TransientError{
				Provider: model.ProviderGmail,
				Message:  op,
				Err:      err,
			}
		}
	}
	return fmt.Errorf("%s: %w", op, err)
}
