// Package outlook implements the Outlook provider client against the
// Microsoft Graph REST API. Unlike Gmail there is no per-message detail
// round trip: one paged query with a field projection returns everything
// the canonical record needs.
package outlook

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/nhle/gtd-mail/internal/model"
	"github.com/nhle/gtd-mail/internal/provider"
)

// GraphBaseURL is the Microsoft Graph v1.0 root.
const GraphBaseURL = "https://graph.microsoft.com/v1.0"

// selectFields is the Graph $select projection covering the canonical
// record, so the list query stays cheap.
const selectFields = "id,conversationId,subject,from,toRecipients,ccRecipients," +
	"bccRecipients,receivedDateTime,sentDateTime,bodyPreview,isRead,isDraft," +
	"flag,categories,hasAttachments,parentFolderId"

// Client fetches messages from one Outlook account via Microsoft Graph.
// It retries 429 responses with exponential backoff and maps Graph
// failures into the shared error taxonomy.
type Client struct {
	accountID  string
	baseURL    string
	token      string
	httpClient *http.Client
	maxRetries int

	mu    sync.Mutex
	stats provider.FetchStats
}

// NewClient builds an Outlook client for the given account credentials.
// baseURL overrides the Graph root when non-empty, for tests.
func NewClient(
	accountID string,
	creds provider.Credentials,
	baseURL string,
) (*Client, error) {
	if err := creds.Validate(); err != nil {
		return nil, err
	}
	if creds.Provider != model.ProviderOutlook {
		return nil, &provider.UnsupportedProviderError{
			Provider: creds.Provider,
			Reason:   "outlook client requires OUTLOOK credentials",
		}
	}
	if baseURL == "" {
		baseURL = GraphBaseURL
	}

	return &Client{
		accountID: accountID,
		baseURL:   strings.TrimRight(baseURL, "/"),
		token:     creds.OAuth.AccessToken,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		maxRetries: 3,
	}, nil
}

// Provider returns the variant tag.
func (c *Client) Provider() model.EmailProvider { return model.ProviderOutlook }

// LastFetchStats returns counters for the most recent FetchEmails call.
func (c *Client) LastFetchStats() provider.FetchStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stats
}

// FetchEmails issues a single projected list query ordered newest first
// and normalizes each entry. A single entry that cannot be mapped is
// skipped, never failing the batch.
func (c *Client) FetchEmails(
	ctx context.Context,
	maxResults int,
) ([]model.EmailMetadata, error) {
	maxResults = provider.NormalizeMax(maxResults)

	q := url.Values{}
	q.Set("$top", strconv.Itoa(maxResults))
	q.Set("$select", selectFields)
	q.Set("$orderby", "receivedDateTime desc")

	var page messagePage
	if err := c.get(ctx, "/me/messages?"+q.Encode(), &page); err != nil {
		return nil, err
	}

	emails := make([]model.EmailMetadata, 0, len(page.Value))
	skipped := 0
	for _, raw := range page.Value {
		meta, err := normalizeMessage(c.accountID, raw)
		if err != nil {
			skipped++
			continue
		}
		emails = append(emails, *meta)
		if len(emails) == maxResults {
			break
		}
	}

	c.mu.Lock()
	c.stats = provider.FetchStats{
		Listed:  len(page.Value),
		Fetched: len(emails),
		Skipped: skipped,
	}
	c.mu.Unlock()

	return emails, nil
}

// get performs an authenticated GET against the Graph API, retrying 429
// responses with exponential backoff.
func (c *Client) get(ctx context.Context, path string, result interface{}) error {
	fullURL := c.baseURL + path

	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
		if err != nil {
			return fmt.Errorf("creating request: %w", err)
		}
		req.Header.Set("Authorization", "Bearer "+c.token)
		req.Header.Set("Accept", "application/json")

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return &provider.TransientError{
				Provider: model.ProviderOutlook,
				Message:  "executing graph request",
				Err:      err,
			}
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close()
		if readErr != nil {
			return fmt.Errorf("reading response body: %w", readErr)
		}

		switch {
		case resp.StatusCode == http.StatusOK:
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("decoding graph response: %w", err)
			}
			return nil

		case resp.StatusCode == http.StatusTooManyRequests:
			wait := retryAfterDuration(resp, attempt)
			lastErr = &provider.TransientError{
				Provider: model.ProviderOutlook,
				Message:  fmt.Sprintf("rate limited (429) on %s", path),
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(wait):
				continue
			}

		case resp.StatusCode == http.StatusUnauthorized:
			return &provider.AuthError{
				Provider: model.ProviderOutlook,
				Message:  "graph rejected the access token (401)",
			}

		case resp.StatusCode >= http.StatusInternalServerError:
			return &provider.TransientError{
				Provider: model.ProviderOutlook,
				Message: fmt.Sprintf(
					"graph returned %d for %s", resp.StatusCode, path,
				),
			}

		default:
			return fmt.Errorf(
				"unexpected status %d for %s: %s",
				resp.StatusCode, path, truncateBody(body),
			)
		}
	}

	return lastErr
}

// retryAfterDuration honors a Retry-After header when present, falling
// back to exponential backoff keyed on the attempt number.
func retryAfterDuration(resp *http.Response, attempt int) time.Duration {
	if v := resp.Header.Get("Retry-After"); v != "" {
		if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return time.Duration(1<<uint(attempt)) * time.Second
}

func truncateBody(body []byte) string {
	const limit = 256
	if len(body) <= limit {
		return string(body)
	}
	return string(body[:limit]) + "..."
}
