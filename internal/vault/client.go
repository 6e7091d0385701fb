// Package vault retrieves per-user secret material from the encrypted
// secret store. Secrets are referenced by opaque IDs and resolved only
// at call time; they never leave the sync process except as transient
// files scoped to a single scrape.
package vault

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Errors in the vault taxonomy. Both are fatal to a sync run: the
// orchestrator aborts before any portal session is opened.
var (
	// ErrVaultUnavailable is returned when the vault cannot be reached
	// or answers with a server error.
	ErrVaultUnavailable = errors.New("vault unavailable")

	// ErrSecretNotFound is returned when the reference resolves to no
	// secret.
	ErrSecretNotFound = errors.New("secret not found")
)

const (
	defaultTimeout  = 15 * time.Second
	maxAttempts     = 3
	retryBaseDelay  = 500 * time.Millisecond
	maxResponseSize = 10 << 20 // key and cert files are small; 10MB is generous
)

// Client is an HTTP client for the vault's get_secret RPC. Secret
// payloads are base64-encoded at rest and decoded here.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a vault client.
func NewClient(baseURL, token string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		baseURL:    baseURL,
		token:      token,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// secretEnvelope is the wire shape of a get_secret response.
type secretEnvelope struct {
	Data string `json:"data"`
}

// GetSecret resolves one secret reference to its raw bytes. Transport
// failures are retried with backoff; a 404 is ErrSecretNotFound and is
// not retried.
func (c *Client) GetSecret(ctx context.Context, referenceID string) ([]byte, error) {
	endpoint := fmt.Sprintf("%s/v1/secrets/%s", c.baseURL, url.PathEscape(referenceID))

	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrVaultUnavailable, ctx.Err())
			case <-time.After(retryBaseDelay << attempt):
			}
		}

		data, retryable, err := c.fetch(ctx, endpoint)
		if err == nil {
			return data, nil
		}
		if !retryable {
			return nil, err
		}
		lastErr = err
	}

	return nil, lastErr
}

// fetch performs one get_secret attempt. The second return value
// reports whether the failure is worth retrying.
func (c *Client) fetch(ctx context.Context, endpoint string) (data []byte, retryable bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, http.NoBody)
	if err != nil {
		return nil, false, fmt.Errorf("vault request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %w", ErrVaultUnavailable, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode == http.StatusNotFound:
		return nil, false, ErrSecretNotFound
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode >= http.StatusInternalServerError:
		return nil, true, fmt.Errorf("%w: status %d", ErrVaultUnavailable, resp.StatusCode)
	default:
		return nil, false, fmt.Errorf("%w: status %d", ErrVaultUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, true, fmt.Errorf("%w: read body: %w", ErrVaultUnavailable, err)
	}

	var envelope secretEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, false, fmt.Errorf("%w: decode envelope: %w", ErrVaultUnavailable, err)
	}

	raw, err := base64.StdEncoding.DecodeString(envelope.Data)
	if err != nil {
		return nil, false, fmt.Errorf("%w: decode secret payload: %w", ErrVaultUnavailable, err)
	}

	return raw, false, nil
}
