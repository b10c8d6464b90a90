package recoveryhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/keyquorum/wallet-recovery-backend/api"
)

// Client is a typed HTTP client for the token endpoints. It implements
// api.RecoveryProvider.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for a recovery service instance.
//
// Parameters:
//   - baseURL: base URL of the service (e.g. "http://localhost:8080")
//   - timeout: request timeout (optional, default 30 seconds)
func NewClient(baseURL string, timeout ...time.Duration) *Client {
	clientTimeout := 30 * time.Second
	if len(timeout) > 0 {
		clientTimeout = timeout[0]
	}

	return &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: &http.Client{Timeout: clientTimeout},
	}
}

// BuildToken builds and stores a fresh threshold token.
func (c *Client) BuildToken(ctx context.Context, req *api.BuildTokenRequest) (*api.BuildTokenResponse, error) {
	var resp api.BuildTokenResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// TokenInfo fetches the public metadata of the token matching a lookup hash.
func (c *Client) TokenInfo(ctx context.Context, lookupHash string) (*api.TokenInfoResponse, error) {
	var resp api.TokenInfoResponse
	path := "/api/v1/tokens/" + url.PathEscape(lookupHash)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Recover reconstructs root keys from a factor pair.
func (c *Client) Recover(ctx context.Context, req *api.RecoverRequest) (*api.RecoverResponse, error) {
	var resp api.RecoverResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/recover", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RotateFactor replaces one factor of a stored token.
func (c *Client) RotateFactor(ctx context.Context, req *api.RotateFactorRequest) (*api.RotateFactorResponse, error) {
	var resp api.RotateFactorResponse
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/tokens/rotate", req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// doJSON sends one request and decodes the JSON response into out. Non-2xx
// responses surface as errors carrying the status and body.
func (c *Client) doJSON(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("could not marshal request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("could not initialize request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request recovery service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read recovery service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("recovery service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse recovery service response: %w", err)
	}
	return nil
}
