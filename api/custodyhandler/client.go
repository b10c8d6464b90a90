package custodyhandler

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
	"github.com/keyquorum/wallet-recovery-backend/verification"
)

// Client is a typed HTTP client for the custody endpoints. It implements
// api.CustodyProvider.
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient creates a client for a custody service instance.
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

// StartVerification asks the named method to issue a challenge for an
// identity. The returned challenge carries the expiry and, for development
// methods, the expected proof as a hint.
func (c *Client) StartVerification(ctx context.Context, identity, method string) (*verification.Challenge, error) {
	req := api.VerificationStartRequest{Identity: identity, Method: method}
	var challenge verification.Challenge
	if err := c.doJSON(ctx, http.MethodPost, "/api/v1/verification/start", nil, &req, &challenge); err != nil {
		return nil, err
	}
	return &challenge, nil
}

// StoreShare stores a share for an identity. The share must already be in
// the four-part encoded form.
func (c *Client) StoreShare(ctx context.Context, identity, share string, proof api.VerificationProof) (*api.ShareResponse, error) {
	req := api.StoreShareRequest{Share: share}
	var resp api.ShareResponse
	if err := c.doJSON(ctx, http.MethodPut, sharePath(identity), &proof, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// RetrieveShare fetches and returns the identity's stored share.
func (c *Client) RetrieveShare(ctx context.Context, identity string, proof api.VerificationProof) (*api.ShareResponse, error) {
	var resp api.ShareResponse
	if err := c.doJSON(ctx, http.MethodGet, sharePath(identity), &proof, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// UpdateShare replaces the identity's stored share.
func (c *Client) UpdateShare(ctx context.Context, identity, share string, proof api.VerificationProof) (*api.ShareResponse, error) {
	req := api.StoreShareRequest{Share: share}
	var resp api.ShareResponse
	if err := c.doJSON(ctx, http.MethodPost, sharePath(identity), &proof, &req, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// DeleteShare removes the identity's stored share. Deleting an absent share
// succeeds.
func (c *Client) DeleteShare(ctx context.Context, identity string, proof api.VerificationProof) error {
	return c.doJSON(ctx, http.MethodDelete, sharePath(identity), &proof, nil, nil)
}

// AuditLog fetches the newest access log entries for an identity, most
// recent first.
func (c *Client) AuditLog(ctx context.Context, identity string, proof api.VerificationProof) (*api.AuditLogResponse, error) {
	var resp api.AuditLogResponse
	if err := c.doJSON(ctx, http.MethodGet, sharePath(identity)+"/audit", &proof, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func sharePath(identity string) string {
	return "/api/v1/shares/" + url.PathEscape(identity)
}

// doJSON sends one request, attaching the verification headers when a proof
// is supplied, and decodes the JSON response into out when out is non-nil.
// Non-2xx responses surface as errors carrying the status and body.
func (c *Client) doJSON(ctx context.Context, method, path string, proof *api.VerificationProof, body, out any) error {
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
	if proof != nil {
		req.Header.Set(api.VerificationMethodHeader, proof.Method)
		req.Header.Set(api.VerificationProofHeader, proof.Proof)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("could not request custody service: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("could not read custody service response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("custody service returned %d: %s", resp.StatusCode, strings.TrimSpace(string(respBody)))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("could not parse custody service response: %w", err)
	}
	return nil
}
