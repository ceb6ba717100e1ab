// Package http implements the reference SyncTransport/AuthTransport over
// plain net/http + encoding/json, matching the JSON wire shapes of spec
// §6 exactly. Grounded on gosn-v2's makeSyncRequest
// (other_examples/jonhadfield-gosn-v2__items.go): a bearer-token
// Authorization header, a single POST per sync round, and 401 mapped to
// the common.ErrInvalidSyncSession sentinel, which is not retried. See
// DESIGN.md for why this replaces
// the teacher's gRPC transport.
package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/eidolon-labs/notesync/internal/client/transport"
	"github.com/eidolon-labs/notesync/internal/common"
	"github.com/eidolon-labs/notesync/internal/logging"
	"github.com/sethvargo/go-retry"
)

const defaultTimeout = 30 * time.Second

// syncRetryBase/syncMaxRetries bound the backoff retry.Do applies around a
// sync round (spec §4.3's pagination loop calls Sync repeatedly already;
// this retries a single round that failed for a transient reason —
// connection reset, 5xx — before that loop ever sees the error).
const (
	syncRetryBase  = 200 * time.Millisecond
	syncMaxRetries = 3
)

// StatusError reports a non-2xx HTTP response that wasn't mapped to a more
// specific sentinel (like common.ErrInvalidSyncSession for 401).
type StatusError struct {
	Method, Path string
	StatusCode   int
	Body         string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("transport: %s %s: unexpected status %d: %s", e.Method, e.Path, e.StatusCode, e.Body)
}

// Client implements both transport.SyncTransport and
// transport.AuthTransport against a single base URL.
type Client struct {
	log        logging.Logger
	baseURL    string
	httpClient *http.Client
	token      func() string // returns the current bearer token, empty if signed out
}

func NewClient(log logging.Logger, baseURL string, token func() string) *Client {
	return &Client{
		log:        log,
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: defaultTimeout},
		token:      token,
	}
}

// Sync retries a failed round with exponential backoff before surfacing
// the error to the sync engine, using sethvargo/go-retry — a dropped
// connection or a transient
// 5xx mid-round shouldn't abort the whole sync chain the way an
// unauthenticated or malformed request should.
func (c *Client) Sync(ctx context.Context, req transport.SyncRequest) (transport.SyncResponse, error) {
	var resp transport.SyncResponse
	backoff := retry.NewExponential(syncRetryBase)
	backoff = retry.WithMaxRetries(syncMaxRetries, backoff)
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := c.do(ctx, http.MethodPost, "/v1/sync", req, &resp, true)
		if err != nil && isRetryableSyncError(err) {
			return retry.RetryableError(err)
		}
		return err
	})
	return resp, err
}

// isRetryableSyncError reports whether a failed sync round is worth
// retrying: a 5xx response or a transport-level failure below the HTTP
// layer, but never an authentication failure or a 4xx application error
// (retrying those would just fail identically every time).
func isRetryableSyncError(err error) bool {
	if errors.Is(err, common.ErrInvalidSyncSession) {
		return false
	}
	var statusErr *StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode >= 500
	}
	return true
}

func (c *Client) Register(ctx context.Context, req transport.RegisterRequest) (transport.RegisterResponse, error) {
	var resp transport.RegisterResponse
	err := c.do(ctx, http.MethodPost, "/v1/register", req, &resp, false)
	return resp, err
}

func (c *Client) KeyParams(ctx context.Context, req transport.KeyParamsRequest) (transport.KeyParamsWire, error) {
	var resp transport.KeyParamsWire
	err := c.do(ctx, http.MethodPost, "/v1/auth/params", req, &resp, false)
	return resp, err
}

func (c *Client) SignIn(ctx context.Context, req transport.SignInRequest) (transport.SignInResponse, error) {
	var resp transport.SignInResponse
	err := c.do(ctx, http.MethodPost, "/v1/auth/sign-in", req, &resp, false)
	return resp, err
}

func (c *Client) ChangePassword(ctx context.Context, token string, req transport.ChangePasswordRequest) error {
	return c.do(ctx, http.MethodPost, "/v1/auth/change-password", req, nil, true)
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, authenticate bool) error {
	var reqBody io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("transport: marshal request: %w", err)
		}
		reqBody = bytes.NewReader(raw)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return fmt.Errorf("transport: build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if authenticate {
		if tok := c.token(); tok != "" {
			httpReq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("transport: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("transport: read response: %w", err)
	}

	if resp.StatusCode == http.StatusUnauthorized {
		return common.ErrInvalidSyncSession
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &StatusError{Method: method, Path: path, StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if out == nil || len(respBody) == 0 {
		return nil
	}
	if err := json.Unmarshal(respBody, out); err != nil {
		return fmt.Errorf("transport: unmarshal response: %w", err)
	}
	return nil
}
