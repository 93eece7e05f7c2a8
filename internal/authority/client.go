package authority

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fiscalstream/emissor/internal/document"
)

// DefaultTimeout bounds every authority call. No operation blocks
// indefinitely; on timeout the caller decides whether the failure is
// swallowed (polling) or surfaced (user-initiated actions).
const DefaultTimeout = 15 * time.Second

// Credentials is one environment's endpoint and client-credentials pair.
type Credentials struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
}

// Client talks to the certifying authority for a single environment.
// Safe for concurrent use; the token cache is guarded internally.
type Client struct {
	env   document.Environment
	creds Credentials
	http  *http.Client

	tokens *tokenCache
}

// Option configures a Client.
type Option func(*Client)

// WithTimeout overrides the default per-call timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		c.http.Timeout = d
	}
}

// WithHTTPClient substitutes the transport, used by tests.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// New creates a client bound to one environment's credentials.
func New(env document.Environment, creds Credentials, opts ...Option) *Client {
	c := &Client{
		env:   env,
		creds: creds,
		http:  &http.Client{Timeout: DefaultTimeout},
	}
	c.tokens = newTokenCache(c.fetchToken)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Environment returns the environment this client submits against.
func (c *Client) Environment() document.Environment {
	return c.env
}

// typePath maps a document type onto its endpoint segment.
func typePath(t document.Type) (string, error) {
	switch t {
	case document.TypePointOfSale:
		return "nfce", nil
	case document.TypeService:
		return "nfse", nil
	default:
		return "", fmt.Errorf("no authority endpoint for document type %q", t)
	}
}

// Authenticate exchanges the client credentials for a bearer token,
// returning the cached token while it is still fresh.
func (c *Client) Authenticate(ctx context.Context) (string, error) {
	return c.tokens.get(ctx)
}

// fetchToken performs the client-credentials grant.
func (c *Client) fetchToken(ctx context.Context) (string, time.Time, error) {
	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {c.creds.ClientID},
		"client_secret": {c.creds.ClientSecret},
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.creds.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return "", time.Time{}, fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", time.Time{}, &document.TransientNetworkError{Op: "authenticate", Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", time.Time{}, &document.AuthError{
			Message: fmt.Sprintf("token endpoint returned %d", resp.StatusCode),
		}
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return "", time.Time{}, &document.AuthError{Message: "malformed token response"}
	}
	if tok.AccessToken == "" {
		return "", time.Time{}, &document.AuthError{Message: "token response missing access_token"}
	}

	// Token lifetime is authority-defined; never assume a fixed value.
	expiry := time.Now().Add(time.Duration(tok.ExpiresIn) * time.Second)
	return tok.AccessToken, expiry, nil
}

// Submit posts a payload to the type-specific submission endpoint.
//
// NOT idempotent: two calls file two authority-side attempts. Never invoked
// in a retry loop; every call corresponds to one explicit operator action.
func (c *Client) Submit(ctx context.Context, payload []byte, t document.Type) (SubmitAck, error) {
	path, err := typePath(t)
	if err != nil {
		return SubmitAck{}, err
	}

	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/%s", c.creds.BaseURL, path),
		bytes.NewReader(payload), "application/json")
	if err != nil {
		return SubmitAck{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return SubmitAck{}, parseRejection(resp.Body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return SubmitAck{}, &document.TransientNetworkError{
			Op:    "submit",
			Cause: fmt.Errorf("authority returned %d", resp.StatusCode),
		}
	}

	var ack SubmitAck
	if err := json.NewDecoder(resp.Body).Decode(&ack); err != nil {
		return SubmitAck{}, fmt.Errorf("decode submission ack: %w", err)
	}
	if ack.AuthorityID == "" {
		return SubmitAck{}, fmt.Errorf("submission ack missing authority id")
	}

	slog.Debug("submission acknowledged",
		"authority_id", ack.AuthorityID,
		"status", ack.Status,
		"type", t,
	)
	return ack, nil
}

// QueryStatus fetches the authority's current view of a document.
// A 404 maps to NotFoundError; within the first seconds after submission
// callers treat that as transient, not as a hard failure.
func (c *Client) QueryStatus(ctx context.Context, authorityID string, t document.Type) (StatusResponse, error) {
	path, err := typePath(t)
	if err != nil {
		return StatusResponse{}, err
	}

	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/%s/%s", c.creds.BaseURL, path, url.PathEscape(authorityID)),
		nil, "")
	if err != nil {
		return StatusResponse{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return StatusResponse{}, &document.NotFoundError{AuthorityID: authorityID}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return StatusResponse{}, &document.TransientNetworkError{
			Op:    "query status",
			Cause: fmt.Errorf("authority returned %d", resp.StatusCode),
		}
	}

	var st StatusResponse
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return StatusResponse{}, fmt.Errorf("decode status response: %w", err)
	}
	return st, nil
}

// Cancel requests cancellation of an authorized document. Justification
// length is pre-checked by the workflow; the authority enforces its own
// minimum server-side as well.
func (c *Client) Cancel(ctx context.Context, authorityID string, t document.Type, justification string) error {
	path, err := typePath(t)
	if err != nil {
		return err
	}

	body, err := json.Marshal(map[string]string{"justificativa": justification})
	if err != nil {
		return fmt.Errorf("marshal cancellation request: %w", err)
	}

	resp, err := c.do(ctx, http.MethodPost,
		fmt.Sprintf("%s/v1/%s/%s/cancelamento", c.creds.BaseURL, path, url.PathEscape(authorityID)),
		bytes.NewReader(body), "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &document.NotFoundError{AuthorityID: authorityID}
	}
	if resp.StatusCode >= 400 && resp.StatusCode < 500 {
		return parseRejection(resp.Body)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &document.TransientNetworkError{
			Op:    "cancel",
			Cause: fmt.Errorf("authority returned %d", resp.StatusCode),
		}
	}
	return nil
}

// FetchArtifact streams a rendered document. The caller owns the returned
// reader and must close it.
func (c *Client) FetchArtifact(ctx context.Context, authorityID string, t document.Type, kind ArtifactKind) (io.ReadCloser, error) {
	path, err := typePath(t)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown artifact kind %q", kind)
	}

	segment := "pdf"
	if kind == ArtifactMachine {
		segment = "xml"
	}

	resp, err := c.do(ctx, http.MethodGet,
		fmt.Sprintf("%s/v1/%s/%s/%s", c.creds.BaseURL, path, url.PathEscape(authorityID), segment),
		nil, "")
	if err != nil {
		return nil, err
	}

	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, &document.NotFoundError{AuthorityID: authorityID}
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close()
		return nil, &document.TransientNetworkError{
			Op:    "fetch artifact",
			Cause: fmt.Errorf("authority returned %d", resp.StatusCode),
		}
	}
	return resp.Body, nil
}

// do issues an authenticated request, transparently acquiring a token.
func (c *Client) do(ctx context.Context, method, rawURL string, body io.Reader, contentType string) (*http.Response, error) {
	token, err := c.tokens.get(ctx)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, method, rawURL, body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &document.TransientNetworkError{Op: method + " " + rawURL, Cause: err}
	}

	// A 401 means the cached token went stale early; drop it so the next
	// call re-authenticates. The current call still fails.
	if resp.StatusCode == http.StatusUnauthorized {
		resp.Body.Close()
		c.tokens.invalidate()
		return nil, &document.AuthError{Message: "authority rejected bearer token"}
	}
	return resp, nil
}

// parseRejection decodes the authority's structured validation messages into
// a SubmissionError, preserving every code/description pair for display.
func parseRejection(body io.Reader) error {
	raw, err := io.ReadAll(io.LimitReader(body, 1<<20))
	if err != nil {
		return &document.SubmissionError{}
	}

	var rb rejectionBody
	if err := json.Unmarshal(raw, &rb); err == nil {
		msgs := make([]document.AuthorityMessage, 0, len(rb.Errors)+1)
		for _, m := range rb.Errors {
			msgs = append(msgs, document.AuthorityMessage{Code: m.Code, Description: m.Description})
		}
		if rb.Code != "" || rb.Description != "" {
			msgs = append(msgs, document.AuthorityMessage{Code: rb.Code, Description: rb.Description})
		}
		if len(msgs) > 0 {
			return &document.SubmissionError{Messages: msgs}
		}
	}

	// Unstructured rejection body: keep the raw text rather than losing it.
	text := strings.TrimSpace(string(raw))
	if text == "" {
		return &document.SubmissionError{}
	}
	return &document.SubmissionError{
		Messages: []document.AuthorityMessage{{Description: text}},
	}
}
