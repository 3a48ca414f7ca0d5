// Package registry is the request/response facade over the session
// management boundary: login, sessions, schedules and the admin overview.
//
// Every call reads the bearer token from an [auth.Store]. A call made with
// no token fails with an [AuthError] without touching the network, and a
// 401 from the registry revokes the token before the AuthError is returned,
// so nothing else is attempted until a new login succeeds. Any other
// failure is a [RequestError]. Calls are never retried.
//
// Log prefix: [registry].
package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gluk-w/cohub/internal/auth"
	"github.com/gluk-w/cohub/internal/logutil"
	"github.com/google/uuid"
)

const defaultTimeout = 10 * time.Second

type Client struct {
	baseURL    string
	tokens     *auth.Store
	httpClient *http.Client
	keyKind    KeyKind
}

type Option func(*Client)

// WithHTTPClient replaces the default HTTP client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithScheduleKeyKind sets how schedules are addressed (default by name).
func WithScheduleKeyKind(k KeyKind) Option {
	return func(c *Client) { c.keyKind = k }
}

// New creates a client for the registry rooted at baseURL
// (e.g. "http://localhost:8000/api").
func New(baseURL string, tokens *auth.Store, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		tokens:     tokens,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// BaseURL returns the registry root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out interface{}) error {
	token, ok := c.tokens.Token()
	if !ok {
		return &AuthError{Op: op}
	}
	resp, err := c.send(ctx, op, method, path, token, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		log.Printf("[registry] %s: token rejected", op)
		c.tokens.Revoke()
		return &AuthError{Op: op}
	}
	return decodeResponse(op, resp, out)
}

func (c *Client) send(ctx context.Context, op, method, path, token string, body interface{}) (*http.Response, error) {
	var reqBody io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s: marshal body: %w", op, err)
		}
		reqBody = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("%s: create request: %w", op, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[registry] %s %s: %v", method, path, err)
		return nil, &RequestError{Op: op, Detail: err.Error(), Err: err}
	}
	return resp, nil
}

func decodeResponse(op string, resp *http.Response, out interface{}) error {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail := errorDetail(resp)
		log.Printf("[registry] %s: HTTP %d: %s", op, resp.StatusCode, logutil.SanitizeForLog(detail))
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Detail: detail}
	}
	if out == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &RequestError{Op: op, StatusCode: resp.StatusCode, Detail: "invalid response body", Err: err}
	}
	return nil
}

// errorDetail pulls the "detail" field out of an error body, falling back
// to the status text.
func errorDetail(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	var payload struct {
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(body, &payload); err == nil && payload.Detail != "" {
		return payload.Detail
	}
	if text := http.StatusText(resp.StatusCode); text != "" {
		return text
	}
	return "Request failed"
}

// Login exchanges credentials for a token and installs it in the store.
// Bad credentials fail with an AuthError and clear any stored token.
func (c *Client) Login(ctx context.Context, uid, password string) (*LoginResult, error) {
	const op = "login"
	resp, err := c.send(ctx, op, http.MethodPost, "/login", "", map[string]string{
		"uid":      uid,
		"password": password,
	})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		c.tokens.Reject()
		return nil, &AuthError{Op: op}
	}
	var out LoginResult
	if err := decodeResponse(op, resp, &out); err != nil {
		return nil, err
	}
	if out.Token == "" {
		return nil, &RequestError{Op: op, StatusCode: resp.StatusCode, Detail: "registry returned no token"}
	}
	if err := c.tokens.Set(auth.Credential{
		Token:    out.Token,
		UID:      out.UID,
		Username: out.Username,
		Server:   c.baseURL,
	}); err != nil {
		return nil, fmt.Errorf("store credential: %w", err)
	}
	return &out, nil
}

// ListSessions returns the caller's sessions in registry order.
func (c *Client) ListSessions(ctx context.Context) ([]Session, error) {
	var out []Session
	if err := c.do(ctx, "list sessions", http.MethodGet, "/sessions", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// CreateSession allocates a new session and returns its id.
func (c *Client) CreateSession(ctx context.Context) (string, error) {
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := c.do(ctx, "create session", http.MethodPost, "/sessions", nil, &out); err != nil {
		return "", err
	}
	if out.SessionID == "" {
		return "", &RequestError{Op: "create session", StatusCode: http.StatusOK, Detail: "registry returned no session id"}
	}
	log.Printf("[registry] created session %s", logutil.SanitizeForLog(out.SessionID))
	return out.SessionID, nil
}

// ResumeSession restarts the backing process of a session that is not
// alive. Resuming an alive session is a caller error the registry reports.
func (c *Client) ResumeSession(ctx context.Context, id string) error {
	return c.do(ctx, "resume session", http.MethodPost, sessionPath(id)+"/resume", nil, nil)
}

// CloseSession ends the backing process and keeps the record.
func (c *Client) CloseSession(ctx context.Context, id string) error {
	return c.do(ctx, "close session", http.MethodDelete, sessionPath(id), nil, nil)
}

// DeleteSession removes the record permanently. The registry rejects this
// for alive sessions.
func (c *Client) DeleteSession(ctx context.Context, id string) error {
	return c.do(ctx, "delete session", http.MethodDelete, sessionPath(id)+"/delete", nil, nil)
}

// AdminOverview fetches every user's sessions and all schedules in one call.
func (c *Client) AdminOverview(ctx context.Context) (*Overview, error) {
	var out Overview
	if err := c.do(ctx, "admin overview", http.MethodGet, "/admin/overview", nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StreamURL returns the websocket address of a session's terminal stream.
// The token travels as a query parameter because the websocket handshake
// cannot carry custom headers from every client.
func (c *Client) StreamURL(id string) (string, error) {
	token, ok := c.tokens.Token()
	if !ok {
		return "", &AuthError{Op: "attach"}
	}
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "https", "wss":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws/terminal/" + url.PathEscape(id)
	u.RawPath = ""
	u.RawQuery = url.Values{"token": {token}}.Encode()
	return u.String(), nil
}

func sessionPath(id string) string {
	return "/sessions/" + url.PathEscape(id)
}
