// Package signal is the client for the signaling HTTP API: OTP login, identity
// lookup and the SDP exchange that opens a peer connection.
package signal

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/danmuck/urigallery/internal/auth"
	logs "github.com/danmuck/urigallery/internal/logging"
)

const (
	DefaultTimeout = 15 * time.Second
	maxErrorBody   = 4 << 10
)

var (
	ErrAPI          = errors.New("signal: api error")
	ErrBadEnvelope  = errors.New("signal: malformed response envelope")
	ErrTokenMissing = errors.New("signal: bearer token required")
)

// APIError is an {"type":"error"} envelope.
type APIError struct {
	Op      string
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("signal: %s: status=%d: %s", e.Op, e.Status, e.Message)
}

func (e *APIError) Is(target error) bool { return target == ErrAPI }

// StatusError is a non-2xx response without a usable envelope.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("signal: %s: unexpected status %d: %s", e.Op, e.StatusCode, e.Body)
}

type envelope struct {
	Type  string          `json:"type"`
	Error string          `json:"error,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// OTP is a one-time code issued to an authenticated client for another device.
type OTP struct {
	Code      string `json:"otp"`
	ExpiresAt int64  `json:"expiresAt"`
}

func (o OTP) Expires() time.Time { return time.UnixMilli(o.ExpiresAt) }

type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func New(baseURL, token string, httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: DefaultTimeout}
	}
	return &Client{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		token:   strings.TrimSpace(token),
		http:    httpClient,
	}
}

// WithToken returns a copy of c that authenticates with token.
func (c *Client) WithToken(token string) *Client {
	cp := *c
	cp.token = strings.TrimSpace(token)
	return &cp
}

// Login exchanges an OTP for a bearer token.
func (c *Client) Login(ctx context.Context, otp string) (string, error) {
	var out struct {
		Token string `json:"token"`
	}
	in := struct {
		OTP string `json:"otp"`
	}{OTP: strings.TrimSpace(otp)}
	if err := c.do(ctx, "login", http.MethodPost, "/auth", false, in, &out); err != nil {
		return "", err
	}
	if out.Token == "" {
		return "", fmt.Errorf("%w: login returned no token", ErrBadEnvelope)
	}
	return out.Token, nil
}

// WhoAmI returns the uid bound to the current token.
func (c *Client) WhoAmI(ctx context.Context) (string, error) {
	var out struct {
		UID string `json:"uid"`
	}
	if err := c.do(ctx, "whoami", http.MethodGet, "/auth", true, nil, &out); err != nil {
		return "", err
	}
	return out.UID, nil
}

func (c *Client) RequestOTP(ctx context.Context) (OTP, error) {
	var out OTP
	if err := c.do(ctx, "otp", http.MethodPost, "/auth/otp", true, struct{}{}, &out); err != nil {
		return OTP{}, err
	}
	return out, nil
}

// Connect posts the local SDP offer and returns the peer's answer.
func (c *Client) Connect(ctx context.Context, offer string) (string, error) {
	in := struct {
		SDP string `json:"sdp"`
	}{SDP: offer}
	var out struct {
		SDP string `json:"sdp"`
	}
	if err := c.do(ctx, "connect", http.MethodPost, "/sessions/connections", true, in, &out); err != nil {
		return "", err
	}
	if out.SDP == "" {
		return "", fmt.Errorf("%w: connect returned no sdp", ErrBadEnvelope)
	}
	return out.SDP, nil
}

// Exchange satisfies rtc.Signaler.
func (c *Client) Exchange(ctx context.Context, offer string) (string, error) {
	return c.Connect(ctx, offer)
}

func (c *Client) do(ctx context.Context, op, method, path string, authed bool, in, out any) error {
	if authed && c.token == "" {
		return ErrTokenMissing
	}
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("signal: %s: encode: %w", op, err)
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("signal: %s: %w", op, err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if authed {
		auth.SetBearer(req.Header, c.token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("signal: %s: %w", op, err)
	}
	defer resp.Body.Close()
	logs.Debugf("signal: %s %s status=%d duration=%s", method, path, resp.StatusCode, time.Since(start))

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("signal: %s: read body: %w", op, err)
	}
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil || (env.Type != "success" && env.Type != "error") {
		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			return &StatusError{Op: op, StatusCode: resp.StatusCode, Body: truncate(raw)}
		}
		return fmt.Errorf("%w: %s: %s", ErrBadEnvelope, op, truncate(raw))
	}
	if env.Type == "error" {
		return &APIError{Op: op, Status: resp.StatusCode, Message: env.Error}
	}
	if out == nil || len(env.Data) == 0 {
		return nil
	}
	if err := json.Unmarshal(env.Data, out); err != nil {
		return fmt.Errorf("%w: %s data: %w", ErrBadEnvelope, op, err)
	}
	return nil
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > maxErrorBody {
		return s[:maxErrorBody] + "..."
	}
	return s
}
