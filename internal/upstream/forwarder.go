package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Sentinel outcomes of a webhook forward. ErrNotConfigured signals operator
// misconfiguration, not transient failure, and must never be retried.
var (
	ErrNotConfigured   = errors.New("upstream webhook not configured")
	ErrTimeout         = errors.New("upstream request timed out")
	ErrConnect         = errors.New("could not connect to upstream")
	ErrBadUpstreamBody = errors.New("invalid response from upstream")
)

// StatusError reports a non-2xx upstream reply.
type StatusError struct {
	Code int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("upstream returned status %d", e.Code)
}

const secretHeader = "X-Webhook-Secret"

// Forwarder posts validated payloads to a workflow webhook with a shared
// secret and a per-call deadline independent of the caller's connection.
type Forwarder struct {
	url     string
	secret  string
	timeout time.Duration
	client  *http.Client
}

func New(url, secret string, timeout time.Duration) *Forwarder {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Forwarder{
		url:     url,
		secret:  secret,
		timeout: timeout,
		client:  &http.Client{},
	}
}

// SetHTTPClient overrides the transport. Tests only.
func (f *Forwarder) SetHTTPClient(c *http.Client) { f.client = c }

// Forward sends payload as JSON and returns the raw 2xx body. Failures are
// mapped onto the sentinel errors above so handlers can classify without
// inspecting transport internals.
func (f *Forwarder) Forward(ctx context.Context, payload any) ([]byte, error) {
	if f.url == "" {
		return nil, ErrNotConfigured
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, f.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if f.secret != "" {
		req.Header.Set(secretHeader, f.secret)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, ErrTimeout
		}
		return nil, fmt.Errorf("%w: %v", ErrConnect, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &StatusError{Code: resp.StatusCode}
	}
	return raw, nil
}

// ForwardJSON forwards and additionally requires the 2xx body to parse as a
// JSON object, returning ErrBadUpstreamBody otherwise. Raw bodies are never
// surfaced past this point.
func (f *Forwarder) ForwardJSON(ctx context.Context, payload any) (json.RawMessage, error) {
	raw, err := f.Forward(ctx, payload)
	if err != nil {
		return nil, err
	}
	var probe map[string]any
	if err := json.Unmarshal(raw, &probe); err != nil {
		return nil, ErrBadUpstreamBody
	}
	return json.RawMessage(raw), nil
}
