package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"chat-gateway/internal/history"
	"chat-gateway/internal/i18n"
	"chat-gateway/internal/ratelimit"
)

const (
	// maxMessageLen is the client-side ceiling, tighter than the wire
	// ceiling of 500 and authoritative for this component.
	maxMessageLen = 450

	requestTimeout = 30 * time.Second
	maxRetries     = 2
	backoffStep    = time.Second
)

// Precondition failures surface inline; they never reach the network or
// mutate history.
var (
	ErrEmptyMessage = errors.New("message is empty")
	ErrTooLong      = errors.New("message exceeds length limit")
	ErrBusy         = errors.New("a send is already in flight")
)

// Payload is the wire request, client to proxy to upstream.
type Payload struct {
	Message   string             `json:"message"`
	Language  i18n.Language      `json:"language"`
	SessionID string             `json:"sessionId"`
	History   []history.WireTurn `json:"history,omitempty"`
}

type chatResponse struct {
	Response string `json:"response"`
}

// Client drives one browser session's side of the pipeline: limiter gate,
// history bookkeeping, the network call with bounded retry, and mapping of
// failures onto a closed set of localized bot messages.
type Client struct {
	endpoint  string
	language  i18n.Language
	sessionID string
	history   *history.Store
	limiter   *ratelimit.SlidingLimiter
	http      *http.Client
	inFlight  atomic.Bool
	sleep     func(time.Duration)
}

func NewClient(endpoint string, lang i18n.Language, sessionID string, hist *history.Store, limiter *ratelimit.SlidingLimiter) *Client {
	return &Client{
		endpoint:  endpoint,
		language:  lang,
		sessionID: sessionID,
		history:   hist,
		limiter:   limiter,
		http:      &http.Client{},
		sleep:     time.Sleep,
	}
}

// SetHTTPClient overrides the transport. Tests only.
func (c *Client) SetHTTPClient(h *http.Client) { c.http = h }

// SetSleep overrides the backoff sleeper. Tests only.
func (c *Client) SetSleep(f func(time.Duration)) { c.sleep = f }

// Send runs one message through the pipeline. By the time it returns, either
// a response turn or a bot-styled error turn has been appended; a send never
// fails silently. Only precondition violations return an error.
func (c *Client) Send(ctx context.Context, message string) error {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return ErrEmptyMessage
	}
	if len([]rune(msg)) > maxMessageLen {
		return ErrTooLong
	}

	if d := c.limiter.CheckAndRecord(); !d.Allowed {
		// Warning bubble only; the attempt is not recorded and the
		// in-flight flag stays untouched.
		c.history.AppendTransient(d.Reason.Pick(c.language), false)
		return nil
	}

	if !c.inFlight.CompareAndSwap(false, true) {
		return ErrBusy
	}
	defer c.inFlight.Store(false)

	// History travels without the message being sent; the message rides in
	// its own field.
	wire := c.history.RecentForWire(history.WireLimit)
	c.history.Append(msg, true)

	payload := Payload{
		Message:   msg,
		Language:  c.language,
		SessionID: c.sessionID,
		History:   wire,
	}

	reply, verdict := c.attempt(ctx, payload)
	for attempt := 1; verdict != nil && verdict.Retry && attempt <= maxRetries; attempt++ {
		c.sleep(backoffStep * time.Duration(attempt))
		reply, verdict = c.attempt(ctx, payload)
	}

	if verdict != nil {
		c.history.Append(i18n.ErrorMessage(verdict.Class).Pick(c.language), false)
		return nil
	}
	c.history.Append(reply, false)
	return nil
}

// attempt performs one request with its own hard deadline. A nil verdict
// means success and reply holds the bot text.
func (c *Client) attempt(ctx context.Context, payload Payload) (string, *Verdict) {
	body, err := json.Marshal(payload)
	if err != nil {
		v := Verdict{Class: i18n.ClassDefault}
		return "", &v
	}

	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		v := Verdict{Class: i18n.ClassDefault}
		return "", &v
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		v := ClassifyError(err)
		return "", &v
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		v := ClassifyStatus(resp.StatusCode)
		return "", &v
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		v := ClassifyError(err)
		return "", &v
	}
	var parsed chatResponse
	if err := json.Unmarshal(raw, &parsed); err != nil || parsed.Response == "" {
		v := ClassifyBody()
		return "", &v
	}
	return parsed.Response, nil
}
