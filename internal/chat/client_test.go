package chat

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"chat-gateway/internal/history"
	"chat-gateway/internal/i18n"
	"chat-gateway/internal/ratelimit"
	"chat-gateway/internal/storage"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(r *http.Request) (*http.Response, error) { return f(r) }

func jsonResp(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Header:     http.Header{"Content-Type": []string{"application/json"}},
		Body:       io.NopCloser(strings.NewReader(body)),
	}
}

func newTestClient(rt roundTripFunc) (*Client, *history.Store) {
	hist := history.NewStore(storage.NewMemoryStore(), "conv")
	limiter := ratelimit.NewSlidingLimiter(storage.NewMemoryStore(), "rl", nil)
	c := NewClient("http://gateway.test/api/chat", i18n.LangEN, "session-1", hist, limiter)
	c.SetHTTPClient(&http.Client{Transport: rt})
	c.SetSleep(func(time.Duration) {})
	return c, hist
}

func lastTurn(t *testing.T, hist *history.Store) history.Turn {
	t.Helper()
	turns := hist.All()
	if len(turns) == 0 {
		t.Fatalf("history is empty")
	}
	return turns[len(turns)-1]
}

func TestSendSuccessAppendsBothTurns(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(r *http.Request) (*http.Response, error) {
		attempts++
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.Message != "hello" || p.SessionID != "session-1" || p.Language != i18n.LangEN {
			t.Errorf("unexpected payload: %+v", p)
		}
		return jsonResp(200, `{"response":"hi, how can I help?"}`), nil
	})

	if err := c.Send(context.Background(), "  hello  "); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}

	turns := hist.All()
	if len(turns) != 2 {
		t.Fatalf("history length = %d, want 2", len(turns))
	}
	if !turns[0].IsUser || turns[0].Text != "hello" {
		t.Fatalf("user turn = %+v", turns[0])
	}
	if turns[1].IsUser || turns[1].Text != "hi, how can I help?" {
		t.Fatalf("bot turn = %+v", turns[1])
	}
}

func TestSendRetriesServerErrorsThenSurfaces(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return jsonResp(500, `{"error":"boom"}`), nil
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3 (1 initial + 2 retries)", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassServerError).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.IsUser || got.Text != want {
		t.Fatalf("bot turn = %+v, want %q", got, want)
	}
}

func TestSendNeverRetries429(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return jsonResp(429, `{"error":"rate_limit_exceeded"}`), nil
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassRateLimit).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != want {
		t.Fatalf("bot turn = %q, want %q", got.Text, want)
	}
}

func TestSendNeverRetriesTimeout(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return nil, context.DeadlineExceeded
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassTimeout).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != want {
		t.Fatalf("bot turn = %q, want %q", got.Text, want)
	}
}

func TestSendGateway504MapsToTimeout(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return jsonResp(504, `{"error":"upstream_timeout"}`), nil
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1 (504 is terminal)", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassTimeout).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != want {
		t.Fatalf("bot turn = %q, want %q", got.Text, want)
	}
}

func TestSendNetworkErrorNoRetry(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return nil, errors.New("connection refused")
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 1 {
		t.Fatalf("attempts = %d, want 1", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassNetwork).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != want {
		t.Fatalf("bot turn = %q, want %q", got.Text, want)
	}
}

func TestSendMalformedBodyRetriesThenGeneric(t *testing.T) {
	var attempts int
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		attempts++
		return jsonResp(200, `not json at all`), nil
	})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("attempts = %d, want 3", attempts)
	}
	want := i18n.ErrorMessage(i18n.ClassDefault).Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != want {
		t.Fatalf("bot turn = %q, want %q", got.Text, want)
	}
}

func TestSendPreconditions(t *testing.T) {
	c, hist := newTestClient(func(*http.Request) (*http.Response, error) {
		t.Fatalf("network call issued despite failed precondition")
		return nil, nil
	})

	if err := c.Send(context.Background(), "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if err := c.Send(context.Background(), strings.Repeat("x", 451)); !errors.Is(err, ErrTooLong) {
		t.Fatalf("err = %v, want ErrTooLong", err)
	}
	if len(hist.All()) != 0 {
		t.Fatalf("history mutated on precondition failure")
	}
}

func TestSendIsInFlightExclusive(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	c, _ := newTestClient(func(*http.Request) (*http.Response, error) {
		once.Do(func() { close(started) })
		<-release
		return jsonResp(200, `{"response":"ok"}`), nil
	})

	done := make(chan error, 1)
	go func() { done <- c.Send(context.Background(), "first") }()
	<-started

	// A second send while one is pending is rejected, not queued.
	if err := c.Send(context.Background(), "second"); !errors.Is(err, ErrBusy) {
		t.Fatalf("err = %v, want ErrBusy", err)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("first send: %v", err)
	}

	// Input re-enables once the send completes.
	if err := c.Send(context.Background(), "third"); err != nil {
		t.Fatalf("send after completion: %v", err)
	}
}

func TestSendRateLimitedAppendsTransientWarning(t *testing.T) {
	histMem := storage.NewMemoryStore()
	hist := history.NewStore(histMem, "conv")
	rlStore := storage.NewMemoryStore()
	limiter := ratelimit.NewSlidingLimiter(rlStore, "rl", []ratelimit.Tier{
		{Name: "minute", Max: 0, Window: time.Minute},
	})

	var attempts int
	c := NewClient("http://gateway.test/api/chat", i18n.LangJA, "session-1", hist, limiter)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(*http.Request) (*http.Response, error) {
		attempts++
		return jsonResp(200, `{"response":"ok"}`), nil
	})})

	if err := c.Send(context.Background(), "hello"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if attempts != 0 {
		t.Fatalf("network call issued while rate-limited")
	}

	turns := hist.All()
	if len(turns) != 1 || turns[0].IsUser {
		t.Fatalf("expected one warning turn, got %+v", turns)
	}
	// Warning bubbles do not survive a reload.
	if data, _ := histMem.Load("conv"); data != nil {
		t.Fatalf("warning turn was persisted: %s", data)
	}
}

func TestRateLimitWarningStaysOutOfWireAndStorage(t *testing.T) {
	histMem := storage.NewMemoryStore()
	hist := history.NewStore(histMem, "conv")
	limiter := ratelimit.NewSlidingLimiter(storage.NewMemoryStore(), "rl", []ratelimit.Tier{
		{Name: "minute", Max: 1, Window: time.Minute},
	})
	now := time.Now()
	limiter.SetClock(func() time.Time { return now })

	var payloads []Payload
	c := NewClient("http://gateway.test/api/chat", i18n.LangEN, "session-1", hist, limiter)
	c.SetHTTPClient(&http.Client{Transport: roundTripFunc(func(r *http.Request) (*http.Response, error) {
		var p Payload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		payloads = append(payloads, p)
		return jsonResp(200, `{"response":"ok"}`), nil
	})})
	c.SetSleep(func(time.Duration) {})

	if err := c.Send(context.Background(), "first"); err != nil {
		t.Fatalf("first send: %v", err)
	}
	if err := c.Send(context.Background(), "second"); err != nil {
		t.Fatalf("denied send: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("network calls = %d, want 1 (second send denied)", len(payloads))
	}
	warning := i18n.TierMessage("minute").Pick(i18n.LangEN)
	if got := lastTurn(t, hist); got.Text != warning {
		t.Fatalf("warning turn = %q, want %q", got.Text, warning)
	}

	// Once the window frees up, the next send must not carry the warning
	// along as assistant history or into persisted state.
	now = now.Add(2 * time.Minute)
	if err := c.Send(context.Background(), "third"); err != nil {
		t.Fatalf("third send: %v", err)
	}
	if len(payloads) != 2 {
		t.Fatalf("network calls = %d, want 2", len(payloads))
	}
	for _, turn := range payloads[1].History {
		if turn.Content == warning {
			t.Fatalf("warning turn traveled upstream as %s history", turn.Role)
		}
	}
	if data, _ := histMem.Load("conv"); strings.Contains(string(data), warning) {
		t.Fatalf("warning turn was persisted: %s", data)
	}
}
