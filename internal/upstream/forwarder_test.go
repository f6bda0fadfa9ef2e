package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestForwardSendsSecretAndBody(t *testing.T) {
	var gotSecret string
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotSecret = r.Header.Get("X-Webhook-Secret")
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		fmt.Fprint(w, `{"ok":true}`)
	}))
	defer srv.Close()

	f := New(srv.URL, "s3cret", time.Second)
	raw, err := f.Forward(context.Background(), map[string]string{"message": "hi"})
	if err != nil {
		t.Fatalf("forward: %v", err)
	}
	if gotSecret != "s3cret" {
		t.Fatalf("secret = %q", gotSecret)
	}
	if gotBody["message"] != "hi" {
		t.Fatalf("body = %v", gotBody)
	}
	if string(raw) != `{"ok":true}` {
		t.Fatalf("raw = %s", raw)
	}
}

func TestForwardNotConfigured(t *testing.T) {
	f := New("", "s", time.Second)
	if _, err := f.Forward(context.Background(), nil); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestForwardTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	}))
	defer srv.Close()

	f := New(srv.URL, "s", 20*time.Millisecond)
	if _, err := f.Forward(context.Background(), nil); !errors.Is(err, ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
}

func TestForwardConnectError(t *testing.T) {
	f := New("http://127.0.0.1:1", "s", time.Second)
	if _, err := f.Forward(context.Background(), nil); !errors.Is(err, ErrConnect) {
		t.Fatalf("err = %v, want ErrConnect", err)
	}
}

func TestForwardStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusForbidden)
	}))
	defer srv.Close()

	f := New(srv.URL, "s", time.Second)
	_, err := f.Forward(context.Background(), nil)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		t.Fatalf("err = %v, want StatusError", err)
	}
	if statusErr.Code != http.StatusForbidden {
		t.Fatalf("code = %d, want 403", statusErr.Code)
	}
}

func TestForwardJSONRejectsUnparseableBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "<html></html>")
	}))
	defer srv.Close()

	f := New(srv.URL, "s", time.Second)
	if _, err := f.ForwardJSON(context.Background(), nil); !errors.Is(err, ErrBadUpstreamBody) {
		t.Fatalf("err = %v, want ErrBadUpstreamBody", err)
	}
}
