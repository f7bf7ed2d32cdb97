package anthropic

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestNewClient_EmptyKey(t *testing.T) {
	if c := NewClient("", "", ""); c != nil {
		t.Error("empty key should yield nil client")
	}
	if c := NewClient("   ", "", ""); c != nil {
		t.Error("whitespace key should yield nil client")
	}
}

func TestPing_RequestShape(t *testing.T) {
	var got pingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/messages" {
			t.Errorf("path = %q", r.URL.Path)
		}
		if r.Header.Get("X-Api-Key") != "sk-test" {
			t.Errorf("api key header = %q", r.Header.Get("X-Api-Key"))
		}
		if r.Header.Get("Anthropic-Version") != apiVersion {
			t.Errorf("version header = %q", r.Header.Get("Anthropic-Version"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &got); err != nil {
			t.Errorf("decode ping body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"msg_1"}`))
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, "claude-haiku-4-5")
	if err := c.Ping(context.Background()); err != nil {
		t.Fatalf("ping: %v", err)
	}

	if got.MaxTokens != 1 {
		t.Errorf("max_tokens = %d, want 1", got.MaxTokens)
	}
	if got.Model != "claude-haiku-4-5" {
		t.Errorf("model = %q", got.Model)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 1 {
		t.Fatalf("unexpected message shape: %+v", got)
	}
	cc := got.Messages[0].Content[0].CacheControl
	if cc == nil || cc.Type != "ephemeral" {
		t.Errorf("cache_control = %+v, want ephemeral", cc)
	}
}

func TestPing_ErrorMapping(t *testing.T) {
	cases := []struct {
		status int
		want   error
	}{
		{http.StatusUnauthorized, ErrUnauthorized},
		{http.StatusForbidden, ErrUnauthorized},
		{http.StatusTooManyRequests, ErrRateLimited},
		{http.StatusServiceUnavailable, ErrOverloaded},
	}
	for _, c := range cases {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(c.status)
		}))
		client := NewClient("sk-test", srv.URL, "")
		err := client.Ping(context.Background())
		srv.Close()
		if !errors.Is(err, c.want) {
			t.Errorf("status %d: err = %v, want %v", c.status, err, c.want)
		}
	}
}

func TestPing_ContextCancel(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-r.Context().Done()
	}))
	defer srv.Close()

	c := NewClient("sk-test", srv.URL, "")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := c.Ping(ctx); err == nil {
		t.Error("canceled context should fail the ping")
	}
}
