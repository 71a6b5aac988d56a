package proxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func TestChatReturnsContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer test-key" {
			t.Errorf("missing bearer auth")
		}
		w.Write([]byte(`{"choices": [{"message": {"role": "assistant", "content": "hi there"}}]}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("test-key", NewLimiter(0), srv.URL)
	reply, err := c.Chat(context.Background(), "m", []Message{{Role: "user", Content: "hi"}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if reply != "hi there" {
		t.Errorf("reply = %q", reply)
	}
}

func TestChatClassifiesStatuses(t *testing.T) {
	tests := []struct {
		status    int
		rateLimit bool
		notFound  bool
	}{
		{http.StatusTooManyRequests, true, false},
		{http.StatusNotFound, false, true},
		{http.StatusInternalServerError, false, false},
	}

	for _, tt := range tests {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tt.status)
		}))

		c := NewClientWithBaseURL("k", NewLimiter(0), srv.URL)
		_, err := c.Chat(context.Background(), "m", nil)
		srv.Close()

		if err == nil {
			t.Fatalf("status %d: expected error", tt.status)
		}
		if IsRateLimit(err) != tt.rateLimit {
			t.Errorf("status %d: IsRateLimit = %v, want %v", tt.status, IsRateLimit(err), tt.rateLimit)
		}
		if IsModelNotFound(err) != tt.notFound {
			t.Errorf("status %d: IsModelNotFound = %v, want %v", tt.status, IsModelNotFound(err), tt.notFound)
		}
	}
}

func TestChatNoChoicesIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": []}`))
	}))
	defer srv.Close()

	c := NewClientWithBaseURL("k", NewLimiter(0), srv.URL)
	if _, err := c.Chat(context.Background(), "m", nil); err == nil {
		t.Fatal("expected error for empty choices")
	}
}

func TestChatHonorsLimiter(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices": [{"message": {"content": "ok"}}]}`))
	}))
	defer srv.Close()

	var waited bool
	l := NewLimiterWithClock(time.Second,
		func() time.Time { return time.Unix(0, 0) },
		func(ctx context.Context, d time.Duration) error { waited = true; return nil },
	)
	c := NewClientWithBaseURL("k", l, srv.URL)

	ctx := context.Background()
	c.Chat(ctx, "m", nil)
	c.Chat(ctx, "m", nil)
	if !waited {
		t.Error("second request did not wait on the limiter")
	}
}
