package search

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/propstatus/internal/resilience"
)

func fastRetry() resilience.RetryConfig {
	return resilience.RetryConfig{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 2 * time.Millisecond}
}

func TestQuery(t *testing.T) {
	assert.Equal(t, "status of 1 Main St zillow redfin", Query("  1 Main St "))
}

func TestNew_NoopWhenUnconfigured(t *testing.T) {
	assert.IsType(t, Noop{}, New(Settings{Provider: "none"}))
	assert.IsType(t, Noop{}, New(Settings{Provider: "tavily"}))
	assert.IsType(t, Noop{}, New(Settings{Provider: "perplexity"}))
	assert.IsType(t, Noop{}, New(Settings{}))

	text, ok := Noop{}.Lookup(context.Background(), "1 Main St")
	assert.False(t, ok)
	assert.Empty(t, text)
}

func TestTavilyLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "tvly", body["api_key"])
		assert.Equal(t, "status of 9 Oak Ave zillow redfin", body["query"])
		w.Write([]byte(`{"results":[{"title":"9 Oak Ave","url":"https://zillow.com/9","content":"Sold 2024-02-10"}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "tavily", TavilyAPIKey: "tvly", TavilyBaseURL: srv.URL, Retry: fastRetry()})
	text, ok := a.Lookup(context.Background(), "9 Oak Ave")
	require.True(t, ok)
	assert.Equal(t, "- 9 Oak Ave (https://zillow.com/9): Sold 2024-02-10", text)
}

func TestJinaLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"code":200,"data":[{"title":"t","url":"u","content":"long page","description":""}]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "jina", JinaBaseURL: srv.URL, Retry: fastRetry()})
	text, ok := a.Lookup(context.Background(), "9 Oak Ave")
	require.True(t, ok)
	assert.Equal(t, "- t (u): long page", text)
}

func TestPerplexityLookup(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pplx", r.Header.Get("Authorization"))
		w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"Pending since March."}}],"citations":["https://redfin.com/9"]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "perplexity", PerplexityAPIKey: "pplx", PerplexityBaseURL: srv.URL, Retry: fastRetry()})
	text, ok := a.Lookup(context.Background(), "9 Oak Ave")
	require.True(t, ok)
	assert.Equal(t, "Pending since March.\n- https://redfin.com/9", text)
}

func TestLookup_RetriesTransientThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"answer":"Active listing","results":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: srv.URL, Retry: fastRetry()})
	text, ok := a.Lookup(context.Background(), "1 Main St")
	require.True(t, ok)
	assert.Equal(t, "Active listing", text)
	assert.Equal(t, int32(2), calls.Load())
}

func TestLookup_FailureNeverErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	a := New(Settings{Provider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: srv.URL, Retry: fastRetry()})
	text, ok := a.Lookup(context.Background(), "1 Main St")
	assert.False(t, ok)
	assert.Empty(t, text)
	assert.Equal(t, int32(1), calls.Load(), "401 is not retried")
}

func TestLookup_EmptyResults(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: srv.URL, Retry: fastRetry()})
	_, ok := a.Lookup(context.Background(), "1 Main St")
	assert.False(t, ok)
}

func TestLookup_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.Write([]byte(`{"results":[]}`)) //nolint:errcheck
	}))
	defer srv.Close()

	a := New(Settings{Provider: "tavily", TavilyAPIKey: "k", TavilyBaseURL: srv.URL, Timeout: 50 * time.Millisecond, Retry: fastRetry()})
	start := time.Now()
	_, ok := a.Lookup(context.Background(), "1 Main St")
	assert.False(t, ok)
	assert.Less(t, time.Since(start), time.Second)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", truncate("abc", 5))
	assert.Equal(t, strings.Repeat("x", 4), truncate(strings.Repeat("x", 10), 4))

	// "é" is two bytes; a cut inside it backs off to the rune start.
	got := truncate("abcé", 4)
	assert.Equal(t, "abc", got)
	assert.True(t, utf8.ValidString(got))
}
