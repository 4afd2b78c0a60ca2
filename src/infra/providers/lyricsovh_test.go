package providers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cruxtone/hymnsift/src/features/lyrics"
	"github.com/cruxtone/hymnsift/src/infra/retry"
)

func TestLyricsOvhFetchesByPath(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/hillsong united/oceans" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		w.Write([]byte(`{"lyrics":"You call me out upon the waters"}`))
	}))
	defer server.Close()

	p := NewLyricsOvhProvider(true, 5*time.Second)
	p.baseURL = server.URL

	text, err := p.SearchLyrics(context.Background(), lyrics.SearchParams{Title: "oceans", Artist: "hillsong united"})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if text != "You call me out upon the waters" {
		t.Fatalf("unexpected lyrics %q", text)
	}
}

func TestLyricsOvhNotFoundIsMiss(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	p := NewLyricsOvhProvider(true, 5*time.Second)
	p.baseURL = server.URL

	_, err := p.SearchLyrics(context.Background(), lyrics.SearchParams{Title: "x", Artist: "y"})
	if err == nil {
		t.Fatal("404 should be a miss error")
	}
	var re *retry.RetryableError
	if errors.As(err, &re) {
		t.Fatal("404 is non-retryable")
	}
}

func TestLyricsOvhServerErrorIsRetryable(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	p := NewLyricsOvhProvider(true, 5*time.Second)
	p.baseURL = server.URL

	_, err := p.SearchLyrics(context.Background(), lyrics.SearchParams{Title: "x", Artist: "y"})
	var re *retry.RetryableError
	if !errors.As(err, &re) {
		t.Fatalf("502 must be retryable, got %v", err)
	}
}
