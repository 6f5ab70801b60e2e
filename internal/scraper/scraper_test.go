package scraper

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/quaero/internal/interfaces"
)

func testLogger() arbor.ILogger {
	return arbor.NewLogger()
}

func TestScrape_StaticPageSucceeds(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><article><h1>River City Food Pantry</h1><p>Open Mondays and Wednesdays, 9am to 5pm, serving the whole community with fresh produce and shelf-stable groceries.</p></article></body></html>`))
	}))
	defer server.Close()

	s := New(5*time.Second, 1, testLogger())
	result := s.Scrape(t.Context(), server.URL)

	require.False(t, result.Failed)
	require.Contains(t, result.Markdown, "River City Food Pantry")
	require.Contains(t, result.Markdown, "Open Mondays")
}

func TestScrape_HTTPErrorStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer server.Close()

	s := New(5*time.Second, 1, testLogger())
	result := s.Scrape(t.Context(), server.URL)

	require.True(t, result.Failed)
	require.Equal(t, interfaces.ScrapeFailureHTTPError, result.Reason)
}

func TestScrape_EmptyBodyFallsThroughToEmptyFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><div id="root"></div></body></html>`))
	}))
	defer server.Close()

	s := New(5*time.Second, 1, testLogger())
	result := s.Scrape(t.Context(), server.URL)

	require.True(t, result.Failed)
	require.Equal(t, interfaces.ScrapeFailureEmpty, result.Reason)
}

func TestScrape_RespectsTimeBudget(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(`<html><body><p>slow</p></body></html>`))
	}))
	defer server.Close()

	s := New(50*time.Millisecond, 1, testLogger())
	result := s.Scrape(t.Context(), server.URL)

	require.True(t, result.Failed)
	require.Equal(t, interfaces.ScrapeFailureTimeout, result.Reason)
}
