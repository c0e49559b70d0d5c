package serpapi

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"paper-atlas/config"
	"paper-atlas/providers"
)

const scholarFixture = `{
  "organic_results": [
    {
      "result_id": "abc123",
      "title": "Mechanistic Interpretability of Transformers",
      "link": "https://example.org/paper",
      "snippet": "We study circuits in transformers.",
      "publication_info": {
        "summary": "A Example, B Example - 2024 - proceedings.example.org",
        "authors": [{"name": "A Example"}, {"name": "B Example"}]
      },
      "inline_links": {"cited_by": {"total": 12}}
    },
    {
      "result_id": "",
      "title": "",
      "link": "https://example.org/empty"
    }
  ]
}`

func newTestFetcher(baseURL string) *Fetcher {
	cfg := &config.Config{
		SerpAPIBaseURL: baseURL,
		SerpAPIKey:     "test-key",
		SerpAPITimeout: 5 * time.Second,
	}
	return NewFetcher(cfg, zap.NewNop())
}

func TestSearchMapsResults(t *testing.T) {
	var gotEngine, gotKey string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotEngine = r.URL.Query().Get("engine")
		gotKey = r.URL.Query().Get("api_key")
		w.Write([]byte(scholarFixture))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL)
	papers, err := f.Search(context.Background(), "interpretability", providers.SearchFilters{MaxResults: 10})
	require.NoError(t, err)
	assert.Equal(t, "google_scholar", gotEngine)
	assert.Equal(t, "test-key", gotKey)

	// Das Ergebnis ohne Titel wird verworfen.
	require.Len(t, papers, 1)
	p := papers[0]
	assert.Equal(t, "google_scholar", p.Source)
	assert.Equal(t, "abc123", p.SourceID)
	assert.Equal(t, 12, p.CitationCount)
	require.NotNil(t, p.Year)
	assert.Equal(t, 2024, *p.Year)
	assert.Equal(t, []string{"A Example", "B Example"}, p.AuthorList())
}

func TestSearchYearBounds(t *testing.T) {
	var gotYlo, gotYhi string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotYlo = r.URL.Query().Get("as_ylo")
		gotYhi = r.URL.Query().Get("as_yhi")
		w.Write([]byte(`{"organic_results": []}`))
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).Search(context.Background(), "x", providers.SearchFilters{YearFrom: 2020, YearTo: 2023})
	require.NoError(t, err)
	assert.Equal(t, "2020", gotYlo)
	assert.Equal(t, "2023", gotYhi)
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL).Search(context.Background(), "x", providers.SearchFilters{})
	assert.ErrorIs(t, err, providers.ErrRateLimited)
}
