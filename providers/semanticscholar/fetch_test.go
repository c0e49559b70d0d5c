package semanticscholar

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

const searchFixture = `{
  "total": 1,
  "data": [
    {
      "paperId": "abc123",
      "externalIds": {"DOI": "10.1234/example", "ArXiv": "2401.00001"},
      "title": "Mechanistic Interpretability of Transformers",
      "abstract": "We study circuits.",
      "year": 2024,
      "venue": "NeurIPS",
      "url": "https://example.org/paper",
      "citationCount": 42,
      "authors": [{"authorId": "1", "name": "Alice Example"}],
      "fieldsOfStudy": ["Computer Science"]
    }
  ]
}`

const citationsFixture = `{
  "data": [
    {"citingPaper": {"paperId": "c1", "title": "A Citing Paper", "year": 2025, "authors": []}},
    {"citingPaper": {"paperId": "", "title": "No ID Paper", "year": 2025, "authors": [{"name": "Bob"}]}},
    {"citingPaper": {"paperId": "c3", "title": "", "year": 2025, "authors": []}}
  ]
}`

func newTestFetcher(baseURL, apiKey string) *Fetcher {
	cfg := &config.Config{
		S2BaseURL: baseURL,
		S2APIKey:  apiKey,
		S2Timeout: 5 * time.Second,
	}
	return NewFetcher(cfg, zap.NewNop())
}

func TestSearchMapsFields(t *testing.T) {
	var gotKey, gotYear string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotKey = r.Header.Get("x-api-key")
		gotYear = r.URL.Query().Get("year")
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, "secret")
	papers, err := f.Search(context.Background(), "interpretability", providers.SearchFilters{
		YearFrom: 2020, YearTo: 2024, MaxResults: 10,
	})
	require.NoError(t, err)
	require.Len(t, papers, 1)
	assert.Equal(t, "secret", gotKey)
	assert.Equal(t, "2020-2024", gotYear)

	p := papers[0]
	assert.Equal(t, "semantic_scholar", p.Source)
	assert.Equal(t, "abc123", p.SourceID)
	require.NotNil(t, p.DOI)
	assert.Equal(t, "10.1234/example", *p.DOI)
	require.NotNil(t, p.ArxivID)
	assert.Equal(t, "2401.00001", *p.ArxivID)
	assert.Equal(t, 42, p.CitationCount)
	assert.Equal(t, []string{"Alice Example"}, p.AuthorList())
	assert.Equal(t, []string{"Computer Science"}, p.Meta().FieldsOfStudy)
}

func TestGetCitationsSkipsEmptyTitles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(citationsFixture))
	}))
	defer srv.Close()

	f := newTestFetcher(srv.URL, "")
	papers, err := f.GetCitations(context.Background(), "abc123", 10)
	require.NoError(t, err)
	// Der Eintrag ohne Titel wird verworfen, der ohne paperId bekommt eine
	// abgeleitete stabile Kennung.
	require.Len(t, papers, 2)
	assert.Equal(t, "c1", papers[0].SourceID)
	assert.NotEmpty(t, papers[1].SourceID)
	assert.NotEqual(t, "c1", papers[1].SourceID)
}

func TestDerivedSourceIDIsStable(t *testing.T) {
	raw := &RawPaper{Title: "No ID Paper"}
	a := mapRawToModel(raw)
	b := mapRawToModel(raw)
	assert.Equal(t, a.SourceID, b.SourceID)
}

func TestSearchRateLimited(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := newTestFetcher(srv.URL, "").Search(context.Background(), "x", providers.SearchFilters{})
	assert.ErrorIs(t, err, providers.ErrRateLimited)
}

func TestSearchTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		w.Write([]byte(searchFixture))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := newTestFetcher(srv.URL, "").Search(ctx, "x", providers.SearchFilters{})
	assert.ErrorIs(t, err, providers.ErrTimeout)
}

func TestYearRange(t *testing.T) {
	assert.Equal(t, "2020-2023", yearRange(2020, 2023))
	assert.Equal(t, "2020-", yearRange(2020, 0))
	assert.Equal(t, "-2023", yearRange(0, 2023))
}
