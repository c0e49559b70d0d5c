package services

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-atlas/models"
	"paper-atlas/providers"
)

// mockProvider liefert vorgegebene Ergebnisse oder einen Fehler.
type mockProvider struct {
	name    string
	results []*models.Paper
	err     error
}

func (m *mockProvider) Name() string { return m.name }

func (m *mockProvider) Search(_ context.Context, _ string, _ providers.SearchFilters) ([]*models.Paper, error) {
	if m.err != nil {
		return nil, m.err
	}
	// Kopien zurückgeben; die Pipeline mutiert die Ergebnisse.
	out := make([]*models.Paper, len(m.results))
	for i, p := range m.results {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func newIngestService(t *testing.T, provs ...providers.Provider) *IngestService {
	t.Helper()
	cat := newTestCatalog(t)
	reg := providers.NewRegistry(provs...)
	return NewIngestService(newTestConfig(), cat, reg, testLogger())
}

func TestIngestNewPaperWithTags(t *testing.T) {
	paper := &models.Paper{
		ArxivID:  strPtr("2401.00001"),
		Source:   "arxiv",
		SourceID: "2401.00001",
		Title:    "Mechanistic Interpretability of Transformers",
		Year:     intPtr(2024),
	}
	paper.SetMeta(models.SourceMeta{ArxivCategories: []string{"cs.AI"}})

	s := newIngestService(t, &mockProvider{name: "arxiv", results: []*models.Paper{paper}})

	report, err := s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, true, true)
	require.NoError(t, err)

	assert.Equal(t, 1, report.NewCount)
	assert.Equal(t, 0, report.DuplicateCount)
	assert.Equal(t, 1, report.FetchCounts["arxiv"])
	require.Len(t, report.Papers, 1)

	interp, ok := findAssignment(report.Papers[0].Tags, "interpretability")
	require.True(t, ok, "interpretability muss zugewiesen sein")
	assert.GreaterOrEqual(t, interp.Confidence, 0.8)

	// Tags sind persistiert, Zähler gepflegt.
	tags, err := s.Catalog.ListTags()
	require.NoError(t, err)
	require.NotEmpty(t, tags)
	for _, tag := range tags {
		if tag.Name == "interpretability" {
			assert.Equal(t, 1, tag.PaperCount)
		}
	}
}

func TestIngestBatchUnionAcrossProviders(t *testing.T) {
	// Zwei Provider liefern dasselbe Werk: einer kennt nur die DOI, der
	// andere nur die arXiv-ID. Es darf genau ein Paper mit beiden
	// Identitäten entstehen.
	title := "Mechanistic Interpretability of Transformer Language Models"
	withDOI := &models.Paper{
		DOI:      strPtr("10.1/abc"),
		Source:   "crossref",
		SourceID: "10.1/abc",
		Title:    title,
		Year:     intPtr(2024),
	}
	withArxiv := &models.Paper{
		ArxivID:  strPtr("2401.00001"),
		Source:   "semantic_scholar",
		SourceID: "s2-1",
		Title:    title,
		Year:     intPtr(2024),
	}

	s := newIngestService(t,
		&mockProvider{name: "semantic_scholar", results: []*models.Paper{withArxiv}},
		&mockProvider{name: "crossref", results: []*models.Paper{withDOI}},
	)

	report, err := s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err)
	assert.Equal(t, 2, report.TotalFetched)
	assert.Equal(t, 1, report.NewCount)

	var count int64
	require.NoError(t, s.Catalog.DB.Model(&models.Paper{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	stored, err := s.Catalog.FindByDOI("10.1/abc")
	require.NoError(t, err)
	require.NotNil(t, stored)
	require.NotNil(t, stored.ArxivID)
	assert.Equal(t, "2401.00001", *stored.ArxivID)
	assert.Equal(t, "semantic_scholar", stored.Source)
}

func TestIngestReingestUpdatesCitationCount(t *testing.T) {
	paper := &models.Paper{
		DOI:           strPtr("10.1/abc"),
		Source:        "crossref",
		SourceID:      "10.1/abc",
		Title:         "A Long Enough Study About Catalog Re-Ingestion",
		Abstract:      "Original abstract.",
		Year:          intPtr(2023),
		CitationCount: 10,
	}
	prov := &mockProvider{name: "crossref", results: []*models.Paper{paper}}
	s := newIngestService(t, prov)

	report, err := s.Ingest(context.Background(), "re-ingestion", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewCount)

	// Derselbe Provider meldet später einen höheren Zähler und einen
	// abweichenden Abstract.
	updated := *paper
	updated.CitationCount = 25
	updated.Abstract = "Rewritten abstract that must not win."
	prov.results = []*models.Paper{&updated}

	report, err = s.Ingest(context.Background(), "re-ingestion", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err)
	assert.Equal(t, 0, report.NewCount)
	assert.Equal(t, 1, report.DuplicateCount)

	stored, err := s.Catalog.FindByDOI("10.1/abc")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 25, stored.CitationCount)
	assert.Equal(t, "Original abstract.", stored.Abstract)
}

func TestIngestProviderFailureIsIsolated(t *testing.T) {
	ok1 := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-1",
		Title: "A Sufficiently Long Title About Alignment Research", Year: intPtr(2024),
	}
	ok2 := &models.Paper{
		Source: "crossref", SourceID: "10.2/def",
		Title: "Another Sufficiently Long Title About Robustness", Year: intPtr(2024),
	}

	s := newIngestService(t,
		&mockProvider{name: "semantic_scholar", results: []*models.Paper{ok1}},
		&mockProvider{name: "arxiv", err: fmt.Errorf("arxiv suche: %w", providers.ErrTimeout)},
		&mockProvider{name: "crossref", results: []*models.Paper{ok2}},
	)

	report, err := s.Ingest(context.Background(), "alignment", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err, "Teilausfälle dürfen den Lauf nicht abbrechen")

	assert.Equal(t, 2, report.NewCount)
	assert.Equal(t, 1, report.FailedCount)
	assert.Equal(t, 0, report.FetchCounts["arxiv"])
	assert.Equal(t, 1, report.FetchCounts["semantic_scholar"])
	assert.Equal(t, 1, report.FetchCounts["crossref"])
	assert.Contains(t, report.Failures["arxiv"], "timeout")
}

func TestIngestUnknownProviderRecorded(t *testing.T) {
	s := newIngestService(t, &mockProvider{name: "semantic_scholar"})

	report, err := s.Ingest(context.Background(), "x", []string{"nope"}, providers.SearchFilters{}, false, true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.FailedCount)
	assert.Contains(t, report.Failures, "nope")
}

func TestIngestIdempotentTagLinks(t *testing.T) {
	paper := &models.Paper{
		Source: "arxiv", SourceID: "2401.00002",
		ArxivID: strPtr("2401.00002"),
		Title:   "Mechanistic Interpretability of Transformers",
		Year:    intPtr(2024),
	}
	paper.SetMeta(models.SourceMeta{ArxivCategories: []string{"cs.AI"}})
	prov := &mockProvider{name: "arxiv", results: []*models.Paper{paper}}
	s := newIngestService(t, prov)

	_, err := s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, true, true)
	require.NoError(t, err)
	var linksAfterFirst int64
	require.NoError(t, s.Catalog.DB.Model(&models.PaperTag{}).Count(&linksAfterFirst).Error)
	require.NotZero(t, linksAfterFirst)

	// Re-Ingestion erzeugt keine doppelten Links und erhöht paper_count nicht.
	_, err = s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, true, true)
	require.NoError(t, err)
	var linksAfterSecond int64
	require.NoError(t, s.Catalog.DB.Model(&models.PaperTag{}).Count(&linksAfterSecond).Error)
	assert.Equal(t, linksAfterFirst, linksAfterSecond)

	tags, err := s.Catalog.ListTags()
	require.NoError(t, err)
	for _, tag := range tags {
		assert.LessOrEqual(t, tag.PaperCount, 1, "tag %s", tag.Name)
	}

	var papers int64
	require.NoError(t, s.Catalog.DB.Model(&models.Paper{}).Count(&papers).Error)
	assert.EqualValues(t, 1, papers)
}

func TestIngestSearchOnlyDoesNotPersist(t *testing.T) {
	title := "Mechanistic Interpretability of Transformer Language Models"
	withDOI := &models.Paper{
		DOI:      strPtr("10.1/abc"),
		Source:   "crossref",
		SourceID: "10.1/abc",
		Title:    title,
		Year:     intPtr(2024),
	}
	withArxiv := &models.Paper{
		ArxivID:  strPtr("2401.00001"),
		Source:   "semantic_scholar",
		SourceID: "s2-1",
		Title:    title,
		Year:     intPtr(2024),
	}

	s := newIngestService(t,
		&mockProvider{name: "semantic_scholar", results: []*models.Paper{withArxiv}},
		&mockProvider{name: "crossref", results: []*models.Paper{withDOI}},
	)

	report, err := s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, true, false)
	require.NoError(t, err)

	// Batch-dedupliziert, aber nicht gespeichert.
	assert.Equal(t, 2, report.TotalFetched)
	require.Len(t, report.Results, 1)
	require.NotNil(t, report.Results[0].DOI)
	require.NotNil(t, report.Results[0].ArxivID)
	assert.Equal(t, 0, report.TotalIngested)
	assert.Equal(t, 0, report.NewCount)
	assert.Empty(t, report.Papers)

	var papers, links int64
	require.NoError(t, s.Catalog.DB.Model(&models.Paper{}).Count(&papers).Error)
	require.NoError(t, s.Catalog.DB.Model(&models.PaperTag{}).Count(&links).Error)
	assert.Zero(t, papers)
	assert.Zero(t, links)
}

func TestIngestPersistFailureCounted(t *testing.T) {
	paper := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-1",
		Title: "A Sufficiently Long Title About Broken Storage", Year: intPtr(2024),
	}
	s := newIngestService(t, &mockProvider{name: "semantic_scholar", results: []*models.Paper{paper}})
	require.NoError(t, s.Catalog.DB.Migrator().DropTable(&models.Paper{}))

	report, err := s.Ingest(context.Background(), "storage", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err, "ein Paper-Fehler bricht den Lauf nicht ab")

	assert.Equal(t, 1, report.TotalFetched)
	assert.Equal(t, 1, report.PapersFailed)
	assert.Equal(t, 0, report.NewCount)
	assert.Equal(t, 0, report.DuplicateCount)
	assert.Empty(t, report.Papers)
}

func TestIngestMergeChangeTriggersTagging(t *testing.T) {
	bare := &models.Paper{
		ArxivID:  strPtr("2402.00007"),
		Source:   "arxiv",
		SourceID: "2402.00007",
		Title:    "Mechanistic Interpretability of Transformers",
		Year:     intPtr(2024),
	}
	prov := &mockProvider{name: "arxiv", results: []*models.Paper{bare}}
	s := newIngestService(t, prov)

	// Erste Aufnahme ohne Tag-Zuweisung.
	report, err := s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, false, true)
	require.NoError(t, err)
	require.Equal(t, 1, report.NewCount)
	paperID := report.Papers[0].PaperID

	links, err := s.Catalog.TagsForPaper(paperID)
	require.NoError(t, err)
	require.Empty(t, links)

	// Die Quelle liefert später einen vollständigeren Datensatz. Der Merge
	// verändert den Eintrag (Abstract, Kategorien), also wird nachgetaggt.
	full := *bare
	full.Abstract = "We study interpretability of transformer circuits."
	full.SetMeta(models.SourceMeta{ArxivCategories: []string{"cs.AI"}})
	prov.results = []*models.Paper{&full}

	report, err = s.Ingest(context.Background(), "interpretability", nil, providers.SearchFilters{}, true, true)
	require.NoError(t, err)
	require.Len(t, report.Papers, 1)
	assert.True(t, report.Papers[0].Updated)
	assert.NotEmpty(t, report.Papers[0].Tags)

	links, err = s.Catalog.TagsForPaper(paperID)
	require.NoError(t, err)
	assert.NotEmpty(t, links)
}

func TestIngestStandingQueries(t *testing.T) {
	paper := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-9",
		Title: "A Sufficiently Long Title About Scalable Oversight", Year: intPtr(2024),
	}
	s := newIngestService(t, &mockProvider{name: "semantic_scholar", results: []*models.Paper{paper}})

	require.NoError(t, s.Catalog.DB.Create(&models.SearchQuery{
		Name: "oversight", Query: "scalable oversight", Enabled: true, MaxResults: 10,
	}).Error)
	require.NoError(t, s.Catalog.DB.Create(&models.SearchQuery{
		Name: "disabled", Query: "ignored", Enabled: false, MaxResults: 10,
	}).Error)

	total, err := s.RunStandingQueries(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	var q models.SearchQuery
	require.NoError(t, s.Catalog.DB.Where("name = ?", "oversight").First(&q).Error)
	assert.NotNil(t, q.LastRunAt)
}
