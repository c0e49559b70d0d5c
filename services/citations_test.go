package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paper-atlas/models"
	"paper-atlas/providers"
)

// mockCitationProvider implementiert Provider und CitationSource.
type mockCitationProvider struct {
	mockProvider
	citations  []*models.Paper
	references []*models.Paper
}

func (m *mockCitationProvider) GetCitations(_ context.Context, _ string, _ int) ([]*models.Paper, error) {
	return copyPapers(m.citations), nil
}

func (m *mockCitationProvider) GetReferences(_ context.Context, _ string, _ int) ([]*models.Paper, error) {
	return copyPapers(m.references), nil
}

func copyPapers(in []*models.Paper) []*models.Paper {
	out := make([]*models.Paper, len(in))
	for i, p := range in {
		cp := *p
		out[i] = &cp
	}
	return out
}

func TestBuildForPaperCreatesStubsAndEdges(t *testing.T) {
	cat := newTestCatalog(t)
	cfg := newTestConfig()

	prov := &mockCitationProvider{
		mockProvider: mockProvider{name: "semantic_scholar"},
		citations: []*models.Paper{{
			Source: "semantic_scholar", SourceID: "s2-citing",
			Title: "A Paper That Cites The Target Study", Year: intPtr(2025),
		}},
		references: []*models.Paper{{
			Source: "semantic_scholar", SourceID: "s2-cited",
			Title: "A Paper That The Target Study Cites", Year: intPtr(2020),
		}},
	}
	reg := providers.NewRegistry(prov)
	svc := NewCitationService(cfg, cat, reg, testLogger())

	target := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-target",
		Title: "The Target Study With A Long Enough Title", Year: intPtr(2024),
	}
	svc.Deduper.Canonicalize(target)
	require.NoError(t, cat.CreatePaper(target))

	report, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.CitationsAdded)
	assert.Equal(t, 1, report.ReferencesAdded)
	assert.Equal(t, 2, report.StubsCreated)

	// Nachbarn sind als Stubs angelegt.
	var stubs int64
	require.NoError(t, cat.DB.Model(&models.Paper{}).Where("is_stub = ?", true).Count(&stubs).Error)
	assert.EqualValues(t, 2, stubs)

	// Kantenrichtung: der Zitierende zeigt auf das Ziel.
	citing, err := cat.FindBySource("semantic_scholar", "s2-citing")
	require.NoError(t, err)
	require.NotNil(t, citing)
	var edge models.Citation
	require.NoError(t, cat.DB.Where("citing_paper_id = ? AND cited_paper_id = ?", citing.ID, target.ID).First(&edge).Error)
}

func TestBuildForPaperIdempotent(t *testing.T) {
	cat := newTestCatalog(t)
	prov := &mockCitationProvider{
		mockProvider: mockProvider{name: "semantic_scholar"},
		citations: []*models.Paper{{
			Source: "semantic_scholar", SourceID: "s2-citing",
			Title: "A Paper That Cites The Target Study", Year: intPtr(2025),
		}},
	}
	svc := NewCitationService(newTestConfig(), cat, providers.NewRegistry(prov), testLogger())

	target := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-target",
		Title: "The Target Study With A Long Enough Title", Year: intPtr(2024),
	}
	svc.Deduper.Canonicalize(target)
	require.NoError(t, cat.CreatePaper(target))

	first, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, first.CitationsAdded)

	second, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, second.CitationsAdded)
	assert.Equal(t, 1, second.CitationsExisting)
	assert.Equal(t, 0, second.StubsCreated)

	var edges int64
	require.NoError(t, cat.DB.Model(&models.Citation{}).Count(&edges).Error)
	assert.EqualValues(t, 1, edges)
}

func TestBuildForPaperUnsupportedProvider(t *testing.T) {
	cat := newTestCatalog(t)
	// Nur arXiv registriert: keine Zitations-Capability, kein Fallback.
	reg := providers.NewRegistry(&mockProvider{name: "arxiv"})
	svc := NewCitationService(newTestConfig(), cat, reg, testLogger())

	target := &models.Paper{
		Source: "arxiv", SourceID: "2401.00001",
		Title: "The Target Study With A Long Enough Title", Year: intPtr(2024),
	}
	svc.Deduper.Canonicalize(target)
	require.NoError(t, cat.CreatePaper(target))

	report, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err, "fehlende Capability ist kein Fehler")
	assert.Equal(t, &CitationReport{PaperID: target.ID}, report)
}

func TestBuildForPaperFallbackToSemanticScholar(t *testing.T) {
	cat := newTestCatalog(t)
	prov := &mockCitationProvider{
		mockProvider: mockProvider{name: "semantic_scholar"},
		references: []*models.Paper{{
			Source: "semantic_scholar", SourceID: "s2-ref",
			Title: "A Referenced Paper With A Long Title", Year: intPtr(2019),
		}},
	}
	reg := providers.NewRegistry(&mockProvider{name: "arxiv"}, prov)
	svc := NewCitationService(newTestConfig(), cat, reg, testLogger())

	// arXiv-Paper mit DOI: die Kanten kommen über den Semantic-Scholar-Fallback.
	target := &models.Paper{
		DOI:    strPtr("10.1/abc"),
		Source: "arxiv", SourceID: "2401.00001",
		Title: "The Target Study With A Long Enough Title", Year: intPtr(2024),
	}
	svc.Deduper.Canonicalize(target)
	require.NoError(t, cat.CreatePaper(target))

	report, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, report.ReferencesAdded)
}

func TestBuildForPaperMergesKnownNeighbor(t *testing.T) {
	cat := newTestCatalog(t)
	prov := &mockCitationProvider{
		mockProvider: mockProvider{name: "semantic_scholar"},
		citations: []*models.Paper{{
			Source: "semantic_scholar", SourceID: "s2-known",
			Title:         "A Known Paper Already In The Catalog",
			Year:          intPtr(2022),
			CitationCount: 40,
		}},
	}
	svc := NewCitationService(newTestConfig(), cat, providers.NewRegistry(prov), testLogger())

	known := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-known",
		Title: "A Known Paper Already In The Catalog", Year: intPtr(2022),
		CitationCount: 10,
	}
	svc.Deduper.Canonicalize(known)
	require.NoError(t, cat.CreatePaper(known))

	target := &models.Paper{
		Source: "semantic_scholar", SourceID: "s2-target",
		Title: "The Target Study With A Long Enough Title", Year: intPtr(2024),
	}
	svc.Deduper.Canonicalize(target)
	require.NoError(t, cat.CreatePaper(target))

	report, err := svc.BuildForPaper(context.Background(), target.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, report.StubsCreated, "bekannte Nachbarn werden nie doppelt angelegt")
	assert.Equal(t, 1, report.CitationsAdded)

	stored, err := cat.FindBySource("semantic_scholar", "s2-known")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, 40, stored.CitationCount, "merge zieht den höheren Zähler nach")
	assert.False(t, stored.IsStub)
}
