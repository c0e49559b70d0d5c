package semanticscholar

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

// searchFields werden bei jeder Suche angefragt.
const searchFields = "paperId,externalIds,title,abstract,year,authors,venue,citationCount,fieldsOfStudy,url"

// citationFields sind der reduzierte Feldsatz der Citations/References-
// Endpunkte; die API liefert dort deutlich weniger Metadaten.
const citationFields = "paperId,externalIds,title,year,authors,citationCount"

// Fetcher kapselt die Logik zur Interaktion mit Semantic Scholar.
// Implementiert providers.Provider, providers.Lookup und
// providers.CitationSource.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des Semantic-Scholar-Fetchers.
// Die API erlaubt ohne Key rund 1 Request/Sekunde; das Pacing ist Sache
// dieses Connectors, nicht des Orchestrators.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		client:  &http.Client{Timeout: cfg.S2Timeout},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "semantic_scholar"
}

// Search führt eine Paper-Suche aus.
func (f *Fetcher) Search(ctx context.Context, query string, filters providers.SearchFilters) ([]*models.Paper, error) {
	log := f.Logger.With(zap.String("provider", f.Name()), zap.String("query", query))
	log.Info("Starte Suche auf Semantic Scholar.")

	params := url.Values{}
	params.Set("query", query)
	params.Set("fields", searchFields)
	limit := filters.MaxResults
	if limit <= 0 || limit > 100 {
		limit = 100
	}
	params.Set("limit", strconv.Itoa(limit))
	if filters.YearFrom > 0 || filters.YearTo > 0 {
		params.Set("year", yearRange(filters.YearFrom, filters.YearTo))
	}

	var sr SearchResponse
	if err := f.getJSON(ctx, f.Config.S2BaseURL+"/paper/search?"+params.Encode(), &sr); err != nil {
		return nil, fmt.Errorf("semantic scholar suche: %w", err)
	}

	papers := make([]*models.Paper, 0, len(sr.Data))
	for i := range sr.Data {
		papers = append(papers, mapRawToModel(&sr.Data[i]))
	}
	log.Info("Suche auf Semantic Scholar abgeschlossen", zap.Int("found_papers", len(papers)))
	return papers, nil
}

// GetByIdentifier holt ein einzelnes Paper. Die API akzeptiert paperId,
// DOI oder "arXiv:<id>".
func (f *Fetcher) GetByIdentifier(ctx context.Context, id string) (*models.Paper, error) {
	var raw RawPaper
	u := fmt.Sprintf("%s/paper/%s?fields=%s", f.Config.S2BaseURL, url.PathEscape(id), searchFields)
	if err := f.getJSON(ctx, u, &raw); err != nil {
		return nil, fmt.Errorf("semantic scholar lookup %q: %w", id, err)
	}
	return mapRawToModel(&raw), nil
}

// GetCitations liefert Papers, die das angegebene Paper zitieren.
func (f *Fetcher) GetCitations(ctx context.Context, sourceID string, limit int) ([]*models.Paper, error) {
	return f.fetchEdges(ctx, sourceID, "citations", limit)
}

// GetReferences liefert Papers, die das angegebene Paper zitiert.
func (f *Fetcher) GetReferences(ctx context.Context, sourceID string, limit int) ([]*models.Paper, error) {
	return f.fetchEdges(ctx, sourceID, "references", limit)
}

func (f *Fetcher) fetchEdges(ctx context.Context, sourceID, kind string, limit int) ([]*models.Paper, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	u := fmt.Sprintf("%s/paper/%s/%s?fields=%s&limit=%d",
		f.Config.S2BaseURL, url.PathEscape(sourceID), kind, citationFields, limit)

	var cr CitationsResponse
	if err := f.getJSON(ctx, u, &cr); err != nil {
		return nil, fmt.Errorf("semantic scholar %s für %q: %w", kind, sourceID, err)
	}

	var papers []*models.Paper
	for _, entry := range cr.Data {
		raw := entry.CitingPaper
		if raw == nil {
			raw = entry.CitedPaper
		}
		if raw == nil || raw.Title == "" {
			continue
		}
		papers = append(papers, mapRawToModel(raw))
	}
	f.Logger.Debug("Zitationskanten geholt",
		zap.String("kind", kind), zap.String("source_id", sourceID), zap.Int("count", len(papers)))
	return papers, nil
}

// getJSON führt einen gepacten GET-Request aus und dekodiert die Antwort.
func (f *Fetcher) getJSON(ctx context.Context, rawURL string, out any) error {
	if err := f.limiter.Wait(ctx); err != nil {
		return providers.WrapTransportErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", "paper-atlas/1.0")
	if f.Config.S2APIKey != "" {
		req.Header.Set("x-api-key", f.Config.S2APIKey)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return providers.WrapTransportErr(err)
	}
	defer resp.Body.Close()

	if err := providers.CheckStatus(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", providers.ErrBadResponse, err)
	}
	return nil
}

// mapRawToModel wandelt ein API-Paper in unser Paper-Modell um.
// Deterministisch: fehlende optionale Felder bleiben leer.
func mapRawToModel(raw *RawPaper) *models.Paper {
	p := &models.Paper{
		Source:        "semantic_scholar",
		SourceID:      raw.PaperID,
		Title:         strings.TrimSpace(raw.Title),
		Abstract:      strings.TrimSpace(raw.Abstract),
		Year:          raw.Year,
		Venue:         strings.TrimSpace(raw.Venue),
		URL:           raw.URL,
		CitationCount: raw.CitationCount,
	}

	// Manche Einträge (v.a. aus Citations-Antworten) kommen ohne paperId.
	// Dann wird eine stabile Kennung aus Titel und Autoren abgeleitet.
	if strings.TrimSpace(p.SourceID) == "" {
		seed := raw.Title
		for _, a := range raw.Authors {
			seed += "|" + a.Name
		}
		p.SourceID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(seed)).String()
	}

	if raw.ExternalIDs.DOI != "" {
		doi := raw.ExternalIDs.DOI
		p.DOI = &doi
	}
	if raw.ExternalIDs.ArXiv != "" {
		aid := raw.ExternalIDs.ArXiv
		p.ArxivID = &aid
	}

	var authors []string
	for _, a := range raw.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	p.SetAuthors(authors)

	if len(raw.FieldsOfStudy) > 0 {
		p.SetMeta(models.SourceMeta{FieldsOfStudy: raw.FieldsOfStudy})
	}
	return p
}

// yearRange baut den Jahresfilter im API-Format ("2020-2023", "2020-", "-2023").
func yearRange(from, to int) string {
	switch {
	case from > 0 && to > 0:
		return fmt.Sprintf("%d-%d", from, to)
	case from > 0:
		return fmt.Sprintf("%d-", from)
	default:
		return fmt.Sprintf("-%d", to)
	}
}
