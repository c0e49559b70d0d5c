package arxiv

import (
	"context"
	"encoding/xml"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

// versionSuffix matcht das Versionssuffix einer arXiv-ID (z.B. "v2").
var versionSuffix = regexp.MustCompile(`v\d+$`)

// Fetcher kapselt die Logik zur Interaktion mit arXiv.
// Implementiert providers.Provider und providers.Lookup; Zitationsdaten
// bietet arXiv nicht an.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des arXiv-Fetchers. Die API-Doku
// verlangt höchstens einen Request alle 3 Sekunden; das Intervall ist
// konfigurierbar und wird hier lokal durchgesetzt.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	interval := cfg.ArxivMinInterval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		client:  &http.Client{Timeout: cfg.ArxivTimeout},
		limiter: rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "arxiv"
}

// Search führt eine Suche auf arXiv aus.
func (f *Fetcher) Search(ctx context.Context, query string, filters providers.SearchFilters) ([]*models.Paper, error) {
	log := f.Logger.With(zap.String("provider", f.Name()), zap.String("query", query))
	log.Info("Starte Suche auf arXiv.")

	searchQuery := fmt.Sprintf("all:%s", query)
	if filters.Category != "" {
		searchQuery = fmt.Sprintf("(%s) AND cat:%s", searchQuery, filters.Category)
	}

	maxResults := filters.MaxResults
	if maxResults <= 0 || maxResults > 100 {
		maxResults = 100
	}

	params := url.Values{}
	params.Set("search_query", searchQuery)
	params.Set("start", "0")
	params.Set("max_results", strconv.Itoa(maxResults))
	params.Set("sortBy", "relevance")
	params.Set("sortOrder", "descending")

	feed, err := f.getFeed(ctx, f.Config.ArxivBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("arxiv suche: %w", err)
	}

	papers := make([]*models.Paper, 0, len(feed.Entries))
	for i := range feed.Entries {
		p := mapEntryToModel(&feed.Entries[i])
		// Der Jahresfilter wird clientseitig angewendet; die Atom-API
		// kennt keinen Jahresparameter.
		if filters.YearFrom > 0 && (p.Year == nil || *p.Year < filters.YearFrom) {
			continue
		}
		if filters.YearTo > 0 && (p.Year == nil || *p.Year > filters.YearTo) {
			continue
		}
		papers = append(papers, p)
	}
	log.Info("Suche auf arXiv abgeschlossen",
		zap.Int("found_papers", len(papers)), zap.Int("total_results", feed.TotalResults))
	return papers, nil
}

// GetByIdentifier holt ein einzelnes Paper anhand seiner arXiv-ID.
func (f *Fetcher) GetByIdentifier(ctx context.Context, id string) (*models.Paper, error) {
	clean := strings.TrimPrefix(strings.TrimSpace(id), "arXiv:")

	params := url.Values{}
	params.Set("id_list", clean)
	params.Set("max_results", "1")

	feed, err := f.getFeed(ctx, f.Config.ArxivBaseURL+"?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("arxiv lookup %q: %w", id, err)
	}
	if len(feed.Entries) == 0 {
		return nil, fmt.Errorf("%w: keine entry für id %q", providers.ErrBadResponse, id)
	}
	return mapEntryToModel(&feed.Entries[0]), nil
}

// getFeed führt einen gepacten GET-Request aus und parst den Atom-Feed.
func (f *Fetcher) getFeed(ctx context.Context, rawURL string) (*Feed, error) {
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, providers.WrapTransportErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "paper-atlas/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, providers.WrapTransportErr(err)
	}
	defer resp.Body.Close()

	if err := providers.CheckStatus(resp); err != nil {
		return nil, err
	}

	var feed Feed
	if err := xml.NewDecoder(resp.Body).Decode(&feed); err != nil {
		return nil, fmt.Errorf("%w: %v", providers.ErrBadResponse, err)
	}
	return &feed, nil
}

// mapEntryToModel wandelt eine Atom-Entry in unser Paper-Modell um.
func mapEntryToModel(entry *Entry) *models.Paper {
	arxivID := extractID(entry.ID)

	p := &models.Paper{
		Source:   "arxiv",
		SourceID: arxivID,
		Title:    collapseWhitespace(entry.Title),
		Abstract: collapseWhitespace(entry.Summary),
		Venue:    strings.TrimSpace(entry.JournalRef),
		URL:      entry.ID,
		// arXiv liefert keine Zitationszahlen.
		CitationCount: 0,
	}
	if arxivID != "" {
		aid := arxivID
		p.ArxivID = &aid
	}
	if entry.DOI != "" {
		doi := entry.DOI
		p.DOI = &doi
	}

	if t, err := time.Parse(time.RFC3339, entry.Published); err == nil {
		year := t.Year()
		p.Year = &year
	}

	var authors []string
	for _, a := range entry.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	p.SetAuthors(authors)

	var categories []string
	for _, c := range entry.Categories {
		if c.Term != "" {
			categories = append(categories, c.Term)
		}
	}
	if len(categories) == 0 && entry.PrimaryCategory.Term != "" {
		categories = append(categories, entry.PrimaryCategory.Term)
	}
	if len(categories) > 0 {
		p.SetMeta(models.SourceMeta{ArxivCategories: categories})
	}
	return p
}

// extractID löst die arXiv-ID aus der Entry-URL und entfernt das
// Versionssuffix ("2401.12345v2" -> "2401.12345").
func extractID(entryID string) string {
	id := entryID
	if idx := strings.LastIndex(id, "/abs/"); idx >= 0 {
		id = id[idx+len("/abs/"):]
	}
	return versionSuffix.ReplaceAllString(strings.TrimSpace(id), "")
}

// collapseWhitespace normalisiert die mehrzeiligen Atom-Textfelder.
func collapseWhitespace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
