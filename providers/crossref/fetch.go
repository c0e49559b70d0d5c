package crossref

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

// jatsTags matcht die JATS-Markup-Tags, in die CrossRef Abstracts einbettet.
var jatsTags = regexp.MustCompile(`</?jats:[^>]+>|</?[a-zA-Z][^>]*>`)

// Fetcher kapselt die Logik zur Interaktion mit CrossRef.
// Implementiert providers.Provider und providers.Lookup.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des CrossRef-Fetchers. CrossRef ist
// großzügig (50 req/s dokumentiert); 10 req/s lokal reicht für diesen Dienst.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		client:  &http.Client{Timeout: cfg.CrossRefTimeout},
		limiter: rate.NewLimiter(rate.Limit(10), 2),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "crossref"
}

// Search führt eine Suche auf CrossRef aus.
func (f *Fetcher) Search(ctx context.Context, query string, filters providers.SearchFilters) ([]*models.Paper, error) {
	log := f.Logger.With(zap.String("provider", f.Name()), zap.String("query", query))
	log.Info("Starte Suche auf CrossRef.")

	rows := filters.MaxResults
	if rows <= 0 || rows > 1000 {
		rows = 100
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("rows", strconv.Itoa(rows))
	params.Set("sort", "relevance")
	if fs := buildFilter(filters); fs != "" {
		params.Set("filter", fs)
	}
	if f.Config.CrossRefMailto != "" {
		params.Set("mailto", f.Config.CrossRefMailto)
	}

	var wr WorksResponse
	if err := f.getJSON(ctx, f.Config.CrossRefBaseURL+"/works?"+params.Encode(), &wr); err != nil {
		return nil, fmt.Errorf("crossref suche: %w", err)
	}

	papers := make([]*models.Paper, 0, len(wr.Message.Items))
	for i := range wr.Message.Items {
		papers = append(papers, mapWorkToModel(&wr.Message.Items[i]))
	}
	log.Info("Suche auf CrossRef abgeschlossen",
		zap.Int("found_papers", len(papers)), zap.Int("total_results", wr.Message.TotalResults))
	return papers, nil
}

// GetByIdentifier holt ein einzelnes Werk anhand seiner DOI.
func (f *Fetcher) GetByIdentifier(ctx context.Context, doi string) (*models.Paper, error) {
	clean := strings.TrimSpace(doi)
	clean = strings.TrimPrefix(clean, "https://doi.org/")
	clean = strings.TrimPrefix(clean, "http://dx.doi.org/")

	var wr WorkResponse
	u := f.Config.CrossRefBaseURL + "/works/" + url.PathEscape(clean)
	if err := f.getJSON(ctx, u, &wr); err != nil {
		return nil, fmt.Errorf("crossref lookup %q: %w", doi, err)
	}
	return mapWorkToModel(&wr.Message), nil
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
	ua := "paper-atlas/1.0"
	if f.Config.CrossRefMailto != "" {
		ua += fmt.Sprintf(" (mailto:%s)", f.Config.CrossRefMailto)
	}
	req.Header.Set("User-Agent", ua)

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

// mapWorkToModel wandelt ein CrossRef-Work in unser Paper-Modell um.
func mapWorkToModel(w *Work) *models.Paper {
	title := ""
	if len(w.Title) > 0 {
		title = strings.TrimSpace(w.Title[0])
	}

	p := &models.Paper{
		Source:        "crossref",
		SourceID:      w.DOI,
		Title:         title,
		Abstract:      stripJATS(w.Abstract),
		URL:           w.URL,
		CitationCount: w.IsReferencedByCount,
	}
	if w.DOI != "" {
		doi := w.DOI
		p.DOI = &doi
	}
	if p.URL == "" && w.DOI != "" {
		p.URL = "https://doi.org/" + w.DOI
	}

	var authors []string
	for _, a := range w.Author {
		switch {
		case a.Given != "" && a.Family != "":
			authors = append(authors, a.Given+" "+a.Family)
		case a.Family != "":
			authors = append(authors, a.Family)
		}
	}
	p.SetAuthors(authors)

	if len(w.Published.DateParts) > 0 && len(w.Published.DateParts[0]) > 0 {
		year := w.Published.DateParts[0][0]
		p.Year = &year
	}

	var venueParts []string
	if len(w.ContainerTitle) > 0 && w.ContainerTitle[0] != "" {
		venueParts = append(venueParts, w.ContainerTitle[0])
	}
	if w.Publisher != "" && (len(venueParts) == 0 || venueParts[0] != w.Publisher) {
		venueParts = append(venueParts, w.Publisher)
	}
	p.Venue = strings.Join(venueParts, " - ")

	if len(w.Subject) > 0 {
		p.SetMeta(models.SourceMeta{FieldsOfStudy: w.Subject})
	}
	return p
}

// stripJATS entfernt das JATS-Markup aus CrossRef-Abstracts.
func stripJATS(s string) string {
	if s == "" {
		return ""
	}
	return strings.Join(strings.Fields(jatsTags.ReplaceAllString(s, " ")), " ")
}

// buildFilter baut den filter-Parameter der Works-API.
func buildFilter(filters providers.SearchFilters) string {
	var parts []string
	if filters.YearFrom > 0 {
		parts = append(parts, fmt.Sprintf("from-pub-date:%d", filters.YearFrom))
	}
	if filters.YearTo > 0 {
		parts = append(parts, fmt.Sprintf("until-pub-date:%d", filters.YearTo))
	}
	return strings.Join(parts, ",")
}
