// Package serpapi enthält die Logik für die Google-Scholar-Suche über SerpAPI.
// Nur Suche; Lookups und Zitationsgraphen bietet die Engine nicht an.
package serpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
)

// summaryYear matcht die Jahreszahl im publication_info-Summary
// ("A Author, B Author - 2023 - journal.example").
var summaryYear = regexp.MustCompile(`\b(19|20)\d{2}\b`)

// searchResponse repräsentiert den relevanten Ausschnitt der SerpAPI-Antwort.
type searchResponse struct {
	OrganicResults []organicResult `json:"organic_results"`
}

type organicResult struct {
	ResultID string `json:"result_id"`
	Title    string `json:"title"`
	Link     string `json:"link"`
	Snippet  string `json:"snippet"`

	PublicationInfo struct {
		Summary string `json:"summary"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
	} `json:"publication_info"`

	InlineLinks struct {
		CitedBy struct {
			Total int `json:"total"`
		} `json:"cited_by"`
	} `json:"inline_links"`
}

// Fetcher kapselt die Logik zur Interaktion mit SerpAPI.
// Implementiert providers.Provider.
type Fetcher struct {
	Config  *config.Config
	Logger  *zap.Logger
	client  *http.Client
	limiter *rate.Limiter
}

// NewFetcher erstellt eine neue Instanz des SerpAPI-Fetchers. Der Provider
// wird nur registriert, wenn ein API-Key konfiguriert ist.
func NewFetcher(cfg *config.Config, logger *zap.Logger) *Fetcher {
	return &Fetcher{
		Config:  cfg,
		Logger:  logger,
		client:  &http.Client{Timeout: cfg.SerpAPITimeout},
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

// Name gibt den Namen des Providers zurück.
func (f *Fetcher) Name() string {
	return "google_scholar"
}

// Search führt eine Suche auf Google Scholar aus.
func (f *Fetcher) Search(ctx context.Context, query string, filters providers.SearchFilters) ([]*models.Paper, error) {
	log := f.Logger.With(zap.String("provider", f.Name()), zap.String("query", query))
	log.Info("Starte Suche auf Google Scholar.")

	num := filters.MaxResults
	if num <= 0 || num > 20 {
		// SerpAPI liefert maximal 20 organische Treffer pro Seite.
		num = 20
	}

	params := url.Values{}
	params.Set("engine", "google_scholar")
	params.Set("q", query)
	params.Set("num", strconv.Itoa(num))
	params.Set("api_key", f.Config.SerpAPIKey)
	if filters.YearFrom > 0 {
		params.Set("as_ylo", strconv.Itoa(filters.YearFrom))
	}
	if filters.YearTo > 0 {
		params.Set("as_yhi", strconv.Itoa(filters.YearTo))
	}

	if err := f.limiter.Wait(ctx); err != nil {
		return nil, providers.WrapTransportErr(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.Config.SerpAPIBaseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "paper-atlas/1.0")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("google scholar suche: %w", providers.WrapTransportErr(err))
	}
	defer resp.Body.Close()

	if err := providers.CheckStatus(resp); err != nil {
		return nil, fmt.Errorf("google scholar suche: %w", err)
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("google scholar suche: %w: %v", providers.ErrBadResponse, err)
	}

	papers := make([]*models.Paper, 0, len(sr.OrganicResults))
	for i := range sr.OrganicResults {
		if p := mapResultToModel(&sr.OrganicResults[i]); p != nil {
			papers = append(papers, p)
		}
	}
	log.Info("Suche auf Google Scholar abgeschlossen", zap.Int("found_papers", len(papers)))
	return papers, nil
}

// mapResultToModel wandelt ein Scholar-Ergebnis in unser Paper-Modell um.
// Scholar liefert weder DOI noch Abstract; der Snippet dient als Ersatztext
// für die Tag-Zuweisung.
func mapResultToModel(r *organicResult) *models.Paper {
	title := strings.TrimSpace(r.Title)
	if title == "" {
		return nil
	}

	p := &models.Paper{
		Source:        "google_scholar",
		SourceID:      r.ResultID,
		Title:         title,
		Abstract:      strings.TrimSpace(r.Snippet),
		URL:           r.Link,
		CitationCount: r.InlineLinks.CitedBy.Total,
	}
	if p.SourceID == "" {
		p.SourceID = uuid.NewSHA1(uuid.NameSpaceDNS, []byte(title+"|"+r.Link)).String()
	}

	var authors []string
	for _, a := range r.PublicationInfo.Authors {
		if a.Name != "" {
			authors = append(authors, a.Name)
		}
	}
	p.SetAuthors(authors)

	if m := summaryYear.FindString(r.PublicationInfo.Summary); m != "" {
		if year, err := strconv.Atoi(m); err == nil {
			p.Year = &year
		}
	}
	return p
}
