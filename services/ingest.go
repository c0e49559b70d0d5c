package services

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/storage"
)

// PaperResult beschreibt ein Paper nach der Ingestion.
type PaperResult struct {
	PaperID uint         `json:"paper_id"`
	Title   string       `json:"title"`
	IsNew   bool         `json:"is_new"`
	Updated bool         `json:"updated,omitempty"`
	Tags    []Assignment `json:"tags,omitempty"`
}

// IngestReport fasst einen Ingestion-Lauf zusammen. Teilausfälle einzelner
// Provider erscheinen in Failures; der Lauf selbst schlägt dadurch nie fehl.
// PapersFailed zählt Papers, die weder angelegt noch gemergt werden konnten,
// getrennt von den Provider-Ausfällen in FailedCount.
type IngestReport struct {
	Query          string            `json:"query"`
	TotalFetched   int               `json:"total_fetched"`
	TotalIngested  int               `json:"total_ingested"`
	NewCount       int               `json:"new_count"`
	DuplicateCount int               `json:"duplicate_count"`
	FailedCount    int               `json:"failed_count"`
	PapersFailed   int               `json:"papers_failed"`
	FetchCounts    map[string]int    `json:"fetch_counts"`
	Failures       map[string]string `json:"failures,omitempty"`
	TagsAssigned   int               `json:"tags_assigned"`
	Papers         []PaperResult     `json:"papers"`

	// Results enthält die deduplizierte Trefferliste eines reinen Suchlaufs
	// (persist=false); bei Ingestion-Läufen bleibt das Feld leer.
	Results []*models.Paper `json:"results,omitempty"`
}

// IngestService orchestriert den gesamten Ingestion-Prozess: paralleler
// Provider-Fanout, Batch-Deduplizierung, Persistierung mit Merge und die
// anschließende Tag-Zuweisung.
type IngestService struct {
	Config   *config.Config
	Catalog  *storage.Catalog
	Registry *providers.Registry
	Deduper  *Deduper
	Tagger   *Tagger
	Combos   *ComboTracker
	Logger   *zap.Logger
}

// NewIngestService erstellt eine neue Instanz des IngestService.
func NewIngestService(cfg *config.Config, cat *storage.Catalog, reg *providers.Registry, logger *zap.Logger) *IngestService {
	return &IngestService{
		Config:   cfg,
		Catalog:  cat,
		Registry: reg,
		Deduper:  NewDeduper(cat, reg, cfg, logger),
		Tagger:   NewTagger(cfg, logger),
		Combos:   NewComboTracker(cat, cfg, logger),
		Logger:   logger,
	}
}

// Ingest führt eine Suche gegen die angegebenen Provider aus und nimmt die
// Ergebnisse in den Katalog auf. Leere providerNames bedeutet: alle
// registrierten Provider. Jeder Provider läuft in seiner eigenen Goroutine;
// ein Ausfall wird protokolliert und im Report verbucht, bricht den Lauf aber
// nie ab. Mit persist=false endet der Lauf nach der Batch-Deduplizierung:
// die Treffer kommen in Results zurück, ohne Katalog-Schreibzugriff und ohne
// Tag-Zuweisung.
func (s *IngestService) Ingest(ctx context.Context, query string, providerNames []string, filters providers.SearchFilters, assignTags, persist bool) (*IngestReport, error) {
	log := s.Logger.With(zap.String("query", query))
	log.Info("Starte Ingestion-Lauf.", zap.Strings("providers", providerNames))

	if len(providerNames) == 0 {
		providerNames = s.Registry.Names()
	}
	if filters.MaxResults <= 0 {
		filters.MaxResults = s.Config.DefaultMaxResults
	}
	if filters.MaxResults > s.Config.MaxResultsCap {
		filters.MaxResults = s.Config.MaxResultsCap
	}

	report := &IngestReport{
		Query:       query,
		FetchCounts: make(map[string]int, len(providerNames)),
		Failures:    make(map[string]string),
	}

	// Fanout: ein Provider pro Goroutine, Ergebnisse unter Mutex gesammelt.
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		fetched []*models.Paper
	)
	for _, name := range providerNames {
		prov, err := s.Registry.Get(name)
		if err != nil {
			log.Warn("Unbekannter Provider wird übersprungen", zap.String("provider", name))
			mu.Lock()
			report.FetchCounts[name] = 0
			report.Failures[name] = err.Error()
			report.FailedCount++
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func(prov providers.Provider) {
			defer wg.Done()
			papers, err := prov.Search(ctx, query, filters)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				log.Error("Provider-Suche fehlgeschlagen",
					zap.String("provider", prov.Name()), zap.Error(err))
				report.FetchCounts[prov.Name()] = 0
				report.Failures[prov.Name()] = err.Error()
				report.FailedCount++
				return
			}
			report.FetchCounts[prov.Name()] = len(papers)
			fetched = append(fetched, papers...)
		}(prov)
	}
	wg.Wait()

	report.TotalFetched = len(fetched)
	unique := s.Deduper.DedupBatch(fetched)
	log.Info("Provider-Fanout abgeschlossen",
		zap.Int("fetched", report.TotalFetched), zap.Int("unique", len(unique)))

	if !persist {
		report.Results = unique
		log.Info("Reiner Suchlauf, keine Persistierung",
			zap.Int("results", len(unique)))
		return report, nil
	}

	for _, p := range unique {
		result, err := s.persistOne(p)
		if err != nil {
			log.Error("Paper konnte nicht persistiert werden",
				zap.String("title", p.Title), zap.Error(err))
			report.PapersFailed++
			continue
		}
		report.TotalIngested++
		if result.IsNew {
			report.NewCount++
		} else {
			report.DuplicateCount++
		}

		// Tags werden bei Neuanlage zugewiesen und wenn der Merge den
		// Datensatz verändert hat, etwa ein gefüllter Abstract oder ein
		// promovierter Stub. Ein unveränderter Duplikat-Treffer lässt
		// Links und Combo-Zähler unangetastet.
		if assignTags && (result.IsNew || result.Updated) {
			tags, err := s.tagPaper(result.PaperID)
			if err != nil {
				log.Error("Tag-Zuweisung fehlgeschlagen",
					zap.Uint("paper_id", result.PaperID), zap.Error(err))
			} else {
				result.Tags = tags
				report.TagsAssigned += len(tags)
			}
		}
		report.Papers = append(report.Papers, *result)
	}

	log.Info("Ingestion-Lauf abgeschlossen",
		zap.Int("new", report.NewCount),
		zap.Int("duplicates", report.DuplicateCount),
		zap.Int("failed_providers", report.FailedCount),
		zap.Int("failed_papers", report.PapersFailed),
		zap.Int("tags_assigned", report.TagsAssigned))
	return report, nil
}

// persistOne schreibt ein kanonisiertes Paper in den Katalog: Merge in den
// vorhandenen Datensatz oder Neuanlage. Eine Unique-Verletzung beim Anlegen
// bedeutet, dass ein paralleler Lauf schneller war; dann wird erneut
// aufgelöst und gemergt.
func (s *IngestService) persistOne(p *models.Paper) (*PaperResult, error) {
	existing, err := s.Deduper.Resolve(p)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		changed := s.Deduper.Merge(existing, p)
		if changed {
			if err := s.Catalog.SavePaper(existing); err != nil {
				return nil, err
			}
		}
		return &PaperResult{PaperID: existing.ID, Title: existing.Title, IsNew: false, Updated: changed}, nil
	}

	if err := s.Catalog.CreatePaper(p); err != nil {
		// Race mit einem parallelen Lauf: erneut auflösen und mergen.
		existing, rerr := s.Deduper.Resolve(p)
		if rerr != nil || existing == nil {
			return nil, err
		}
		changed := s.Deduper.Merge(existing, p)
		if changed {
			if serr := s.Catalog.SavePaper(existing); serr != nil {
				return nil, serr
			}
		}
		return &PaperResult{PaperID: existing.ID, Title: existing.Title, IsNew: false, Updated: changed}, nil
	}
	return &PaperResult{PaperID: p.ID, Title: p.Title, IsNew: true}, nil
}

// tagPaper weist einem persistierten Paper Tags zu, legt fehlende Tags an,
// pflegt die Zähler und verbucht die Tag-Kombinationen.
func (s *IngestService) tagPaper(paperID uint) ([]Assignment, error) {
	paper, err := s.Catalog.GetPaper(paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, nil
	}

	assignments := s.Tagger.AssignForPaper(paper)
	if len(assignments) == 0 {
		return nil, nil
	}

	tagIDs := make([]uint, 0, len(assignments))
	for _, a := range assignments {
		tag, _, err := s.Catalog.GetOrCreateTag(a.Name, TagSlug(a.Name), models.TagCategoryAutoAssigned)
		if err != nil {
			return nil, err
		}
		linkCreated, err := s.Catalog.UpsertPaperTag(paper.ID, tag.ID, a.Confidence)
		if err != nil {
			return nil, err
		}
		if linkCreated {
			if err := s.Catalog.IncrementTagStats(tag.ID); err != nil {
				return nil, err
			}
			if err := s.Catalog.UpdateTagGrowth(tag.ID); err != nil {
				return nil, err
			}
		}
		tagIDs = append(tagIDs, tag.ID)
	}

	if _, err := s.Combos.Track(paper.ID, tagIDs); err != nil {
		return nil, err
	}
	return assignments, nil
}

// RunStandingQueries führt alle aktivierten wiederkehrenden Suchanfragen aus.
// Wird vom Cron-Scheduler aufgerufen; Fehler einzelner Queries werden
// protokolliert und der nächste Eintrag verarbeitet.
func (s *IngestService) RunStandingQueries(ctx context.Context) (int, error) {
	var queries []models.SearchQuery
	if err := s.Catalog.DB.Where("enabled = ?", true).Find(&queries).Error; err != nil {
		s.Logger.Error("Wiederkehrende Suchanfragen konnten nicht geladen werden", zap.Error(err))
		return 0, err
	}

	totalNew := 0
	for i := range queries {
		q := &queries[i]
		var names []string
		if q.Providers != "" {
			names = splitCSV(q.Providers)
		}
		report, err := s.Ingest(ctx, q.Query, names, providers.SearchFilters{MaxResults: q.MaxResults}, true, true)
		if err != nil {
			s.Logger.Error("Wiederkehrende Suche fehlgeschlagen",
				zap.String("name", q.Name), zap.Error(err))
			continue
		}
		totalNew += report.NewCount

		now := time.Now().UTC()
		q.LastRunAt = &now
		if err := s.Catalog.DB.Model(q).Update("last_run_at", now).Error; err != nil {
			s.Logger.Warn("last_run_at konnte nicht gesetzt werden",
				zap.String("name", q.Name), zap.Error(err))
		}
	}
	return totalNew, nil
}

func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
