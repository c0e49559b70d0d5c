package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/storage"
)

// CitationReport fasst einen Aufbau-Lauf des Zitationsnetzwerks zusammen.
type CitationReport struct {
	PaperID            uint `json:"paper_id"`
	CitationsAdded     int  `json:"citations_added"`
	CitationsExisting  int  `json:"citations_existing"`
	ReferencesAdded    int  `json:"references_added"`
	ReferencesExisting int  `json:"references_existing"`
	StubsCreated       int  `json:"stubs_created"`
}

// CitationService baut das Zitationsnetzwerk inkrementell auf: für ein Paper
// werden die direkten Zitationen und Referenzen geholt (Tiefe 1), Nachbarn
// ohne Katalogeintrag als Stubs angelegt und die Kanten idempotent
// persistiert. Stubs entstehen ausschließlich über den Merge-Pfad der
// Dedup-Engine, nie über einen zweiten Einfügepfad.
type CitationService struct {
	Config   *config.Config
	Catalog  *storage.Catalog
	Registry *providers.Registry
	Deduper  *Deduper
	Logger   *zap.Logger
}

// NewCitationService erstellt eine neue Instanz des CitationService.
func NewCitationService(cfg *config.Config, cat *storage.Catalog, reg *providers.Registry, logger *zap.Logger) *CitationService {
	return &CitationService{
		Config:   cfg,
		Catalog:  cat,
		Registry: reg,
		Deduper:  NewDeduper(cat, reg, cfg, logger),
		Logger:   logger,
	}
}

// BuildForPaper holt Zitationen und Referenzen für ein Paper und persistiert
// die Kanten. Bietet kein registrierter Provider die Zitations-Capability für
// dieses Paper an, kommt ein leerer Report zurück, kein Fehler.
func (s *CitationService) BuildForPaper(ctx context.Context, paperID uint, maxCitations, maxReferences int) (*CitationReport, error) {
	paper, err := s.Catalog.GetPaper(paperID)
	if err != nil {
		return nil, err
	}
	if paper == nil {
		return nil, fmt.Errorf("paper %d nicht gefunden", paperID)
	}

	log := s.Logger.With(zap.Uint("paper_id", paperID))
	report := &CitationReport{PaperID: paperID}

	src, sourceID, err := s.citationSource(paper)
	if err != nil {
		if errors.Is(err, providers.ErrUnsupported) {
			log.Info("Kein Provider mit Zitations-Capability für dieses Paper.",
				zap.String("source", paper.Source))
			return report, nil
		}
		return nil, err
	}

	if maxCitations <= 0 {
		maxCitations = s.Config.MaxCitations
	}
	if maxReferences <= 0 {
		maxReferences = s.Config.MaxReferences
	}

	// Eingehende Kanten: Nachbar zitiert dieses Paper.
	citing, err := src.GetCitations(ctx, sourceID, maxCitations)
	if err != nil {
		log.Warn("Zitationen konnten nicht geholt werden", zap.Error(err))
	} else {
		for _, neighbor := range citing {
			s.linkEdge(log, report, neighbor, paper.ID, true)
		}
	}

	// Ausgehende Kanten: dieses Paper zitiert den Nachbarn.
	refs, err := src.GetReferences(ctx, sourceID, maxReferences)
	if err != nil {
		log.Warn("Referenzen konnten nicht geholt werden", zap.Error(err))
	} else {
		for _, neighbor := range refs {
			s.linkEdge(log, report, neighbor, paper.ID, false)
		}
	}

	log.Info("Zitationsnetzwerk aktualisiert",
		zap.Int("citations_added", report.CitationsAdded),
		zap.Int("references_added", report.ReferencesAdded),
		zap.Int("stubs_created", report.StubsCreated))
	return report, nil
}

// linkEdge persistiert den Nachbarn (Stub oder Merge) und legt die Kante an.
// neighborCites: true, wenn der Nachbar das Paper zitiert; false, wenn das
// Paper den Nachbarn zitiert.
func (s *CitationService) linkEdge(log *zap.Logger, report *CitationReport, neighbor *models.Paper, paperID uint, neighborCites bool) {
	neighborID, created, err := s.resolveNeighbor(neighbor)
	if err != nil {
		log.Warn("Zitationsnachbar konnte nicht aufgelöst werden",
			zap.String("title", neighbor.Title), zap.Error(err))
		return
	}
	if created {
		report.StubsCreated++
	}
	if neighborID == paperID {
		// Selbstzitate sind verboten.
		return
	}

	citingID, citedID := paperID, neighborID
	if neighborCites {
		citingID, citedID = neighborID, paperID
	}
	added, err := s.Catalog.UpsertCitation(citingID, citedID, neighbor.Source)
	if err != nil {
		log.Warn("Zitationskante konnte nicht gespeichert werden", zap.Error(err))
		return
	}
	switch {
	case neighborCites && added:
		report.CitationsAdded++
	case neighborCites:
		report.CitationsExisting++
	case added:
		report.ReferencesAdded++
	default:
		report.ReferencesExisting++
	}
}

// resolveNeighbor findet den Katalogeintrag eines Zitationsnachbarn oder legt
// ihn als Stub an. Gefundene Einträge werden über den normalen Merge-Pfad mit
// den (dünnen) Metadaten der Zitationsantwort angereichert.
func (s *CitationService) resolveNeighbor(neighbor *models.Paper) (uint, bool, error) {
	s.Deduper.Canonicalize(neighbor)

	existing, err := s.Deduper.Resolve(neighbor)
	if err != nil {
		return 0, false, err
	}
	if existing != nil {
		if s.Deduper.Merge(existing, neighbor) {
			if err := s.Catalog.SavePaper(existing); err != nil {
				return 0, false, err
			}
		}
		return existing.ID, false, nil
	}

	neighbor.IsStub = true
	if err := s.Catalog.CreatePaper(neighbor); err != nil {
		// Race: ein paralleler Lauf hat den Nachbarn gerade angelegt.
		existing, rerr := s.Deduper.Resolve(neighbor)
		if rerr != nil || existing == nil {
			return 0, false, err
		}
		return existing.ID, false, nil
	}
	return neighbor.ID, true, nil
}

// citationSource wählt die Zitationsquelle für ein Paper: die eigene Quelle,
// falls sie die Capability anbietet, sonst Semantic Scholar über DOI bzw.
// arXiv-ID.
func (s *CitationService) citationSource(paper *models.Paper) (providers.CitationSource, string, error) {
	if cs, err := s.Registry.CitationSource(paper.Source); err == nil {
		return cs, paper.SourceID, nil
	}

	cs, err := s.Registry.CitationSource("semantic_scholar")
	if err != nil {
		return nil, "", fmt.Errorf("kein zitationsfähiger provider registriert: %w", providers.ErrUnsupported)
	}
	switch {
	case paper.DOI != nil:
		return cs, *paper.DOI, nil
	case paper.ArxivID != nil:
		return cs, "arXiv:" + *paper.ArxivID, nil
	default:
		return nil, "", fmt.Errorf("paper %d ohne externe kennung: %w", paper.ID, providers.ErrUnsupported)
	}
}
