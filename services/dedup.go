// Package services enthält die Fachlogik des Katalogs: Deduplizierung,
// Tag-Zuweisung, Combo-Tracking, Ingestion-Orchestrierung und den Aufbau des
// Zitationsnetzwerks.
package services

import (
	"regexp"
	"sort"
	"strings"
	"unicode"

	"go.uber.org/zap"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/storage"
)

var (
	arxivVersion = regexp.MustCompile(`v\d+$`)
	nonAlnum     = regexp.MustCompile(`[^a-z0-9\s]+`)

	// titleFold entfernt diakritische Zeichen ("Schrödinger" -> "Schrodinger"),
	// damit Provider mit unterschiedlichem Encoding auf denselben Normtitel
	// fallen.
	titleFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
)

// NormalizeDOI bringt eine DOI auf die kanonische Form: Resolver-Präfixe und
// "doi:"-Schema entfernt, kleingeschrieben. Leerer String bei leerer Eingabe.
func NormalizeDOI(doi string) string {
	d := strings.TrimSpace(strings.ToLower(doi))
	for _, prefix := range []string{"https://doi.org/", "http://doi.org/", "https://dx.doi.org/", "http://dx.doi.org/", "doi:"} {
		d = strings.TrimPrefix(d, prefix)
	}
	return strings.TrimSpace(d)
}

// NormalizeArxivID bringt eine arXiv-ID auf die kanonische Form: "arXiv:"-
// Präfix und Versionssuffix entfernt, kleingeschrieben.
func NormalizeArxivID(id string) string {
	a := strings.TrimSpace(id)
	a = strings.TrimPrefix(a, "arXiv:")
	a = strings.TrimPrefix(a, "arxiv:")
	return arxivVersion.ReplaceAllString(strings.ToLower(a), "")
}

// NormalizeTitle erzeugt den Normtitel für den Fuzzy-Abgleich: kleingeschrieben,
// Diakritika gefaltet, Satzzeichen entfernt, Whitespace kollabiert.
func NormalizeTitle(title string) string {
	t := strings.ToLower(strings.TrimSpace(title))
	if folded, _, err := transform.String(titleFold, t); err == nil {
		t = folded
	}
	t = nonAlnum.ReplaceAllString(t, " ")
	return strings.Join(strings.Fields(t), " ")
}

// titleTokens zerlegt einen Normtitel in seine eindeutigen Tokens.
func titleTokens(normTitle string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normTitle) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

// TitleSimilarity berechnet die Token-Set-Jaccard-Ähnlichkeit zweier
// Normtitel in [0,1].
func TitleSimilarity(a, b string) float64 {
	ta, tb := titleTokens(a), titleTokens(b)
	if len(ta) == 0 || len(tb) == 0 {
		return 0
	}
	inter := 0
	for tok := range ta {
		if _, ok := tb[tok]; ok {
			inter++
		}
	}
	union := len(ta) + len(tb) - inter
	return float64(inter) / float64(union)
}

// TitlePolicy parametrisiert den Fuzzy-Titelabgleich.
type TitlePolicy struct {
	// JaccardThreshold: ab dieser Ähnlichkeit gelten zwei Titel als gleich.
	JaccardThreshold float64
	// MinLength: kürzere Normtitel werden nie fuzzy gematcht; zu hohe
	// Kollisionsgefahr bei generischen Kurztiteln.
	MinLength int
}

// Matches entscheidet, ob zwei Papers per Fuzzy-Titelabgleich dasselbe Werk
// sind. Beide Jahre müssen gleich sein, sofern beide gesetzt sind.
func (tp TitlePolicy) Matches(aNorm string, aYear *int, bNorm string, bYear *int) bool {
	if len(aNorm) < tp.MinLength || len(bNorm) < tp.MinLength {
		return false
	}
	if aYear != nil && bYear != nil && *aYear != *bYear {
		return false
	}
	return TitleSimilarity(aNorm, bNorm) >= tp.JaccardThreshold
}

// Deduper ist die Deduplizierungs-Engine. Die Kaskade prüft Identitäten in
// fester Reihenfolge: DOI, arXiv-ID, (Quelle, Quell-ID), Fuzzy-Titel.
type Deduper struct {
	Catalog  *storage.Catalog
	Registry *providers.Registry
	Policy   TitlePolicy
	Logger   *zap.Logger
}

// NewDeduper erstellt eine Dedup-Engine mit der konfigurierten Titel-Policy.
func NewDeduper(cat *storage.Catalog, reg *providers.Registry, cfg *config.Config, logger *zap.Logger) *Deduper {
	return &Deduper{
		Catalog:  cat,
		Registry: reg,
		Policy: TitlePolicy{
			JaccardThreshold: cfg.TitleJaccardThreshold,
			MinLength:        cfg.TitleMinLength,
		},
		Logger: logger,
	}
}

// Canonicalize normalisiert die Identitäten eines eingehenden Papers in-place
// und setzt den Normtitel. Muss vor Resolve aufgerufen werden.
func (d *Deduper) Canonicalize(p *models.Paper) {
	if p.DOI != nil {
		if doi := NormalizeDOI(*p.DOI); doi != "" {
			p.DOI = &doi
		} else {
			p.DOI = nil
		}
	}
	if p.ArxivID != nil {
		if aid := NormalizeArxivID(*p.ArxivID); aid != "" {
			p.ArxivID = &aid
		} else {
			p.ArxivID = nil
		}
	}
	p.TitleNorm = NormalizeTitle(p.Title)
}

// Resolve sucht das im Katalog bereits vorhandene Paper für ein eingehendes.
// Gibt (nil, nil) zurück, wenn das Paper neu ist. Das eingehende Paper muss
// kanonisiert sein.
func (d *Deduper) Resolve(p *models.Paper) (*models.Paper, error) {
	if p.DOI != nil {
		if hit, err := d.Catalog.FindByDOI(*p.DOI); err != nil || hit != nil {
			if hit != nil {
				d.warnAmbiguity(p, hit)
			}
			return hit, err
		}
	}
	if p.ArxivID != nil {
		if hit, err := d.Catalog.FindByArxivID(*p.ArxivID); err != nil || hit != nil {
			if hit != nil {
				d.warnAmbiguity(p, hit)
			}
			return hit, err
		}
	}
	if p.Source != "" && p.SourceID != "" {
		if hit, err := d.Catalog.FindBySource(p.Source, p.SourceID); err != nil || hit != nil {
			return hit, err
		}
	}

	// Stufe 4: Fuzzy-Titelabgleich über Kandidaten mit passendem Jahr.
	if len(p.TitleNorm) >= d.Policy.MinLength {
		candidates, err := d.Catalog.TitleCandidates(p.Year, 500)
		if err != nil {
			return nil, err
		}
		for i := range candidates {
			cand := &candidates[i]
			if d.Policy.Matches(p.TitleNorm, p.Year, cand.TitleNorm, cand.Year) {
				d.Logger.Debug("Fuzzy-Titeltreffer",
					zap.Uint("paper_id", cand.ID),
					zap.String("incoming_title", p.Title))
				return cand, nil
			}
		}
	}
	return nil, nil
}

// warnAmbiguity protokolliert, wenn weitere Identitäten des eingehenden
// Papers auf einen anderen Katalogeintrag zeigen als den Kaskadentreffer.
// Der Treffer der frühesten Stufe gewinnt; der Konflikt wird nur gemeldet.
func (d *Deduper) warnAmbiguity(p, hit *models.Paper) {
	if p.ArxivID != nil {
		if other, err := d.Catalog.FindByArxivID(*p.ArxivID); err == nil && other != nil && other.ID != hit.ID {
			d.Logger.Warn("Mehrdeutige Identitäten: arXiv-ID zeigt auf anderes Paper",
				zap.Uint("matched_id", hit.ID),
				zap.Uint("conflicting_id", other.ID),
				zap.String("arxiv_id", *p.ArxivID))
		}
	}
	if p.Source != "" && p.SourceID != "" {
		if other, err := d.Catalog.FindBySource(p.Source, p.SourceID); err == nil && other != nil && other.ID != hit.ID {
			d.Logger.Warn("Mehrdeutige Identitäten: Quell-ID zeigt auf anderes Paper",
				zap.Uint("matched_id", hit.ID),
				zap.Uint("conflicting_id", other.ID),
				zap.String("source", p.Source),
				zap.String("source_id", p.SourceID))
		}
	}
}

// Merge überträgt Metadaten eines eingehenden Papers auf ein vorhandenes.
// Vorhandene Werte werden nie überschrieben, nur Lücken gefüllt; der
// Zitationszähler wächst monoton auf das Maximum. Ein Stub wird durch den
// ersten vollständigen Treffer promoviert. Gibt zurück, ob sich etwas
// geändert hat.
func (d *Deduper) Merge(existing, incoming *models.Paper) bool {
	changed := false

	if existing.DOI == nil && incoming.DOI != nil {
		existing.DOI = incoming.DOI
		changed = true
	}
	if existing.ArxivID == nil && incoming.ArxivID != nil {
		existing.ArxivID = incoming.ArxivID
		changed = true
	}
	if existing.Abstract == "" && incoming.Abstract != "" {
		existing.Abstract = incoming.Abstract
		changed = true
	}
	if len(existing.Authors) == 0 && len(incoming.Authors) > 0 {
		existing.Authors = incoming.Authors
		changed = true
	}
	if existing.Year == nil && incoming.Year != nil {
		existing.Year = incoming.Year
		changed = true
	}
	if existing.Venue == "" && incoming.Venue != "" {
		existing.Venue = incoming.Venue
		changed = true
	}
	if existing.URL == "" && incoming.URL != "" {
		existing.URL = incoming.URL
		changed = true
	}
	if incoming.CitationCount > existing.CitationCount {
		existing.CitationCount = incoming.CitationCount
		changed = true
	}
	if len(existing.RawData) == 0 && len(incoming.RawData) > 0 {
		existing.RawData = incoming.RawData
		changed = true
	}

	// Stub-Promotion: der erste vollständige Treffer liefert Titel und Text.
	if existing.IsStub && !incoming.IsStub && incoming.Title != "" {
		if existing.Title == "" {
			existing.Title = incoming.Title
			existing.TitleNorm = incoming.TitleNorm
		}
		existing.IsStub = false
		changed = true
	}
	return changed
}

// DedupBatch dedupliziert eine Ergebnismenge im Speicher, bevor sie gegen den
// Katalog läuft. Bei Duplikaten innerhalb des Batches gewinnt deterministisch
// das Paper des zuerst konfigurierten Providers; die Metadaten der Verlierer
// werden hineingemergt.
func (d *Deduper) DedupBatch(batch []*models.Paper) []*models.Paper {
	sorted := make([]*models.Paper, len(batch))
	copy(sorted, batch)
	sort.SliceStable(sorted, func(i, j int) bool {
		return d.Registry.Rank(sorted[i].Source) < d.Registry.Rank(sorted[j].Source)
	})

	var kept []*models.Paper
	for _, p := range sorted {
		d.Canonicalize(p)
		merged := false
		for _, k := range kept {
			if d.samePaper(k, p) {
				d.Merge(k, p)
				merged = true
				break
			}
		}
		if !merged {
			kept = append(kept, p)
		}
	}
	return kept
}

// samePaper prüft die Identitätskaskade zwischen zwei kanonisierten Papers.
func (d *Deduper) samePaper(a, b *models.Paper) bool {
	if a.DOI != nil && b.DOI != nil && *a.DOI == *b.DOI {
		return true
	}
	if a.ArxivID != nil && b.ArxivID != nil && *a.ArxivID == *b.ArxivID {
		return true
	}
	if a.Source == b.Source && a.SourceID == b.SourceID && a.SourceID != "" {
		return true
	}
	return d.Policy.Matches(a.TitleNorm, a.Year, b.TitleNorm, b.Year)
}
