package services

import (
	"sort"
	"strings"

	"go.uber.org/zap"

	"paper-atlas/config"
	"paper-atlas/models"
)

// stopWords werden bei der Termfrequenz-Analyse ignoriert.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "and": {}, "or": {}, "but": {}, "in": {},
	"on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "with": {}, "by": {},
	"from": {}, "as": {}, "is": {}, "was": {}, "are": {}, "be": {}, "been": {},
	"this": {}, "that": {}, "these": {}, "those": {}, "we": {}, "our": {},
}

// Assignment ist ein vorgeschlagenes Tag mit kombinierter Konfidenz in [0,1].
type Assignment struct {
	Name       string
	Confidence float64
}

// TagWeights gewichten die drei Strategien. Die Summe muss 1.0 ergeben;
// config.Load validiert das.
type TagWeights struct {
	Rules  float64
	Terms  float64
	Source float64
}

// Tagger ist die Tag-Zuweisungs-Engine. Drei Strategien werden gewichtet
// kombiniert: Schlüsselwort-Regeln, Termfrequenz und quellenspezifische
// Labels. Die Keyword-Tabelle ist unveränderlich und wird bei der
// Konstruktion übergeben, kein veränderlicher globaler Zustand.
type Tagger struct {
	index         *keywordIndex
	weights       TagWeights
	minConfidence float64
	maxTags       int
	logger        *zap.Logger
}

// NewTagger erstellt eine Tag-Engine mit den konfigurierten Gewichten.
func NewTagger(cfg *config.Config, logger *zap.Logger) *Tagger {
	return &Tagger{
		index: newKeywordIndex(),
		weights: TagWeights{
			Rules:  cfg.TagWeightRules,
			Terms:  cfg.TagWeightTerms,
			Source: cfg.TagWeightSource,
		},
		minConfidence: cfg.TagMinConfidence,
		maxTags:       cfg.TagMaxPerPaper,
		logger:        logger,
	}
}

// AssignTags schlägt Tags für ein Paper vor. Ohne Titel wird die Zuweisung
// übersprungen und eine leere Liste zurückgegeben, kein Fehler.
func (t *Tagger) AssignTags(title, abstract string, sourceFields, arxivCategories []string) []Assignment {
	if strings.TrimSpace(title) == "" {
		t.logger.Debug("Tag-Zuweisung übersprungen: Paper ohne Titel.")
		return nil
	}

	titleLower := strings.ToLower(title)
	text := titleLower
	if abstract != "" {
		text += " " + strings.ToLower(abstract)
	}

	ruleScores := t.ruleScores(titleLower, text)
	termScores := t.termScores(titleLower, text)
	sourceScores := t.sourceScores(sourceFields, arxivCategories)

	combined := t.combine(ruleScores, termScores, sourceScores)

	var out []Assignment
	for name, score := range combined {
		if score >= t.minConfidence {
			out = append(out, Assignment{Name: name, Confidence: score})
		}
	}
	// Absteigend nach Konfidenz, bei Gleichstand alphabetisch, damit die
	// maxTags-Kappung deterministisch ist.
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Name < out[j].Name
	})
	if len(out) > t.maxTags {
		out = out[:t.maxTags]
	}
	return out
}

// AssignForPaper wendet AssignTags auf ein Paper-Modell an und zieht die
// quellenspezifischen Labels aus den Rohdaten.
func (t *Tagger) AssignForPaper(p *models.Paper) []Assignment {
	meta := p.Meta()
	return t.AssignTags(p.Title, p.Abstract, meta.FieldsOfStudy, meta.ArxivCategories)
}

// ruleScores: Strategie 1, Schlüsselwort-Regeln. Gezählt werden die
// unterschiedlichen Patterns eines Tags, die im Text treffen; ein Treffer im
// Titel zählt dreifach. Ab drei gewichteten Treffern ist das Signal gesättigt,
// ein einzelnes Titel-Schlüsselwort reicht also aus.
func (t *Tagger) ruleScores(titleLower, text string) map[string]float64 {
	scores := make(map[string]float64)
	for tag, patterns := range t.index.patterns {
		hits := 0
		for _, p := range patterns {
			if !p.MatchString(text) {
				continue
			}
			if p.MatchString(titleLower) {
				hits += 3
			} else {
				hits++
			}
		}
		if hits > 0 {
			score := float64(hits) / 3.0
			if score > 1.0 {
				score = 1.0
			}
			scores[tag] = score
		}
	}
	return scores
}

// termScores: Strategie 2, Termfrequenz. Zählt, wie oft die Schlüsselwörter
// eines Tags als Tokens im Text vorkommen, normiert auf die Textlänge.
// Titel-Vorkommen zählen dreifach, wie bei den Regeln. Gedeckelt bei 0.5,
// das Frequenzsignal allein soll kein Tag durchdrücken.
func (t *Tagger) termScores(titleLower, text string) map[string]float64 {
	textFreq := tokenFrequencies(text)
	titleFreq := tokenFrequencies(titleLower)
	total := 0
	for _, n := range textFreq {
		total += n
	}
	if total == 0 {
		return nil
	}

	scores := make(map[string]float64)
	for tag, keywords := range TagKeywords {
		freq := 0
		for _, kw := range keywords {
			token := strings.ReplaceAll(strings.ToLower(kw), " ", "")
			freq += textFreq[token] + 2*titleFreq[token]
		}
		if freq > 0 {
			score := float64(freq) / float64(total)
			if score > 0.5 {
				score = 0.5
			}
			scores[tag] = score
		}
	}
	return scores
}

// tokenFrequencies zählt Wortvorkommen ohne Stoppwörter und Kurztokens.
func tokenFrequencies(text string) map[string]int {
	freq := make(map[string]int)
	for _, tok := range strings.FieldsFunc(text, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) <= 3 {
			continue
		}
		if _, stop := stopWords[tok]; stop {
			continue
		}
		freq[tok]++
	}
	return freq
}

// sourceScores: Strategie 3, quellenspezifische Labels. arXiv-Kategorien und
// Fields-of-Study werden über die statischen Maps auf Tags abgebildet;
// Felder matchen zusätzlich unscharf gegen die Keyword-Tabelle.
func (t *Tagger) sourceScores(sourceFields, arxivCategories []string) map[string]float64 {
	scores := make(map[string]float64)

	for _, cat := range arxivCategories {
		for _, tag := range ArxivCategoryMap[cat] {
			scores[tag] += 0.8
		}
	}
	for _, field := range sourceFields {
		for _, tag := range FieldMap[field] {
			scores[tag] += 0.7
		}
		fieldLower := strings.ToLower(field)
		for tag, keywords := range TagKeywords {
			for _, kw := range keywords {
				if strings.Contains(fieldLower, strings.ToLower(kw)) {
					scores[tag] += 0.5
					break
				}
			}
		}
	}

	for tag, score := range scores {
		if score > 1.0 {
			scores[tag] = 1.0
		}
	}
	return scores
}

// combine bildet den gewichteten Mittelwert über die Strategien, normiert auf
// die Gewichte der tatsächlich beitragenden Strategien. Eine Strategie ohne
// Signal verwässert die anderen nicht.
func (t *Tagger) combine(rule, term, source map[string]float64) map[string]float64 {
	all := make(map[string]struct{})
	for tag := range rule {
		all[tag] = struct{}{}
	}
	for tag := range term {
		all[tag] = struct{}{}
	}
	for tag := range source {
		all[tag] = struct{}{}
	}

	combined := make(map[string]float64, len(all))
	for tag := range all {
		sum, weight := 0.0, 0.0
		if s := rule[tag]; s > 0 {
			sum += s * t.weights.Rules
			weight += t.weights.Rules
		}
		if s := term[tag]; s > 0 {
			sum += s * t.weights.Terms
			weight += t.weights.Terms
		}
		if s := source[tag]; s > 0 {
			sum += s * t.weights.Source
			weight += t.weights.Source
		}
		if weight > 0 {
			combined[tag] = sum / weight
		}
	}
	return combined
}
