// Package providers definiert den Vertrag, den jeder Such-Provider
// (Semantic Scholar, arXiv, CrossRef, ...) implementieren muss, sowie die
// gemeinsame Fehlertaxonomie und die Registry.
package providers

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"paper-atlas/models"
)

// Fehlertaxonomie der Connector-Ebene. Connectors wickeln diese Sentinels mit
// %w ein; Aufrufer klassifizieren per errors.Is und entscheiden selbst über
// Retries — der Connector wiederholt nie automatisch.
var (
	// ErrTimeout: die Provider-Deadline wurde überschritten.
	ErrTimeout = errors.New("provider timeout")
	// ErrRateLimited: der Provider signalisiert Throttling (HTTP 429).
	ErrRateLimited = errors.New("provider rate limited")
	// ErrBadResponse: die Antwort konnte nicht geparst werden.
	ErrBadResponse = errors.New("provider bad response")
	// ErrUnsupported: die angefragte Capability existiert bei diesem Provider
	// nicht. Unterscheidet "keine Zitationen" von "kann keine Zitationen".
	ErrUnsupported = errors.New("capability unsupported")
)

// SearchFilters schränken eine Suche ein. Nullwerte bedeuten "kein Filter".
type SearchFilters struct {
	YearFrom   int
	YearTo     int
	Category   string
	MaxResults int
}

// Provider ist die Pflicht-Capability: Suche plus eindeutiger Name.
type Provider interface {
	// Name gibt den eindeutigen Namen des Providers zurück (z.B. "arxiv").
	Name() string

	// Search führt eine Suche aus und gibt normalisierte Paper-Modelle
	// zurück. normalize ist deterministisch: fehlende optionale Felder
	// bleiben leer, nie geraten.
	Search(ctx context.Context, query string, filters SearchFilters) ([]*models.Paper, error)
}

// Lookup ist die optionale Capability, ein einzelnes Paper anhand seiner
// nativen Kennung zu holen.
type Lookup interface {
	GetByIdentifier(ctx context.Context, id string) (*models.Paper, error)
}

// CitationSource ist die optionale Capability für Zitationsgraph-Daten.
// Provider ohne diese Capability implementieren das Interface nicht;
// der Aufrufer prüft per Type-Assertion und erhält sonst ErrUnsupported
// über Registry.CitationSource.
type CitationSource interface {
	// GetCitations liefert Papers, die das angegebene Paper zitieren.
	GetCitations(ctx context.Context, sourceID string, limit int) ([]*models.Paper, error)
	// GetReferences liefert Papers, die das angegebene Paper zitiert.
	GetReferences(ctx context.Context, sourceID string, limit int) ([]*models.Paper, error)
}

// Registry bildet Provider-Namen auf Implementierungen ab. Sie wird einmal
// beim Start aufgebaut; danach nur noch lesende Zugriffe.
type Registry struct {
	byName map[string]Provider
	order  []string
}

// NewRegistry erstellt eine Registry aus den übergebenen Providern.
// Die Reihenfolge der Registrierung ist stabil und dient der Dedup-Engine
// als Tie-Break bei Batch-Duplikaten.
func NewRegistry(provs ...Provider) *Registry {
	r := &Registry{byName: make(map[string]Provider, len(provs))}
	for _, p := range provs {
		if _, dup := r.byName[p.Name()]; dup {
			continue
		}
		r.byName[p.Name()] = p
		r.order = append(r.order, p.Name())
	}
	return r
}

// Get liefert den Provider mit dem angegebenen Namen.
func (r *Registry) Get(name string) (Provider, error) {
	p, ok := r.byName[name]
	if !ok {
		return nil, fmt.Errorf("unbekannter provider %q", name)
	}
	return p, nil
}

// CitationSource liefert die Zitations-Capability eines Providers oder
// ErrUnsupported, wenn er sie nicht anbietet.
func (r *Registry) CitationSource(name string) (CitationSource, error) {
	p, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	cs, ok := p.(CitationSource)
	if !ok {
		return nil, fmt.Errorf("provider %q: %w", name, ErrUnsupported)
	}
	return cs, nil
}

// Names gibt alle registrierten Provider-Namen in Registrierungsreihenfolge
// zurück.
func (r *Registry) Names() []string {
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Rank gibt die Registrierungsposition eines Providers zurück; unbekannte
// Namen sortieren ans Ende. Wird für den deterministischen Batch-Tie-Break
// verwendet.
func (r *Registry) Rank(name string) int {
	for i, n := range r.order {
		if n == name {
			return i
		}
	}
	return len(r.order)
}

// SortedNames gibt die Namen alphabetisch sortiert zurück (für Logs und
// Fehlermeldungen).
func (r *Registry) SortedNames() []string {
	out := r.Names()
	sort.Strings(out)
	return out
}
