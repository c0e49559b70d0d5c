package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

// Paper repräsentiert eine wissenschaftliche Studie und deren Metadaten im Katalog.
//
// DOI und ArxivID sind Pointer, damit Papers ohne diese Identität NULL statt ""
// speichern und der Unique-Index nicht kollidiert.
type Paper struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Identitäten (normalisiert, siehe services.NormalizeDOI / NormalizeArxivID)
	DOI      *string `json:"doi,omitempty" gorm:"column:doi;uniqueIndex;size:512"`
	ArxivID  *string `json:"arxiv_id,omitempty" gorm:"column:arxiv_id;uniqueIndex;size:128"`
	Source   string  `json:"source" gorm:"index:idx_papers_source_id,unique;size:50;not null"`
	SourceID string  `json:"source_id" gorm:"index:idx_papers_source_id,unique;size:255;not null"`

	Title     string         `json:"title" gorm:"type:text;not null"`
	TitleNorm string         `json:"-" gorm:"index;size:1024"`
	Abstract  string         `json:"abstract,omitempty" gorm:"type:text"`
	Authors   datatypes.JSON `json:"authors,omitempty" gorm:"type:jsonb"`
	Year      *int           `json:"year,omitempty"`
	Venue     string         `json:"venue,omitempty"`
	URL       string         `json:"url,omitempty"`

	// Vom Provider gemeldet, monoton auf das Maximum aktualisiert.
	CitationCount int `json:"citation_count"`

	// Stub-Papers entstehen beim Aufbau des Zitationsnetzwerks und werden
	// ausschließlich über den Merge-Pfad der Dedup-Engine vervollständigt.
	IsStub bool `json:"is_stub" gorm:"index"`

	// Quellenspezifische Rohdaten (arXiv-Kategorien, Fields of Study) für die
	// Tag-Zuweisung.
	RawData datatypes.JSON `json:"-" gorm:"type:jsonb"`
}

func (Paper) TableName() string { return "papers" }

// AuthorList dekodiert die Autorenliste aus der JSON-Spalte.
func (p *Paper) AuthorList() []string {
	if len(p.Authors) == 0 {
		return nil
	}
	var authors []string
	if err := json.Unmarshal(p.Authors, &authors); err != nil {
		return nil
	}
	return authors
}

// SetAuthors kodiert die Autorenliste in die JSON-Spalte.
func (p *Paper) SetAuthors(authors []string) {
	if len(authors) == 0 {
		p.Authors = nil
		return
	}
	b, err := json.Marshal(authors)
	if err != nil {
		return
	}
	p.Authors = b
}

// SourceMeta bündelt quellenspezifische Labels, die für die Tag-Zuweisung
// relevant sind.
type SourceMeta struct {
	ArxivCategories []string `json:"arxiv_categories,omitempty"`
	FieldsOfStudy   []string `json:"fields_of_study,omitempty"`
}

// Meta dekodiert die Rohdaten-Spalte.
func (p *Paper) Meta() SourceMeta {
	var m SourceMeta
	if len(p.RawData) > 0 {
		_ = json.Unmarshal(p.RawData, &m)
	}
	return m
}

// SetMeta kodiert quellenspezifische Labels in die Rohdaten-Spalte.
func (p *Paper) SetMeta(m SourceMeta) {
	if len(m.ArxivCategories) == 0 && len(m.FieldsOfStudy) == 0 {
		p.RawData = nil
		return
	}
	b, err := json.Marshal(m)
	if err != nil {
		return
	}
	p.RawData = b
}
