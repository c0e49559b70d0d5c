package models

import (
	"time"
)

// Kategorien für Tags: kuratiert vs. automatisch erzeugt.
const (
	TagCategoryCore         = "core"
	TagCategoryAutoAssigned = "auto_assigned"
)

// Tag ist ein thematisches Label für Papers.
type Tag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name     string `json:"name" gorm:"uniqueIndex;size:100;not null"`
	Slug     string `json:"slug" gorm:"size:100"`
	Category string `json:"category" gorm:"index;size:50;default:auto_assigned"`

	// Denormalisierter Zähler: Anzahl verknüpfter Papers. Wird nur bei der
	// erstmaligen Erstellung eines Paper-Tag-Links erhöht, nie verringert.
	PaperCount int `json:"paper_count"`

	// Trend-Buchhaltung
	Frequency  int        `json:"frequency"`
	GrowthRate float64    `json:"growth_rate"`
	FirstSeen  *time.Time `json:"first_seen,omitempty"`
	LastSeen   *time.Time `json:"last_seen,omitempty"`
}

func (Tag) TableName() string { return "tags" }

// PaperTag verknüpft ein Paper mit einem Tag, eindeutig pro Paar.
type PaperTag struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	PaperID uint `json:"paper_id" gorm:"index:idx_paper_tags_pair,unique;not null"`
	TagID   uint `json:"tag_id" gorm:"index:idx_paper_tags_pair,unique;not null"`

	// Vertrauen der Tag-Zuweisung in [0,1]. Re-Ingestion darf den Wert
	// überschreiben, aber keinen zweiten Link anlegen.
	Confidence float64 `json:"confidence"`

	// True, wenn dieses Tag Teil einer seltenen Kombination ist.
	IsNovelCombo bool `json:"is_novel_combo"`
}

func (PaperTag) TableName() string { return "paper_tags" }

// TagCombo zählt das gemeinsame Auftreten zweier Tags auf einem Paper.
// Das Paar wird sortiert gespeichert (TagLow < TagHigh), damit {A,B} und
// {B,A} auf denselben Datensatz fallen.
type TagCombo struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	TagLow  uint `json:"tag_low" gorm:"index:idx_tag_combos_pair,unique;not null"`
	TagHigh uint `json:"tag_high" gorm:"index:idx_tag_combos_pair,unique;not null"`

	Count        int       `json:"count" gorm:"default:1"`
	FirstSeen    time.Time `json:"first_seen"`
	LastSeen     time.Time `json:"last_seen"`
	FirstPaperID uint      `json:"first_paper_id"`
}

func (TagCombo) TableName() string { return "tag_combos" }

// ComboKey normalisiert ein Tag-Paar auf die kanonische Reihenfolge.
func ComboKey(a, b uint) (low, high uint) {
	if a < b {
		return a, b
	}
	return b, a
}
