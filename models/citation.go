package models

import (
	"time"
)

// Citation modelliert eine gerichtete Kante: Quelle zitiert Ziel (A cites B).
// Eindeutig pro geordnetem Paar, Selbstzitate sind verboten.
type Citation struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`

	CitingPaperID uint `json:"citing_paper_id" gorm:"index:idx_citations_edge,unique;index;not null"`
	CitedPaperID  uint `json:"cited_paper_id" gorm:"index:idx_citations_edge,unique;index;not null"`

	// Provider, von dem die Kante stammt.
	Source string `json:"source" gorm:"size:50"`
}

func (Citation) TableName() string { return "citations" }
