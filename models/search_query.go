package models

import (
	"time"
)

// SearchQuery ist eine wiederkehrende Suchanfrage, die der Cron-Scheduler
// regelmäßig gegen alle konfigurierten Provider ausführt.
type SearchQuery struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	Name  string `json:"name" gorm:"uniqueIndex;size:100;not null"`
	Query string `json:"query" gorm:"type:text;not null"`

	// Kommagetrennte Provider-Namen; leer bedeutet: alle konfigurierten.
	Providers  string `json:"providers,omitempty"`
	MaxResults int    `json:"max_results" gorm:"default:20"`

	// Kein gorm-Default: ein explizites false beim Anlegen muss erhalten
	// bleiben.
	Enabled bool `json:"enabled"`

	LastRunAt *time.Time `json:"last_run_at,omitempty"`
}

func (SearchQuery) TableName() string { return "search_queries" }
