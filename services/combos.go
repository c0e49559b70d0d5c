package services

import (
	"go.uber.org/zap"

	"paper-atlas/config"
	"paper-atlas/storage"
)

// ComboStats fasst einen Tracking-Lauf für ein Paper zusammen.
type ComboStats struct {
	Tracked int `json:"combos_tracked"`
	New     int `json:"new_combos"`
	Novel   int `json:"novel_combos"`
}

// ComboTracker verfolgt das gemeinsame Auftreten von Tag-Paaren.
// Eine Kombination gilt als "novel", solange ihr Zähler den Schwellwert
// nicht übersteigt; sie markiert Papers an der Schnittstelle mehrerer
// Forschungsfelder.
type ComboTracker struct {
	Catalog        *storage.Catalog
	NovelThreshold int
	Logger         *zap.Logger
}

// NewComboTracker erstellt einen Tracker mit dem konfigurierten Schwellwert.
func NewComboTracker(cat *storage.Catalog, cfg *config.Config, logger *zap.Logger) *ComboTracker {
	return &ComboTracker{Catalog: cat, NovelThreshold: cfg.ComboNovelThreshold, Logger: logger}
}

// Track verbucht alle 2er-Kombinationen der übergebenen Tag-IDs für ein Paper.
// Zähler werden erhöht bzw. mit 1 angelegt; Tags, die Teil einer seltenen
// Kombination sind, bekommen das Novelty-Flag auf ihrem Paper-Link.
func (c *ComboTracker) Track(paperID uint, tagIDs []uint) (ComboStats, error) {
	var stats ComboStats
	if len(tagIDs) < 2 {
		return stats, nil
	}

	novelTags := make(map[uint]struct{})
	for i := 0; i < len(tagIDs); i++ {
		for j := i + 1; j < len(tagIDs); j++ {
			combo, err := c.Catalog.UpsertTagCombo(tagIDs[i], tagIDs[j], paperID)
			if err != nil {
				return stats, err
			}
			stats.Tracked++
			if combo.Count == 1 {
				stats.New++
			}
			if combo.Count <= c.NovelThreshold {
				stats.Novel++
				novelTags[tagIDs[i]] = struct{}{}
				novelTags[tagIDs[j]] = struct{}{}
			}
		}
	}

	if len(novelTags) > 0 {
		ids := make([]uint, 0, len(novelTags))
		for id := range novelTags {
			ids = append(ids, id)
		}
		if err := c.Catalog.MarkNovelCombo(paperID, ids); err != nil {
			return stats, err
		}
	}

	c.Logger.Debug("Tag-Kombinationen verbucht",
		zap.Uint("paper_id", paperID),
		zap.Int("tracked", stats.Tracked),
		zap.Int("new", stats.New),
		zap.Int("novel", stats.Novel))
	return stats, nil
}

// IsNovel prüft, ob ein Tag-Paar (noch) als selten gilt. Unbekannte Paare
// sind per Definition novel.
func (c *ComboTracker) IsNovel(tagA, tagB uint) (bool, error) {
	count, err := c.Catalog.ComboCount(tagA, tagB)
	if err != nil {
		return false, err
	}
	return count <= c.NovelThreshold, nil
}
