// Package storage bündelt die Datenbankzugriffe auf den Paper-Katalog.
// Alle Upserts sind als einzelne Statements formuliert, damit parallele
// Ingestion-Läufe ohne externe Sperren auskommen.
package storage

import (
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"paper-atlas/models"
)

// Catalog kapselt die Datenbankzugriffe für Papers, Tags und Zitationen.
type Catalog struct {
	DB *gorm.DB
}

// NewCatalog erstellt einen Catalog auf der übergebenen Verbindung.
func NewCatalog(db *gorm.DB) *Catalog {
	return &Catalog{DB: db}
}

// Migrate legt das Schema an bzw. zieht es nach.
func (c *Catalog) Migrate() error {
	return c.DB.AutoMigrate(
		&models.Paper{},
		&models.Tag{},
		&models.PaperTag{},
		&models.TagCombo{},
		&models.Citation{},
		&models.SearchQuery{},
	)
}

// FindByDOI sucht ein Paper anhand seiner normalisierten DOI.
// Gibt (nil, nil) zurück, wenn kein Treffer existiert.
func (c *Catalog) FindByDOI(doi string) (*models.Paper, error) {
	var p models.Paper
	err := c.DB.Where("doi = ?", doi).First(&p).Error
	return firstResult(&p, err)
}

// FindByArxivID sucht ein Paper anhand seiner normalisierten arXiv-ID.
func (c *Catalog) FindByArxivID(arxivID string) (*models.Paper, error) {
	var p models.Paper
	err := c.DB.Where("arxiv_id = ?", arxivID).First(&p).Error
	return firstResult(&p, err)
}

// FindBySource sucht ein Paper anhand des Paars (Quelle, Quell-ID).
func (c *Catalog) FindBySource(source, sourceID string) (*models.Paper, error) {
	var p models.Paper
	err := c.DB.Where("source = ? AND source_id = ?", source, sourceID).First(&p).Error
	return firstResult(&p, err)
}

func firstResult(p *models.Paper, err error) (*models.Paper, error) {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// TitleCandidates liefert Kandidaten für den Fuzzy-Titelabgleich: Papers mit
// gleichem Jahr oder ohne Jahr. Die eigentliche Ähnlichkeitsprüfung macht die
// Dedup-Engine im Speicher.
func (c *Catalog) TitleCandidates(year *int, limit int) ([]models.Paper, error) {
	q := c.DB.Where("title_norm <> ''")
	if year != nil {
		q = q.Where("(year IS NULL OR year = ?)", *year)
	}
	var papers []models.Paper
	if err := q.Limit(limit).Find(&papers).Error; err != nil {
		return nil, err
	}
	return papers, nil
}

// CreatePaper legt ein neues Paper an. Unique-Verletzungen reicht gorm als
// Fehler durch; der Aufrufer behandelt sie als Race und sucht erneut.
func (c *Catalog) CreatePaper(p *models.Paper) error {
	return c.DB.Create(p).Error
}

// SavePaper persistiert alle Felder eines bestehenden Papers.
func (c *Catalog) SavePaper(p *models.Paper) error {
	return c.DB.Save(p).Error
}

// GetPaper lädt ein Paper anhand seiner ID.
func (c *Catalog) GetPaper(id uint) (*models.Paper, error) {
	var p models.Paper
	err := c.DB.First(&p, id).Error
	return firstResult(&p, err)
}

// GetOrCreateTag holt ein Tag anhand seines Namens oder legt es an.
// Gibt zusätzlich zurück, ob das Tag neu erstellt wurde.
func (c *Catalog) GetOrCreateTag(name, slug, category string) (*models.Tag, bool, error) {
	var tag models.Tag
	err := c.DB.Where("name = ?", name).First(&tag).Error
	if err == nil {
		return &tag, false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, err
	}

	now := time.Now().UTC()
	tag = models.Tag{Name: name, Slug: slug, Category: category, FirstSeen: &now}
	if err := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "name"}},
		DoNothing: true,
	}).Create(&tag).Error; err != nil {
		return nil, false, err
	}
	if tag.ID != 0 {
		return &tag, true, nil
	}
	// Konfliktfall: ein paralleler Lauf war schneller.
	if err := c.DB.Where("name = ?", name).First(&tag).Error; err != nil {
		return nil, false, err
	}
	return &tag, false, nil
}

// UpsertPaperTag legt einen Paper-Tag-Link an oder aktualisiert dessen
// Konfidenz. Gibt zurück, ob der Link neu erstellt wurde. created stützt sich
// auf RowsAffected des DO-NOTHING-Inserts, nicht auf die zurückgeschriebene
// ID; die füllt Postgres per RETURNING auch im Konfliktfall.
func (c *Catalog) UpsertPaperTag(paperID, tagID uint, confidence float64) (bool, error) {
	link := models.PaperTag{PaperID: paperID, TagID: tagID, Confidence: confidence}
	res := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "paper_id"}, {Name: "tag_id"}},
		DoNothing: true,
	}).Create(&link)
	if res.Error != nil {
		return false, res.Error
	}
	if res.RowsAffected > 0 {
		return true, nil
	}

	// Link existiert bereits, nur die Konfidenz nachziehen.
	err := c.DB.Model(&models.PaperTag{}).
		Where("paper_id = ? AND tag_id = ?", paperID, tagID).
		Update("confidence", confidence).Error
	return false, err
}

// MarkNovelCombo setzt das Novelty-Flag auf den Links eines Papers.
func (c *Catalog) MarkNovelCombo(paperID uint, tagIDs []uint) error {
	if len(tagIDs) == 0 {
		return nil
	}
	return c.DB.Model(&models.PaperTag{}).
		Where("paper_id = ? AND tag_id IN ?", paperID, tagIDs).
		Update("is_novel_combo", true).Error
}

// IncrementTagStats erhöht paper_count und frequency eines Tags atomar und
// aktualisiert last_seen. Ein einzelnes UPDATE, kein Read-Modify-Write.
func (c *Catalog) IncrementTagStats(tagID uint) error {
	return c.DB.Model(&models.Tag{}).Where("id = ?", tagID).Updates(map[string]any{
		"paper_count": gorm.Expr("paper_count + ?", 1),
		"frequency":   gorm.Expr("frequency + ?", 1),
		"last_seen":   time.Now().UTC(),
	}).Error
}

// UpdateTagGrowth setzt growth_rate eines Tags neu: Zuweisungen pro Monat seit
// first_seen, mit mindestens einem Monat im Nenner.
func (c *Catalog) UpdateTagGrowth(tagID uint) error {
	var tag models.Tag
	if err := c.DB.First(&tag, tagID).Error; err != nil {
		return err
	}
	months := 1.0
	if tag.FirstSeen != nil {
		if m := time.Since(*tag.FirstSeen).Hours() / 24 / 30.44; m > months {
			months = m
		}
	}
	return c.DB.Model(&tag).Update("growth_rate", float64(tag.Frequency)/months).Error
}

// UpsertTagCombo erhöht den Zähler einer Tag-Kombination bzw. legt sie mit
// Count=1 an. Gibt den Zählerstand nach dem Update zurück.
func (c *Catalog) UpsertTagCombo(tagA, tagB, paperID uint) (*models.TagCombo, error) {
	low, high := models.ComboKey(tagA, tagB)
	now := time.Now().UTC()

	combo := models.TagCombo{
		TagLow: low, TagHigh: high,
		Count: 1, FirstSeen: now, LastSeen: now, FirstPaperID: paperID,
	}
	if err := c.DB.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "tag_low"}, {Name: "tag_high"}},
		DoUpdates: clause.Assignments(map[string]any{
			"count":     gorm.Expr("count + ?", 1),
			"last_seen": now,
		}),
	}).Create(&combo).Error; err != nil {
		return nil, err
	}

	var out models.TagCombo
	if err := c.DB.Where("tag_low = ? AND tag_high = ?", low, high).First(&out).Error; err != nil {
		return nil, err
	}
	return &out, nil
}

// ComboCount liefert den aktuellen Zählerstand einer Kombination, 0 wenn sie
// noch nie aufgetreten ist.
func (c *Catalog) ComboCount(tagA, tagB uint) (int, error) {
	low, high := models.ComboKey(tagA, tagB)
	var combo models.TagCombo
	err := c.DB.Where("tag_low = ? AND tag_high = ?", low, high).First(&combo).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return combo.Count, nil
}

// UpsertCitation legt eine Zitationskante an, falls sie noch nicht existiert.
// Gibt zurück, ob die Kante neu ist.
func (c *Catalog) UpsertCitation(citingID, citedID uint, source string) (bool, error) {
	edge := models.Citation{CitingPaperID: citingID, CitedPaperID: citedID, Source: source}
	res := c.DB.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "citing_paper_id"}, {Name: "cited_paper_id"}},
		DoNothing: true,
	}).Create(&edge)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ListPapers liefert Papers absteigend nach Erstellungszeitpunkt.
func (c *Catalog) ListPapers(limit, offset int) ([]models.Paper, int64, error) {
	var total int64
	if err := c.DB.Model(&models.Paper{}).Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var papers []models.Paper
	err := c.DB.Order("created_at DESC").Limit(limit).Offset(offset).Find(&papers).Error
	return papers, total, err
}

// ListTags liefert alle Tags absteigend nach paper_count.
func (c *Catalog) ListTags() ([]models.Tag, error) {
	var tags []models.Tag
	err := c.DB.Order("paper_count DESC, name ASC").Find(&tags).Error
	return tags, err
}

// TagsForPaper liefert die Tags eines Papers mit ihren Konfidenzen.
func (c *Catalog) TagsForPaper(paperID uint) ([]models.PaperTag, error) {
	var links []models.PaperTag
	err := c.DB.Where("paper_id = ?", paperID).Order("confidence DESC").Find(&links).Error
	return links, err
}

// NovelCombos liefert Kombinationen mit Count <= threshold, jüngste zuerst.
func (c *Catalog) NovelCombos(threshold, limit int) ([]models.TagCombo, error) {
	var combos []models.TagCombo
	err := c.DB.Where("count <= ?", threshold).
		Order("last_seen DESC").Limit(limit).Find(&combos).Error
	return combos, err
}

// PopularCombos liefert die häufigsten Kombinationen.
func (c *Catalog) PopularCombos(limit int) ([]models.TagCombo, error) {
	var combos []models.TagCombo
	err := c.DB.Order("count DESC").Limit(limit).Find(&combos).Error
	return combos, err
}

// RecomputeTagCounts setzt paper_count aller Tags auf die tatsächliche Anzahl
// verknüpfter Papers. Wird vom fixcounts-Werkzeug benutzt.
func (c *Catalog) RecomputeTagCounts() (int64, error) {
	res := c.DB.Exec(`UPDATE tags SET paper_count = (
		SELECT COUNT(*) FROM paper_tags WHERE paper_tags.tag_id = tags.id
	)`)
	return res.RowsAffected, res.Error
}
