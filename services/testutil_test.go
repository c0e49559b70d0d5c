package services

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-atlas/config"
	"paper-atlas/storage"
)

// newTestCatalog öffnet eine frische In-Memory-Datenbank mit migriertem Schema.
func newTestCatalog(t *testing.T) *storage.Catalog {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	cat := storage.NewCatalog(db)
	require.NoError(t, cat.Migrate())
	return cat
}

// newTestConfig liefert eine Konfiguration mit den Produktions-Defaults,
// ohne Umgebungsvariablen zu benötigen.
func newTestConfig() *config.Config {
	return &config.Config{
		DefaultMaxResults:     20,
		MaxResultsCap:         100,
		TagMinConfidence:      0.3,
		TagMaxPerPaper:        10,
		TagWeightRules:        0.5,
		TagWeightTerms:        0.3,
		TagWeightSource:       0.2,
		TitleJaccardThreshold: 0.9,
		TitleMinLength:        20,
		ComboNovelThreshold:   3,
		MaxCitations:          50,
		MaxReferences:         50,
	}
}

func testLogger() *zap.Logger {
	return zap.NewNop()
}

func intPtr(v int) *int       { return &v }
func strPtr(v string) *string { return &v }
