// fixcounts setzt die denormalisierten Tag-Zähler (paper_count) auf die
// tatsächliche Anzahl verknüpfter Papers zurück. Nötig nach manuellen
// Eingriffen oder abgebrochenen Ingestion-Läufen.
package main

import (
	"log"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/storage"
)

func main() {
	log.Println("Starte Neuberechnung der Tag-Zähler...")

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Fehler beim Laden der Konfiguration: %v", err)
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		log.Fatalf("Fehler beim Verbinden mit der Datenbank: %v", err)
	}

	catalog := storage.NewCatalog(db)

	var before int64
	db.Model(&models.Tag{}).Count(&before)

	updated, err := catalog.RecomputeTagCounts()
	if err != nil {
		log.Fatalf("Fehler beim Neuberechnen der Zähler: %v", err)
	}

	log.Printf("Fertig: %d von %d Tags aktualisiert.", updated, before)
}
