package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config enthält alle Konfigurationsparameter aus Umgebungsvariablen.
type Config struct {
	DBHost     string `envconfig:"DB_HOST" required:"true"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" required:"true"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" required:"true"`

	HTTPPort     string `envconfig:"HTTP_PORT" default:"4242"`
	APISecretKey string `envconfig:"API_SECRET_KEY"`

	// Semantic Scholar Academic Graph API
	S2BaseURL string        `envconfig:"S2_BASE_URL" default:"https://api.semanticscholar.org/graph/v1"`
	S2APIKey  string        `envconfig:"S2_API_KEY"`
	S2Timeout time.Duration `envconfig:"S2_TIMEOUT" default:"30s"`

	// arXiv Atom-API (max. 1 Request alle 3 Sekunden laut Doku)
	ArxivBaseURL     string        `envconfig:"ARXIV_BASE_URL" default:"http://export.arxiv.org/api/query"`
	ArxivTimeout     time.Duration `envconfig:"ARXIV_TIMEOUT" default:"30s"`
	ArxivMinInterval time.Duration `envconfig:"ARXIV_MIN_INTERVAL" default:"3s"`

	// CrossRef REST-API, Mailto für den "polite pool"
	CrossRefBaseURL string        `envconfig:"CROSSREF_BASE_URL" default:"https://api.crossref.org"`
	CrossRefMailto  string        `envconfig:"CROSSREF_MAILTO"`
	CrossRefTimeout time.Duration `envconfig:"CROSSREF_TIMEOUT" default:"30s"`

	// Google Scholar via SerpAPI (nur aktiv, wenn Key gesetzt)
	SerpAPIBaseURL string        `envconfig:"SERPAPI_BASE_URL" default:"https://serpapi.com/search"`
	SerpAPIKey     string        `envconfig:"SERPAPI_KEY"`
	SerpAPITimeout time.Duration `envconfig:"SERPAPI_TIMEOUT" default:"30s"`

	// Ingestion
	EnabledProviders  string `envconfig:"ENABLED_PROVIDERS" default:"semantic_scholar,arxiv,crossref"`
	MaxResultsCap     int    `envconfig:"MAX_RESULTS_CAP" default:"100"`
	DefaultMaxResults int    `envconfig:"DEFAULT_MAX_RESULTS" default:"20"`

	// Tag-Zuweisung
	TagMinConfidence float64 `envconfig:"TAG_MIN_CONFIDENCE" default:"0.3"`
	TagMaxPerPaper   int     `envconfig:"TAG_MAX_PER_PAPER" default:"10"`
	TagWeightRules   float64 `envconfig:"TAG_WEIGHT_RULES" default:"0.5"`
	TagWeightTerms   float64 `envconfig:"TAG_WEIGHT_TERMS" default:"0.3"`
	TagWeightSource  float64 `envconfig:"TAG_WEIGHT_SOURCE" default:"0.2"`

	// Fuzzy-Titelabgleich der Dedup-Engine
	TitleJaccardThreshold float64 `envconfig:"TITLE_JACCARD_THRESHOLD" default:"0.9"`
	TitleMinLength        int     `envconfig:"TITLE_MIN_LENGTH" default:"20"`

	// Combo-Novelty: Kombination gilt als selten bis zu dieser Häufigkeit
	ComboNovelThreshold int `envconfig:"COMBO_NOVEL_THRESHOLD" default:"3"`

	// Zitationsnetzwerk
	MaxCitations  int `envconfig:"MAX_CITATIONS" default:"50"`
	MaxReferences int `envconfig:"MAX_REFERENCES" default:"50"`

	CronSchedule string `envconfig:"CRON_SCHEDULE" default:"0 0 * * *"`
}

// DSN gibt den Data Source Name für die PostgreSQL-Verbindung zurück.
func (c *Config) DSN() string {
	return fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable",
		c.DBHost, c.DBUser, c.DBPassword, c.DBName, c.DBPort)
}

// ProviderNames gibt die konfigurierten Provider als Slice zurück.
func (c *Config) ProviderNames() []string {
	var names []string
	for _, n := range strings.Split(c.EnabledProviders, ",") {
		n = strings.TrimSpace(n)
		if n != "" {
			names = append(names, n)
		}
	}
	return names
}

// Load lädt die Konfiguration aus den Umgebungsvariablen.
func Load() (*Config, error) {
	_ = godotenv.Load()
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return nil, err
	}
	if w := c.TagWeightRules + c.TagWeightTerms + c.TagWeightSource; w < 0.999 || w > 1.001 {
		return nil, fmt.Errorf("tag-gewichte müssen sich zu 1.0 summieren, ist: %.3f", w)
	}
	return &c, nil
}
