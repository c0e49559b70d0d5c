package main

import (
	"context"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"paper-atlas/config"
	"paper-atlas/models"
	"paper-atlas/providers"
	"paper-atlas/providers/arxiv"
	"paper-atlas/providers/crossref"
	"paper-atlas/providers/semanticscholar"
	"paper-atlas/providers/serpapi"
	"paper-atlas/services"
	"paper-atlas/storage"
)

var (
	newPapersCounter      prometheus.Counter
	mergedPapersCounter   prometheus.Counter
	tagsAssignedCounter   prometheus.Counter
	citationEdgesCounter  prometheus.Counter
	providerFailuresTotal *prometheus.CounterVec
)

func init() {
	newPapersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papers_ingested_new_total",
		Help: "Total number of new papers added to the catalog.",
	})
	mergedPapersCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "papers_ingested_merged_total",
		Help: "Total number of ingested papers merged into existing records.",
	})
	tagsAssignedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "tags_assigned_total",
		Help: "Total number of tag assignments.",
	})
	citationEdgesCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "citation_edges_created_total",
		Help: "Total number of citation edges created.",
	})
	providerFailuresTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "provider_failures_total",
		Help: "Total number of failed provider calls, by provider.",
	}, []string{"provider"})
	prometheus.MustRegister(newPapersCounter, mergedPapersCounter,
		tagsAssignedCounter, citationEdgesCounter, providerFailuresTotal)
}

func apiKeyAuthMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.APISecretKey == "" {
			c.Next()
			return
		}
		apiKey := c.GetHeader("X-API-KEY")
		if apiKey != cfg.APISecretKey {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Unauthorized: Invalid API Key"})
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to catalog database.")

	catalog := storage.NewCatalog(db)
	logging.Info("Running database auto-migration...")
	if err := catalog.Migrate(); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	// Provider in Konfigurationsreihenfolge registrieren; die Reihenfolge ist
	// der Tie-Break der Batch-Deduplizierung.
	var enabled []providers.Provider
	for _, name := range cfg.ProviderNames() {
		switch name {
		case "semantic_scholar":
			enabled = append(enabled, semanticscholar.NewFetcher(cfg, logging))
		case "arxiv":
			enabled = append(enabled, arxiv.NewFetcher(cfg, logging))
		case "crossref":
			enabled = append(enabled, crossref.NewFetcher(cfg, logging))
		case "google_scholar":
			if cfg.SerpAPIKey == "" {
				logging.Warn("google_scholar konfiguriert, aber SERPAPI_KEY fehlt; Provider wird übersprungen.")
				continue
			}
			enabled = append(enabled, serpapi.NewFetcher(cfg, logging))
		default:
			logging.Warn("Unknown provider in config", zap.String("provider_name", name))
		}
	}
	if len(enabled) == 0 {
		logging.Fatal("No valid providers enabled. Check ENABLED_PROVIDERS in .env")
	}
	registry := providers.NewRegistry(enabled...)
	logging.Info("Active providers loaded", zap.Strings("providers", registry.Names()))

	ingestService := services.NewIngestService(cfg, catalog, registry, logging)
	citationService := services.NewCitationService(cfg, catalog, registry, logging)

	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(apiKeyAuthMiddleware(cfg))
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	setupIngestRoutes(router, ingestService)
	setupPaperRoutes(router, catalog, citationService, logging)
	setupTagRoutes(router, catalog, cfg, logging)
	setupQueryRoutes(router, catalog, logging)

	cronScheduler := cron.New()
	cronScheduler.AddFunc(cfg.CronSchedule, func() {
		logging.Info("Running scheduled ingestion job...")
		count, err := ingestService.RunStandingQueries(context.Background())
		if err != nil {
			logging.Error("Cron job failed", zap.Error(err))
		} else {
			logging.Info("Cron job completed", zap.Int("new_papers", count))
			newPapersCounter.Add(float64(count))
		}
	})
	cronScheduler.Start()

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupIngestRoutes(router *gin.Engine, ingest *services.IngestService) {
	type IngestRequest struct {
		Query      string   `json:"query" binding:"required"`
		Providers  []string `json:"providers"`
		MaxResults int      `json:"max_results"`
		YearFrom   int      `json:"year_from"`
		YearTo     int      `json:"year_to"`
		Category   string   `json:"category"`
		AssignTags *bool    `json:"assign_tags"`
		// Ingest false (der Default) sucht nur: die deduplizierte
		// Trefferliste kommt zurück, ohne in den Katalog zu schreiben.
		Ingest bool `json:"ingest"`
	}

	router.POST("/ingest", func(c *gin.Context) {
		var req IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		assignTags := req.AssignTags == nil || *req.AssignTags

		report, err := ingest.Ingest(c.Request.Context(), req.Query, req.Providers, providers.SearchFilters{
			YearFrom:   req.YearFrom,
			YearTo:     req.YearTo,
			Category:   req.Category,
			MaxResults: req.MaxResults,
		}, assignTags, req.Ingest)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}

		newPapersCounter.Add(float64(report.NewCount))
		mergedPapersCounter.Add(float64(report.DuplicateCount))
		tagsAssignedCounter.Add(float64(report.TagsAssigned))
		for name := range report.Failures {
			providerFailuresTotal.WithLabelValues(name).Inc()
		}
		c.JSON(http.StatusOK, report)
	})
}

func setupPaperRoutes(router *gin.Engine, catalog *storage.Catalog, citations *services.CitationService, log *zap.Logger) {
	rg := router.Group("/papers")

	rg.GET("/", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		papers, total, err := catalog.ListPapers(limit, offset)
		if err != nil {
			log.Error("Database query for papers failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"total": total, "papers": papers})
	})

	rg.GET("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		paper, err := catalog.GetPaper(uint(id))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		if paper == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "paper not found"})
			return
		}
		tags, err := catalog.TagsForPaper(paper.ID)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"paper": paper, "tags": tags})
	})

	rg.POST("/:id/citations", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid paper id"})
			return
		}
		type CitationRequest struct {
			MaxCitations  int `json:"max_citations"`
			MaxReferences int `json:"max_references"`
		}
		var req CitationRequest
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}

		report, err := citations.BuildForPaper(c.Request.Context(), uint(id), req.MaxCitations, req.MaxReferences)
		if err != nil {
			log.Error("Citation build failed", zap.Uint64("paper_id", id), zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		citationEdgesCounter.Add(float64(report.CitationsAdded + report.ReferencesAdded))
		c.JSON(http.StatusOK, report)
	})
}

func setupTagRoutes(router *gin.Engine, catalog *storage.Catalog, cfg *config.Config, log *zap.Logger) {
	rg := router.Group("/tags")

	rg.GET("/", func(c *gin.Context) {
		tags, err := catalog.ListTags()
		if err != nil {
			log.Error("Database query for tags failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, tags)
	})

	rg.GET("/combos/novel", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		combos, err := catalog.NovelCombos(cfg.ComboNovelThreshold, limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, combos)
	})

	rg.GET("/combos/popular", func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		combos, err := catalog.PopularCombos(limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, combos)
	})
}

func setupQueryRoutes(router *gin.Engine, catalog *storage.Catalog, log *zap.Logger) {
	rg := router.Group("/queries")

	rg.GET("/", func(c *gin.Context) {
		var queries []models.SearchQuery
		if err := catalog.DB.Find(&queries).Error; err != nil {
			log.Error("Database query for search queries failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, queries)
	})

	rg.POST("/", func(c *gin.Context) {
		var q models.SearchQuery
		if err := c.ShouldBindJSON(&q); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if q.Name == "" || q.Query == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "name and query are required"})
			return
		}
		if err := catalog.DB.Create(&q).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusCreated, q)
	})

	rg.DELETE("/:id", func(c *gin.Context) {
		id, err := strconv.ParseUint(c.Param("id"), 10, 64)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query id"})
			return
		}
		if err := catalog.DB.Delete(&models.SearchQuery{}, uint(id)).Error; err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "database error"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"deleted": id})
	})
}
