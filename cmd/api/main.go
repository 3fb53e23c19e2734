package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/joho/godotenv"

	"github.com/billbackhq/billback-api/internal/config"
	"github.com/billbackhq/billback-api/internal/database"
	"github.com/billbackhq/billback-api/internal/handlers"
	"github.com/billbackhq/billback-api/internal/middleware"
	"github.com/billbackhq/billback-api/internal/services"
	"github.com/billbackhq/billback-api/internal/store"
	"github.com/billbackhq/billback-api/internal/utils"
)

func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found, using system environment variables")
	}

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	// Connect to database
	pool, err := database.Connect(context.Background(), cfg)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	log.Println("✓ Connected to database successfully")

	// Stores
	lineItems := store.NewLineItems(pool)
	accounts := store.NewAccounts(pool)
	mappings := store.NewMappings(pool)
	masterBills := store.NewMasterBills(pool)
	batches := store.NewBatches(pool)

	// Artifact store for export CSV/XLSX uploads; optional outside
	// production when no bucket is configured.
	var artifacts services.ArtifactUploader
	if cfg.S3Bucket != "" {
		artifactStore, err := services.NewArtifactStore(cfg.S3Bucket, cfg.S3Region, cfg.AWSEndpoint)
		if err != nil {
			log.Fatalf("Failed to initialize artifact store: %v", err)
		}
		artifacts = artifactStore
		log.Println("✓ Artifact store initialized successfully")
	} else {
		log.Println("Warning: S3_BUCKET not set, export artifacts disabled")
	}

	// Services
	resolver := services.NewResolver(mappings, cfg.ResolverCacheTTL, time.Now)
	lineItemService := services.NewLineItemService(lineItems, resolver)
	aggregator := services.NewAggregator(lineItems, resolver, masterBills, time.Now)
	batchService := services.NewBatchService(batches, masterBills, time.Now)
	exporter := services.NewExporter(batches, masterBills, artifacts, cfg.WarehouseTable, time.Now)

	// Handlers
	lineItemHandler := handlers.NewLineItemHandler(lineItemService)
	accountHandler := handlers.NewAccountHandler(accounts)
	mappingHandler := handlers.NewMappingHandler(mappings, resolver)
	masterBillHandler := handlers.NewMasterBillHandler(aggregator, masterBills)
	batchHandler := handlers.NewBatchHandler(batchService, exporter)

	app := fiber.New(fiber.Config{
		AppName:      "billback API v1.0",
		ErrorHandler: utils.ErrorHandler,
	})

	// Apply global middleware
	app.Use(middleware.CORS(cfg.AllowedOrigins...))

	// Health check endpoint (public)
	app.Get("/health", func(c fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":  "ok",
			"service": "billback-api",
		})
	})

	// API v1 routes
	v1 := app.Group("/v1")

	// Internal routes (called by the bill parsing pipeline - should be
	// secured with a shared secret in production)
	internal := v1.Group("/internal")
	internal.Post("/line-items", lineItemHandler.Ingest)

	// Protected routes (require authentication)
	protected := v1.Group("", middleware.ClerkAuth(cfg.ClerkSecretKey))

	// Line item review
	protected.Get("/line-items", lineItemHandler.List)
	protected.Get("/line-items/:bill_id/:line_index", lineItemHandler.Get)
	protected.Put("/line-items/:bill_id/:line_index", lineItemHandler.Update)
	protected.Put("/line-items/:bill_id/:line_index/periods", lineItemHandler.AssignPeriods)

	// Account flag registry
	protected.Get("/accounts", accountHandler.List)
	protected.Get("/accounts/flag", accountHandler.Get)
	protected.Post("/accounts", accountHandler.Upsert)
	protected.Delete("/accounts", accountHandler.Delete)

	// Charge code mappings
	protected.Get("/charge-codes", mappingHandler.List)
	protected.Put("/charge-codes", mappingHandler.Put)
	protected.Delete("/charge-codes", mappingHandler.Delete)

	// Master bill aggregation
	protected.Post("/master-bills/generate", masterBillHandler.Generate)
	protected.Get("/master-bills", masterBillHandler.List)
	protected.Get("/master-bills/stats/by-property", masterBillHandler.StatsByProperty)
	protected.Get("/master-bills/:id", masterBillHandler.Get)

	// Export batches
	protected.Get("/batches", batchHandler.List)
	protected.Post("/batches", batchHandler.Create)
	protected.Get("/batches/:id", batchHandler.Get)
	protected.Post("/batches/:id/finalize", batchHandler.Finalize)
	protected.Post("/batches/:id/export", batchHandler.Export)
	protected.Delete("/batches/:id", batchHandler.Delete)

	log.Println("✓ All routes configured successfully")
	log.Printf("🚀 billback API is running on :%d", cfg.Port)
	log.Fatal(app.Listen(fmt.Sprintf(":%d", cfg.Port)))
}
