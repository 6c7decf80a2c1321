package main

import (
	"fmt"
	"log"
	"os"

	"github.com/catalogmatch/backend/config"
	httpDelivery "github.com/catalogmatch/backend/internal/delivery/http"
	"github.com/catalogmatch/backend/internal/infrastructure/cache"
	"github.com/catalogmatch/backend/internal/infrastructure/catalog"
	"github.com/catalogmatch/backend/internal/infrastructure/openai"
	"github.com/catalogmatch/backend/internal/infrastructure/sink"
	"github.com/catalogmatch/backend/internal/usecase"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Starting CatalogMatch Backend v1.0.0")
	log.Printf("Environment: %s", cfg.Server.Environment)
	log.Printf("Port: %s", cfg.Server.Port)

	// Initialize infrastructure dependencies
	vectorCache, err := cache.NewVectorCache(cfg.Cache.Path)
	if err != nil {
		log.Fatalf("Failed to open vector cache: %v", err)
	}
	log.Printf("Vector cache: %s (%d vectors)", cfg.Cache.Path, vectorCache.Size())

	embeddingClient := openai.NewClient(openai.Config{
		Endpoint:          cfg.Embedding.Endpoint,
		APIKey:            cfg.Embedding.APIKey,
		Model:             cfg.Embedding.Model,
		Timeout:           cfg.Embedding.Timeout,
		MaxRetries:        cfg.Embedding.MaxRetries,
		RequestsPerSecond: cfg.Embedding.RequestsPerSecond,
		Burst:             cfg.Embedding.Burst,
	})

	// Enable debug mode in development environment
	if cfg.Server.Environment == "development" {
		embeddingClient.SetDebug(true)
		log.Printf("Embeddings client debug mode enabled")
	}
	log.Printf("Embeddings API: %s (model: %s)", cfg.Embedding.Endpoint, cfg.Embedding.Model)

	itemSource := catalog.NewFileSource(cfg.Sources.PrimaryPath, cfg.Sources.CompetitorPath)
	resultSink := sink.NewJSONSink(cfg.Output.Path)

	// Initialize usecase layer
	pipeline, err := usecase.NewMatchingPipeline(
		itemSource,
		embeddingClient,
		vectorCache,
		resultSink,
		usecase.PipelineConfig{
			Fields:    fieldSpecs(cfg.Matching.Fields),
			Threshold: cfg.Matching.Threshold,
			Workers:   cfg.Pipeline.Workers,
		},
	)
	if err != nil {
		log.Fatalf("Failed to build matching pipeline: %v", err)
	}

	log.Printf("Matching: threshold=%.2f, workers=%d", cfg.Matching.Threshold, cfg.Pipeline.Workers)

	// Create HTTP handler with dependencies
	handler := httpDelivery.NewHandler(pipeline)

	// Setup router
	router := httpDelivery.SetupRouter(cfg, handler)

	// Start server
	addr := fmt.Sprintf(":%s", cfg.Server.Port)
	log.Printf("Server listening on %s", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}

// fieldSpecs converts the configured field table to the engine's form.
// An empty table selects the built-in defaults.
func fieldSpecs(fields map[string]config.FieldConfig) map[string]usecase.FieldSpec {
	if len(fields) == 0 {
		return nil
	}
	specs := make(map[string]usecase.FieldSpec, len(fields))
	for name, f := range fields {
		specs[name] = usecase.FieldSpec{
			Weight:       f.Weight,
			Template:     f.Template,
			AbsentPolicy: f.AbsentPolicy,
		}
	}
	return specs
}

func init() {
	// Set log flags for better debugging
	log.SetFlags(log.Ldate | log.Ltime | log.Lshortfile)
	log.SetOutput(os.Stdout)
}
