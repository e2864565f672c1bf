// Command classify runs the batch classification pipeline: it fetches
// transcripts, classifies each one, persists the results, and optionally
// proposes a new hierarchy version from them.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"log"
	"os"
	"time"

	"taxotree/internal/config"
	"taxotree/internal/database"
	"taxotree/internal/lifecycle"
	"taxotree/internal/models"
	"taxotree/internal/services"
	"taxotree/internal/store"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
)

func main() {
	log.SetFlags(log.LstdFlags)

	var (
		limit    = flag.Int64("limit", 100, "maximum number of transcripts to process")
		date     = flag.String("date", "", "only transcripts from this UTC day (YYYY-MM-DD)")
		tenant   = flag.String("tenant", "", "tenant id (defaults to TENANT_ID)")
		useCase  = flag.String("usecase", "", "use case id (defaults to USE_CASE_ID)")
		output   = flag.String("output", "", "write the classified records to this JSON file")
		propose  = flag.Bool("propose", true, "propose a new hierarchy version from the batch")
		activate = flag.Bool("activate", false, "activate the proposed version immediately")
	)
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Printf("⚠️  No .env file found or error loading it: %v", err)
	}
	cfg := config.Load()

	if *tenant == "" {
		*tenant = cfg.TenantID
	}
	if *useCase == "" {
		*useCase = cfg.UseCaseID
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Hour)
	defer cancel()

	mongoDB, err := database.NewMongoDB(cfg.MongoURI)
	if err != nil {
		log.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	defer mongoDB.Close(context.Background())
	if err := mongoDB.Initialize(ctx); err != nil {
		log.Fatalf("❌ Failed to initialize MongoDB indexes: %v", err)
	}

	classifyPrompt := ""
	groupingPrompt := ""
	if cfg.UseCasesFile != "" {
		useCases, err := config.LoadUseCases(cfg.UseCasesFile)
		if err != nil {
			log.Fatalf("❌ Failed to load use cases: %v", err)
		}
		if uc := useCases.FindUseCase(*useCase); uc != nil {
			classifyPrompt = uc.ClassifyPrompt
			groupingPrompt = uc.GroupingPrompt
		}
	}

	classifier := services.NewClassifierService(services.ClassifierConfig{
		BaseURL: cfg.LLMBaseURL,
		APIKey:  cfg.LLMAPIKey,
		Model:   cfg.LLMModel,
		Prompt:  classifyPrompt,
	})
	grouping := services.NewGroupingService(classifier, groupingPrompt)
	transcripts := services.NewTranscriptService()

	transcriptStore := store.NewTranscriptStore(mongoDB)
	classificationStore := store.NewClassificationStore(mongoDB)
	versionStore := store.NewVersionStore(mongoDB)

	classification := services.NewClassificationService(classifier, transcripts, classificationStore, nil)
	lifecycleService := lifecycle.NewService(versionStore, lifecycle.Options{AutoActivateAll: cfg.AutoActivateAll})
	hierarchyService := services.NewHierarchyService(lifecycleService, classificationStore, grouping, nil, nil)

	batch := uuid.NewString()
	log.Printf("🚀 Starting batch %s for %s/%s (limit %d)", batch, *tenant, *useCase, *limit)

	fetched, err := transcriptStore.Fetch(ctx, *date, *limit)
	if err != nil {
		log.Fatalf("❌ Failed to fetch transcripts: %v", err)
	}
	if len(fetched) == 0 {
		log.Println("⚠️  No transcripts matched, nothing to do")
		return
	}
	log.Printf("📦 Fetched %d transcripts", len(fetched))

	records, failed, err := classification.ClassifyBatch(ctx, *tenant, *useCase, fetched, batch)
	if err != nil {
		log.Fatalf("❌ Batch aborted: %v", err)
	}
	log.Printf("✅ Classified %d conversations (%d failed)", len(records), failed)

	if *output != "" {
		if err := writeJSON(*output, records); err != nil {
			log.Fatalf("❌ Failed to write output file: %v", err)
		}
		log.Printf("💾 Wrote %s", *output)
	}

	if !*propose {
		return
	}

	filters := models.ClassificationFilters{Batch: batch}
	rec, err := hierarchyService.Propose(ctx, *tenant, *useCase, filters)
	if err != nil {
		log.Fatalf("❌ Failed to propose hierarchy: %v", err)
	}
	log.Printf("📌 Proposed version %d (%s), status %s", rec.Version, rec.ID.Hex(), rec.Metadata.Status)

	if *activate && !rec.IsActive() {
		result, err := hierarchyService.Activate(ctx, *tenant, *useCase, rec.ID.Hex())
		if err != nil {
			log.Fatalf("❌ Failed to activate version: %v", err)
		}
		log.Printf("✅ Activated version %d (%s)", result.Version, result.NewID)
	}
}

func writeJSON(path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}
