/**
 * Inscription Recognition Worker - Main Entry Point
 *
 * Go worker for ancient-script inscription processing.
 *
 * Architecture:
 * - Redis-backed run queue consumed from the web tier
 * - OCR fallback chain: Tesseract, OpenAI vision, auxiliary vision service
 * - Glyph Store in PostgreSQL with a Qdrant meaning index
 * - Layered translation: model backends, phrase table, templated rendering
 * - Generative reconstruction of damaged glyphs, versioned per image
 *
 * A one-shot batch mode (-images) processes local files without Redis, for
 * archive ingestion and local testing.
 */

package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/epigraphia/inscription-worker/internal/clients"
	"github.com/epigraphia/inscription-worker/internal/config"
	"github.com/epigraphia/inscription-worker/internal/pipeline"
	"github.com/epigraphia/inscription-worker/internal/queue"
	"github.com/epigraphia/inscription-worker/internal/storage"
)

func main() {
	imagesFlag := flag.String("images", "", "comma-separated image paths for one-shot batch mode")
	flag.Parse()

	// Load environment variables
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Warning: .env not found, using system environment variables")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	log.Printf("Inscription Worker starting...")
	log.Printf("Configuration loaded: Redis=%s, PostgreSQL=%s, Qdrant=%s, Workers=%d",
		cfg.RedisURL, cfg.DatabaseURL, cfg.QdrantURL, cfg.WorkerConcurrency)

	storageManager := buildStorage(cfg)
	defer storageManager.Close()

	coordinator := buildPipeline(cfg, storageManager)

	if *imagesFlag != "" {
		runBatch(cfg, coordinator, strings.Split(*imagesFlag, ","))
		return
	}

	// Queue mode: consume runs until signalled.
	log.Printf("Connecting to Redis queue...")
	queueConsumer, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         coordinator,
		ProcessingTimeout: time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("Failed to initialize queue consumer: %v", err)
	}

	if err := queueConsumer.Start(); err != nil {
		log.Fatalf("Failed to start queue consumer: %v", err)
	}

	log.Printf("===========================================")
	log.Printf("Inscription Worker is READY")
	log.Printf("===========================================")
	log.Printf("Queue: %s", cfg.QueueName)
	log.Printf("Workers: %d", cfg.WorkerConcurrency)
	log.Printf("Default script: %s", cfg.DefaultScript)
	log.Printf("OCR tiers: Tesseract -> %s -> auxiliary vision", cfg.VisionModel)
	log.Printf("===========================================")
	log.Printf("Waiting for runs...")

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGINT)

	sig := <-sigChan
	log.Printf("Received signal %v, initiating graceful shutdown...", sig)

	if err := queueConsumer.Stop(); err != nil {
		log.Printf("Error stopping queue consumer: %v", err)
	} else {
		log.Printf("Queue consumer stopped successfully")
	}

	log.Printf("Shutdown complete")
}

// buildStorage connects PostgreSQL and, when configured, the Qdrant meaning
// index with its embedder.
func buildStorage(cfg *config.Config) *storage.StorageManager {
	log.Printf("Connecting to storage (PostgreSQL)...")
	postgres, err := storage.NewPostgresClient(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to initialize PostgreSQL client: %v", err)
	}

	var vectors *storage.GlyphVectorIndex
	var embedder storage.MeaningEmbedder
	if cfg.QdrantURL != "" && cfg.HasOpenAI() {
		log.Printf("Connecting to Qdrant meaning index...")
		vectors, err = storage.NewGlyphVectorIndex(cfg.QdrantURL, cfg.QdrantCollection, cfg.EmbeddingDimensions)
		if err != nil {
			log.Fatalf("Failed to initialize Qdrant index: %v", err)
		}
		embedder = clients.NewEmbeddingClient(openAIConfig(cfg, cfg.TextTimeout), cfg.EmbeddingModel, cfg.EmbeddingDimensions)
	} else {
		log.Printf("Qdrant meaning index disabled (missing QDRANT_URL or OPENAI_API_KEY)")
	}

	log.Printf("Storage manager initialized")
	return storage.NewStorageManager(postgres, vectors, embedder)
}

// buildPipeline assembles the OCR chain, matcher, translator and
// reconstruction module into the run coordinator.
func buildPipeline(cfg *config.Config, store *storage.StorageManager) *pipeline.Coordinator {
	visionTransport := mustHTTPClient(cfg, cfg.VisionTimeout)

	providers := []pipeline.VisionProvider{
		pipeline.NewTesseractProvider(cfg.TesseractEnabled, cfg.TesseractLanguage),
	}

	var semantic pipeline.MeaningProvider
	var translationBackend pipeline.TranslationBackend
	var verifier pipeline.Verifier
	var reconstructor pipeline.Reconstructor

	if cfg.HasOpenAI() {
		visionCfg := openAIConfig(cfg, cfg.VisionTimeout)
		textCfg := openAIConfig(cfg, cfg.TextTimeout)

		providers = append(providers,
			pipeline.NewPrimaryVisionProvider(
				clients.NewOpenAIVisionClient(visionCfg, cfg.VisionModel), cfg.DefaultScript))

		semantic = clients.NewSemanticClient(textCfg, cfg.SemanticModel)
		translationBackend = clients.NewTranslationClient(textCfg, cfg.TranslationModels)
		if cfg.EnableVerification {
			verifier = clients.NewVerificationClient(textCfg, cfg.SemanticModel)
		}
		reconstructor = clients.NewReconstructionClient(visionCfg, cfg.ReconstructionModel)
	} else {
		log.Printf("OpenAI backends disabled (missing OPENAI_API_KEY)")
	}

	if cfg.HasAuxVision() {
		providers = append(providers,
			pipeline.NewAuxiliaryVisionProvider(
				clients.NewAuxVisionClient(cfg.AuxVisionURL, cfg.AuxVisionAPIKey, visionTransport),
				cfg.DefaultScript))
	}

	orchestrator := pipeline.NewOCROrchestrator(providers, cfg.VisionTimeout)
	postProcessor := pipeline.NewPostProcessor(verifier)
	matcher := pipeline.NewGlyphMatcher(store, semantic, cfg.DefaultScript)
	translator := pipeline.NewTranslator(translationBackend)
	reconstruction := pipeline.NewReconstructionModule(reconstructor, store, store)

	return pipeline.NewCoordinator(
		orchestrator, postProcessor, matcher, translator, reconstruction, store,
		pipeline.CoordinatorConfig{
			DefaultScript:        cfg.DefaultScript,
			ProcessingTimeout:    time.Duration(cfg.ProcessingTimeout) * time.Millisecond,
			EnableReconstruction: cfg.EnableReconstruction,
			AllowSampleFallback:  cfg.AllowSampleFallback,
			SampleText:           cfg.SampleText,
		})
}

// runBatch processes local image files through the bounded-concurrency batch
// driver and exits.
func runBatch(cfg *config.Config, coordinator *pipeline.Coordinator, paths []string) {
	requests := make([]*pipeline.ProcessRequest, 0, len(paths))
	for _, p := range paths {
		path := strings.TrimSpace(p)
		if path == "" {
			continue
		}
		requests = append(requests, &pipeline.ProcessRequest{
			RunID:     uuid.New().String(),
			ImageID:   path,
			ImagePath: path,
		})
	}

	log.Printf("Batch mode: %d images, maxConcurrent=%d", len(requests), cfg.MaxConcurrent)

	driver := pipeline.NewBatchDriver(coordinator, cfg.MaxConcurrent)
	results := driver.ProcessConcurrent(context.Background(), requests)

	for _, r := range results {
		if !r.Success {
			log.Printf("FAILED  %s: %s", r.ImageID, r.Error)
			continue
		}
		log.Printf("OK      %s: method=%s confidence=%.2f glyphs=%d translation=%q",
			r.ImageID, r.Result.Method, r.Result.Confidence,
			len(r.Result.Glyphs), r.Result.Translation.Translation)
	}
}

// openAIConfig builds the shared OpenAI client configuration with a
// per-concern transport timeout.
func openAIConfig(cfg *config.Config, timeout time.Duration) clients.OpenAIConfig {
	return clients.OpenAIConfig{
		APIKey:     cfg.OpenAIAPIKey,
		BaseURL:    cfg.OpenAIBaseURL,
		HTTPClient: mustHTTPClient(cfg, timeout),
	}
}

func mustHTTPClient(cfg *config.Config, timeout time.Duration) *http.Client {
	client, err := clients.NewHTTPClient(clients.TransportConfig{
		Timeout:  timeout,
		ProxyURL: cfg.ProxyURL,
	})
	if err != nil {
		log.Fatalf("Failed to build HTTP transport: %v", err)
	}
	return client
}
