package main

import (
	"context"
	"time"

	"faqminer/internal/ai"
	"faqminer/internal/classify"
	"faqminer/internal/cluster"
	"faqminer/internal/config"
	"faqminer/internal/database"
	"faqminer/internal/jobs"
	"faqminer/internal/notify"
	"faqminer/internal/openai"
	"faqminer/internal/server"
	"faqminer/internal/synthesis"
	"faqminer/internal/vector"
)

func main() {
	cfg := config.Load()
	logger := cfg.SetupLogger()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("Database connection failed")
	}
	logger.Info().Msg("Database connection established successfully")

	store := database.NewStore(db, logger)
	if err := store.CreateTables(); err != nil {
		logger.Fatal().Err(err).Msg("Failed to create database tables")
	}

	aiClient, err := openai.NewClient(cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to initialize AI client")
	}
	capability := ai.NewOpenAICapability(aiClient,
		time.Duration(cfg.CapabilityTimeout)*time.Second, logger)

	// The centroid index is optional; without it group matching scans SQL rows
	var index cluster.Index
	if cfg.UseQdrant() {
		centroids, err := vector.NewCentroidIndex(&vector.Config{
			Host:       cfg.QdrantHost,
			Port:       cfg.QdrantPort,
			APIKey:     cfg.QdrantAPIKey,
			Collection: cfg.QdrantCollection,
			Dimensions: cfg.EmbeddingDimensions,
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Qdrant unavailable, falling back to SQL scans")
		} else {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := centroids.EnsureCollection(ctx); err != nil {
				logger.Warn().Err(err).Msg("Failed to ensure Qdrant collection, falling back to SQL scans")
			} else {
				index = centroids
				defer func() {
					if err := centroids.Close(); err != nil {
						logger.Warn().Err(err).Msg("Error closing Qdrant connection")
					}
				}()
			}
			cancel()
		}
	}

	engine := cluster.NewEngine(store, index, cfg.SimilarityThreshold, logger)
	synthesizer := synthesis.New(store, capability, logger)
	hub := jobs.NewHub(logger)

	var notifier jobs.Notifier
	emailNotifier := notify.NewEmailNotifier(cfg.SendGridAPIKey, cfg.SupportEmail, logger)
	if emailNotifier.Configured() {
		notifier = emailNotifier
	}

	classifier := classify.New(cfg.ConnectedAccounts)
	orchestrator := jobs.NewOrchestrator(store, classifier, capability, capability,
		engine, synthesizer, hub, notifier, cfg.BatchSize, logger)

	srv := server.New(cfg, store, orchestrator, hub, synthesizer, logger)
	srv.Initialize()

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Msg("Server failed to start")
	}
}
