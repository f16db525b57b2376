package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"faqminer/internal/ai"
	"faqminer/internal/classify"
	"faqminer/internal/cluster"
	"faqminer/internal/config"
	"faqminer/internal/database"
	"faqminer/internal/jobs"
	"faqminer/internal/mailsource"
	"faqminer/internal/openai"
	"faqminer/internal/synthesis"

	"github.com/rs/zerolog"
)

func main() {
	emlPath := flag.String("eml", "", "Path to EML file or directory containing EML files")
	mboxPath := flag.String("mbox", "", "Path to MBOX file")
	rescan := flag.Bool("rescan", false, "Reclassify stored emails against the current connected accounts")
	recluster := flag.Bool("recluster", false, "Embed and cluster questions left unclustered by earlier failures")
	limit := flag.Int("limit", 1000, "Max records per rescan/recluster pass")
	flag.Parse()

	if *emlPath == "" && *mboxPath == "" && !*rescan && !*recluster {
		fmt.Println("Usage:")
		fmt.Println("  Import EML files:     backfill -eml /path/to/file.eml")
		fmt.Println("  Import directory:     backfill -eml /path/to/directory")
		fmt.Println("  Import MBOX:          backfill -mbox /path/to/file.mbox")
		fmt.Println("  Reclassify emails:    backfill -rescan")
		fmt.Println("  Recluster questions:  backfill -recluster")
		os.Exit(1)
	}

	cfg := config.Load()
	logger := cfg.SetupLogger()

	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer func() {
		if err := db.Close(); err != nil {
			logger.Warn().Err(err).Msg("error closing database")
		}
	}()

	store := database.NewStore(db, logger)
	if err := store.CreateTables(); err != nil {
		log.Fatalf("Failed to create database tables: %v", err)
	}

	ctx := context.Background()

	if *emlPath != "" {
		importEML(store, logger, *emlPath)
	}
	if *mboxPath != "" {
		importMBOX(store, logger, *mboxPath)
	}
	if *rescan {
		rescanEmails(ctx, cfg, store, *limit)
	}
	if *recluster {
		reclusterQuestions(ctx, cfg, store, logger, *limit)
	}
}

// importEML imports a single EML file or every EML file under a directory
func importEML(store *database.Store, logger zerolog.Logger, path string) {
	parser := mailsource.NewParser(logger)

	info, err := os.Stat(path)
	if err != nil {
		log.Fatalf("Failed to access path: %v", err)
	}

	var messages []*mailsource.RawMessage
	if info.IsDir() {
		fmt.Printf("Scanning directory for EML files: %s\n", path)
		messages, err = parser.ParseDirectory(path)
		if err != nil {
			log.Fatalf("Failed to parse directory: %v", err)
		}
	} else if strings.HasSuffix(strings.ToLower(path), ".eml") {
		msg, err := parser.ParseEMLFile(path)
		if err != nil {
			log.Fatalf("Failed to parse EML file: %v", err)
		}
		messages = []*mailsource.RawMessage{msg}
	} else {
		log.Fatalf("Invalid file type, expected .eml file or directory")
	}

	stored := storeMessages(store, logger, messages)
	fmt.Printf("Imported %d of %d EML emails\n", stored, len(messages))
}

// importMBOX streams an MBOX mailbox into the database in batches
func importMBOX(store *database.Store, logger zerolog.Logger, path string) {
	parser := mailsource.NewParser(logger)
	total, stored := 0, 0

	err := parser.ParseMBOXStreaming(path, 100, func(batch []*mailsource.RawMessage, progress mailsource.MBOXProgress) error {
		total += len(batch)
		stored += storeMessages(store, logger, batch)
		fmt.Printf("Progress: %d messages (%.1f%%)\n", progress.MessagesParsed, progress.PercentComplete)
		return nil
	})
	if err != nil {
		log.Fatalf("Failed to parse MBOX file: %v", err)
	}

	fmt.Printf("Imported %d of %d MBOX emails\n", stored, total)
}

func storeMessages(store *database.Store, logger zerolog.Logger, messages []*mailsource.RawMessage) int {
	stored := 0
	for _, msg := range messages {
		email := mailsource.Normalize(msg)
		if email.MessageID == "" || email.SenderEmail == "" {
			continue
		}
		if err := store.UpsertEmail(context.Background(), email); err != nil {
			logger.Warn().Str("message_id", email.MessageID).Err(err).Msg("failed to store email")
			continue
		}
		stored++
	}
	return stored
}

// rescanEmails reclassifies stored emails in pages. Emails whose filtering
// flips to qualified are requeued for the next processing job.
func rescanEmails(ctx context.Context, cfg *config.Config, store *database.Store, limit int) {
	classifier := classify.New(cfg.ConnectedAccounts)

	var afterID int64
	reclassified := 0
	for reclassified < limit {
		page, err := store.ListEmailsPage(ctx, afterID, 200)
		if err != nil {
			log.Fatalf("Failed to list emails: %v", err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			email := &page[i]
			afterID = email.ID

			peers, err := store.ListThreadPeers(ctx, email)
			if err != nil {
				log.Fatalf("Failed to load thread peers: %v", err)
			}

			result := classifier.Classify(email, peers)
			if result.FilteringStatus == email.FilteringStatus && result.Direction == email.Direction {
				continue
			}

			email.Direction = result.Direction
			email.HasResponse = result.HasResponse
			email.FilteringStatus = result.FilteringStatus
			email.FilteringReason = result.FilteringReason
			if err := store.UpdateClassification(ctx, email); err != nil {
				log.Fatalf("Failed to update classification: %v", err)
			}
			reclassified++
			if reclassified >= limit {
				break
			}
		}
	}

	fmt.Printf("Reclassified %d emails\n", reclassified)
}

// reclusterQuestions retries embedding and clustering for questions stranded by
// earlier capability failures
func reclusterQuestions(ctx context.Context, cfg *config.Config, store *database.Store, logger zerolog.Logger, limit int) {
	aiClient, err := openai.NewClient(cfg, logger)
	if err != nil {
		log.Fatalf("Failed to initialize AI client: %v", err)
	}
	capability := ai.NewOpenAICapability(aiClient,
		time.Duration(cfg.CapabilityTimeout)*time.Second, logger)

	engine := cluster.NewEngine(store, nil, cfg.SimilarityThreshold, logger)
	synthesizer := synthesis.New(store, capability, logger)
	hub := jobs.NewHub(logger)
	classifier := classify.New(cfg.ConnectedAccounts)

	orchestrator := jobs.NewOrchestrator(store, classifier, capability, capability,
		engine, synthesizer, hub, nil, cfg.BatchSize, logger)

	clustered, err := orchestrator.ReclusterPending(ctx, limit)
	if err != nil {
		log.Fatalf("Recluster pass failed: %v", err)
	}

	fmt.Printf("Clustered %d pending questions\n", clustered)
}
