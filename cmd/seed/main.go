package main

import (
	"context"
	"flag"
	"log"
	"os"

	"github.com/joho/godotenv"

	"jokernotes/internal/changefeed"
	"jokernotes/internal/config"
	"jokernotes/internal/repository/postgres"
	"jokernotes/internal/seed"
	authsvc "jokernotes/internal/service/auth"
	"jokernotes/internal/service/docsystem"
)

func main() {
	// Parse command-line flags
	dropTables := flag.Bool("drop-tables", false, "Drop the documents table before seeding (fresh start)")
	schemaOnly := flag.Bool("schema-only", false, "Only set up schema, don't seed documents")
	clearData := flag.Bool("clear-data", false, "Delete every document of --owner (keep schema)")
	owner := flag.String("owner", os.Getenv("SEED_OWNER_ID"), "User ID that owns the seeded documents")
	flag.Parse()

	// Load .env file
	_ = godotenv.Load()

	cfg := config.Load()

	// SAFETY: Prevent destructive operations in production
	if cfg.Environment == "prod" && (*dropTables || *clearData) {
		log.Fatalf("🚫 BLOCKED: Cannot run destructive operations (--drop-tables or --clear-data) in production environment")
	}
	if cfg.DatabaseURL == "" {
		log.Fatalf("DATABASE_URL is required")
	}
	if !*schemaOnly && *owner == "" {
		log.Fatalf("--owner (or SEED_OWNER_ID) is required unless --schema-only is set")
	}

	logger := config.NewLogger(cfg.Environment, os.Stdout)

	switch {
	case *clearData:
		log.Printf("🧹 Clearing data only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	case *schemaOnly:
		log.Printf("🏗️  Setting up schema only (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	default:
		log.Printf("🌱 Seeding database (environment: %s, prefix: %s)", cfg.Environment, cfg.TablePrefix)
	}

	ctx := context.Background()
	pool, err := postgres.CreateConnectionPool(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer pool.Close()

	tables := postgres.NewTableNames(cfg.TablePrefix)

	if *dropTables {
		log.Println("🗑️  Dropping documents table...")
		if err := postgres.DropSchema(ctx, pool, tables); err != nil {
			log.Fatalf("Failed to drop tables: %v", err)
		}
		log.Println("✅ Tables dropped")
	}

	log.Println("📋 Ensuring database schema is up to date...")
	if err := postgres.EnsureSchema(ctx, pool, tables); err != nil {
		log.Fatalf("Failed to run schema: %v", err)
	}
	log.Println("✅ Schema ready")

	if *schemaOnly {
		log.Println("✅ Schema setup complete (schema-only mode)")
		return
	}

	repoConfig := &postgres.RepositoryConfig{
		Pool:   pool,
		Tables: tables,
		Logger: logger,
	}
	docRepo := postgres.NewDocumentRepository(repoConfig)

	log.Printf("🧹 Clearing existing documents of %s...", *owner)
	if err := docRepo.DeleteAllByOwner(ctx, *owner); err != nil {
		log.Fatalf("Failed to clear data: %v", err)
	}
	if *clearData {
		log.Println("✅ Data cleared successfully")
		return
	}

	fixture, err := seed.Default()
	if err != nil {
		log.Fatalf("Failed to load fixture: %v", err)
	}

	// Archived fixture branches need their subtree walk to finish before exit
	broker := changefeed.NewBroker(16, logger)
	defer broker.Close()
	propagator := docsystem.NewPropagator(docRepo, broker, docsystem.PropagatorConfig{Workers: 1, QueueSize: 16}, logger)
	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		propagator.Run(runCtx)
		close(done)
	}()

	docService := docsystem.NewDocumentService(
		docRepo,
		postgres.NewTransactionManager(pool, logger),
		authsvc.NewOwnerPolicy(),
		propagator,
		broker,
		nil,
		logger,
	)

	log.Printf("📝 Seeding %d documents...", fixture.Count())
	created, err := seed.NewSeeder(docService, logger).Apply(ctx, *owner, fixture)
	propagator.Wait()
	cancel()
	<-done
	if err != nil {
		log.Fatalf("❌ Seeding stopped after %d documents: %v", created, err)
	}

	log.Printf("🎉 Seeding complete! Created %d documents", created)
}
