package main

import (
	"context"
	"database/sql"
	"flag"
	"log"

	"toolrent-backend/internal/app"
	"toolrent-backend/internal/config"
	"toolrent-backend/internal/logger"
	"toolrent-backend/internal/repository/postgres"

	_ "github.com/lib/pq"
)

// seed loads a YAML catalog of members and tools into PostgreSQL, creating
// the schema first when it is missing.
func main() {
	configPath := flag.String("config", "config/config.dev.yaml", "Path to configuration file")
	seedPath := flag.String("seed", "config/seed.dev.yaml", "Path to the member and tool catalog")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	logger.Initialize(cfg.Log.Level, cfg.Log.Format)

	seed, err := app.LoadSeed(*seedPath)
	if err != nil {
		log.Fatalf("Failed to read seed file: %v", err)
	}

	db, err := sql.Open("postgres", cfg.GetDatabaseConnectionString())
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	if err := postgres.EnsureSchema(ctx, db); err != nil {
		log.Fatalf("Failed to create schema: %v", err)
	}
	if err := postgres.SeedCatalog(ctx, db, seed.Members, seed.Tools); err != nil {
		log.Fatalf("Failed to seed catalog: %v", err)
	}

	logger.Info("Catalog seeded", "members", len(seed.Members), "tools", len(seed.Tools))
}
