package main

import (
	"flag"
	"fmt"
	"os"

	"endurancy/internal/pkg/logger"
	"endurancy/internal/platform/config"
	"endurancy/internal/platform/database"
	"endurancy/migrations"
	"github.com/rs/zerolog/log"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up, down or version")
	configPath := flag.String("config", "configs/config.yaml", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Init(cfg.Logging)

	db, err := database.Open(cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	switch *direction {
	case "up":
		err = migrations.Up(db)
	case "down":
		err = migrations.Down(db)
	case "version":
		version, dirty, verr := migrations.Version(db)
		if verr != nil {
			log.Fatal().Err(verr).Msg("Failed to read schema version")
		}
		fmt.Printf("version=%d dirty=%t\n", version, dirty)
		return
	default:
		log.Fatal().Str("direction", *direction).Msg("Invalid direction: must be up, down or version")
	}
	if err != nil {
		log.Fatal().Err(err).Str("direction", *direction).Msg("Migration failed")
	}

	log.Info().Str("direction", *direction).Msg("Migration completed successfully")
}
