package main

import (
	"github.com/gofiber/fiber/v2/log"

	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/database"
	"github.com/talentbridge/jobboard/internal/pkg/env"
)

// migrate brings the schema up to date and exits. The server does the same
// on start; this binary lets deploys run it as a separate step.
func main() {
	env.SetupEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[Migrate] Invalid configuration: %v", err)
	}

	log.Infof("[Migrate] Connecting to %s@%s:%s/%s", cfg.Database.User, cfg.Database.Host, cfg.Database.Port, cfg.Database.Name)
	if _, err := database.SetupDatabase(cfg.Database); err != nil {
		log.Fatalf("[Migrate] Failed: %v", err)
	}
	log.Info("[Migrate] Schema is up to date")
}
