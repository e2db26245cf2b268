package main

import (
	"fmt"
	"os"

	"github.com/talentbridge/jobboard/app/repository"
	"github.com/talentbridge/jobboard/internal/pkg/ats"
	"github.com/talentbridge/jobboard/internal/pkg/commands"
	"github.com/talentbridge/jobboard/internal/pkg/config"
	"github.com/talentbridge/jobboard/internal/pkg/database"
	"github.com/talentbridge/jobboard/internal/pkg/env"
)

func main() {
	env.SetupEnvFile()

	open := func() (commands.Credentials, error) {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("configuration: %w", err)
		}
		db, err := database.SetupDatabase(cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("database: %w", err)
		}
		return ats.NewService(repository.NewFactory(db).GetRepositories(), nil, nil), nil
	}

	if err := commands.NewRootCmd(open).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
