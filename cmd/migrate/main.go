// Command migrate manages the indexer schema.
//
//	migrate            apply pending migrations
//	migrate add <name> create an empty migration file
//	migrate recreate   drop the schema and migrate from scratch
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/RuneLabsxyz/PonziLand-sub000/internal/config"
	"github.com/RuneLabsxyz/PonziLand-sub000/internal/repository"
)

const migrationsDir = "internal/repository/migrations"

func main() {
	verb := "migrate"
	if len(os.Args) > 1 {
		verb = os.Args[1]
	}

	if verb == "add" {
		if len(os.Args) < 3 {
			log.Fatalf("usage: migrate add <name>")
		}
		path, err := repository.CreateMigrationFile(migrationsDir, os.Args[2])
		if err != nil {
			log.Fatalf("add migration: %v", err)
		}
		fmt.Println(path)
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(config.Path())
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	repo, err := repository.NewRepository(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatalf("connect database: %v", err)
	}
	defer repo.Close()

	switch verb {
	case "migrate":
		if err := repo.Migrate(ctx); err != nil {
			log.Fatalf("migrate: %v", err)
		}
		log.Println("migrations applied")
	case "recreate":
		if err := repo.Recreate(ctx); err != nil {
			log.Fatalf("recreate: %v", err)
		}
		log.Println("schema recreated")
	default:
		log.Fatalf("unknown command %q (want migrate, add or recreate)", verb)
	}
}
