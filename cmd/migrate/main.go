// Command migrate applies or rolls back the database schema without
// starting the API. Usage: migrate [up|down]
package main

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/batchtrack/batchtrack/internal/database/migrate"
	"github.com/joho/godotenv"
)

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println("WARNING: Could not find or load .env file. Relying on system environment variables.")
	}

	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}
	if direction != "up" && direction != "down" {
		fmt.Fprintf(os.Stderr, "usage: %s [up|down]\n", os.Args[0])
		os.Exit(2)
	}

	dsn := os.Getenv("DB_DSN_PRIMARY")
	if dsn == "" {
		log.Fatal("DB_DSN_PRIMARY environment variable is not set")
	}

	if err := migrate.Run(dsn, direction); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			log.Println("No migrations to apply.")
			return
		}
		log.Fatalf("Migration failed: %v", err)
	}
	log.Printf("Migrations (%s) applied successfully.", direction)
}
