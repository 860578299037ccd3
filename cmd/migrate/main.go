// migrate applies the embedded schema migrations.
// Run: go run ./cmd/migrate [up|down]
package main

import (
	"errors"
	"log"
	"os"

	"github.com/ErlanBelekov/otpauth/internal/infrastructure/postgres"
)

func main() {
	direction := "up"
	if len(os.Args) > 1 {
		direction = os.Args[1]
	}

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	err := postgres.Migrate(dbURL, direction)
	switch {
	case errors.Is(err, postgres.ErrNoChange):
		log.Printf("migrate %s: no change", direction)
	case err != nil:
		log.Fatalf("migrate %s: %v", direction, err)
	default:
		log.Printf("migrate %s: done", direction)
	}
}
