// seed ensures the default role and a few identities exist in the local dev
// database, then prints how to walk through the OTP flow.
// Run: go run ./cmd/seed
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/ErlanBelekov/otpauth/internal/domain"
	"github.com/ErlanBelekov/otpauth/internal/infrastructure/postgres"
)

type identity struct {
	email     string
	firstName string
	lastName  string
}

var identities = []identity{
	{"seed@test.local", "Seed", "User"},
	{"alice@test.local", "Alice", "Liddell"},
	// Blank names fall back to the local part in emails.
	{"noname@test.local", "", ""},
}

func main() {
	ctx := context.Background()

	dbURL := os.Getenv("DATABASE_URL")
	if dbURL == "" {
		log.Fatal("DATABASE_URL is not set, run: direnv allow")
	}
	roleName := os.Getenv("DEFAULT_ROLE")
	if roleName == "" {
		roleName = "user"
	}

	pool, err := postgres.NewPool(ctx, dbURL, postgres.PoolConfig{MaxConns: 2})
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer pool.Close()

	users := postgres.NewUserRepository(pool)

	role, err := users.EnsureRole(ctx, roleName)
	if err != nil {
		log.Fatalf("ensure role %q: %v", roleName, err)
	}

	var created, existing int
	for _, id := range identities {
		email := domain.NormalizeEmail(id.email)
		if _, err := users.FindByEmail(ctx, email); err == nil {
			existing++
			continue
		} else if !errors.Is(err, domain.ErrUserNotFound) {
			log.Fatalf("find %s: %v", email, err)
		}

		if _, err := users.Create(ctx, domain.CreateUserInput{
			Email:     email,
			FirstName: id.firstName,
			LastName:  id.lastName,
			RoleID:    role.ID,
		}); err != nil {
			log.Fatalf("create %s: %v", email, err)
		}
		created++
	}

	seedEmail := identities[0].email

	fmt.Println("Seed complete")
	fmt.Println()
	fmt.Printf("  Role:       %s (%s)\n", role.Name, role.ID)
	fmt.Printf("  Identities: %d created, %d already existing\n", created, existing)
	fmt.Println()
	fmt.Println("How to test:")
	fmt.Println()
	fmt.Println("  Step 1: request a code for the seed user:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/auth/otp \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\"}'\n", seedEmail)
	fmt.Println()
	fmt.Println("    # Locally the email is written to MAIL_DROP_DIR (default tmp/mail).")
	fmt.Println("    # Open the newest .html file there to read the code.")
	fmt.Println()
	fmt.Println("  Step 2: verify it and log in:")
	fmt.Println()
	fmt.Printf("    curl -s -X POST http://localhost:8080/auth/otp/verify \\\n")
	fmt.Printf("      -H 'Content-Type: application/json' \\\n")
	fmt.Printf("      -d '{\"email\":\"%s\",\"otp\":\"CODE\",\"should_login\":true}'\n", seedEmail)
	fmt.Println("    # → {\"success\":true,...,\"access_token\":\"eyJ...\"}")
	fmt.Println()
	fmt.Println("  Step 3: call an authenticated endpoint:")
	fmt.Println()
	fmt.Println("    export JWT=eyJ...")
	fmt.Println("    curl -s http://localhost:8080/me -H \"Authorization: Bearer $JWT\"")
	fmt.Println()
	fmt.Println("  What to expect:")
	fmt.Println("    a second request within 60s   →  429 with Retry-After")
	fmt.Println("    a wrong or reused code        →  401 \"Invalid or expired code\"")
}
