package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	jwtpkg "assistant/backend/internal/auth/jwt"
	"assistant/backend/internal/config"
	"assistant/backend/internal/service"
	"assistant/backend/internal/storage/backend"
)

// create-user provisions a user (or finds an existing one) and prints a
// fresh token pair for it.
func main() {
	name := flag.String("name", "", "display name for a new user")
	flag.Usage = func() {
		fmt.Fprintln(os.Stderr, "Usage: create-user [-name \"Display Name\"] <email>")
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(1)
	}
	email := flag.Arg(0)

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	if !backend.Persistent(cfg.Database) {
		fmt.Println("Warning: database.type is memory; the user will not exist in a running server.")
		fmt.Println("Set ASSISTANT_DATABASE_TYPE and ASSISTANT_DATABASE_DSN to the server's database.")
	}

	store, err := backend.Open(cfg.Database, zap.NewNop())
	if err != nil {
		fmt.Printf("Failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	user, created, err := service.NewUserService(store).GetOrCreate(ctx, email, *name)
	if err != nil {
		fmt.Printf("Failed to create user: %v\n", err)
		os.Exit(1)
	}

	manager := jwtpkg.NewManager(cfg.JWT.Secret, cfg.JWT.Issuer, cfg.JWT.AccessExpiry, cfg.JWT.RefreshExpiry)
	tokens, err := manager.GenerateTokenPair(user.ID, user.Email)
	if err != nil {
		fmt.Printf("Failed to issue tokens: %v\n", err)
		os.Exit(1)
	}

	if created {
		fmt.Println("✓ User created")
	} else {
		fmt.Println("✓ User already exists")
	}
	fmt.Printf("  ID:      %s\n", user.ID)
	fmt.Printf("  Email:   %s\n", user.Email)
	fmt.Printf("  Active:  %t\n", user.IsActive)
	fmt.Printf("\nAccess token (expires in %s):\n%s\n", cfg.JWT.AccessExpiry, tokens.AccessToken)
	fmt.Printf("\nRefresh token:\n%s\n", tokens.RefreshToken)
}
