package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/carecoord/authcore/internal/app"
	"github.com/carecoord/authcore/internal/identity"
	"github.com/carecoord/authcore/internal/platform/db"
	"github.com/carecoord/authcore/internal/shared"
)

type account struct {
	email     string
	password  string
	firstName string
	lastName  string
	role      string
	zone      string
}

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	pool, err := db.New(ctx, cfg.PGDSN, db.Options{MaxConns: 2, ConnectTimeout: cfg.StoreTimeout})
	if err != nil {
		log.Fatalf("connect postgres: %v", err)
	}
	defer pool.Close()

	fmt.Println("→ Applying migrations...")
	applied, err := db.Migrate(ctx, pool)
	if err != nil {
		log.Fatalf("migrate: %v", err)
	}
	for _, version := range applied {
		fmt.Println("  applied", version)
	}

	permissions, err := app.LoadPermissions(cfg)
	if err != nil {
		log.Fatalf("load permissions: %v", err)
	}
	identities, err := identity.NewService(identity.NewRepository(pool), permissions, identity.Config{
		BcryptCost:   cfg.BcryptCost,
		StoreTimeout: cfg.StoreTimeout,
	})
	if err != nil {
		log.Fatalf("identity service: %v", err)
	}

	accounts := []account{{
		email:     getenv("SEED_ADMIN_EMAIL", "admin@carecoord.local"),
		password:  os.Getenv("SEED_ADMIN_PASSWORD"),
		firstName: "Platform",
		lastName:  "Administrator",
		role:      "administrator",
	}}
	if accounts[0].password == "" {
		log.Fatal("SEED_ADMIN_PASSWORD must be set")
	}
	if os.Getenv("SEED_DEMO") == "1" {
		accounts = append(accounts,
			account{"coordinator@carecoord.local", "Coordinator1", "Cora", "Lane", "coordinator", "zone-north"},
			account{"nurse@carecoord.local", "Nurse12345", "Nia", "Ford", "member", "zone-north"},
		)
	}

	fmt.Println("→ Seeding accounts...")
	for _, a := range accounts {
		created, err := identities.Provision(ctx, identity.RegisterInput{
			Email:     a.email,
			Password:  a.password,
			FirstName: a.firstName,
			LastName:  a.lastName,
			Role:      a.role,
			ZoneID:    a.zone,
		})
		switch {
		case errors.Is(err, shared.ErrDuplicateIdentity):
			fmt.Printf("  %s already exists\n", a.email)
		case err != nil:
			log.Fatalf("provision %s: %v", a.email, err)
		default:
			fmt.Printf("  %s (%s) id=%s\n", created.Email, created.Role, created.ID)
		}
	}

	fmt.Println("✓ Seed complete at", time.Now().Format(time.RFC3339))
}

func getenv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}
