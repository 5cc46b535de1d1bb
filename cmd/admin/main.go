package main

import (
	"context"
	"flag"
	"log"

	"studentportal/internal/config"
	"studentportal/internal/credential"
	"studentportal/internal/store"
)

// Seeds the bootstrap admin account. Safe to run repeatedly: an existing
// username is reported, not overwritten.
func main() {
	username := flag.String("username", "admin", "admin username")
	password := flag.String("password", "admin", "admin password")
	flag.Parse()

	cfg := config.Load()
	ctx := context.Background()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	if err := db.EnsureSchema(ctx); err != nil {
		log.Fatalf("schema init failed: %v", err)
	}

	creds := credential.NewStore(db.Client, cfg.EmailDomain)
	created, err := creds.CreateAdmin(ctx, *username, *password)
	if err != nil {
		log.Fatalf("create admin failed: %v", err)
	}
	if !created {
		log.Printf("admin user %q already exists", *username)
		return
	}
	log.Printf("admin user %q added successfully", *username)
	log.Println("please change this password after your first login")
}
