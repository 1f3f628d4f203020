package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"strings"

	"mail-txn-ingest-go/internal/config"
	"mail-txn-ingest-go/internal/db"
	"mail-txn-ingest-go/internal/model"
	"mail-txn-ingest-go/internal/oauth"
	"mail-txn-ingest-go/internal/repository"
	"mail-txn-ingest-go/internal/vault"
)

// connect_mailbox runs the consent flow from a terminal, for setups without the web app
func main() {
	userID := flag.String("user", "", "user id that owns the mailbox")
	providerName := flag.String("provider", "gmail", "gmail or outlook")
	flag.Parse()

	provider, ok := model.ParseProvider(*providerName)
	if *userID == "" || !ok {
		log.Fatal("Usage: connect_mailbox -user <id> -provider gmail|outlook")
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Unable to load configuration: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	dbConn, err := db.Init(cfg.Database)
	if err != nil {
		log.Fatalf("Unable to open database: %v", err)
	}
	repo := repository.New(dbConn)

	v, err := vault.New(cfg.Security.EncryptionKey)
	if err != nil {
		log.Fatalf("Unable to create vault: %v", err)
	}

	var client *oauth.ProviderClient
	switch provider {
	case model.ProviderGmail:
		client = oauth.NewGmailClient(cfg.OAuth.Gmail, cfg.RedirectURL(provider.String()))
	case model.ProviderOutlook:
		client = oauth.NewOutlookClient(cfg.OAuth.Outlook, cfg.RedirectURL(provider.String()))
	}
	manager := oauth.NewManager(repo, repo, v, client)

	authURL, err := manager.AuthorizationURL(*userID, provider)
	if err != nil {
		log.Fatalf("Unable to build authorization URL: %v", err)
	}
	fmt.Printf("Go to the following link in your browser: %v\n", authURL)
	fmt.Println("\nAfter authorization, you'll be redirected to a URL. Copy the whole URL.")

	fmt.Print("\nEnter the redirect URL: ")
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		log.Fatalf("Unable to read redirect URL: %v", err)
	}
	redirect, err := url.Parse(strings.TrimSpace(line))
	if err != nil {
		log.Fatalf("Invalid redirect URL: %v", err)
	}

	tok, owner, err := manager.ExchangeCode(context.Background(), provider,
		redirect.Query().Get("code"), redirect.Query().Get("state"))
	if err != nil {
		log.Fatalf("Unable to exchange authorization code: %v", err)
	}

	fmt.Printf("\nConnected %s for user %s\n", provider, owner)
	fmt.Printf("Expiry: %v\n", tok.ExpiresAt)
	fmt.Printf("Scope: %s\n", tok.Scope)
	fmt.Printf("Refresh token stored: %v\n", tok.EncryptedRefreshToken != nil)
}
