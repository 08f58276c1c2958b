// Command campusgate-seed links portal accounts from the command line.
// Credentials never travel over the HTTP API for the initial rollout; an
// operator seeds them directly into the store.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/aryandika/campusgate/internal/common"
	"github.com/aryandika/campusgate/internal/credentials"
	"github.com/aryandika/campusgate/internal/crypto"
	badgerstorage "github.com/aryandika/campusgate/internal/storage/badger"
)

var (
	configFile = flag.String("config", "campusgate.toml", "Configuration file path")
	userID     = flag.String("user", "", "Application user ID to link")
	portalUser = flag.String("portal-user", "", "Portal account username")
	password   = flag.String("password", "", "Portal account password (or set CAMPUSGATE_SEED_PASSWORD)")
	listUsers  = flag.Bool("list", false, "List linked users and exit")
	genKey     = flag.Bool("genkey", false, "Generate a new encryption key and exit")
)

func main() {
	flag.Parse()

	if *genKey {
		key, err := crypto.GenerateKey()
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to generate key: %v\n", err)
			os.Exit(1)
		}
		fmt.Println(key)
		return
	}

	config, err := common.LoadFromFile(*configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if config.Session.EncryptionKey == "" {
		fmt.Fprintln(os.Stderr, "no encryption key configured; set session.encryption_key or CAMPUSGATE_ENCRYPTION_KEY")
		os.Exit(1)
	}

	logger := common.GetLogger()

	cipher, err := crypto.NewCipher(config.Session.EncryptionKey)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid encryption key: %v\n", err)
		os.Exit(1)
	}

	storage, err := badgerstorage.NewManager(logger, &config.Storage.Badger)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to open storage: %v\n", err)
		os.Exit(1)
	}
	defer storage.Close()

	ctx := context.Background()

	if *listUsers {
		creds, err := storage.CredentialStorage().List(ctx)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list credentials: %v\n", err)
			os.Exit(1)
		}
		for _, cred := range creds {
			state := "inactive"
			if cred.Active {
				state = "active"
			}
			fmt.Printf("%s\t%s\t%s\n", cred.UserID, cred.PortalUsername, state)
		}
		return
	}

	secret := *password
	if secret == "" {
		secret = os.Getenv("CAMPUSGATE_SEED_PASSWORD")
	}
	if *userID == "" || *portalUser == "" || secret == "" {
		fmt.Fprintln(os.Stderr, "usage: campusgate-seed -user <id> -portal-user <username> -password <password>")
		os.Exit(2)
	}

	store := credentials.NewStore(storage.CredentialStorage(), cipher, logger)
	if err := store.Seed(ctx, *userID, *portalUser, secret); err != nil {
		fmt.Fprintf(os.Stderr, "failed to seed credential: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("linked user %s to portal account %s\n", *userID, *portalUser)
}
