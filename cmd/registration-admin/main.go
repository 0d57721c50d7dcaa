package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	"github.com/noah-isme/sma-registration-api/pkg/config"
	"github.com/noah-isme/sma-registration-api/pkg/database"
	"github.com/noah-isme/sma-registration-api/pkg/logger"
)

const usage = `usage: registration-admin <command> [flags]

commands:
  create-staff -email EMAIL -password PASSWORD [-name NAME] [-role admin|teacher]
  disable      -uid UID
  enable       -uid UID
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if cfg.Accounts.Backend == config.AccountsBackendFirebase {
		log.Fatal("staff accounts are managed in the Firebase console when ACCOUNTS_BACKEND=firebase")
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		logr.Fatal("failed to connect database", zap.Error(err))
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := database.EnsureSchema(ctx, db); err != nil {
		logr.Fatal("failed to prepare schema", zap.Error(err))
	}

	accounts := repository.NewAccountRepository(db, cfg.Registration.MinPasswordLength)
	docs := repository.NewDocumentRepository(db)

	cmd, args := os.Args[1], os.Args[2:]
	switch cmd {
	case "create-staff":
		err = createStaff(ctx, accounts, docs, args)
	case "disable", "enable":
		err = setDisabled(ctx, accounts, cmd == "disable", args)
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		logr.Fatal("command failed", zap.String("command", cmd), zap.Error(err))
	}
}

func createStaff(ctx context.Context, accounts *repository.AccountRepository, docs *repository.DocumentRepository, args []string) error {
	fs := flag.NewFlagSet("create-staff", flag.ExitOnError)
	email := fs.String("email", "", "login email")
	password := fs.String("password", "", "initial password")
	name := fs.String("name", "", "display name")
	role := fs.String("role", string(models.RoleAdmin), "admin or teacher")
	if err := fs.Parse(args); err != nil {
		return err
	}

	staffRole := models.UserRole(strings.ToLower(*role))
	if !staffRole.IsStaff() {
		return fmt.Errorf("role must be admin or teacher, got %q", *role)
	}
	if *email == "" || *password == "" {
		return errors.New("email and password are required")
	}

	cred, err := accounts.CreateAccount(ctx, *email, *password)
	if err != nil {
		return err
	}
	profile := models.StaffProfile{
		ID:        cred.UID,
		Name:      *name,
		Email:     cred.Email,
		Role:      staffRole,
		CreatedAt: time.Now().UTC(),
	}
	if err := docs.Set(ctx, models.CollectionUsers, cred.UID, profile.ToDocument()); err != nil {
		return fmt.Errorf("write staff profile: %w", err)
	}

	fmt.Printf("created %s account %s (%s)\n", staffRole, cred.UID, cred.Email)
	return nil
}

func setDisabled(ctx context.Context, accounts *repository.AccountRepository, disabled bool, args []string) error {
	fs := flag.NewFlagSet("disable", flag.ExitOnError)
	uid := fs.String("uid", "", "account id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *uid == "" {
		return errors.New("uid is required")
	}
	if _, err := accounts.FindByID(ctx, *uid); err != nil {
		return err
	}
	if err := accounts.SetDisabled(ctx, *uid, disabled); err != nil {
		return err
	}
	fmt.Printf("account %s disabled=%t\n", *uid, disabled)
	return nil
}
