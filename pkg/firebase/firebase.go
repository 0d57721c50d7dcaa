package firebase

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	fb "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"google.golang.org/api/option"

	"github.com/noah-isme/sma-registration-api/pkg/config"
)

// Clients bundles the Firebase services used by the API.
type Clients struct {
	App       *fb.App
	Firestore *firestore.Client
	Auth      *auth.Client
}

// NewApp initialises the Firebase app. Without a credentials file the
// application default credentials are used.
func NewApp(ctx context.Context, cfg config.FirebaseConfig) (*fb.App, error) {
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	var appCfg *fb.Config
	if cfg.ProjectID != "" {
		appCfg = &fb.Config{ProjectID: cfg.ProjectID}
	}

	app, err := fb.NewApp(ctx, appCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// NewClients opens only the clients the configured backends need.
func NewClients(ctx context.Context, cfg *config.Config) (*Clients, error) {
	needStore := cfg.Store.Backend == config.StoreBackendFirestore
	needAuth := cfg.Accounts.Backend == config.AccountsBackendFirebase
	if !needStore && !needAuth {
		return &Clients{}, nil
	}

	app, err := NewApp(ctx, cfg.Firebase)
	if err != nil {
		return nil, err
	}
	clients := &Clients{App: app}

	if needStore {
		if clients.Firestore, err = app.Firestore(ctx); err != nil {
			return nil, fmt.Errorf("init firestore client: %w", err)
		}
	}
	if needAuth {
		if clients.Auth, err = app.Auth(ctx); err != nil {
			clients.Close()
			return nil, fmt.Errorf("init firebase auth client: %w", err)
		}
	}
	return clients, nil
}

// Close releases the Firestore connection, if any.
func (c *Clients) Close() error {
	if c == nil || c.Firestore == nil {
		return nil
	}
	return c.Firestore.Close()
}
