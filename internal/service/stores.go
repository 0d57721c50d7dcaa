package service

import (
	"context"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

type documentStore interface {
	Query(ctx context.Context, collection string, filters ...models.Filter) ([]models.Document, error)
	Get(ctx context.Context, collection, id string) (*models.Document, error)
	Add(ctx context.Context, collection string, data map[string]interface{}) (string, error)
	Set(ctx context.Context, collection, id string, data map[string]interface{}) error
	Update(ctx context.Context, collection, id string, patch map[string]interface{}) error
}

type accountStore interface {
	CreateAccount(ctx context.Context, email, password string) (*models.Credential, error)
	SignOut(ctx context.Context, uid string) error
}

type accountLookup interface {
	ExistsByEmail(ctx context.Context, email string) (bool, error)
}

type sessionStore interface {
	Get(ctx context.Context, id string) (*models.RegistrationSession, error)
	Save(ctx context.Context, session *models.RegistrationSession) error
	Delete(ctx context.Context, id string) error
}
