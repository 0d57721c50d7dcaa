package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
)

type mockAuthRepo struct {
	account        *models.Account
	findByEmailErr error
	findByIDErr    error
}

func (m *mockAuthRepo) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	if m.findByEmailErr != nil {
		return nil, m.findByEmailErr
	}
	if m.account == nil || m.account.Email != email {
		return nil, repository.ErrAccountNotFound
	}
	return m.account, nil
}

func (m *mockAuthRepo) FindByID(ctx context.Context, id string) (*models.Account, error) {
	if m.findByIDErr != nil {
		return nil, m.findByIDErr
	}
	if m.account == nil || m.account.ID != id {
		return nil, repository.ErrAccountNotFound
	}
	return m.account, nil
}

type stubVerifier struct {
	cred *models.Credential
	err  error
}

func (s *stubVerifier) VerifyIDToken(ctx context.Context, idToken string) (*models.Credential, error) {
	return s.cred, s.err
}

func newTestAuthService(t *testing.T, password string, role models.UserRole) (*AuthService, *mockAuthRepo, *memoryDocs) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &mockAuthRepo{account: &models.Account{ID: "acc-1", Email: "office@school.example", PasswordHash: string(hash)}}
	docs := newMemoryDocs()
	docs.seed(models.CollectionUsers, "acc-1", map[string]interface{}{"role": string(role), "email": "office@school.example"})

	svc := NewAuthService(repo, nil, docs, nil, zap.NewNop(), AuthConfig{
		AccessTokenSecret: "test-secret",
		AccessTokenExpiry: time.Hour,
		Issuer:            "sma-registration-api",
	})
	return svc, repo, docs
}

func TestAuthServiceLoginSuccess(t *testing.T) {
	svc, _, docs := newTestAuthService(t, "Password123!", models.RoleAdmin)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "127.0.0.1", "test")
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Equal(t, models.RoleAdmin, resp.User.Role)
	assert.Equal(t, 1, docs.count(models.CollectionAuditLogs))

	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.UserID)
	assert.Equal(t, models.RoleAdmin, claims.Role)
}

func TestAuthServiceLoginInvalidPassword(t *testing.T) {
	svc, _, _ := newTestAuthService(t, "Password123!", models.RoleAdmin)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "wrong"}, "", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "nobody@school.example", Password: "wrong"}, "", "")
	assert.True(t, errors.Is(err, appErrors.ErrInvalidCredentials))
}

func TestAuthServiceLoginDisabledAccount(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, "Password123!", models.RoleAdmin)
	repo.account.Disabled = true

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "", "")
	assert.True(t, errors.Is(err, appErrors.ErrInactiveAccount))
}

func TestAuthServiceLoginWithoutProfile(t *testing.T) {
	svc, _, docs := newTestAuthService(t, "Password123!", models.RoleAdmin)
	delete(docs.data[models.CollectionUsers], "acc-1")

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "", "")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))
}

func TestAuthServiceValidateTokenRevoked(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, "Password123!", models.RoleParent)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "", "")
	require.NoError(t, err)

	revokedAt := time.Now().Add(time.Minute)
	repo.account.SessionsRevokedAt = &revokedAt

	_, err = svc.ValidateToken(context.Background(), resp.AccessToken)
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceValidateTokenIssuedInRevocationSecond(t *testing.T) {
	svc, repo, _ := newTestAuthService(t, "Password123!", models.RoleParent)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "", "")
	require.NoError(t, err)

	// signed out a moment before this token was issued
	revokedAt := resp.IssuedAt.Add(-time.Nanosecond)
	repo.account.SessionsRevokedAt = &revokedAt

	claims, err := svc.ValidateToken(context.Background(), resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.UserID)
}

func TestAuthServiceValidateTokenRejectsForeignSecret(t *testing.T) {
	svc, _, _ := newTestAuthService(t, "Password123!", models.RoleAdmin)
	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "office@school.example", Password: "Password123!"}, "", "")
	require.NoError(t, err)

	other := NewAuthService(nil, nil, newMemoryDocs(), nil, nil, AuthConfig{AccessTokenSecret: "other", Issuer: "sma-registration-api"})
	_, err = other.ValidateToken(context.Background(), resp.AccessToken)
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func TestAuthServiceExchangeIDToken(t *testing.T) {
	docs := newMemoryDocs()
	docs.seed(models.CollectionUsers, "fb-uid", map[string]interface{}{"role": string(models.RoleParent)})
	verifier := &stubVerifier{cred: &models.Credential{UID: "fb-uid", Email: "anna.rossi@example.com"}}
	svc := NewAuthService(nil, verifier, docs, nil, nil, AuthConfig{AccessTokenSecret: "s", Issuer: "sma-registration-api"})

	resp, err := svc.ExchangeIDToken(context.Background(), "id-token", "", "")
	require.NoError(t, err)
	assert.Equal(t, "fb-uid", resp.User.ID)
	assert.Equal(t, models.RoleParent, resp.User.Role)

	_, err = svc.Login(context.Background(), models.LoginRequest{Email: "anna.rossi@example.com", Password: "x"}, "", "")
	assert.True(t, errors.Is(err, appErrors.ErrForbidden))

	verifier.err = errors.New("expired")
	_, err = svc.ExchangeIDToken(context.Background(), "id-token", "", "")
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))

	_, err = svc.ExchangeIDToken(context.Background(), "", "", "")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
}
