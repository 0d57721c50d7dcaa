package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
)

type authAccountRepository interface {
	FindByEmail(ctx context.Context, email string) (*models.Account, error)
	FindByID(ctx context.Context, id string) (*models.Account, error)
}

type idTokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*models.Credential, error)
}

// AuthConfig defines configuration for authentication flows.
type AuthConfig struct {
	AccessTokenSecret string
	AccessTokenExpiry time.Duration
	Issuer            string
}

// AuthService issues and validates access tokens for the admin portal and parents.
// Password login needs the local account store; deployments on Firebase Auth
// exchange a Firebase ID token instead.
type AuthService struct {
	accounts  authAccountRepository
	verifier  idTokenVerifier
	docs      documentStore
	validator *validator.Validate
	logger    *zap.Logger
	config    AuthConfig
}

// NewAuthService constructs an AuthService instance. accounts or verifier may be nil.
func NewAuthService(accounts authAccountRepository, verifier idTokenVerifier, docs documentStore, validate *validator.Validate, logger *zap.Logger, config AuthConfig) *AuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.AccessTokenExpiry <= 0 {
		config.AccessTokenExpiry = 12 * time.Hour
	}
	return &AuthService{accounts: accounts, verifier: verifier, docs: docs, validator: validate, logger: logger, config: config}
}

// Login authenticates an email/password account and returns an access token.
func (s *AuthService) Login(ctx context.Context, req models.LoginRequest, ip, userAgent string) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid login payload")
	}
	if s.accounts == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "password login is not available, exchange an identity token instead")
	}

	account, err := s.accounts.FindByEmail(ctx, req.Email)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to fetch account")
	}
	if account.Disabled {
		return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
	}
	if err := bcrypt.CompareHashAndPassword([]byte(account.PasswordHash), []byte(req.Password)); err != nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "invalid email or password")
	}

	return s.issue(ctx, account.ID, account.Email, ip, userAgent)
}

// ExchangeIDToken trades a verified Firebase ID token for an access token.
func (s *AuthService) ExchangeIDToken(ctx context.Context, idToken, ip, userAgent string) (*models.LoginResponse, error) {
	if idToken == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "id_token is required")
	}
	if s.verifier == nil {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "identity token exchange is not available")
	}
	cred, err := s.verifier.VerifyIDToken(ctx, idToken)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid identity token")
	}
	return s.issue(ctx, cred.UID, cred.Email, ip, userAgent)
}

// Me returns the profile behind a set of claims.
func (s *AuthService) Me(claims *models.JWTClaims) models.UserInfo {
	return models.UserInfo{ID: claims.UserID, Email: claims.Email, Role: claims.Role}
}

// ValidateToken parses and validates an access token returning the claims.
// Tokens issued before the account was signed out or disabled are rejected.
func (s *AuthService) ValidateToken(ctx context.Context, tokenString string) (*models.JWTClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.JWTClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.AccessTokenSecret), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.JWTClaims)
	if !ok || !token.Valid {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}

	if s.accounts != nil {
		account, err := s.accounts.FindByID(ctx, claims.UserID)
		switch {
		case errors.Is(err, repository.ErrAccountNotFound):
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "account no longer exists")
		case err != nil:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load account")
		case account.Disabled:
			return nil, appErrors.Clone(appErrors.ErrInactiveAccount, "account is inactive")
		// iat carries whole seconds only
		case account.SessionsRevokedAt != nil && claims.IssuedAt != nil && claims.IssuedAt.Time.Before(account.SessionsRevokedAt.Truncate(time.Second)):
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "token has been revoked")
		}
	}

	return claims, nil
}

func (s *AuthService) issue(ctx context.Context, uid, email, ip, userAgent string) (*models.LoginResponse, error) {
	role, err := s.roleOf(ctx, uid)
	if err != nil {
		return nil, err
	}

	accessToken, issuedAt, err := s.generateAccessToken(uid, email, role)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}

	entry := models.AuditLog{
		UserID:     uid,
		Action:     models.AuditActionLogin,
		Resource:   "auth",
		ResourceID: uid,
		Status:     http.StatusOK,
		IPAddress:  ip,
		UserAgent:  userAgent,
		CreatedAt:  issuedAt,
	}
	if _, err := s.docs.Add(ctx, models.CollectionAuditLogs, entry.ToDocument()); err != nil {
		s.logger.Warn("failed to record login audit log", zap.Error(err))
	}

	return &models.LoginResponse{
		AccessToken: accessToken,
		ExpiresIn:   int64(s.config.AccessTokenExpiry.Seconds()),
		IssuedAt:    issuedAt,
		User:        models.UserInfo{ID: uid, Email: email, Role: role},
	}, nil
}

// roleOf reads the role from the user's profile document.
func (s *AuthService) roleOf(ctx context.Context, uid string) (models.UserRole, error) {
	doc, err := s.docs.Get(ctx, models.CollectionUsers, uid)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return "", appErrors.Clone(appErrors.ErrForbidden, "account has no profile")
		}
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load profile")
	}
	role := models.UserRole(doc.String("role"))
	if role == "" {
		return "", appErrors.Clone(appErrors.ErrForbidden, "account has no role")
	}
	return role, nil
}

func (s *AuthService) generateAccessToken(uid, email string, role models.UserRole) (string, time.Time, error) {
	issuedAt := time.Now().UTC()
	expiresAt := issuedAt.Add(s.config.AccessTokenExpiry)
	claims := &models.JWTClaims{
		UserID: uid,
		Role:   role,
		Email:  email,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   uid,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(s.config.AccessTokenSecret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, issuedAt, nil
}
