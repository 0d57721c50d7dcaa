package repository

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"firebase.google.com/go/v4/auth"
	"firebase.google.com/go/v4/errorutils"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

// FirebaseAccountRepository creates accounts through Firebase Authentication.
type FirebaseAccountRepository struct {
	client *auth.Client
}

// NewFirebaseAccountRepository wraps an initialised Firebase Auth client.
func NewFirebaseAccountRepository(client *auth.Client) *FirebaseAccountRepository {
	return &FirebaseAccountRepository{client: client}
}

// CreateAccount registers an email/password user.
func (r *FirebaseAccountRepository) CreateAccount(ctx context.Context, email, password string) (*models.Credential, error) {
	params := (&auth.UserToCreate{}).
		Email(strings.ToLower(strings.TrimSpace(email))).
		Password(password)
	user, err := r.client.CreateUser(ctx, params)
	if err != nil {
		return nil, &models.AccountError{Code: firebaseErrorCode(err), Err: err}
	}
	return &models.Credential{UID: user.UID, Email: user.Email}, nil
}

// SignOut revokes the refresh tokens of the user.
func (r *FirebaseAccountRepository) SignOut(ctx context.Context, uid string) error {
	if err := r.client.RevokeRefreshTokens(ctx, uid); err != nil {
		if auth.IsUserNotFound(err) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("revoke refresh tokens: %w", err)
	}
	return nil
}

// ExistsByEmail reports whether a Firebase user already uses the email.
func (r *FirebaseAccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	if _, err := r.client.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if auth.IsUserNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("get user by email: %w", err)
	}
	return true, nil
}

// VerifyIDToken checks a Firebase ID token and returns the account it was issued to.
func (r *FirebaseAccountRepository) VerifyIDToken(ctx context.Context, idToken string) (*models.Credential, error) {
	token, err := r.client.VerifyIDTokenAndCheckRevoked(ctx, idToken)
	if err != nil {
		return nil, fmt.Errorf("verify id token: %w", err)
	}
	email, _ := token.Claims["email"].(string)
	return &models.Credential{UID: token.UID, Email: email}, nil
}

func firebaseErrorCode(err error) string {
	switch {
	case auth.IsEmailAlreadyExists(err):
		return models.AccountErrEmailInUse
	case errorutils.IsInvalidArgument(err):
		msg := strings.ToLower(err.Error())
		if strings.Contains(msg, "password") {
			return models.AccountErrWeakPassword
		}
		if strings.Contains(msg, "email") {
			return models.AccountErrInvalidEmail
		}
		return models.AccountErrOperationNotAllowed
	case errorutils.IsPermissionDenied(err):
		return models.AccountErrPermissionDenied
	case errorutils.IsResourceExhausted(err):
		return models.AccountErrTooManyRequests
	case errorutils.IsUnavailable(err), errorutils.IsDeadlineExceeded(err):
		return models.AccountErrUnavailable
	case errorutils.IsFailedPrecondition(err):
		return models.AccountErrOperationNotAllowed
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return models.AccountErrNetwork
	}
	return models.AccountErrUnknown
}
