package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

const pqUniqueViolation = "23505"

// AccountRepository keeps login credentials in the local accounts table.
type AccountRepository struct {
	db                *sqlx.DB
	validate          *validator.Validate
	minPasswordLength int
}

// NewAccountRepository creates a new instance of AccountRepository.
func NewAccountRepository(db *sqlx.DB, minPasswordLength int) *AccountRepository {
	if minPasswordLength <= 0 {
		minPasswordLength = 6
	}
	return &AccountRepository{db: db, validate: validator.New(), minPasswordLength: minPasswordLength}
}

// CreateAccount hashes the password and stores a new account.
func (r *AccountRepository) CreateAccount(ctx context.Context, email, password string) (*models.Credential, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if err := r.validate.Var(email, "required,email"); err != nil {
		return nil, &models.AccountError{Code: models.AccountErrInvalidEmail, Err: err}
	}
	if len(password) < r.minPasswordLength {
		return nil, &models.AccountError{Code: models.AccountErrWeakPassword}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	id := uuid.NewString()
	const query = `INSERT INTO accounts (id, email, password_hash, disabled, created_at) VALUES ($1, $2, $3, FALSE, $4)`
	if _, err := r.db.ExecContext(ctx, query, id, email, string(hash), time.Now().UTC()); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && string(pqErr.Code) == pqUniqueViolation {
			return nil, &models.AccountError{Code: models.AccountErrEmailInUse, Err: err}
		}
		return nil, &models.AccountError{Code: models.AccountErrUnavailable, Err: fmt.Errorf("create account: %w", err)}
	}
	return &models.Credential{UID: id, Email: email}, nil
}

// SignOut revokes every session issued to the account before now.
func (r *AccountRepository) SignOut(ctx context.Context, uid string) error {
	const query = `UPDATE accounts SET sessions_revoked_at = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, uid, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("sign out account: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// FindByEmail returns an account by email address.
func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, disabled, sessions_revoked_at, created_at FROM accounts WHERE email = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by email: %w", err)
	}
	return &account, nil
}

// FindByID returns an account by identifier.
func (r *AccountRepository) FindByID(ctx context.Context, id string) (*models.Account, error) {
	const query = `SELECT id, email, password_hash, disabled, sessions_revoked_at, created_at FROM accounts WHERE id = $1 LIMIT 1`
	var account models.Account
	if err := r.db.GetContext(ctx, &account, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("find account by id: %w", err)
	}
	return &account, nil
}

// ExistsByEmail reports whether an account already uses the email.
func (r *AccountRepository) ExistsByEmail(ctx context.Context, email string) (bool, error) {
	const query = `SELECT EXISTS(SELECT 1 FROM accounts WHERE email = $1)`
	var exists bool
	if err := r.db.GetContext(ctx, &exists, query, strings.ToLower(strings.TrimSpace(email))); err != nil {
		return false, fmt.Errorf("check account email: %w", err)
	}
	return exists, nil
}

// SetDisabled enables or disables an account.
func (r *AccountRepository) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	const query = `UPDATE accounts SET disabled = $2 WHERE id = $1`
	if _, err := r.db.ExecContext(ctx, query, uid, disabled); err != nil {
		return fmt.Errorf("set account disabled: %w", err)
	}
	return nil
}
