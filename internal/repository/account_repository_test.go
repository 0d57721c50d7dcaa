package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

func TestAccountRepositoryCreateAccount(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	mock.ExpectExec("INSERT INTO accounts").
		WithArgs(sqlmock.AnyArg(), "mario.rossi@example.com", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	cred, err := repo.CreateAccount(context.Background(), " Mario.Rossi@example.com ", "secret1")
	require.NoError(t, err)
	assert.NotEmpty(t, cred.UID)
	assert.Equal(t, "mario.rossi@example.com", cred.Email)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryCreateAccountDuplicateEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	mock.ExpectExec("INSERT INTO accounts").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err := repo.CreateAccount(context.Background(), "taken@example.com", "secret1")
	var accErr *models.AccountError
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, models.AccountErrEmailInUse, accErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryCreateAccountRejectsInput(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	_, err := repo.CreateAccount(context.Background(), "not-an-email", "secret1")
	var accErr *models.AccountError
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, models.AccountErrInvalidEmail, accErr.Code)

	_, err = repo.CreateAccount(context.Background(), "ok@example.com", "123")
	require.True(t, errors.As(err, &accErr))
	assert.Equal(t, models.AccountErrWeakPassword, accErr.Code)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositorySignOut(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE accounts SET sessions_revoked_at = $2 WHERE id = $1")).
		WithArgs("uid-1", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE accounts SET sessions_revoked_at").
		WithArgs("ghost", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.SignOut(context.Background(), "uid-1"))
	assert.ErrorIs(t, repo.SignOut(context.Background(), "ghost"), ErrAccountNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryFindByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	now := time.Now()
	rows := sqlmock.NewRows([]string{"id", "email", "password_hash", "disabled", "sessions_revoked_at", "created_at"}).
		AddRow("uid-1", "admin@example.com", "hash", false, nil, now)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, email, password_hash, disabled, sessions_revoked_at, created_at FROM accounts WHERE email = $1 LIMIT 1")).
		WithArgs("admin@example.com").
		WillReturnRows(rows)

	account, err := repo.FindByEmail(context.Background(), "Admin@example.com")
	require.NoError(t, err)
	assert.Equal(t, "uid-1", account.ID)
	assert.Nil(t, account.SessionsRevokedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccountRepositoryExistsByEmail(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccountRepository(db, 6)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("rssmra80a01h501z@studenti.scuola.local").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))

	exists, err := repo.ExistsByEmail(context.Background(), "RSSMRA80A01H501Z@studenti.scuola.local")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
