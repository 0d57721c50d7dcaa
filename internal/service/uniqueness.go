package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/pkg/validation"
)

// Lookup labels used in logs and metrics.
const (
	checkParentEmail      = "parent_email"
	checkParentFiscalCode = "parent_fiscal_code"
	checkStudentFiscal    = "student_fiscal_code"
	checkStudentAccount   = "student_account"
)

// UniquenessChecker runs the advisory remote uniqueness lookups of the wizard.
// A failed lookup is logged and treated as passing so connectivity problems never
// block the user. The checks are read-then-write and not atomic against concurrent
// registrations.
type UniquenessChecker struct {
	docs        documentStore
	accounts    accountLookup
	emailDomain string
	metrics     *MetricsService
	logger      *zap.Logger
}

// NewUniquenessChecker builds a checker. accounts may be nil when the account
// store cannot be searched.
func NewUniquenessChecker(docs documentStore, accounts accountLookup, emailDomain string, metrics *MetricsService, logger *zap.Logger) *UniquenessChecker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &UniquenessChecker{docs: docs, accounts: accounts, emailDomain: emailDomain, metrics: metrics, logger: logger}
}

// SyntheticEmail derives a child's login email from the fiscal code.
func SyntheticEmail(fiscalCode, domain string) string {
	return strings.ToLower(validation.NormalizeFiscalCode(fiscalCode)) + "@" + domain
}

// EmailAvailable reports false only when the email is known to be taken.
func (u *UniquenessChecker) EmailAvailable(ctx context.Context, email string) bool {
	email = normalizeEmail(email)
	if u.exists(ctx, checkParentEmail, models.CollectionUsers, models.Eq("email", email)) {
		return false
	}
	return !u.accountExists(ctx, checkParentEmail, email)
}

// ParentFiscalCodeAvailable reports false only when a parent profile already uses the code.
func (u *UniquenessChecker) ParentFiscalCodeAvailable(ctx context.Context, fiscalCode string) bool {
	return !u.exists(ctx, checkParentFiscalCode, models.CollectionUsers,
		models.Eq("fiscalCode", validation.NormalizeFiscalCode(fiscalCode)),
		models.Eq("role", string(models.RoleParent)),
	)
}

// StudentFiscalCodeAvailable checks the students collection and the account
// reserved by the code's synthetic email.
func (u *UniquenessChecker) StudentFiscalCodeAvailable(ctx context.Context, fiscalCode string) bool {
	code := validation.NormalizeFiscalCode(fiscalCode)
	if u.exists(ctx, checkStudentFiscal, models.CollectionStudents, models.Eq("fiscalCode", code)) {
		return false
	}
	return !u.accountExists(ctx, checkStudentAccount, SyntheticEmail(code, u.emailDomain))
}

func (u *UniquenessChecker) exists(ctx context.Context, check, collection string, filters ...models.Filter) bool {
	if u.docs == nil {
		return false
	}
	docs, err := u.docs.Query(ctx, collection, filters...)
	if err != nil {
		u.failOpen(check, err)
		return false
	}
	return len(docs) > 0
}

func (u *UniquenessChecker) accountExists(ctx context.Context, check, email string) bool {
	if u.accounts == nil {
		return false
	}
	found, err := u.accounts.ExistsByEmail(ctx, email)
	if err != nil {
		u.failOpen(check, err)
		return false
	}
	return found
}

func (u *UniquenessChecker) failOpen(check string, err error) {
	u.logger.Warn("uniqueness lookup failed, treating as available", zap.String("check", check), zap.Error(err))
	u.metrics.RecordLookupFailure(check)
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
