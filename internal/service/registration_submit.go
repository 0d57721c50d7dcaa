package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/validation"
)

// Submit persists a reviewed registration in strict order: parent account and
// profile, then one account and student record per child, then the parent's
// children list. The first failure aborts the run; writes already made are kept.
//
// When the session is missing parent data, the attendance mode or any enrollment
// type, Submit does nothing and returns the unchanged session with a nil result.
// On failure the session stays at review with LastError set.
func (s *RegistrationService) Submit(ctx context.Context, id string) (*models.RegistrationResult, *models.RegistrationSession, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if session.Step != models.StepReview {
		return nil, nil, invalidStep(session.Step, "submit")
	}
	if !submissionReady(session) {
		s.metrics.ObserveSubmission(OutcomeSkipped, 0)
		s.logger.Info("registration submit skipped, session incomplete", zap.String("session_id", id))
		return nil, session, nil
	}

	started := s.now()
	if err := s.recheckFiscalCodes(ctx, session); err != nil {
		return nil, nil, s.failSubmission(ctx, session, err, started)
	}

	result, err := s.persist(ctx, session)
	if err != nil {
		return nil, nil, s.failSubmission(ctx, session, err, started)
	}

	if err := s.sessions.Delete(ctx, id); err != nil {
		s.logger.Warn("failed to delete submitted registration session", zap.String("session_id", id), zap.Error(err))
	}
	s.metrics.ObserveSubmission(OutcomeAccepted, s.now().Sub(started))
	s.recordAudit(ctx, session, result)
	if s.notifier != nil {
		if err := s.notifier.RegistrationSubmitted(ctx, *session.Parent, *result); err != nil {
			s.logger.Warn("failed to queue registration notification", zap.String("parent_id", result.ParentID), zap.Error(err))
		}
	}

	s.logger.Info("registration submitted",
		zap.String("session_id", id),
		zap.String("parent_id", result.ParentID),
		zap.Int("children", len(result.StudentIDs)),
	)
	return result, nil, nil
}

func submissionReady(session *models.RegistrationSession) bool {
	if session.Parent == nil || session.AttendanceMode == "" || session.ChildCount == 0 {
		return false
	}
	if len(session.EnrollmentTypes) != session.ChildCount || len(session.Children) != session.ChildCount {
		return false
	}
	for i, t := range session.EnrollmentTypes {
		if t == nil || !session.Children[i].Submitted() {
			return false
		}
	}
	return true
}

func (s *RegistrationService) recheckFiscalCodes(ctx context.Context, session *models.RegistrationSession) error {
	for i, child := range session.Children {
		if j := duplicateFiscalCode(session.Children[:i], child.FiscalCode); j >= 0 {
			return duplicateInSession(session, i, j)
		}
	}
	for i, child := range session.Children {
		if !s.uniqueness.StudentFiscalCodeAvailable(ctx, child.FiscalCode) {
			msg := fmt.Sprintf("fiscal code of child %d (%s) is already registered", i+1, childName(session, i))
			return appErrors.WithDetails(appErrors.ErrDuplicateFiscalCode, msg, map[string]string{
				childKey(i, "fiscal_code"): msg,
			})
		}
	}
	return nil
}

func (s *RegistrationService) persist(ctx context.Context, session *models.RegistrationSession) (*models.RegistrationResult, error) {
	parent := session.Parent
	email := normalizeEmail(parent.Email)
	now := s.now().UTC()

	cred, err := s.accounts.CreateAccount(ctx, email, parent.Password)
	if err != nil {
		return nil, fmt.Errorf("create parent account: %w", err)
	}

	profile := models.ParentProfile{
		ID:         cred.UID,
		FirstName:  parent.FirstName,
		LastName:   parent.LastName,
		FiscalCode: parent.FiscalCode,
		Phone:      parent.Phone,
		Email:      email,
		Address:    parent.Address,
		City:       parent.City,
		PostalCode: parent.PostalCode,
		CreatedAt:  now,
	}
	if err := s.docs.Set(ctx, models.CollectionUsers, cred.UID, profile.ToDocument()); err != nil {
		return nil, fmt.Errorf("write parent profile: %w", err)
	}

	parentID, err := s.resolveParentID(ctx, email, cred.UID)
	if err != nil {
		return nil, err
	}

	result := &models.RegistrationResult{
		ParentID:    parentID,
		StudentIDs:  make([]string, 0, session.ChildCount),
		Children:    make([]models.ChildSummary, 0, session.ChildCount),
		RedirectURL: s.config.ApprovalRedirect,
	}

	for i, child := range session.Children {
		code := validation.NormalizeFiscalCode(child.FiscalCode)
		loginEmail := SyntheticEmail(code, s.config.SyntheticEmailDomain)

		childCred, err := s.accounts.CreateAccount(ctx, loginEmail, uuid.NewString())
		if err != nil {
			return nil, fmt.Errorf("create account for child %d: %w", i+1, err)
		}
		if err := s.accounts.SignOut(ctx, childCred.UID); err != nil {
			return nil, fmt.Errorf("sign out child %d: %w", i+1, err)
		}

		name := childName(session, i)
		record := models.StudentRecord{
			FirstName:      child.FirstName,
			LastName:       child.LastName,
			DisplayName:    name,
			FiscalCode:     code,
			BirthDate:      child.BirthDate,
			Gender:         child.Gender,
			Disability:     child.Disability,
			Grade:          child.Grade,
			PreviousClass:  child.PreviousClass,
			Phone:          parent.Phone,
			ContactEmail:   email,
			Address:        parent.Address,
			City:           parent.City,
			PostalCode:     parent.PostalCode,
			AttendanceMode: session.AttendanceMode,
			EnrollmentType: session.EnrollmentTypeAt(i),
			TimeSlots:      session.TimeSlots,
			AccountStatus:  models.AccountStatusPendingApproval,
			Email:          loginEmail,
			AccountID:      childCred.UID,
			ParentID:       parentID,
			CreatedAt:      now,
		}
		studentID, err := s.docs.Add(ctx, models.CollectionStudents, record.ToDocument())
		if err != nil {
			return nil, fmt.Errorf("write student record %d: %w", i+1, err)
		}

		result.StudentIDs = append(result.StudentIDs, studentID)
		result.Children = append(result.Children, models.ChildSummary{Name: name, FiscalCode: code, Email: loginEmail})
	}

	if err := s.docs.Update(ctx, models.CollectionUsers, parentID, models.ChildrenPatch(result.Children)); err != nil {
		return nil, fmt.Errorf("patch parent children: %w", err)
	}
	return result, nil
}

// resolveParentID reads the parent profile back by email. The account id is
// used when the lookup itself fails; a lookup that finds nothing aborts.
func (s *RegistrationService) resolveParentID(ctx context.Context, email, uid string) (string, error) {
	docs, err := s.docs.Query(ctx, models.CollectionUsers, models.Eq("email", email))
	if err != nil {
		s.logger.Warn("parent profile lookup failed, using account id", zap.String("uid", uid), zap.Error(err))
		return uid, nil
	}
	for _, doc := range docs {
		if doc.ID == uid {
			return doc.ID, nil
		}
	}
	if len(docs) == 0 {
		return "", fmt.Errorf("parent profile %s not readable after write", uid)
	}
	s.logger.Warn("parent profile lookup returned a different document", zap.String("uid", uid), zap.String("found", docs[0].ID))
	return docs[0].ID, nil
}

func (s *RegistrationService) failSubmission(ctx context.Context, session *models.RegistrationSession, cause error, started time.Time) error {
	var returned *appErrors.Error
	var message string
	if errors.As(cause, &returned) && returned.Status < http.StatusInternalServerError {
		message = returned.Message
	} else {
		message = MapAccountError(cause)
		returned = appErrors.Wrap(cause, appErrors.ErrSubmissionFailed.Code, appErrors.ErrSubmissionFailed.Status, message)
	}

	session.Step = models.StepReview
	session.LastError = message
	if err := s.save(ctx, session); err != nil {
		s.logger.Error("failed to record submission error on session", zap.String("session_id", session.ID), zap.Error(err))
	}

	s.metrics.ObserveSubmission(OutcomeFailed, s.now().Sub(started))
	s.logger.Warn("registration submission failed",
		zap.String("session_id", session.ID),
		zap.String("message", message),
		zap.Error(cause),
	)
	return returned
}

func (s *RegistrationService) recordAudit(ctx context.Context, session *models.RegistrationSession, result *models.RegistrationResult) {
	entry := models.AuditLog{
		UserID:     result.ParentID,
		Action:     models.AuditActionRegistrationSubmit,
		Resource:   "registration",
		ResourceID: session.ID,
		Status:     http.StatusCreated,
		CreatedAt:  s.now().UTC(),
	}
	if _, err := s.docs.Add(ctx, models.CollectionAuditLogs, entry.ToDocument()); err != nil {
		s.logger.Warn("failed to record registration audit log", zap.String("session_id", session.ID), zap.Error(err))
	}
}
