package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/export"
	"github.com/noah-isme/sma-registration-api/pkg/validation"
)

// RegistrationConfig tunes the wizard rules.
type RegistrationConfig struct {
	MaxChildren          int
	MinPasswordLength    int
	MinStudentAge        int
	SyntheticEmailDomain string
	SessionTTL           time.Duration
	ApprovalRedirect     string
}

type registrationNotifier interface {
	RegistrationSubmitted(ctx context.Context, parent models.ParentFormData, result models.RegistrationResult) error
}

// RegistrationService drives the parent + children enrollment wizard. Sessions
// live in the session store; every operation loads, checks the current step,
// validates, mutates and saves.
type RegistrationService struct {
	sessions   sessionStore
	docs       documentStore
	accounts   accountStore
	uniqueness *UniquenessChecker
	validator  *validation.Validator
	notifier   registrationNotifier
	metrics    *MetricsService
	pdf        *export.PDFExporter
	logger     *zap.Logger
	config     RegistrationConfig
	locks      *keyedLock
	now        func() time.Time
}

// NewRegistrationService constructs the wizard service. notifier and metrics may be nil.
func NewRegistrationService(
	sessions sessionStore,
	docs documentStore,
	accounts accountStore,
	uniqueness *UniquenessChecker,
	validate *validation.Validator,
	notifier registrationNotifier,
	metrics *MetricsService,
	logger *zap.Logger,
	config RegistrationConfig,
) *RegistrationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validation.New(models.GradeLabels(), models.TimeSlotValues())
	}
	if uniqueness == nil {
		uniqueness = NewUniquenessChecker(docs, nil, config.SyntheticEmailDomain, metrics, logger)
	}
	if config.MaxChildren <= 0 {
		config.MaxChildren = 5
	}
	if config.MinPasswordLength <= 0 {
		config.MinPasswordLength = 6
	}
	if config.SessionTTL <= 0 {
		config.SessionTTL = 2 * time.Hour
	}
	if config.ApprovalRedirect == "" {
		config.ApprovalRedirect = "/registration/pending-approval"
	}
	return &RegistrationService{
		sessions:   sessions,
		docs:       docs,
		accounts:   accounts,
		uniqueness: uniqueness,
		validator:  validate,
		notifier:   notifier,
		metrics:    metrics,
		pdf:        export.NewPDFExporter(),
		logger:     logger,
		config:     config,
		locks:      newKeyedLock(),
		now:        time.Now,
	}
}

// Start opens a new wizard session at attendance_mode.
func (s *RegistrationService) Start(ctx context.Context) (*models.RegistrationSession, error) {
	session := &models.RegistrationSession{
		ID:        uuid.NewString(),
		Step:      models.StepAttendanceMode,
		CreatedAt: s.now().UTC(),
	}
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("registration started", zap.String("session_id", session.ID))
	return session, nil
}

// Get returns the current state of a session.
func (s *RegistrationService) Get(ctx context.Context, id string) (*models.RegistrationSession, error) {
	return s.load(ctx, id)
}

// Discard drops a session without submitting it.
func (s *RegistrationService) Discard(ctx context.Context, id string) error {
	release, err := s.acquire(id)
	if err != nil {
		return err
	}
	defer release()

	if _, err := s.load(ctx, id); err != nil {
		return err
	}
	if err := s.sessions.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to discard registration session")
	}
	s.logger.Info("registration discarded", zap.String("session_id", id))
	return nil
}

// SelectAttendanceMode records in-presence or online attendance and shows the info step.
func (s *RegistrationService) SelectAttendanceMode(ctx context.Context, id string, mode models.AttendanceMode) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "select attendance mode", []models.RegistrationStep{models.StepAttendanceMode}, func(session *models.RegistrationSession) error {
		if !mode.Valid() {
			return validationError("invalid attendance mode", map[string]string{
				"attendance_mode": fmt.Sprintf("must be one of %s %s", models.AttendanceInPresence, models.AttendanceOnline),
			})
		}
		session.AttendanceMode = mode
		session.TermsAccepted = false
		if mode != models.AttendanceInPresence {
			session.TimeSlots = nil
		}
		session.Step = models.StepInfo
		return nil
	})
}

// ContinueInfo moves past the informational step.
func (s *RegistrationService) ContinueInfo(ctx context.Context, id string) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "continue", []models.RegistrationStep{models.StepInfo}, func(session *models.RegistrationSession) error {
		session.Step = models.StepTerms
		return nil
	})
}

// AcceptTerms requires explicit acceptance before the children count is asked.
func (s *RegistrationService) AcceptTerms(ctx context.Context, id string, accepted bool) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "accept terms", []models.RegistrationStep{models.StepTerms}, func(session *models.RegistrationSession) error {
		if !accepted {
			return validationError("terms must be accepted", map[string]string{"accepted": "the terms and conditions must be accepted"})
		}
		session.TermsAccepted = true
		session.Step = models.StepChildrenCount
		return nil
	})
}

// SetChildrenCount sizes the per-child slots. Data already entered for the
// first slots is kept.
func (s *RegistrationService) SetChildrenCount(ctx context.Context, id string, count int) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "set children count", []models.RegistrationStep{models.StepChildrenCount}, func(session *models.RegistrationSession) error {
		if count < 1 || count > s.config.MaxChildren {
			return validationError("invalid children count", map[string]string{
				"count": fmt.Sprintf("must be between 1 and %d", s.config.MaxChildren),
			})
		}
		session.ChildCount = count
		session.StudentNames = resizeNames(session.StudentNames, count)
		session.Children = resizeChildren(session.Children, count)
		session.EnrollmentTypes = resizeEnrollmentTypes(session.EnrollmentTypes, count)
		session.EnrollmentCursor = clampCursor(session.EnrollmentCursor, count)
		session.StudentCursor = clampCursor(session.StudentCursor, count)
		session.Step = models.StepStudentNames
		return nil
	})
}

// SetStudentNames stores one display name per child slot.
func (s *RegistrationService) SetStudentNames(ctx context.Context, id string, names []string) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "set student names", []models.RegistrationStep{models.StepStudentNames}, func(session *models.RegistrationSession) error {
		if len(names) != session.ChildCount {
			return validationError("invalid student names", map[string]string{
				"names": fmt.Sprintf("expected %d names", session.ChildCount),
			})
		}
		details := map[string]string{}
		cleaned := make([]string, len(names))
		for i, name := range names {
			cleaned[i] = strings.TrimSpace(name)
			if cleaned[i] == "" {
				details[fmt.Sprintf("names[%d]", i)] = requiredMessage
			}
		}
		if len(details) > 0 {
			return validationError("student names are required", details)
		}
		session.StudentNames = cleaned
		session.Step = models.StepParentForm
		return nil
	})
}

// SubmitParentForm validates the parent data and starts the per-child loop.
func (s *RegistrationService) SubmitParentForm(ctx context.Context, id string, form models.ParentFormData) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "submit parent form", []models.RegistrationStep{models.StepParentForm}, func(session *models.RegistrationSession) error {
		form = normalizeParent(form)
		if details := s.validateParent(form); len(details) > 0 {
			return validationError("parent data is invalid", details)
		}
		if !s.uniqueness.EmailAvailable(ctx, form.Email) {
			return appErrors.WithDetails(appErrors.ErrEmailInUse, "email already registered", map[string]string{
				"parent.email": "this email address is already registered",
			})
		}
		if form.FiscalCode != "" && !s.uniqueness.ParentFiscalCodeAvailable(ctx, form.FiscalCode) {
			return appErrors.WithDetails(appErrors.ErrDuplicateFiscalCode, "fiscal code already registered", map[string]string{
				"parent.fiscal_code": "this fiscal code is already registered",
			})
		}

		session.Parent = &form
		session.EnrollmentTypes = make([]*models.EnrollmentType, session.ChildCount)
		session.EnrollmentCursor = 0
		session.StudentCursor = 0
		session.Step = models.StepEnrollmentType
		return nil
	})
}

// SelectEnrollmentType records renewal or new enrollment for the child at the cursor.
func (s *RegistrationService) SelectEnrollmentType(ctx context.Context, id string, enrollmentType models.EnrollmentType) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "select enrollment type", []models.RegistrationStep{models.StepEnrollmentType}, func(session *models.RegistrationSession) error {
		if !enrollmentType.Valid() {
			return validationError("invalid enrollment type", map[string]string{
				"enrollment_type": fmt.Sprintf("must be one of %s %s", models.EnrollmentRenewal, models.EnrollmentNew),
			})
		}
		idx := session.EnrollmentCursor
		if idx < 0 || idx >= session.ChildCount {
			return appErrors.Clone(appErrors.ErrInvalidStep, "enrollment cursor out of range")
		}
		if len(session.EnrollmentTypes) != session.ChildCount {
			session.EnrollmentTypes = resizeEnrollmentTypes(session.EnrollmentTypes, session.ChildCount)
		}
		t := enrollmentType
		session.EnrollmentTypes[idx] = &t
		session.StudentCursor = idx
		session.Step = models.StepStudentsForm
		return nil
	})
}

// SubmitStudentForm validates the child at the cursor and advances to the next
// child, the time slot step or the review.
func (s *RegistrationService) SubmitStudentForm(ctx context.Context, id string, form models.ChildFormData) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "submit student form", []models.RegistrationStep{models.StepStudentsForm}, func(session *models.RegistrationSession) error {
		idx := session.StudentCursor
		if idx < 0 || idx >= session.ChildCount {
			return appErrors.Clone(appErrors.ErrInvalidStep, "student cursor out of range")
		}
		form = normalizeChild(form)
		if details := s.validateChild(session, idx, form); len(details) > 0 {
			return validationError(fmt.Sprintf("data for child %d is invalid", idx+1), details)
		}
		if j := duplicateFiscalCode(session.Children[:idx], form.FiscalCode); j >= 0 {
			return duplicateInSession(session, idx, j)
		}
		if !s.uniqueness.StudentFiscalCodeAvailable(ctx, form.FiscalCode) {
			return appErrors.WithDetails(appErrors.ErrDuplicateFiscalCode, "fiscal code already registered", map[string]string{
				childKey(idx, "fiscal_code"): "this fiscal code is already registered",
			})
		}

		session.Children[idx] = form
		if idx < session.LastChildIndex() {
			session.EnrollmentCursor = idx + 1
			session.StudentCursor = idx + 1
			session.Step = models.StepEnrollmentType
			return nil
		}
		if session.NeedsTimeSlots() {
			session.Step = models.StepTurnoSelection
			return nil
		}
		session.TimeSlots = nil
		session.Step = models.StepReview
		return nil
	})
}

// SelectTimeSlots stores the chosen attendance shifts.
func (s *RegistrationService) SelectTimeSlots(ctx context.Context, id string, slots []models.TimeSlot) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "select time slots", []models.RegistrationStep{models.StepTurnoSelection}, func(session *models.RegistrationSession) error {
		if len(slots) == 0 {
			return validationError("no time slot selected", map[string]string{"time_slots": "select at least one time slot"})
		}
		seen := make(map[models.TimeSlot]struct{}, len(slots))
		chosen := make([]models.TimeSlot, 0, len(slots))
		details := map[string]string{}
		for i, slot := range slots {
			if err := s.validator.Engine().Var(string(slot), validation.TimeSlotTag); err != nil {
				details[fmt.Sprintf("time_slots[%d]", i)] = "must be a known time slot"
				continue
			}
			if _, dup := seen[slot]; dup {
				continue
			}
			seen[slot] = struct{}{}
			chosen = append(chosen, slot)
		}
		if len(details) > 0 {
			return validationError("invalid time slots", details)
		}
		session.TimeSlots = chosen
		session.Step = models.StepReview
		return nil
	})
}

// Back moves one step backwards. Entered data is never erased.
func (s *RegistrationService) Back(ctx context.Context, id string) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "back", nil, func(session *models.RegistrationSession) error {
		switch session.Step {
		case models.StepInfo:
			session.Step = models.StepAttendanceMode
		case models.StepTerms:
			session.Step = models.StepInfo
		case models.StepChildrenCount:
			session.Step = models.StepTerms
		case models.StepStudentNames:
			session.Step = models.StepChildrenCount
		case models.StepParentForm:
			session.Step = models.StepStudentNames
		case models.StepEnrollmentType:
			if session.EnrollmentCursor <= 0 {
				setCursors(session, 0)
				session.Step = models.StepParentForm
				return nil
			}
			setCursors(session, session.EnrollmentCursor-1)
			session.Step = models.StepStudentsForm
		case models.StepStudentsForm:
			if session.StudentCursor <= 0 {
				setCursors(session, 0)
			} else {
				setCursors(session, session.StudentCursor-1)
			}
			session.Step = models.StepEnrollmentType
		case models.StepTurnoSelection:
			setCursors(session, session.LastChildIndex())
			session.Step = models.StepStudentsForm
		case models.StepReview:
			if session.NeedsTimeSlots() {
				session.Step = models.StepTurnoSelection
				return nil
			}
			setCursors(session, session.LastChildIndex())
			session.Step = models.StepStudentsForm
		default:
			return invalidStep(session.Step, "back")
		}
		return nil
	})
}

// Edit jumps from the review to the step that owns a section. The jump skips the
// forward gates between review and that step.
func (s *RegistrationService) Edit(ctx context.Context, id string, section models.EditSection, childIndex int) (*models.RegistrationSession, error) {
	return s.mutate(ctx, id, "edit", []models.RegistrationStep{models.StepReview}, func(session *models.RegistrationSession) error {
		switch section {
		case models.EditSectionParent:
			session.Step = models.StepParentForm
		case models.EditSectionChild:
			if childIndex < 0 || childIndex >= session.ChildCount {
				return validationError("invalid child index", map[string]string{
					"child_index": fmt.Sprintf("must be between 0 and %d", session.LastChildIndex()),
				})
			}
			setCursors(session, childIndex)
			session.Step = models.StepEnrollmentType
		case models.EditSectionAttendance:
			session.Step = models.StepAttendanceMode
		default:
			return validationError("invalid section", map[string]string{
				"section": fmt.Sprintf("must be one of %s %s %s", models.EditSectionParent, models.EditSectionChild, models.EditSectionAttendance),
			})
		}
		return nil
	})
}

// SummaryPDF renders the collected data of a session as a printable document.
func (s *RegistrationService) SummaryPDF(ctx context.Context, id string) ([]byte, error) {
	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	out, err := s.pdf.RenderDocument(BuildSummaryDocument(session, s.now().UTC()))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render registration summary")
	}
	return out, nil
}

func (s *RegistrationService) mutate(ctx context.Context, id, op string, allowed []models.RegistrationStep, fn func(*models.RegistrationSession) error) (*models.RegistrationSession, error) {
	release, err := s.acquire(id)
	if err != nil {
		return nil, err
	}
	defer release()

	session, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	step := session.Step
	if len(allowed) > 0 && !stepIn(step, allowed) {
		s.metrics.ObserveStep(string(step), OutcomeRejected)
		return nil, invalidStep(step, op)
	}
	if err := fn(session); err != nil {
		s.metrics.ObserveStep(string(step), OutcomeRejected)
		return nil, err
	}

	session.LastError = ""
	if err := s.save(ctx, session); err != nil {
		return nil, err
	}
	s.metrics.ObserveStep(string(step), OutcomeAccepted)
	s.logger.Debug("registration step completed",
		zap.String("session_id", session.ID),
		zap.String("operation", op),
		zap.String("from", string(step)),
		zap.String("to", string(session.Step)),
	)
	return session, nil
}

func (s *RegistrationService) acquire(id string) (func(), error) {
	if !s.locks.tryLock(id) {
		return nil, appErrors.Clone(appErrors.ErrOperationInProgress, "")
	}
	return func() { s.locks.unlock(id) }, nil
}

func (s *RegistrationService) load(ctx context.Context, id string) (*models.RegistrationSession, error) {
	session, err := s.sessions.Get(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "registration session not found or expired")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load registration session")
	}
	if !session.ExpiresAt.IsZero() && !s.now().Before(session.ExpiresAt) {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "registration session not found or expired")
	}
	return session, nil
}

func (s *RegistrationService) save(ctx context.Context, session *models.RegistrationSession) error {
	now := s.now().UTC()
	session.UpdatedAt = now
	session.ExpiresAt = now.Add(s.config.SessionTTL)
	if err := s.sessions.Save(ctx, session); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save registration session")
	}
	return nil
}

func invalidStep(step models.RegistrationStep, op string) error {
	return appErrors.Clone(appErrors.ErrInvalidStep, fmt.Sprintf("%s is not allowed at step %s", op, step))
}

func validationError(message string, details map[string]string) error {
	return appErrors.WithDetails(appErrors.ErrValidation, message, details)
}

func stepIn(step models.RegistrationStep, steps []models.RegistrationStep) bool {
	for _, candidate := range steps {
		if candidate == step {
			return true
		}
	}
	return false
}

func setCursors(session *models.RegistrationSession, idx int) {
	if idx < 0 {
		idx = 0
	}
	session.EnrollmentCursor = idx
	session.StudentCursor = idx
}

func clampCursor(cursor, count int) int {
	if cursor >= count {
		return count - 1
	}
	if cursor < 0 {
		return 0
	}
	return cursor
}

func resizeNames(in []string, n int) []string {
	out := make([]string, n)
	copy(out, in)
	return out
}

func resizeChildren(in []models.ChildFormData, n int) []models.ChildFormData {
	out := make([]models.ChildFormData, n)
	copy(out, in)
	return out
}

func resizeEnrollmentTypes(in []*models.EnrollmentType, n int) []*models.EnrollmentType {
	out := make([]*models.EnrollmentType, n)
	copy(out, in)
	return out
}

// keyedLock is a non-blocking per-key mutex guarding one operation per session.
type keyedLock struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func newKeyedLock() *keyedLock {
	return &keyedLock{held: make(map[string]struct{})}
}

func (l *keyedLock) tryLock(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, busy := l.held[key]; busy {
		return false
	}
	l.held[key] = struct{}{}
	return true
}

func (l *keyedLock) unlock(key string) {
	l.mu.Lock()
	delete(l.held, key)
	l.mu.Unlock()
}
