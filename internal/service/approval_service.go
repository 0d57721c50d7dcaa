package service

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/dto"
	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/export"
)

type decisionNotifier interface {
	StudentDecided(ctx context.Context, student models.StudentRecord, reason string) error
}

var pendingExportHeaders = []string{"id", "fiscal_code", "first_name", "last_name", "grade", "enrollment_type", "attendance_mode", "time_slots", "contact_email", "phone", "parent_id", "created_at"}

// ApprovalService lets the school office review students registered through the wizard.
type ApprovalService struct {
	docs      documentStore
	notifier  decisionNotifier
	metrics   *MetricsService
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewApprovalService constructs an ApprovalService. notifier and metrics may be nil.
func NewApprovalService(docs documentStore, notifier decisionNotifier, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *ApprovalService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &ApprovalService{
		docs:      docs,
		notifier:  notifier,
		metrics:   metrics,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
		now:       time.Now,
	}
}

// ListPending returns one page of students awaiting approval, oldest first.
func (s *ApprovalService) ListPending(ctx context.Context, query dto.PendingStudentsQuery) ([]models.StudentRecord, *models.Pagination, error) {
	students, err := s.pending(ctx)
	if err != nil {
		return nil, nil, err
	}

	page, size := query.Page, query.PageSize
	if page <= 0 {
		page = 1
	}
	if size <= 0 || size > 100 {
		size = 20
	}
	start := (page - 1) * size
	if start > len(students) {
		start = len(students)
	}
	end := start + size
	if end > len(students) {
		end = len(students)
	}

	return students[start:end], &models.Pagination{Page: page, PageSize: size, TotalCount: len(students)}, nil
}

// ExportPendingCSV renders every pending student as CSV.
func (s *ApprovalService) ExportPendingCSV(ctx context.Context) ([]byte, error) {
	data, err := s.pendingDataset(ctx)
	if err != nil {
		return nil, err
	}
	out, err := s.csv.Render(data)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return out, nil
}

// ExportPendingPDF renders every pending student as a printable PDF table.
func (s *ApprovalService) ExportPendingPDF(ctx context.Context) ([]byte, error) {
	data, err := s.pendingDataset(ctx)
	if err != nil {
		return nil, err
	}
	title := "Students pending approval - " + s.now().UTC().Format("02/01/2006")
	out, err := s.pdf.Render(data, title)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return out, nil
}

func (s *ApprovalService) pendingDataset(ctx context.Context) (export.Dataset, error) {
	students, err := s.pending(ctx)
	if err != nil {
		return export.Dataset{}, err
	}
	data := export.Dataset{Headers: pendingExportHeaders}
	for _, st := range students {
		slots := make([]string, len(st.TimeSlots))
		for i, slot := range st.TimeSlots {
			slots[i] = string(slot)
		}
		data.Rows = append(data.Rows, map[string]string{
			"id":              st.ID,
			"fiscal_code":     st.FiscalCode,
			"first_name":      st.FirstName,
			"last_name":       st.LastName,
			"grade":           st.Grade,
			"enrollment_type": string(st.EnrollmentType),
			"attendance_mode": string(st.AttendanceMode),
			"time_slots":      strings.Join(slots, " "),
			"contact_email":   st.ContactEmail,
			"phone":           st.Phone,
			"parent_id":       st.ParentID,
			"created_at":      formatTime(st.CreatedAt),
		})
	}
	return data, nil
}

// Approve activates a pending student.
func (s *ApprovalService) Approve(ctx context.Context, actorID, studentID string) (*models.StudentRecord, error) {
	return s.decide(ctx, actorID, studentID, models.AccountStatusActive, "")
}

// Reject marks a pending student as rejected with a reason for the parent.
func (s *ApprovalService) Reject(ctx context.Context, actorID, studentID string, req dto.RejectStudentRequest) (*models.StudentRecord, error) {
	req.Reason = strings.TrimSpace(req.Reason)
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a rejection reason is required")
	}
	return s.decide(ctx, actorID, studentID, models.AccountStatusRejected, req.Reason)
}

func (s *ApprovalService) decide(ctx context.Context, actorID, studentID string, status models.AccountStatus, reason string) (*models.StudentRecord, error) {
	doc, err := s.docs.Get(ctx, models.CollectionStudents, studentID)
	if err != nil {
		if errors.Is(err, repository.ErrDocumentNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}

	student := models.StudentFromDocument(*doc)
	if student.AccountStatus != models.AccountStatusPendingApproval {
		return nil, appErrors.Clone(appErrors.ErrConflict, "student is not pending approval")
	}

	now := s.now().UTC()
	patch := map[string]interface{}{
		"accountStatus": string(status),
		"reviewedBy":    actorID,
		"reviewedAt":    now,
	}
	if reason != "" {
		patch["rejectionReason"] = reason
	}
	if err := s.docs.Update(ctx, models.CollectionStudents, studentID, patch); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update student")
	}
	student.AccountStatus = status

	s.metrics.RecordApproval(string(status))
	if s.notifier != nil {
		if err := s.notifier.StudentDecided(ctx, student, reason); err != nil {
			s.logger.Warn("failed to queue decision notification", zap.String("student_id", studentID), zap.Error(err))
		}
	}

	s.logger.Info("student reviewed", zap.String("student_id", studentID), zap.String("status", string(status)), zap.String("actor", actorID))
	return &student, nil
}

func (s *ApprovalService) pending(ctx context.Context) ([]models.StudentRecord, error) {
	docs, err := s.docs.Query(ctx, models.CollectionStudents, models.Eq("accountStatus", string(models.AccountStatusPendingApproval)))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending students")
	}
	students := make([]models.StudentRecord, 0, len(docs))
	for _, doc := range docs {
		students = append(students, models.StudentFromDocument(doc))
	}
	sort.SliceStable(students, func(i, j int) bool {
		return students[i].CreatedAt.Before(students[j].CreatedAt)
	})
	return students, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
