package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/pkg/jobs"
	"github.com/noah-isme/sma-registration-api/pkg/mailer"
)

// Notification job types.
const (
	JobRegistrationSubmitted = "registration_submitted"
	JobStudentDecision       = "student_decision"
)

type jobEnqueuer interface {
	Enqueue(job jobs.Job) error
}

type registrationSubmittedPayload struct {
	ParentName  string
	ParentEmail string
	Children    []models.ChildSummary
}

type studentDecisionPayload struct {
	ParentID    string
	StudentName string
	Status      models.AccountStatus
	Reason      string
}

// NotificationService queues parent emails and delivers them from the job workers.
// A nil *NotificationService accepts every call and sends nothing.
type NotificationService struct {
	queue  jobEnqueuer
	mailer mailer.Mailer
	docs   documentStore
	logger *zap.Logger
}

// NewNotificationService constructs the notifier. Call Register to attach its handlers.
func NewNotificationService(queue jobEnqueuer, m mailer.Mailer, docs documentStore, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NotificationService{queue: queue, mailer: m, docs: docs, logger: logger}
}

// Register binds the notification job handlers to router.
func (n *NotificationService) Register(router *jobs.Router) {
	router.Handle(JobRegistrationSubmitted, n.handleRegistrationSubmitted)
	router.Handle(JobStudentDecision, n.handleStudentDecision)
}

// RegistrationSubmitted queues the "registration received" email to the parent.
func (n *NotificationService) RegistrationSubmitted(_ context.Context, parent models.ParentFormData, result models.RegistrationResult) error {
	if n == nil {
		return nil
	}
	return n.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: JobRegistrationSubmitted,
		Payload: registrationSubmittedPayload{
			ParentName:  strings.TrimSpace(parent.FirstName + " " + parent.LastName),
			ParentEmail: parent.Email,
			Children:    result.Children,
		},
	})
}

// StudentDecided queues the approval or rejection email for a student's parent.
func (n *NotificationService) StudentDecided(_ context.Context, student models.StudentRecord, reason string) error {
	if n == nil {
		return nil
	}
	name := student.DisplayName
	if name == "" {
		name = strings.TrimSpace(student.FirstName + " " + student.LastName)
	}
	return n.queue.Enqueue(jobs.Job{
		ID:   uuid.NewString(),
		Type: JobStudentDecision,
		Payload: studentDecisionPayload{
			ParentID:    student.ParentID,
			StudentName: name,
			Status:      student.AccountStatus,
			Reason:      reason,
		},
	})
}

func (n *NotificationService) handleRegistrationSubmitted(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(registrationSubmittedPayload)
	if !ok {
		n.logger.Error("unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	var body strings.Builder
	fmt.Fprintf(&body, "Dear %s,\n\nwe have received your registration for:\n", payload.ParentName)
	for _, child := range payload.Children {
		fmt.Fprintf(&body, "- %s (%s), login %s\n", child.Name, child.FiscalCode, child.Email)
	}
	body.WriteString("\nThe school office will review the request. You will receive an email once each student is approved.\n")

	return n.mailer.Send(ctx, mailer.Message{
		ToName:  payload.ParentName,
		ToEmail: payload.ParentEmail,
		Subject: "Registration received",
		Text:    body.String(),
	})
}

func (n *NotificationService) handleStudentDecision(ctx context.Context, job jobs.Job) error {
	payload, ok := job.Payload.(studentDecisionPayload)
	if !ok {
		n.logger.Error("unexpected payload", zap.String("job_id", job.ID), zap.String("type", job.Type))
		return nil
	}

	parent, err := n.docs.Get(ctx, models.CollectionUsers, payload.ParentID)
	if err != nil {
		return fmt.Errorf("load parent %s: %w", payload.ParentID, err)
	}
	email := parent.String("email")
	if email == "" {
		n.logger.Warn("parent profile has no email", zap.String("parent_id", payload.ParentID))
		return nil
	}
	parentName := strings.TrimSpace(parent.String("firstName") + " " + parent.String("lastName"))

	msg := mailer.Message{ToName: parentName, ToEmail: email}
	switch payload.Status {
	case models.AccountStatusActive:
		msg.Subject = "Registration approved"
		msg.Text = fmt.Sprintf("Dear %s,\n\nthe registration of %s has been approved.\n", parentName, payload.StudentName)
	case models.AccountStatusRejected:
		msg.Subject = "Registration rejected"
		msg.Text = fmt.Sprintf("Dear %s,\n\nthe registration of %s has been rejected.\nReason: %s\n", parentName, payload.StudentName, payload.Reason)
	default:
		return nil
	}
	return n.mailer.Send(ctx, msg)
}
