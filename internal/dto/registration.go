package dto

import (
	"time"

	"github.com/noah-isme/sma-registration-api/internal/models"
)

// AttendanceModeRequest captures POST /registrations/:id/attendance-mode payload.
type AttendanceModeRequest struct {
	Mode models.AttendanceMode `json:"mode"`
}

// TermsRequest captures POST /registrations/:id/terms payload.
type TermsRequest struct {
	Accepted bool `json:"accepted"`
}

// ChildrenCountRequest captures POST /registrations/:id/children-count payload.
type ChildrenCountRequest struct {
	Count int `json:"count"`
}

// StudentNamesRequest captures POST /registrations/:id/student-names payload.
type StudentNamesRequest struct {
	Names []string `json:"names"`
}

// EnrollmentTypeRequest captures POST /registrations/:id/enrollment-type payload.
type EnrollmentTypeRequest struct {
	Type models.EnrollmentType `json:"type"`
}

// TimeSlotsRequest captures POST /registrations/:id/time-slots payload.
type TimeSlotsRequest struct {
	Slots []models.TimeSlot `json:"slots"`
}

// EditRequest captures POST /registrations/:id/edit payload.
type EditRequest struct {
	Section    models.EditSection `json:"section"`
	ChildIndex int                `json:"child_index"`
}

// ParentView is the parent data echoed back to the client. Passwords are omitted.
type ParentView struct {
	FirstName  string `json:"first_name"`
	LastName   string `json:"last_name"`
	FiscalCode string `json:"fiscal_code,omitempty"`
	Phone      string `json:"phone"`
	Email      string `json:"email"`
	Address    string `json:"address"`
	City       string `json:"city"`
	PostalCode string `json:"postal_code"`
}

// RegistrationView is the client-facing state of a wizard session.
type RegistrationView struct {
	ID               string                   `json:"id"`
	Step             models.RegistrationStep  `json:"step"`
	AttendanceMode   models.AttendanceMode    `json:"attendance_mode,omitempty"`
	TermsAccepted    bool                     `json:"terms_accepted"`
	TimeSlots        []models.TimeSlot        `json:"time_slots"`
	ChildCount       int                      `json:"child_count"`
	StudentNames     []string                 `json:"student_names"`
	EnrollmentTypes  []*models.EnrollmentType `json:"enrollment_types"`
	Children         []models.ChildFormData   `json:"children"`
	Parent           *ParentView              `json:"parent,omitempty"`
	EnrollmentCursor int                      `json:"enrollment_cursor"`
	StudentCursor    int                      `json:"student_cursor"`
	NeedsTimeSlots   bool                     `json:"needs_time_slots"`
	LastError        string                   `json:"last_error,omitempty"`
	ExpiresAt        time.Time                `json:"expires_at"`
}

// NewRegistrationView maps a session to its view.
func NewRegistrationView(s *models.RegistrationSession) RegistrationView {
	view := RegistrationView{
		ID:               s.ID,
		Step:             s.Step,
		AttendanceMode:   s.AttendanceMode,
		TermsAccepted:    s.TermsAccepted,
		TimeSlots:        emptyIfNil(s.TimeSlots),
		ChildCount:       s.ChildCount,
		StudentNames:     emptyIfNil(s.StudentNames),
		EnrollmentTypes:  emptyIfNil(s.EnrollmentTypes),
		Children:         emptyIfNil(s.Children),
		EnrollmentCursor: s.EnrollmentCursor,
		StudentCursor:    s.StudentCursor,
		NeedsTimeSlots:   s.NeedsTimeSlots(),
		LastError:        s.LastError,
		ExpiresAt:        s.ExpiresAt,
	}
	if p := s.Parent; p != nil {
		view.Parent = &ParentView{
			FirstName:  p.FirstName,
			LastName:   p.LastName,
			FiscalCode: p.FiscalCode,
			Phone:      p.Phone,
			Email:      p.Email,
			Address:    p.Address,
			City:       p.City,
			PostalCode: p.PostalCode,
		}
	}
	return view
}

// SubmitResponse is returned by POST /registrations/:id/submit. Exactly one of
// Result and Registration is set: Result on success, Registration when the
// session was not ready and nothing was written.
type SubmitResponse struct {
	Submitted    bool                       `json:"submitted"`
	Result       *models.RegistrationResult `json:"result,omitempty"`
	Registration *RegistrationView          `json:"registration,omitempty"`
}

// IDTokenRequest captures POST /auth/token payload.
type IDTokenRequest struct {
	IDToken string `json:"id_token"`
}

func emptyIfNil[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
