package models

import "time"

// RegistrationStep identifies a screen of the enrollment wizard.
type RegistrationStep string

// Wizard steps in forward order.
const (
	StepAttendanceMode RegistrationStep = "attendance_mode"
	StepInfo           RegistrationStep = "info"
	StepTerms          RegistrationStep = "terms"
	StepChildrenCount  RegistrationStep = "children_count"
	StepStudentNames   RegistrationStep = "student_names"
	StepParentForm     RegistrationStep = "parent_form"
	StepEnrollmentType RegistrationStep = "enrollment_type"
	StepStudentsForm   RegistrationStep = "students_form"
	StepTurnoSelection RegistrationStep = "turno_selection"
	StepReview         RegistrationStep = "review"
)

// AttendanceMode is how the children will attend lessons.
type AttendanceMode string

const (
	AttendanceInPresence AttendanceMode = "in_presence"
	AttendanceOnline     AttendanceMode = "online"
)

// Valid reports whether m is a known attendance mode.
func (m AttendanceMode) Valid() bool {
	return m == AttendanceInPresence || m == AttendanceOnline
}

// EnrollmentType distinguishes returning students from new ones.
type EnrollmentType string

const (
	EnrollmentRenewal EnrollmentType = "renewal"
	EnrollmentNew     EnrollmentType = "new_enrollment"
)

// Valid reports whether t is a known enrollment type.
func (t EnrollmentType) Valid() bool {
	return t == EnrollmentRenewal || t == EnrollmentNew
}

// TimeSlot is an in-presence attendance shift ("turno").
type TimeSlot string

const (
	TimeSlotMorning   TimeSlot = "morning"
	TimeSlotAfternoon TimeSlot = "afternoon"
	TimeSlotEvening   TimeSlot = "evening"
	TimeSlotWeekend   TimeSlot = "weekend"
)

// TimeSlotValues lists every selectable time slot.
func TimeSlotValues() []string {
	return []string{string(TimeSlotMorning), string(TimeSlotAfternoon), string(TimeSlotEvening), string(TimeSlotWeekend)}
}

// GradeLabels lists the Italian school grades a child can be enrolled in.
func GradeLabels() []string {
	return []string{
		"primaria_1", "primaria_2", "primaria_3", "primaria_4", "primaria_5",
		"secondaria_primo_1", "secondaria_primo_2", "secondaria_primo_3",
		"secondaria_secondo_1", "secondaria_secondo_2", "secondaria_secondo_3", "secondaria_secondo_4", "secondaria_secondo_5",
	}
}

// BirthDate is entered as separate day/month/year fields.
type BirthDate struct {
	Day   int `json:"day" validate:"required,min=1,max=31"`
	Month int `json:"month" validate:"required,min=1,max=12"`
	Year  int `json:"year" validate:"required,min=1900"`
}

// Time returns the date at midnight UTC and whether it is a real calendar date.
func (b BirthDate) Time() (time.Time, bool) {
	t := time.Date(b.Year, time.Month(b.Month), b.Day, 0, 0, 0, 0, time.UTC)
	if t.Year() != b.Year || int(t.Month()) != b.Month || t.Day() != b.Day {
		return time.Time{}, false
	}
	return t, true
}

// ParentFormData is the data captured on the parent_form step.
type ParentFormData struct {
	FirstName            string `json:"first_name" validate:"required"`
	LastName             string `json:"last_name" validate:"required"`
	FiscalCode           string `json:"fiscal_code" validate:"omitempty,fiscalcode"`
	Phone                string `json:"phone" validate:"required,phone"`
	Email                string `json:"email" validate:"required,email"`
	Password             string `json:"password" validate:"required"`
	PasswordConfirmation string `json:"password_confirmation" validate:"required,eqfield=Password"`
	Address              string `json:"address" validate:"required"`
	City                 string `json:"city" validate:"required"`
	PostalCode           string `json:"postal_code" validate:"required,postalcode"`
}

// ChildFormData is the data captured on the students_form step for one child.
type ChildFormData struct {
	FirstName     string    `json:"first_name" validate:"required"`
	LastName      string    `json:"last_name" validate:"required"`
	FiscalCode    string    `json:"fiscal_code" validate:"required,fiscalcode"`
	BirthDate     BirthDate `json:"birth_date"`
	Gender        string    `json:"gender" validate:"required,oneof=M F"`
	Disability    bool      `json:"disability"`
	Grade         string    `json:"grade" validate:"required,gradelabel"`
	PreviousClass string    `json:"previous_class,omitempty"`
}

// Submitted reports whether the child form has been filled in at least once.
func (c ChildFormData) Submitted() bool {
	return c.FiscalCode != ""
}

// RegistrationSession is the server-held state of one wizard run.
type RegistrationSession struct {
	ID               string            `json:"id"`
	Step             RegistrationStep  `json:"step"`
	AttendanceMode   AttendanceMode    `json:"attendance_mode,omitempty"`
	TermsAccepted    bool              `json:"terms_accepted"`
	TimeSlots        []TimeSlot        `json:"time_slots,omitempty"`
	ChildCount       int               `json:"child_count"`
	StudentNames     []string          `json:"student_names,omitempty"`
	EnrollmentTypes  []*EnrollmentType `json:"enrollment_types,omitempty"`
	Children         []ChildFormData   `json:"children,omitempty"`
	Parent           *ParentFormData   `json:"parent,omitempty"`
	EnrollmentCursor int               `json:"enrollment_cursor"`
	StudentCursor    int               `json:"student_cursor"`
	LastError        string            `json:"last_error,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
	ExpiresAt        time.Time         `json:"expires_at"`
}

// LastChildIndex is the index of the final child slot.
func (s *RegistrationSession) LastChildIndex() int {
	return s.ChildCount - 1
}

// AllNewEnrollments reports whether every child has been marked new_enrollment.
func (s *RegistrationSession) AllNewEnrollments() bool {
	if len(s.EnrollmentTypes) == 0 {
		return false
	}
	for _, t := range s.EnrollmentTypes {
		if t == nil || *t != EnrollmentNew {
			return false
		}
	}
	return true
}

// NeedsTimeSlots reports whether the turno_selection step belongs to this run.
func (s *RegistrationSession) NeedsTimeSlots() bool {
	return s.AttendanceMode == AttendanceInPresence && s.AllNewEnrollments()
}

// EnrollmentTypeAt returns the enrollment type of child i, or "" when unset.
func (s *RegistrationSession) EnrollmentTypeAt(i int) EnrollmentType {
	if i < 0 || i >= len(s.EnrollmentTypes) || s.EnrollmentTypes[i] == nil {
		return ""
	}
	return *s.EnrollmentTypes[i]
}

// RegistrationResult is returned once a submission has been persisted.
type RegistrationResult struct {
	ParentID    string         `json:"parent_id"`
	StudentIDs  []string       `json:"student_ids"`
	Children    []ChildSummary `json:"children"`
	RedirectURL string         `json:"redirect_url"`
}

// EditSection names a review section that can be reopened for editing.
type EditSection string

const (
	EditSectionParent     EditSection = "parent"
	EditSectionChild      EditSection = "child"
	EditSectionAttendance EditSection = "attendance"
)
