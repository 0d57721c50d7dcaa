package models

import "time"

// AccountStatus tracks the approval lifecycle of a student record.
type AccountStatus string

const (
	AccountStatusPendingApproval AccountStatus = "pending_approval"
	AccountStatusActive          AccountStatus = "active"
	AccountStatusRejected        AccountStatus = "rejected"
)

// StudentRecord is the document persisted for each registered child.
type StudentRecord struct {
	ID             string         `json:"id"`
	FirstName      string         `json:"first_name"`
	LastName       string         `json:"last_name"`
	DisplayName    string         `json:"display_name"`
	FiscalCode     string         `json:"fiscal_code"`
	BirthDate      BirthDate      `json:"birth_date"`
	Gender         string         `json:"gender"`
	Disability     bool           `json:"disability"`
	Grade          string         `json:"grade"`
	PreviousClass  string         `json:"previous_class,omitempty"`
	Phone          string         `json:"phone"`
	ContactEmail   string         `json:"contact_email"`
	Address        string         `json:"address"`
	City           string         `json:"city"`
	PostalCode     string         `json:"postal_code"`
	AttendanceMode AttendanceMode `json:"attendance_mode"`
	EnrollmentType EnrollmentType `json:"enrollment_type"`
	TimeSlots      []TimeSlot     `json:"time_slots"`
	AccountStatus  AccountStatus  `json:"account_status"`
	Email          string         `json:"email"`
	AccountID      string         `json:"account_id"`
	ParentID       string         `json:"parent_id"`
	CreatedAt      time.Time      `json:"created_at"`
}

// ToDocument flattens the record into document store fields.
func (s StudentRecord) ToDocument() map[string]interface{} {
	slots := make([]interface{}, 0, len(s.TimeSlots))
	for _, slot := range s.TimeSlots {
		slots = append(slots, string(slot))
	}
	doc := map[string]interface{}{
		"role":           string(RoleStudent),
		"firstName":      s.FirstName,
		"lastName":       s.LastName,
		"displayName":    s.DisplayName,
		"fiscalCode":     s.FiscalCode,
		"birthDate":      map[string]interface{}{"day": s.BirthDate.Day, "month": s.BirthDate.Month, "year": s.BirthDate.Year},
		"gender":         s.Gender,
		"disability":     s.Disability,
		"grade":          s.Grade,
		"phone":          s.Phone,
		"contactEmail":   s.ContactEmail,
		"address":        s.Address,
		"city":           s.City,
		"postalCode":     s.PostalCode,
		"attendanceMode": string(s.AttendanceMode),
		"enrollmentType": string(s.EnrollmentType),
		"timeSlots":      slots,
		"accountStatus":  string(s.AccountStatus),
		"email":          s.Email,
		"accountId":      s.AccountID,
		"parentId":       s.ParentID,
		"createdAt":      s.CreatedAt,
	}
	if s.EnrollmentType == EnrollmentRenewal {
		doc["previousClass"] = s.PreviousClass
	}
	return doc
}

// StudentFromDocument reads the fields the approval portal needs back out of a document.
func StudentFromDocument(d Document) StudentRecord {
	rec := StudentRecord{
		ID:             d.ID,
		FirstName:      d.String("firstName"),
		LastName:       d.String("lastName"),
		DisplayName:    d.String("displayName"),
		FiscalCode:     d.String("fiscalCode"),
		Gender:         d.String("gender"),
		Grade:          d.String("grade"),
		PreviousClass:  d.String("previousClass"),
		Phone:          d.String("phone"),
		ContactEmail:   d.String("contactEmail"),
		Address:        d.String("address"),
		City:           d.String("city"),
		PostalCode:     d.String("postalCode"),
		AttendanceMode: AttendanceMode(d.String("attendanceMode")),
		EnrollmentType: EnrollmentType(d.String("enrollmentType")),
		AccountStatus:  AccountStatus(d.String("accountStatus")),
		Email:          d.String("email"),
		AccountID:      d.String("accountId"),
		ParentID:       d.String("parentId"),
		CreatedAt:      d.CreatedAt,
	}
	if v, ok := d.Data["disability"].(bool); ok {
		rec.Disability = v
	}
	if bd, ok := d.Data["birthDate"].(map[string]interface{}); ok {
		rec.BirthDate = BirthDate{Day: asInt(bd["day"]), Month: asInt(bd["month"]), Year: asInt(bd["year"])}
	}
	if slots, ok := d.Data["timeSlots"].([]interface{}); ok {
		for _, slot := range slots {
			if s, ok := slot.(string); ok {
				rec.TimeSlots = append(rec.TimeSlots, TimeSlot(s))
			}
		}
	}
	return rec
}

// numbers decode as float64 from JSON and int64 from Firestore.
func asInt(v interface{}) int {
	switch n := v.(type) {
	case int:
		return n
	case int64:
		return int(n)
	case float64:
		return int(n)
	default:
		return 0
	}
}
