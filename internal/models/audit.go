package models

import "time"

// AuditAction constants represent actions to be logged.
const (
	AuditActionLogin              = "LOGIN"
	AuditActionStudentApprove     = "STUDENT_APPROVE"
	AuditActionStudentReject      = "STUDENT_REJECT"
	AuditActionRegistrationSubmit = "REGISTRATION_SUBMIT"
)

// AuditLog represents an audit trail record stored in the audit_logs collection.
type AuditLog struct {
	UserID     string
	Action     string
	Resource   string
	ResourceID string
	Status     int
	IPAddress  string
	UserAgent  string
	CreatedAt  time.Time
}

// ToDocument flattens the entry into document store fields.
func (a AuditLog) ToDocument() map[string]interface{} {
	return map[string]interface{}{
		"userId":     a.UserID,
		"action":     a.Action,
		"resource":   a.Resource,
		"resourceId": a.ResourceID,
		"status":     a.Status,
		"ipAddress":  a.IPAddress,
		"userAgent":  a.UserAgent,
		"createdAt":  a.CreatedAt,
	}
}
