package models

import "time"

// Collections used by the registration flow.
const (
	CollectionUsers     = "users"
	CollectionStudents  = "students"
	CollectionAuditLogs = "audit_logs"
)

// Document is a schemaless record held by the document store.
type Document struct {
	ID         string                 `json:"id"`
	Collection string                 `json:"collection"`
	Data       map[string]interface{} `json:"data"`
	CreatedAt  time.Time              `json:"created_at"`
	UpdatedAt  time.Time              `json:"updated_at"`
}

// String returns the string value of field, or "".
func (d Document) String(field string) string {
	if d.Data == nil {
		return ""
	}
	if v, ok := d.Data[field].(string); ok {
		return v
	}
	return ""
}

// Filter is an equality predicate on a top-level document field.
type Filter struct {
	Field string
	Value interface{}
}

// Eq builds an equality filter.
func Eq(field string, value interface{}) Filter {
	return Filter{Field: field, Value: value}
}
