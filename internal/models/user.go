package models

import "time"

// UserRole is stored on profile documents and carried in access tokens.
type UserRole string

const (
	RoleAdmin   UserRole = "admin"
	RoleTeacher UserRole = "teacher"
	RoleParent  UserRole = "parent"
	RoleStudent UserRole = "student"
)

// Pagination contains pagination metadata returned in list responses.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"page_size"`
	TotalCount int `json:"total_count"`
}

// StaffProfile is the users document of a school office account.
type StaffProfile struct {
	ID        string
	Name      string
	Email     string
	Role      UserRole
	CreatedAt time.Time
}

// ToDocument flattens the profile into document store fields.
func (p StaffProfile) ToDocument() map[string]interface{} {
	return map[string]interface{}{
		"role":      string(p.Role),
		"name":      p.Name,
		"email":     p.Email,
		"createdAt": p.CreatedAt,
	}
}

// IsStaff reports whether the role may use the approval endpoints.
func (r UserRole) IsStaff() bool {
	return r == RoleAdmin || r == RoleTeacher
}
