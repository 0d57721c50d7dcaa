package dto

import "github.com/noah-isme/sma-registration-api/internal/models"

// PendingStudentsQuery pages through students awaiting approval.
type PendingStudentsQuery struct {
	Page     int
	PageSize int
}

// RejectStudentRequest captures POST /admin/students/:id/reject payload.
type RejectStudentRequest struct {
	Reason string `json:"reason" validate:"required,max=500"`
}

// StudentDecisionResponse is returned after an approval decision.
type StudentDecisionResponse struct {
	ID            string               `json:"id"`
	AccountStatus models.AccountStatus `json:"account_status"`
}
