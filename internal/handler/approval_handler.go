package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-registration-api/internal/dto"
	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/pkg/response"
)

type approvalService interface {
	ListPending(ctx context.Context, query dto.PendingStudentsQuery) ([]models.StudentRecord, *models.Pagination, error)
	ExportPendingCSV(ctx context.Context) ([]byte, error)
	ExportPendingPDF(ctx context.Context) ([]byte, error)
	Approve(ctx context.Context, actorID, studentID string) (*models.StudentRecord, error)
	Reject(ctx context.Context, actorID, studentID string, req dto.RejectStudentRequest) (*models.StudentRecord, error)
}

// ApprovalHandler serves the school office review of pending students.
type ApprovalHandler struct {
	service approvalService
	now     func() time.Time
}

// NewApprovalHandler constructs an ApprovalHandler.
func NewApprovalHandler(svc approvalService) *ApprovalHandler {
	return &ApprovalHandler{service: svc, now: time.Now}
}

// ListPending godoc
// @Summary List students pending approval
// @Tags Approval
// @Produce json
// @Security BearerAuth
// @Param page query int false "Page"
// @Param page_size query int false "Page size"
// @Success 200 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /admin/registrations/pending [get]
func (h *ApprovalHandler) ListPending(c *gin.Context) {
	query := dto.PendingStudentsQuery{
		Page:     queryInt(c, "page"),
		PageSize: queryInt(c, "page_size"),
	}
	students, pagination, err := h.service.ListPending(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, students, pagination)
}

// ExportPending godoc
// @Summary Export pending students as CSV
// @Tags Approval
// @Produce text/csv
// @Security BearerAuth
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /admin/registrations/pending/export.csv [get]
func (h *ApprovalHandler) ExportPending(c *gin.Context) {
	payload, err := h.service.ExportPendingCSV(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("pending-students-%s.csv", h.now().UTC().Format("20060102"))
	response.Attachment(c, filename, "text/csv; charset=utf-8", payload)
}

// ExportPendingPDF godoc
// @Summary Export pending students as PDF
// @Tags Approval
// @Produce application/pdf
// @Security BearerAuth
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /admin/registrations/pending/export.pdf [get]
func (h *ApprovalHandler) ExportPendingPDF(c *gin.Context) {
	payload, err := h.service.ExportPendingPDF(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	filename := fmt.Sprintf("pending-students-%s.pdf", h.now().UTC().Format("20060102"))
	response.Attachment(c, filename, "application/pdf", payload)
}

// Approve godoc
// @Summary Approve a student
// @Tags Approval
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/students/{id}/approve [post]
func (h *ApprovalHandler) Approve(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	student, err := h.service.Approve(c.Request.Context(), claims.UserID, c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StudentDecisionResponse{ID: student.ID, AccountStatus: student.AccountStatus}, nil)
}

// Reject godoc
// @Summary Reject a student
// @Tags Approval
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Student ID"
// @Param payload body dto.RejectStudentRequest true "Reason"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /admin/students/{id}/reject [post]
func (h *ApprovalHandler) Reject(c *gin.Context) {
	claims, ok := requireClaims(c)
	if !ok {
		return
	}
	var req dto.RejectStudentRequest
	if !bind(c, &req) {
		return
	}
	student, err := h.service.Reject(c.Request.Context(), claims.UserID, c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.StudentDecisionResponse{ID: student.ID, AccountStatus: student.AccountStatus}, nil)
}

func queryInt(c *gin.Context, key string) int {
	v, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return v
}
