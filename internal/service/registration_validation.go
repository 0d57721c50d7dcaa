package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/noah-isme/sma-registration-api/internal/models"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
	"github.com/noah-isme/sma-registration-api/pkg/validation"
)

const requiredMessage = "this field is required"

func childKey(idx int, field string) string {
	return fmt.Sprintf("children[%d].%s", idx, field)
}

func normalizeParent(form models.ParentFormData) models.ParentFormData {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.FiscalCode = validation.NormalizeFiscalCode(form.FiscalCode)
	form.Phone = strings.TrimSpace(form.Phone)
	form.Email = normalizeEmail(form.Email)
	form.Address = strings.TrimSpace(form.Address)
	form.City = strings.TrimSpace(form.City)
	form.PostalCode = strings.TrimSpace(form.PostalCode)
	return form
}

func normalizeChild(form models.ChildFormData) models.ChildFormData {
	form.FirstName = strings.TrimSpace(form.FirstName)
	form.LastName = strings.TrimSpace(form.LastName)
	form.FiscalCode = validation.NormalizeFiscalCode(form.FiscalCode)
	form.Gender = strings.ToUpper(strings.TrimSpace(form.Gender))
	form.Grade = strings.TrimSpace(form.Grade)
	form.PreviousClass = strings.TrimSpace(form.PreviousClass)
	return form
}

func (s *RegistrationService) validateParent(form models.ParentFormData) map[string]string {
	details := s.validator.Struct("parent", form)
	if details == nil {
		details = map[string]string{}
	}
	if _, taken := details["parent.password"]; !taken && len(form.Password) < s.config.MinPasswordLength {
		details["parent.password"] = fmt.Sprintf("password must be at least %d characters", s.config.MinPasswordLength)
	}
	return details
}

func (s *RegistrationService) validateChild(session *models.RegistrationSession, idx int, form models.ChildFormData) map[string]string {
	prefix := fmt.Sprintf("children[%d]", idx)
	details := s.validator.Struct(prefix, form)
	if details == nil {
		details = map[string]string{}
	}

	birthKey := childKey(idx, "birth_date")
	if !hasKeyWithPrefix(details, birthKey) {
		if msg := s.birthDateProblem(form.BirthDate); msg != "" {
			details[birthKey] = msg
		}
	}
	if session.EnrollmentTypeAt(idx) == models.EnrollmentRenewal && form.PreviousClass == "" {
		details[childKey(idx, "previous_class")] = requiredMessage
	}
	return details
}

func (s *RegistrationService) birthDateProblem(b models.BirthDate) string {
	born, ok := b.Time()
	if !ok {
		return "birth date is not a valid calendar date"
	}
	today := s.now().UTC()
	if born.After(today) {
		return "birth date cannot be in the future"
	}
	if s.config.MinStudentAge > 0 && ageOn(born, today) < s.config.MinStudentAge {
		return fmt.Sprintf("student must be at least %d years old", s.config.MinStudentAge)
	}
	return ""
}

func ageOn(born, today time.Time) int {
	age := today.Year() - born.Year()
	if today.Month() < born.Month() || (today.Month() == born.Month() && today.Day() < born.Day()) {
		age--
	}
	return age
}

func hasKeyWithPrefix(details map[string]string, prefix string) bool {
	for key := range details {
		if strings.HasPrefix(key, prefix) {
			return true
		}
	}
	return false
}

// duplicateFiscalCode returns the index of a submitted child in earlier using
// code, or -1.
func duplicateFiscalCode(earlier []models.ChildFormData, code string) int {
	for j, child := range earlier {
		if child.Submitted() && strings.EqualFold(child.FiscalCode, code) {
			return j
		}
	}
	return -1
}

func duplicateInSession(session *models.RegistrationSession, idx, other int) error {
	msg := fmt.Sprintf("fiscal code already entered for child %d (%s)", other+1, childName(session, other))
	return appErrors.WithDetails(appErrors.ErrDuplicateFiscalCode, msg, map[string]string{
		childKey(idx, "fiscal_code"): msg,
	})
}

func childName(session *models.RegistrationSession, idx int) string {
	if idx < len(session.StudentNames) && session.StudentNames[idx] != "" {
		return session.StudentNames[idx]
	}
	if idx < len(session.Children) {
		return strings.TrimSpace(session.Children[idx].FirstName + " " + session.Children[idx].LastName)
	}
	return ""
}
