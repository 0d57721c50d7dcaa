package service

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/pkg/export"
)

// BuildSummaryDocument lays out a session for the printable review summary.
// Passwords are never printed.
func BuildSummaryDocument(session *models.RegistrationSession, generatedAt time.Time) export.Document {
	doc := export.Document{
		Title:    "Registration summary",
		Subtitle: fmt.Sprintf("Session %s, generated %s", session.ID, generatedAt.Format("02/01/2006 15:04")),
	}

	attendance := []export.Field{
		{Label: "Attendance mode", Value: string(session.AttendanceMode)},
		{Label: "Terms accepted", Value: yesNo(session.TermsAccepted)},
		{Label: "Children", Value: strconv.Itoa(session.ChildCount)},
	}
	if len(session.TimeSlots) > 0 {
		attendance = append(attendance, export.Field{Label: "Time slots", Value: joinSlots(session.TimeSlots)})
	}
	doc.Sections = append(doc.Sections, export.Section{Heading: "Attendance", Fields: attendance})

	if p := session.Parent; p != nil {
		doc.Sections = append(doc.Sections, export.Section{
			Heading: "Parent",
			Fields: []export.Field{
				{Label: "Name", Value: strings.TrimSpace(p.FirstName + " " + p.LastName)},
				{Label: "Fiscal code", Value: p.FiscalCode},
				{Label: "Phone", Value: p.Phone},
				{Label: "Email", Value: p.Email},
				{Label: "Address", Value: fmt.Sprintf("%s, %s %s", p.Address, p.PostalCode, p.City)},
			},
		})
	}

	table := &export.Dataset{Headers: []string{"#", "Name", "Fiscal code", "Birth date", "Grade", "Enrollment"}}
	for i := 0; i < session.ChildCount && i < len(session.Children); i++ {
		child := session.Children[i]
		birth := ""
		if child.BirthDate.Year > 0 {
			birth = fmt.Sprintf("%02d/%02d/%04d", child.BirthDate.Day, child.BirthDate.Month, child.BirthDate.Year)
		}
		enrollment := string(session.EnrollmentTypeAt(i))
		if session.EnrollmentTypeAt(i) == models.EnrollmentRenewal && child.PreviousClass != "" {
			enrollment += " (" + child.PreviousClass + ")"
		}
		table.Rows = append(table.Rows, map[string]string{
			"#":           strconv.Itoa(i + 1),
			"Name":        childName(session, i),
			"Fiscal code": child.FiscalCode,
			"Birth date":  birth,
			"Grade":       child.Grade,
			"Enrollment":  enrollment,
		})
	}
	doc.Table = table
	return doc
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func joinSlots(slots []models.TimeSlot) string {
	parts := make([]string, len(slots))
	for i, slot := range slots {
		parts[i] = string(slot)
	}
	return strings.Join(parts, ", ")
}
