package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func enrollment(t EnrollmentType) *EnrollmentType {
	return &t
}

func TestNeedsTimeSlots(t *testing.T) {
	cases := []struct {
		name  string
		mode  AttendanceMode
		types []*EnrollmentType
		want  bool
	}{
		{name: "in presence, all new", mode: AttendanceInPresence, types: []*EnrollmentType{enrollment(EnrollmentNew), enrollment(EnrollmentNew)}, want: true},
		{name: "in presence, one renewal", mode: AttendanceInPresence, types: []*EnrollmentType{enrollment(EnrollmentNew), enrollment(EnrollmentRenewal)}},
		{name: "in presence, one unset", mode: AttendanceInPresence, types: []*EnrollmentType{enrollment(EnrollmentNew), nil}},
		{name: "online, all new", mode: AttendanceOnline, types: []*EnrollmentType{enrollment(EnrollmentNew)}},
		{name: "no children", mode: AttendanceInPresence},
	}
	for _, tc := range cases {
		s := &RegistrationSession{AttendanceMode: tc.mode, EnrollmentTypes: tc.types}
		assert.Equal(t, tc.want, s.NeedsTimeSlots(), tc.name)
	}
}

func TestEnrollmentTypeAt(t *testing.T) {
	s := &RegistrationSession{EnrollmentTypes: []*EnrollmentType{enrollment(EnrollmentRenewal), nil}}
	assert.Equal(t, EnrollmentRenewal, s.EnrollmentTypeAt(0))
	assert.Equal(t, EnrollmentType(""), s.EnrollmentTypeAt(1))
	assert.Equal(t, EnrollmentType(""), s.EnrollmentTypeAt(5))
	assert.Equal(t, EnrollmentType(""), s.EnrollmentTypeAt(-1))
}

func TestStaffProfileDocument(t *testing.T) {
	doc := StaffProfile{ID: "u-1", Name: "Segreteria", Email: "office@school.example", Role: RoleTeacher}.ToDocument()
	assert.Equal(t, "teacher", doc["role"])
	assert.True(t, RoleAdmin.IsStaff())
	assert.True(t, RoleTeacher.IsStaff())
	assert.False(t, RoleParent.IsStaff())
}
