package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-registration-api/internal/models"
	"github.com/noah-isme/sma-registration-api/internal/repository"
	appErrors "github.com/noah-isme/sma-registration-api/pkg/errors"
)

const testEmailDomain = "students.example.org"

type registrationFixture struct {
	svc      *RegistrationService
	docs     *memoryDocs
	accounts *fakeAccounts
	notifier *recordingNotifier
}

func newRegistrationFixture(t *testing.T) *registrationFixture {
	t.Helper()
	docs := newMemoryDocs()
	accounts := newFakeAccounts()
	notifier := &recordingNotifier{}
	uniqueness := NewUniquenessChecker(docs, accounts, testEmailDomain, nil, zap.NewNop())
	svc := NewRegistrationService(
		repository.NewMemorySessionRepository(),
		docs,
		accounts,
		uniqueness,
		nil,
		notifier,
		nil,
		zap.NewNop(),
		RegistrationConfig{
			MaxChildren:          5,
			MinPasswordLength:    8,
			MinStudentAge:        3,
			SyntheticEmailDomain: testEmailDomain,
			SessionTTL:           time.Hour,
		},
	)
	return &registrationFixture{svc: svc, docs: docs, accounts: accounts, notifier: notifier}
}

func validParent() models.ParentFormData {
	return models.ParentFormData{
		FirstName:            "Anna",
		LastName:             "Rossi",
		FiscalCode:           "rssnna80a41h501k",
		Phone:                "+39 333 1234567",
		Email:                "Anna.Rossi@example.com",
		Password:             "secret123",
		PasswordConfirmation: "secret123",
		Address:              "Via Roma 1",
		City:                 "Roma",
		PostalCode:           "00100",
	}
}

func validChild(firstName, fiscalCode string) models.ChildFormData {
	return models.ChildFormData{
		FirstName:  firstName,
		LastName:   "Rossi",
		FiscalCode: fiscalCode,
		BirthDate:  models.BirthDate{Day: 10, Month: 3, Year: time.Now().Year() - 10},
		Gender:     "M",
		Grade:      "primaria_5",
	}
}

// toParentForm walks a fresh session up to the parent_form step.
func (f *registrationFixture) toParentForm(t *testing.T, mode models.AttendanceMode, names ...string) string {
	t.Helper()
	ctx := context.Background()
	session, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := session.ID

	_, err = f.svc.SelectAttendanceMode(ctx, id, mode)
	require.NoError(t, err)
	_, err = f.svc.ContinueInfo(ctx, id)
	require.NoError(t, err)
	_, err = f.svc.AcceptTerms(ctx, id, true)
	require.NoError(t, err)
	_, err = f.svc.SetChildrenCount(ctx, id, len(names))
	require.NoError(t, err)
	session, err = f.svc.SetStudentNames(ctx, id, names)
	require.NoError(t, err)
	require.Equal(t, models.StepParentForm, session.Step)
	return id
}

// toReview fills in the parent and every child, choosing slots when asked.
func (f *registrationFixture) toReview(t *testing.T, mode models.AttendanceMode, types []models.EnrollmentType, children []models.ChildFormData, names ...string) string {
	t.Helper()
	ctx := context.Background()
	id := f.toParentForm(t, mode, names...)
	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)

	var session *models.RegistrationSession
	for i := range children {
		_, err = f.svc.SelectEnrollmentType(ctx, id, types[i])
		require.NoError(t, err)
		session, err = f.svc.SubmitStudentForm(ctx, id, children[i])
		require.NoError(t, err)
	}
	if session.Step == models.StepTurnoSelection {
		session, err = f.svc.SelectTimeSlots(ctx, id, []models.TimeSlot{models.TimeSlotMorning})
		require.NoError(t, err)
	}
	require.Equal(t, models.StepReview, session.Step)
	return id
}

func assertCode(t *testing.T, err error, target *appErrors.Error) *appErrors.Error {
	t.Helper()
	require.Error(t, err)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr), "expected *errors.Error, got %T", err)
	assert.Equal(t, target.Code, appErr.Code)
	return appErr
}

func TestRegistrationSingleChildInPresenceSubmits(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceInPresence, "Marco")

	session, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, session.Step)
	assert.Equal(t, "anna.rossi@example.com", session.Parent.Email)
	assert.Equal(t, "RSSNNA80A41H501K", session.Parent.FiscalCode)

	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	session, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", "rssmrc15c10h501x"))
	require.NoError(t, err)
	require.Equal(t, models.StepTurnoSelection, session.Step)

	session, err = f.svc.SelectTimeSlots(ctx, id, []models.TimeSlot{models.TimeSlotMorning, models.TimeSlotMorning, models.TimeSlotEvening})
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, session.Step)
	assert.Equal(t, []models.TimeSlot{models.TimeSlotMorning, models.TimeSlotEvening}, session.TimeSlots)

	f.docs.calls = nil
	result, pending, err := f.svc.Submit(ctx, id)
	require.NoError(t, err)
	require.Nil(t, pending)
	require.NotNil(t, result)

	assert.Equal(t, "uid-1", result.ParentID)
	require.Len(t, result.StudentIDs, 1)
	assert.Equal(t, []models.ChildSummary{{Name: "Marco", FiscalCode: "RSSMRC15C10H501X", Email: "rssmrc15c10h501x@" + testEmailDomain}}, result.Children)
	assert.Equal(t, "/registration/pending-approval", result.RedirectURL)

	assert.Equal(t, []string{
		"query students",
		"set users",
		"query users",
		"add students",
		"update users",
	}, f.docs.writes())

	student, err := f.docs.Get(ctx, models.CollectionStudents, result.StudentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, string(models.AccountStatusPendingApproval), student.String("accountStatus"))
	assert.Equal(t, "+39 333 1234567", student.String("phone"))
	assert.Equal(t, "anna.rossi@example.com", student.String("contactEmail"))
	assert.Equal(t, "uid-1", student.String("parentId"))
	assert.Equal(t, []interface{}{"morning", "evening"}, student.Data["timeSlots"])

	parent, err := f.docs.Get(ctx, models.CollectionUsers, "uid-1")
	require.NoError(t, err)
	assert.Len(t, parent.Data["children"], 1)
	assert.Equal(t, "parent", parent.String("role"))

	assert.Equal(t, []string{"uid-2"}, f.accounts.signedOut)
	assert.Len(t, f.notifier.submitted, 1)
	assert.Equal(t, 1, f.docs.count(models.CollectionAuditLogs))

	_, err = f.svc.Get(ctx, id)
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestSubmitStudentFormRejectsFiscalCodeRepeatedInSession(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceOnline, "Marco", "Luca")
	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)

	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", "RSSMRA80A01H501Z"))
	require.NoError(t, err)

	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Luca", "rssmra80a01h501z"))
	appErr := assertCode(t, err, appErrors.ErrDuplicateFiscalCode)
	assert.Contains(t, appErr.Details["children[1].fiscal_code"], "child 1 (Marco)")

	session, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepStudentsForm, session.Step)
	assert.Equal(t, 1, session.StudentCursor)
	assert.False(t, session.Children[1].Submitted())
}

func TestEditAllowsSwappingChildFiscalCodes(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	const marco, luca = "RSSMRC15C10H501X", "RSSLCU17E45H501Y"
	id := f.toReview(t, models.AttendanceOnline,
		[]models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew},
		[]models.ChildFormData{validChild("Marco", marco), validChild("Luca", luca)},
		"Marco", "Luca")

	_, err := f.svc.Edit(ctx, id, models.EditSectionChild, 0)
	require.NoError(t, err)
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	session, err := f.svc.SubmitStudentForm(ctx, id, validChild("Marco", luca))
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, session.Step)
	assert.Equal(t, 1, session.StudentCursor)

	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	session, err = f.svc.SubmitStudentForm(ctx, id, validChild("Luca", marco))
	require.NoError(t, err)
	require.Equal(t, models.StepReview, session.Step)

	result, _, err := f.svc.Submit(ctx, id)
	require.NoError(t, err)
	require.Len(t, result.Children, 2)
	assert.Equal(t, luca, result.Children[0].FiscalCode)
	assert.Equal(t, marco, result.Children[1].FiscalCode)
}

func TestSubmitStudentFormIgnoresLaterChildren(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	const marco, luca = "RSSMRC15C10H501X", "RSSLCU17E45H501Y"
	id := f.toReview(t, models.AttendanceOnline,
		[]models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew},
		[]models.ChildFormData{validChild("Marco", marco), validChild("Luca", luca)},
		"Marco", "Luca")

	_, err := f.svc.Edit(ctx, id, models.EditSectionChild, 0)
	require.NoError(t, err)
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", luca))
	require.NoError(t, err)

	// the stale code of child 2 is now reported against child 1
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Luca", luca))
	appErr := assertCode(t, err, appErrors.ErrDuplicateFiscalCode)
	assert.Contains(t, appErr.Details["children[1].fiscal_code"], "child 1 (Marco)")
}

func TestSubmitStudentFormRejectsRegisteredFiscalCode(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.docs.seed(models.CollectionStudents, "existing", map[string]interface{}{"fiscalCode": "RSSMRC15C10H501X"})

	id := f.toParentForm(t, models.AttendanceOnline, "Marco")
	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)

	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", "RSSMRC15C10H501X"))
	appErr := assertCode(t, err, appErrors.ErrDuplicateFiscalCode)
	assert.Contains(t, appErr.Details, "children[0].fiscal_code")
}

func TestSubmitParentFormChecksEmail(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	f.docs.seed(models.CollectionUsers, "u-1", map[string]interface{}{"email": "anna.rossi@example.com", "role": "parent"})
	id := f.toParentForm(t, models.AttendanceOnline, "Marco")

	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	appErr := assertCode(t, err, appErrors.ErrEmailInUse)
	assert.Contains(t, appErr.Details, "parent.email")
}

func TestSubmitParentFormValidation(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceOnline, "Marco")

	form := validParent()
	form.Password = "short"
	form.PasswordConfirmation = "other"
	form.PostalCode = "123"
	form.Email = "not-an-email"

	_, err := f.svc.SubmitParentForm(ctx, id, form)
	appErr := assertCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details, "parent.password")
	assert.Contains(t, appErr.Details, "parent.password_confirmation")
	assert.Contains(t, appErr.Details, "parent.postal_code")
	assert.Contains(t, appErr.Details, "parent.email")
}

func TestUniquenessLookupFailuresDoNotBlock(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceOnline, "Marco")

	f.docs.queryErr[models.CollectionUsers] = errors.New("backend unavailable")
	f.docs.queryErr[models.CollectionStudents] = errors.New("backend unavailable")
	f.accounts.lookupErr = errors.New("backend unavailable")

	session, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, session.Step)

	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	session, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", "RSSMRC15C10H501X"))
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, session.Step)
}

func TestSubmitLookupFailuresDoNotBlock(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toReview(t, models.AttendanceOnline, []models.EnrollmentType{models.EnrollmentNew}, []models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X")}, "Marco")

	f.docs.queryErr[models.CollectionStudents] = errors.New("backend unavailable")
	f.docs.queryErr[models.CollectionUsers] = errors.New("backend unavailable")
	f.accounts.lookupErr = errors.New("backend unavailable")

	result, pending, err := f.svc.Submit(ctx, id)
	require.NoError(t, err)
	require.Nil(t, pending)
	require.NotNil(t, result)

	// parent id falls back to the account uid when the profile lookup fails
	assert.Equal(t, "uid-1", result.ParentID)
	require.Len(t, result.StudentIDs, 1)
	student, err := f.docs.Get(ctx, models.CollectionStudents, result.StudentIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "uid-1", student.String("parentId"))

	parent, err := f.docs.Get(ctx, models.CollectionUsers, "uid-1")
	require.NoError(t, err)
	assert.Len(t, parent.Data["children"], 1)
}

func TestSubmitAbortsWhenParentProfileIsMissing(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toReview(t, models.AttendanceOnline, []models.EnrollmentType{models.EnrollmentNew}, []models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X")}, "Marco")

	f.docs.dropSets[models.CollectionUsers] = true

	result, _, err := f.svc.Submit(ctx, id)
	require.Nil(t, result)
	appErr := assertCode(t, err, appErrors.ErrSubmissionFailed)
	assert.Equal(t, genericSubmissionMessage, appErr.Message)

	assert.Equal(t, 0, f.docs.count(models.CollectionStudents))
	assert.Len(t, f.accounts.emails, 1)
	assert.Empty(t, f.notifier.submitted)

	session, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, session.Step)
}

func TestSubmitStudentFormBirthDateRules(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceOnline, "Marco")
	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentRenewal)
	require.NoError(t, err)

	child := validChild("Marco", "RSSMRC15C10H501X")
	child.BirthDate = models.BirthDate{Day: 31, Month: 2, Year: 2015}
	_, err = f.svc.SubmitStudentForm(ctx, id, child)
	appErr := assertCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "birth date is not a valid calendar date", appErr.Details["children[0].birth_date"])
	assert.Equal(t, requiredMessage, appErr.Details["children[0].previous_class"])

	child.BirthDate = models.BirthDate{Day: 1, Month: 1, Year: time.Now().Year() + 1}
	child.PreviousClass = "4A"
	_, err = f.svc.SubmitStudentForm(ctx, id, child)
	appErr = assertCode(t, err, appErrors.ErrValidation)
	assert.Equal(t, "birth date cannot be in the future", appErr.Details["children[0].birth_date"])

	child.BirthDate = models.BirthDate{Day: 1, Month: 1, Year: time.Now().Year() - 1}
	_, err = f.svc.SubmitStudentForm(ctx, id, child)
	appErr = assertCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details["children[0].birth_date"], "at least 3 years")
}

func TestTimeSlotStepReachability(t *testing.T) {
	renewal := validChild("Marco", "RSSMRC15C10H501X")
	renewal.PreviousClass = "4A"

	cases := []struct {
		name  string
		mode  models.AttendanceMode
		types []models.EnrollmentType
		want  models.RegistrationStep
	}{
		{name: "in presence all new", mode: models.AttendanceInPresence, types: []models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew}, want: models.StepTurnoSelection},
		{name: "in presence with renewal", mode: models.AttendanceInPresence, types: []models.EnrollmentType{models.EnrollmentNew, models.EnrollmentRenewal}, want: models.StepReview},
		{name: "online all new", mode: models.AttendanceOnline, types: []models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew}, want: models.StepReview},
		{name: "online renewal", mode: models.AttendanceOnline, types: []models.EnrollmentType{models.EnrollmentRenewal, models.EnrollmentRenewal}, want: models.StepReview},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newRegistrationFixture(t)
			ctx := context.Background()
			id := f.toParentForm(t, tc.mode, "Marco", "Luca")
			_, err := f.svc.SubmitParentForm(ctx, id, validParent())
			require.NoError(t, err)

			children := []models.ChildFormData{renewal, validChild("Luca", "RSSLCU17E45H501Y")}
			children[1].PreviousClass = "2B"
			var session *models.RegistrationSession
			for i, typ := range tc.types {
				session, err = f.svc.SelectEnrollmentType(ctx, id, typ)
				require.NoError(t, err)
				assert.Equal(t, i, session.StudentCursor)
				session, err = f.svc.SubmitStudentForm(ctx, id, children[i])
				require.NoError(t, err)
			}
			assert.Equal(t, tc.want, session.Step)
			if tc.want == models.StepReview {
				assert.Empty(t, session.TimeSlots)
			}
		})
	}
}

func TestBackRestoresEnteredData(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toParentForm(t, models.AttendanceOnline, "Marco", "Luca")
	_, err := f.svc.SubmitParentForm(ctx, id, validParent())
	require.NoError(t, err)
	_, err = f.svc.SelectEnrollmentType(ctx, id, models.EnrollmentNew)
	require.NoError(t, err)
	_, err = f.svc.SubmitStudentForm(ctx, id, validChild("Marco", "RSSMRC15C10H501X"))
	require.NoError(t, err)

	before, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	require.Equal(t, models.StepEnrollmentType, before.Step)
	require.Equal(t, 1, before.EnrollmentCursor)

	session, err := f.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepStudentsForm, session.Step)
	assert.Equal(t, 0, session.StudentCursor)
	assert.Equal(t, before.Children[0], session.Children[0])
	assert.Equal(t, before.Parent, session.Parent)

	session, err = f.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, session.Step)
	assert.Equal(t, 0, session.EnrollmentCursor)

	session, err = f.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepParentForm, session.Step)
	assert.Equal(t, before.Parent, session.Parent)

	session, err = f.svc.Back(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepStudentNames, session.Step)
	assert.Equal(t, []string{"Marco", "Luca"}, session.StudentNames)
}

func TestBackFromFirstStepIsRejected(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx)
	require.NoError(t, err)

	_, err = f.svc.Back(ctx, session.ID)
	assertCode(t, err, appErrors.ErrInvalidStep)
}

func TestForwardGates(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx)
	require.NoError(t, err)
	id := session.ID

	_, err = f.svc.SubmitParentForm(ctx, id, validParent())
	assertCode(t, err, appErrors.ErrInvalidStep)

	_, err = f.svc.SelectAttendanceMode(ctx, id, models.AttendanceMode("hybrid"))
	assertCode(t, err, appErrors.ErrValidation)

	_, err = f.svc.SelectAttendanceMode(ctx, id, models.AttendanceOnline)
	require.NoError(t, err)
	_, err = f.svc.ContinueInfo(ctx, id)
	require.NoError(t, err)

	_, err = f.svc.AcceptTerms(ctx, id, false)
	assertCode(t, err, appErrors.ErrValidation)
	_, err = f.svc.AcceptTerms(ctx, id, true)
	require.NoError(t, err)

	_, err = f.svc.SetChildrenCount(ctx, id, 0)
	assertCode(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetChildrenCount(ctx, id, 6)
	assertCode(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetChildrenCount(ctx, id, 2)
	require.NoError(t, err)

	_, err = f.svc.SetStudentNames(ctx, id, []string{"Marco"})
	assertCode(t, err, appErrors.ErrValidation)
	_, err = f.svc.SetStudentNames(ctx, id, []string{"Marco", "  "})
	appErr := assertCode(t, err, appErrors.ErrValidation)
	assert.Contains(t, appErr.Details, "names[1]")

	session, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepStudentNames, session.Step)
}

func TestOperationInProgressIsRejected(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx)
	require.NoError(t, err)

	require.True(t, f.svc.locks.tryLock(session.ID))
	_, err = f.svc.SelectAttendanceMode(ctx, session.ID, models.AttendanceOnline)
	assertCode(t, err, appErrors.ErrOperationInProgress)
	_, _, err = f.svc.Submit(ctx, session.ID)
	assertCode(t, err, appErrors.ErrOperationInProgress)

	f.svc.locks.unlock(session.ID)
	_, err = f.svc.SelectAttendanceMode(ctx, session.ID, models.AttendanceOnline)
	require.NoError(t, err)
}

func TestSubmitIsNoopWhenIncomplete(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toReview(t, models.AttendanceOnline, []models.EnrollmentType{models.EnrollmentNew}, []models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X")}, "Marco")

	stored, err := f.svc.sessions.Get(ctx, id)
	require.NoError(t, err)
	stored.EnrollmentTypes[0] = nil
	require.NoError(t, f.svc.sessions.Save(ctx, stored))

	f.docs.calls = nil
	result, session, err := f.svc.Submit(ctx, id)
	require.NoError(t, err)
	assert.Nil(t, result)
	require.NotNil(t, session)
	assert.Equal(t, models.StepReview, session.Step)
	assert.Empty(t, f.docs.calls)
	assert.Empty(t, f.accounts.emails)
}

func TestSubmitRequiresReviewStep(t *testing.T) {
	f := newRegistrationFixture(t)
	id := f.toParentForm(t, models.AttendanceOnline, "Marco")

	_, _, err := f.svc.Submit(context.Background(), id)
	assertCode(t, err, appErrors.ErrInvalidStep)
}

func TestSubmitPartialFailureKeepsWrittenChildren(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	second := validChild("Luca", "RSSLCU17E45H501Y")
	id := f.toReview(t, models.AttendanceOnline,
		[]models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew},
		[]models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X"), second},
		"Marco", "Luca")

	f.accounts.createErr[SyntheticEmail(second.FiscalCode, testEmailDomain)] = &models.AccountError{Code: models.AccountErrTooManyRequests}

	f.docs.calls = nil
	result, _, err := f.svc.Submit(ctx, id)
	require.Nil(t, result)
	appErr := assertCode(t, err, appErrors.ErrSubmissionFailed)
	assert.Equal(t, accountErrorMessages[models.AccountErrTooManyRequests], appErr.Message)

	assert.Equal(t, 1, f.docs.count(models.CollectionStudents))
	assert.NotContains(t, f.docs.writes(), "update users")
	assert.Empty(t, f.notifier.submitted)

	session, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.StepReview, session.Step)
	assert.Equal(t, accountErrorMessages[models.AccountErrTooManyRequests], session.LastError)

	_, err = f.svc.Edit(ctx, id, models.EditSectionParent, 0)
	require.NoError(t, err)
	session, err = f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, session.LastError)
}

func TestSubmitRechecksFiscalCodes(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toReview(t, models.AttendanceOnline, []models.EnrollmentType{models.EnrollmentNew}, []models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X")}, "Marco")

	f.docs.seed(models.CollectionStudents, "meanwhile", map[string]interface{}{"fiscalCode": "RSSMRC15C10H501X"})

	_, _, err := f.svc.Submit(ctx, id)
	appErr := assertCode(t, err, appErrors.ErrDuplicateFiscalCode)
	assert.Contains(t, appErr.Message, "child 1 (Marco)")
	assert.Empty(t, f.accounts.emails)

	session, err := f.svc.Get(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, appErr.Message, session.LastError)
}

func TestEditJumpsToSection(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	id := f.toReview(t, models.AttendanceInPresence,
		[]models.EnrollmentType{models.EnrollmentNew, models.EnrollmentNew},
		[]models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X"), validChild("Luca", "RSSLCU17E45H501Y")},
		"Marco", "Luca")

	_, err := f.svc.Edit(ctx, id, models.EditSectionChild, 2)
	assertCode(t, err, appErrors.ErrValidation)

	session, err := f.svc.Edit(ctx, id, models.EditSectionChild, 1)
	require.NoError(t, err)
	assert.Equal(t, models.StepEnrollmentType, session.Step)
	assert.Equal(t, 1, session.EnrollmentCursor)
	assert.Equal(t, 1, session.StudentCursor)

	_, err = f.svc.Edit(ctx, id, models.EditSectionAttendance, 0)
	assertCode(t, err, appErrors.ErrInvalidStep)
}

func TestSessionExpires(t *testing.T) {
	f := newRegistrationFixture(t)
	ctx := context.Background()
	session, err := f.svc.Start(ctx)
	require.NoError(t, err)

	f.svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, err = f.svc.Get(ctx, session.ID)
	assertCode(t, err, appErrors.ErrNotFound)
}

func TestSummaryPDF(t *testing.T) {
	f := newRegistrationFixture(t)
	id := f.toReview(t, models.AttendanceOnline, []models.EnrollmentType{models.EnrollmentNew}, []models.ChildFormData{validChild("Marco", "RSSMRC15C10H501X")}, "Marco")

	out, err := f.svc.SummaryPDF(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, len(out) > 4)
	assert.Equal(t, "%PDF", string(out[:4]))
}

func TestMapAccountError(t *testing.T) {
	for code, msg := range accountErrorMessages {
		wrapped := errors.Join(errors.New("create account"), &models.AccountError{Code: code})
		assert.Equal(t, msg, MapAccountError(wrapped), code)
	}
	assert.Equal(t, genericSubmissionMessage, MapAccountError(&models.AccountError{Code: "quota-exceeded"}))
	assert.Equal(t, genericSubmissionMessage, MapAccountError(&models.AccountError{Code: models.AccountErrUnknown}))
	assert.Equal(t, genericSubmissionMessage, MapAccountError(errors.New("boom")))
	assert.Len(t, accountErrorMessages, 8)
}
