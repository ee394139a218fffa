package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func validPatient() User {
	return User{
		ID:                 "u-1",
		Email:              "pat@example.com",
		PasswordHash:       "$2a$10$hash",
		Role:               RolePatient,
		PatientID:          ptr("P-100"),
		Phone:              "555-0100",
		Address1:           "1 Main St",
		City:               "Springfield",
		State:              "IL",
		County:             "Sangamon",
		Zip:                "62701",
		FirstName:          "Pat",
		LastName:           "Doe",
		AgreeTerms:         true,
		AgreePrivacyPolicy: true,
	}
}

// ============================================================================
// Role
// ============================================================================

func TestIsValidRole(t *testing.T) {
	assert.True(t, IsValidRole("caregiver"))
	assert.True(t, IsValidRole("patient"))
	assert.False(t, IsValidRole(""))
	assert.False(t, IsValidRole("admin"))
	assert.False(t, IsValidRole("Patient"))
}

// ============================================================================
// User
// ============================================================================

func TestUser_JSONHidesSecrets(t *testing.T) {
	u := validPatient()
	u.TokenVersion = 3

	body, err := json.Marshal(u)
	require.NoError(t, err)

	assert.NotContains(t, string(body), "$2a$10$hash")
	assert.NotContains(t, string(body), "passwordHash")
	assert.NotContains(t, string(body), "tokenVersion")
	assert.Contains(t, string(body), `"patientID":"P-100"`)
	assert.Contains(t, string(body), `"caregiverID":null`)
}

func TestUser_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(u *User)
		field  string
	}{
		{"valid patient", func(u *User) {}, ""},
		{"valid caregiver", func(u *User) {
			u.Role = RoleCaregiver
			u.PatientID = nil
			u.CaregiverID = ptr("C-9")
		}, ""},
		{"caregiver without caregiverID", func(u *User) { u.Role = RoleCaregiver }, "caregiverID"},
		{"caregiver with blank caregiverID", func(u *User) {
			u.Role = RoleCaregiver
			u.CaregiverID = ptr("  ")
		}, "caregiverID"},
		{"patient without patientID", func(u *User) { u.PatientID = nil }, "patientID"},
		{"unknown role", func(u *User) { u.Role = "nurse" }, "role"},
		{"missing city", func(u *User) { u.City = "" }, "city"},
		{"missing last name", func(u *User) { u.LastName = " " }, "lastName"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u := validPatient()
			tt.mutate(&u)

			err := u.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Contains(t, verr.Fields(), tt.field)
			assert.Contains(t, err.Error(), tt.field)
		})
	}
}

func TestNormalizeEmail(t *testing.T) {
	assert.Equal(t, "jane@example.com", NormalizeEmail("  Jane@Example.COM "))
}

// ============================================================================
// UserUpdate
// ============================================================================

func TestUserUpdate_OnlyPhoneChanges(t *testing.T) {
	u := validPatient()
	before := u

	up := UserUpdate{Phone: ptr("555")}
	up.Apply(&u)

	before.Phone = "555"
	assert.Equal(t, before, u)
}

func TestUserUpdate_FalseIsAppliedAbsentIsNot(t *testing.T) {
	u := validPatient()

	(&UserUpdate{AgreeTerms: ptr(false)}).Apply(&u)
	assert.False(t, u.AgreeTerms)
	assert.True(t, u.AgreePrivacyPolicy)

	(&UserUpdate{FirstName: ptr("Pam")}).Apply(&u)
	assert.False(t, u.AgreeTerms, "absent field must keep the stored false")
}

func TestUserUpdate_EmptyStringClearsOptionalFields(t *testing.T) {
	u := validPatient()
	u.Address2 = "Apt 4"
	u.CaregiverID = ptr("C-1")

	(&UserUpdate{Address2: ptr(""), CaregiverID: ptr("")}).Apply(&u)

	assert.Empty(t, u.Address2)
	assert.Nil(t, u.CaregiverID)
	require.NotNil(t, u.PatientID)
	assert.Equal(t, "P-100", *u.PatientID)
}

func TestUserUpdate_RoleSwitchNeedsMatchingID(t *testing.T) {
	u := validPatient()

	(&UserUpdate{Role: ptr(RoleCaregiver)}).Apply(&u)
	assert.Error(t, u.Validate())

	(&UserUpdate{CaregiverID: ptr("C-2")}).Apply(&u)
	assert.NoError(t, u.Validate())
}

func TestUserUpdate_EmailIsNormalized(t *testing.T) {
	u := validPatient()
	(&UserUpdate{Email: ptr(" New@Example.com")}).Apply(&u)
	assert.Equal(t, "new@example.com", u.Email)
}

func TestUserUpdate_IsEmpty(t *testing.T) {
	assert.True(t, (&UserUpdate{}).IsEmpty())
	assert.False(t, (&UserUpdate{AgreeTerms: ptr(false)}).IsEmpty())
}

func TestUserUpdate_DoesNotAliasInput(t *testing.T) {
	u := validPatient()
	id := "P-200"
	(&UserUpdate{PatientID: &id}).Apply(&u)
	id = "changed"
	assert.Equal(t, "P-200", *u.PatientID)
}
