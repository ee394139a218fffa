package domain

import (
	"sort"
	"strings"
	"time"
)

// User is a registered caregiver or patient.
type User struct {
	ID                 string    `json:"id"`
	Email              string    `json:"email"`
	PasswordHash       string    `json:"-"`
	Role               Role      `json:"role"`
	CaregiverID        *string   `json:"caregiverID"`
	PatientID          *string   `json:"patientID"`
	Phone              string    `json:"phone"`
	Address1           string    `json:"address1"`
	Address2           string    `json:"address2,omitempty"`
	City               string    `json:"city"`
	State              string    `json:"state"`
	County             string    `json:"county"`
	Zip                string    `json:"zip"`
	FirstName          string    `json:"firstName"`
	LastName           string    `json:"lastName"`
	AgreeTerms         bool      `json:"agreeTerms"`
	AgreePrivacyPolicy bool      `json:"agreePrivacyPolicy"`
	TokenVersion       int       `json:"-"`
	CreatedAt          time.Time `json:"createdAt"`
	UpdatedAt          time.Time `json:"updatedAt"`
}

// TokenPair holds an access and refresh token pair.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// NormalizeEmail trims surrounding space and lower-cases the address so that
// lookups and the uniqueness constraint are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// ValidationError lists the fields of a record that break a domain rule.
type ValidationError struct {
	Violations map[string]string
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Violations))
	for k := range e.Violations {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	msgs := make([]string, 0, len(keys))
	for _, k := range keys {
		msgs = append(msgs, k+" "+e.Violations[k])
	}
	return "invalid user: " + strings.Join(msgs, "; ")
}

// Fields returns the violations keyed by JSON field name.
func (e *ValidationError) Fields() map[string]string {
	return e.Violations
}

// Validate checks the rules every stored user must satisfy: a known role, the
// id that role requires, and the mandatory profile fields.
func (u *User) Validate() error {
	v := map[string]string{}

	required := []struct {
		field, value string
	}{
		{"email", u.Email},
		{"phone", u.Phone},
		{"address1", u.Address1},
		{"city", u.City},
		{"state", u.State},
		{"county", u.County},
		{"zip", u.Zip},
		{"firstName", u.FirstName},
		{"lastName", u.LastName},
	}
	for _, r := range required {
		if strings.TrimSpace(r.value) == "" {
			v[r.field] = "is required"
		}
	}

	switch u.Role {
	case RoleCaregiver:
		if isBlank(u.CaregiverID) {
			v["caregiverID"] = "is required when role is caregiver"
		}
	case RolePatient:
		if isBlank(u.PatientID) {
			v["patientID"] = "is required when role is patient"
		}
	default:
		v["role"] = "must be one of: caregiver patient"
	}

	if len(v) > 0 {
		return &ValidationError{Violations: v}
	}
	return nil
}

func isBlank(s *string) bool {
	return s == nil || strings.TrimSpace(*s) == ""
}

// UserUpdate is a partial change to a user. A nil field is left untouched;
// a non-nil field is applied even when it holds the zero value.
type UserUpdate struct {
	Email              *string
	Role               *Role
	CaregiverID        *string
	PatientID          *string
	Phone              *string
	Address1           *string
	Address2           *string
	City               *string
	State              *string
	County             *string
	Zip                *string
	FirstName          *string
	LastName           *string
	AgreeTerms         *bool
	AgreePrivacyPolicy *bool
}

// IsEmpty reports whether the update changes nothing.
func (up *UserUpdate) IsEmpty() bool {
	return *up == UserUpdate{}
}

// Apply copies the present fields onto u. An empty string clears the
// optional fields address2, caregiverID and patientID. The result is not
// validated; call Validate afterwards.
func (up *UserUpdate) Apply(u *User) {
	setString(&u.Email, up.Email)
	if up.Email != nil {
		u.Email = NormalizeEmail(u.Email)
	}
	if up.Role != nil {
		u.Role = *up.Role
	}
	setOptional(&u.CaregiverID, up.CaregiverID)
	setOptional(&u.PatientID, up.PatientID)
	setString(&u.Phone, up.Phone)
	setString(&u.Address1, up.Address1)
	setString(&u.Address2, up.Address2)
	setString(&u.City, up.City)
	setString(&u.State, up.State)
	setString(&u.County, up.County)
	setString(&u.Zip, up.Zip)
	setString(&u.FirstName, up.FirstName)
	setString(&u.LastName, up.LastName)
	if up.AgreeTerms != nil {
		u.AgreeTerms = *up.AgreeTerms
	}
	if up.AgreePrivacyPolicy != nil {
		u.AgreePrivacyPolicy = *up.AgreePrivacyPolicy
	}
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func setOptional(dst **string, src *string) {
	if src == nil {
		return
	}
	if *src == "" {
		*dst = nil
		return
	}
	v := *src
	*dst = &v
}
