package authclient

import (
	"github.com/google/uuid"
)

// UserRole is the user's role
type UserRole string

const (
	// RolePatient can browse their own treatments and reviews
	RolePatient UserRole = "patient"
	// RoleDoctor prescribes and manages patients; requires admin approval
	RoleDoctor UserRole = "doctor"
	// RoleAdmin manages accounts and doctor approvals
	RoleAdmin UserRole = "admin"
)

// User is the authenticated principal as returned by the portal API. It is
// owned exclusively by the Session: replaced wholesale on login and refresh,
// patched on profile update, cleared on logout.
type User struct {
	ID           uuid.UUID `json:"id,omitempty"`
	Email        string    `json:"email,omitempty"`
	DisplayName  string    `json:"display_name,omitempty"`
	Role         UserRole  `json:"user_type,omitempty"`
	IsVerified   bool      `json:"is_verified,omitempty"`
	IsApproved   bool      `json:"is_approved,omitempty"`
	ProfileImage string    `json:"profile_image,omitempty"`
}

// Clone returns a copy so snapshots never alias session-owned state.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// ApplyPatch merges the fields present in a partial profile-update response
// into the receiver. Unknown keys are ignored; the record is never replaced
// wholesale.
func (u *User) ApplyPatch(fields map[string]any) {
	if u == nil || len(fields) == 0 {
		return
	}

	for key, raw := range fields {
		switch key {
		case "id":
			if s, ok := raw.(string); ok {
				if id, err := uuid.Parse(s); err == nil {
					u.ID = id
				}
			}
		case "email":
			if s, ok := raw.(string); ok {
				u.Email = s
			}
		case "display_name":
			if s, ok := raw.(string); ok {
				u.DisplayName = s
			}
		case "user_type":
			if s, ok := raw.(string); ok {
				if role, valid := ParseRole(s); valid {
					u.Role = role
				}
			}
		case "is_verified":
			if b, ok := raw.(bool); ok {
				u.IsVerified = b
			}
		case "is_approved":
			if b, ok := raw.(bool); ok {
				u.IsApproved = b
			}
		case "profile_image":
			if s, ok := raw.(string); ok {
				u.ProfileImage = s
			}
		}
	}
}

// TokenPair is the credential material issued by the token endpoint. The
// access token is short lived and carries an expiry claim; the refresh token
// outlives it and is exchanged for new access tokens.
type TokenPair struct {
	Access  string `json:"access,omitempty"`
	Refresh string `json:"refresh,omitempty"`
}

// HasAccess reports whether an access token is present.
func (p TokenPair) HasAccess() bool {
	return p.Access != ""
}

// HasRefresh reports whether a refresh token is present.
func (p TokenPair) HasRefresh() bool {
	return p.Refresh != ""
}

// IsValid checks if the role is one of the predefined portal roles
func (r UserRole) IsValid() bool {
	switch r {
	case RolePatient, RoleDoctor, RoleAdmin:
		return true
	default:
		return false
	}
}

// GetAllRoles returns all predefined roles
func GetAllRoles() []UserRole {
	return []UserRole{
		RolePatient,
		RoleDoctor,
		RoleAdmin,
	}
}

// ParseRole safely parses a string into a UserRole type
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}
