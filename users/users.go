package users

import "strings"

// RoleType is the backend role assigned at signup
type RoleType string

const (
	RoleEmployee RoleType = "employee"
	RoleAdmin    RoleType = "admin"
)

// Profile is the user record returned by the backend on login, signup and verify.
// Only Username is guaranteed; the other fields are whatever the backend chose to send.
type Profile struct {
	ID       int64    `json:"id,omitempty"`
	Username string   `json:"username"`
	Email    string   `json:"email,omitempty"`
	Role     RoleType `json:"role,omitempty"`
	Verified bool     `json:"is_verified,omitempty"`
}

// Valid reports whether the profile identifies a user
func (p Profile) Valid() bool {
	return strings.TrimSpace(p.Username) != ""
}

// DisplayName is used in the dashboard header
func (p Profile) DisplayName() string {
	if p.Role != "" {
		return p.Username + " (" + string(p.Role) + ")"
	}
	return p.Username
}
