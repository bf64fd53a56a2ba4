package profile

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidRole is returned for role strings outside the closed set.
var ErrInvalidRole = errors.New("invalid role")

// Role is the authorization role stored on a profile.
type Role string

const (
	// RoleAdmin is the administrator role.
	RoleAdmin Role = "admin"
	// RoleTeacher is the instructor role.
	RoleTeacher Role = "teacher"
	// RoleStudent is the learner role.
	RoleStudent Role = "student"
)

// Roles lists every valid role.
var Roles = []Role{RoleAdmin, RoleTeacher, RoleStudent}

// ParseRole validates s against the closed role set. Matching ignores case
// and surrounding space.
func ParseRole(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidRole, s)
	}
	return r, nil
}

// Valid reports whether r is one of Roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleTeacher, RoleStudent:
		return true
	}
	return false
}

// Landing returns the home route for r, or "/" for an unknown role.
func (r Role) Landing() string {
	switch r {
	case RoleAdmin:
		return "/admin"
	case RoleTeacher:
		return "/teacher"
	case RoleStudent:
		return "/student"
	default:
		return "/"
	}
}

// Profile is the authorization record keyed by the session's user ID.
type Profile struct {
	ID          string    `json:"id"`
	Role        Role      `json:"role"`
	DisplayName string    `json:"display_name"`
	Points      int64     `json:"points"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Clone returns a copy that can be handed to consumers.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	out := *p
	return &out
}

// HasRole reports whether p is non-nil and its role is in allowed.
func (p *Profile) HasRole(allowed ...Role) bool {
	if p == nil {
		return false
	}
	for _, r := range allowed {
		if p.Role == r {
			return true
		}
	}
	return false
}

// Validate checks the fields a store requires before writing.
func (p *Profile) Validate() error {
	if p == nil || strings.TrimSpace(p.ID) == "" {
		return errors.New("profile id required")
	}
	if !p.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, p.Role)
	}
	return nil
}
