package users

import (
	"fmt"
	"time"

	"unicode"

	"golang.org/x/crypto/bcrypt"
)

// RoleType represents a user's role within the support workspace
type RoleType string

const (
	RoleAdmin RoleType = "admin" // Can manage agents and workspace settings
	RoleAgent RoleType = "agent" // Handles customer conversations
	RoleOwner RoleType = "owner" // Workspace owner, implies admin
)

// StatusType represents the lifecycle state of an account
type StatusType string

const (
	StatusActive    StatusType = "active"
	StatusInvited   StatusType = "invited"
	StatusSuspended StatusType = "suspended"
)

type User struct {
	ID           string     `json:"id,omitempty"`            // Unique identifier for the user
	Email        string     `json:"email,omitempty"`         // User's email address
	DisplayName  string     `json:"display_name,omitempty"`  // Name shown to customers and teammates
	PasswordHash string     `json:"-"`                       // Hashed version of the user's password - never serialize
	Role         RoleType   `json:"role,omitempty"`          // Workspace role
	Status       StatusType `json:"status,omitempty"`        // Account lifecycle state
	Verified     bool       `json:"verified,omitempty"`      // Verified, has the user confirmed their email
	CreatedAt    time.Time  `json:"created_at,omitempty"`    // Date and time when the user registered
	LastLoginAt  time.Time  `json:"last_login_at,omitempty"` // Last time the user logged in
}

// ValidatePasswordStrength checks if password meets security requirements:
// - At least 8 characters long
// - Contains uppercase and lowercase letters
// - Contains at least one number
func ValidatePasswordStrength(password string) error {
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters long")
	}

	var (
		hasUpper  bool
		hasLower  bool
		hasNumber bool
	)

	for _, char := range password {
		if unicode.IsUpper(char) {
			hasUpper = true
		} else if unicode.IsLower(char) {
			hasLower = true
		} else if unicode.IsDigit(char) {
			hasNumber = true
		}
	}

	if !hasUpper {
		return fmt.Errorf("password must contain at least one uppercase letter")
	}
	if !hasLower {
		return fmt.Errorf("password must contain at least one lowercase letter")
	}
	if !hasNumber {
		return fmt.Errorf("password must contain at least one number")
	}

	return nil
}

func HashPassword(password string) (string, error) {
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	return string(bytes), err
}

func CheckPasswordHash(password, hash string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
	return err == nil
}

// IsAdmin returns true if the user can manage the workspace
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin || u.Role == RoleOwner
}

// Active returns true if the account is allowed to sign in
func (u *User) Active() bool {
	return u.Status == "" || u.Status == StatusActive
}
