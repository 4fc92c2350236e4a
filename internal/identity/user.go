package identity

import (
	"net/mail"
	"strings"
	"time"
	"unicode/utf8"

	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
)

// EntityType is the change-feed name of user accounts.
const EntityType = "User"

const maxUsernameLength = 150

// User is a provisioned account. Accounts are never deleted, only deactivated.
type User struct {
	ID           id.UserID
	Username     string
	Email        string
	FirstName    string
	LastName     string
	PasswordHash string
	Role         Role
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// NewUser validates and builds an active account. An empty role gets DefaultRole.
func NewUser(userID id.UserID, username, email string, role Role, now time.Time) (*User, error) {
	username = strings.TrimSpace(username)
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "user id is required")
	}
	if username == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username is required")
	}
	if utf8.RuneCountInString(username) > maxUsernameLength {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "username is too long")
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, dErrors.New(dErrors.CodeInvariantViolation, "email is invalid")
		}
	}
	if role == RoleUnauthenticated {
		role = DefaultRole
	}
	if !role.Known() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "role must be admin, technician or commercial")
	}
	return &User{
		ID:        userID,
		Username:  username,
		Email:     strings.TrimSpace(email),
		Role:      role,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ChangeRole sets a new role. Only an authenticated Admin may change roles.
func (u *User) ChangeRole(by *Actor, role Role, now time.Time) error {
	if RoleOf(by) != RoleAdmin {
		return dErrors.New(dErrors.CodeForbidden, "only an admin can change roles")
	}
	if !role.Known() {
		return dErrors.New(dErrors.CodeValidation, "role must be admin, technician or commercial")
	}
	u.Role = role
	u.UpdatedAt = now
	return nil
}

// Deactivate disables the account. Deactivating twice is an invalid state.
func (u *User) Deactivate(now time.Time) error {
	if !u.Active {
		return dErrors.New(dErrors.CodeInvariantViolation, "user is already inactive")
	}
	u.Active = false
	u.UpdatedAt = now
	return nil
}

// Actor returns the identity this account acts as.
func (u *User) Actor() *Actor {
	return &Actor{UserID: u.ID, Username: u.Username, Role: u.Role}
}

// DisplayName is "First Last" when set, otherwise the username.
func (u *User) DisplayName() string {
	if name := strings.TrimSpace(u.FirstName + " " + u.LastName); name != "" {
		return name
	}
	return u.Username
}
