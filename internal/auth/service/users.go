package service

import (
	"context"
	"errors"
	"time"
	"unicode/utf8"

	"golang.org/x/crypto/bcrypt"

	"gestionale/internal/authz"
	"gestionale/internal/changefeed"
	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
	"gestionale/pkg/platform/sentinel"
	"gestionale/pkg/requestcontext"
)

// CreateUserCommand provisions an account.
type CreateUserCommand struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Password  string
	Role      identity.Role
}

// UserSnapshot is the audited view of an account.
type UserSnapshot struct {
	ID        string `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email,omitempty"`
	FirstName string `json:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty"`
	Role      string `json:"role"`
	Active    bool   `json:"active"`
}

func snapshot(u *identity.User) UserSnapshot {
	return UserSnapshot{
		ID:        u.ID.String(),
		Username:  u.Username,
		Email:     u.Email,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Role:      string(u.Role),
		Active:    u.Active,
	}
}

// CreateUser provisions an account on behalf of an administrator.
func (s *Service) CreateUser(ctx context.Context, actor *identity.Actor, cmd CreateUserCommand) (*identity.User, error) {
	if err := s.authorizeAdmin(ctx, actor, "create_user"); err != nil {
		return nil, err
	}
	return s.create(ctx, actor, cmd)
}

// Provision creates an account without an acting administrator. It backs the
// createadmin command and first-run seeding; the audit entry has no actor.
func (s *Service) Provision(ctx context.Context, cmd CreateUserCommand) (*identity.User, error) {
	return s.create(ctx, nil, cmd)
}

func (s *Service) create(ctx context.Context, actor *identity.Actor, cmd CreateUserCommand) (*identity.User, error) {
	if err := validatePassword(cmd.Password); err != nil {
		return nil, err
	}
	if cmd.Role != identity.RoleUnauthenticated && !cmd.Role.Known() {
		return nil, dErrors.New(dErrors.CodeValidation, "role must be admin, technician or commercial")
	}
	now := requestcontext.Now(ctx).UTC()
	user, err := identity.NewUser(id.NewUserID(), cmd.Username, cmd.Email, cmd.Role, now)
	if err != nil {
		return nil, err
	}
	user.FirstName = cmd.FirstName
	user.LastName = cmd.LastName

	hash, err := bcrypt.GenerateFromPassword([]byte(cmd.Password), s.bcryptCost)
	if err != nil {
		return nil, dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
	}
	user.PasswordHash = string(hash)

	change := changefeed.Change{
		EntityType: identity.EntityType,
		EntityID:   user.ID.String(),
		Kind:       changefeed.Created,
		Actor:      actor,
		After:      snapshot(user),
	}
	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		return s.feed.Apply(ctx, change, func(ctx context.Context) error {
			return s.users.Create(ctx, user)
		})
	})
	if err != nil {
		return nil, s.failUser(ctx, "create_user", err)
	}
	s.observeUserChange("create")
	s.logger.InfoContext(ctx, "user provisioned",
		"user_id", user.ID.String(),
		"role", user.Role.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return user, nil
}

// ListUsers returns every account ordered by username.
func (s *Service) ListUsers(ctx context.Context, actor *identity.Actor) ([]*identity.User, error) {
	if err := s.authorizeAdmin(ctx, actor, "list_users"); err != nil {
		return nil, err
	}
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, s.failUser(ctx, "list_users", err)
	}
	return users, nil
}

// ChangeRole assigns role to userID. The new role applies to the account's
// next request.
func (s *Service) ChangeRole(ctx context.Context, actor *identity.Actor, userID id.UserID, role identity.Role) (*identity.User, error) {
	if err := s.authorizeAdmin(ctx, actor, "change_role"); err != nil {
		return nil, err
	}
	return s.mutate(ctx, actor, userID, "change_role", func(u *identity.User, now time.Time) error {
		return u.ChangeRole(actor, role, now)
	})
}

// Deactivate disables userID. Accounts are never deleted so audit entries
// keep pointing at them. An administrator cannot deactivate their own account.
func (s *Service) Deactivate(ctx context.Context, actor *identity.Actor, userID id.UserID) (*identity.User, error) {
	if err := s.authorizeAdmin(ctx, actor, "deactivate_user"); err != nil {
		return nil, err
	}
	if actor.UserID == userID {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "cannot deactivate your own account")
	}
	return s.mutate(ctx, actor, userID, "deactivate", func(u *identity.User, now time.Time) error {
		return u.Deactivate(now)
	})
}

// ChangeOwnPassword replaces the actor's password after checking the current
// one. Existing tokens stay valid until they expire.
func (s *Service) ChangeOwnPassword(ctx context.Context, actor *identity.Actor, current, next string) error {
	if !actor.Authenticated() {
		return dErrors.New(dErrors.CodeUnauthorized, "authentication required")
	}
	if current == "" {
		return dErrors.New(dErrors.CodeValidation, "current password is required")
	}
	if err := validatePassword(next); err != nil {
		return err
	}
	_, err := s.mutate(ctx, actor, actor.UserID, "change_password", func(u *identity.User, now time.Time) error {
		if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(current)); err != nil {
			return dErrors.New(dErrors.CodeInvalidInput, "current password is incorrect")
		}
		hash, err := bcrypt.GenerateFromPassword([]byte(next), s.bcryptCost)
		if err != nil {
			return dErrors.Wrap(err, dErrors.CodeInternal, "failed to hash password")
		}
		u.PasswordHash = string(hash)
		u.UpdatedAt = now
		return nil
	})
	return err
}

func validatePassword(password string) error {
	if utf8.RuneCountInString(password) < MinPasswordLength {
		return dErrors.New(dErrors.CodeValidation, "password must be at least 8 characters")
	}
	// bcrypt ignores input past 72 bytes.
	if len(password) > 72 {
		return dErrors.New(dErrors.CodeValidation, "password is too long")
	}
	return nil
}

func (s *Service) mutate(ctx context.Context, actor *identity.Actor, userID id.UserID, op string, apply func(*identity.User, time.Time) error) (*identity.User, error) {
	if userID.IsNil() {
		return nil, dErrors.New(dErrors.CodeBadRequest, "user id required")
	}
	var updated *identity.User
	err := s.tx.RunInTx(ctx, func(ctx context.Context) error {
		user, err := s.users.FindByID(ctx, userID)
		if err != nil {
			return err
		}
		before := snapshot(user)
		if err := apply(user, requestcontext.Now(ctx).UTC()); err != nil {
			return err
		}
		change := changefeed.Change{
			EntityType: identity.EntityType,
			EntityID:   user.ID.String(),
			Kind:       changefeed.Updated,
			Actor:      actor,
			Before:     before,
			After:      snapshot(user),
		}
		if err := s.feed.Apply(ctx, change, func(ctx context.Context) error {
			return s.users.Update(ctx, user)
		}); err != nil {
			return err
		}
		updated = user
		return nil
	})
	if err != nil {
		return nil, s.failUser(ctx, op, err)
	}
	s.observeUserChange(op)
	s.logger.InfoContext(ctx, "user updated",
		"user_id", userID.String(),
		"operation", op,
		"by", actor.UserID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

func (s *Service) authorizeAdmin(ctx context.Context, actor *identity.Actor, op string) error {
	if err := authz.AuthorizeAdmin(actor); err != nil {
		s.logger.InfoContext(ctx, "user administration denied",
			"operation", op,
			"role", identity.RoleOf(actor).String(),
			"request_id", requestcontext.RequestID(ctx),
		)
		return err
	}
	return nil
}

func (s *Service) failUser(ctx context.Context, op string, err error) error {
	var de *dErrors.Error
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.New(dErrors.CodeNotFound, "user not found")
	case errors.Is(err, sentinel.ErrConflict):
		return dErrors.New(dErrors.CodeConflict, "username already exists")
	case errors.As(err, &de) && de.Code != dErrors.CodeInternal:
		return err
	}
	s.logger.ErrorContext(ctx, "user administration failed",
		"operation", op,
		"error", err,
		"request_id", requestcontext.RequestID(ctx),
	)
	return dErrors.Wrap(err, dErrors.CodeInternal, "user administration failed")
}

func (s *Service) observeUserChange(kind string) {
	if s.metrics != nil {
		s.metrics.IncUserChange(kind)
	}
}
