package identity

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
)

func TestParseRole(t *testing.T) {
	tests := []struct {
		in   string
		want Role
		ok   bool
	}{
		{"admin", RoleAdmin, true},
		{"ADMIN", RoleAdmin, true},
		{"technician", RoleTechnician, true},
		{"tecnico", RoleTechnician, true},
		{"commercial", RoleCommercial, true},
		{" commerciale ", RoleCommercial, true},
		{"superuser", Role("superuser"), false},
		{"", RoleUnauthenticated, false},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, ok := ParseRole(tt.in)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.ok, got.Known())
		})
	}
}

func TestRoleOf(t *testing.T) {
	assert.Equal(t, RoleUnauthenticated, RoleOf(nil))
	assert.Equal(t, RoleUnauthenticated, RoleOf(&Actor{Role: RoleAdmin}), "actor without id is anonymous")
	assert.Equal(t, RoleCommercial, RoleOf(&Actor{UserID: id.NewUserID(), Role: RoleCommercial}))
}

type UserSuite struct {
	suite.Suite
	now time.Time
}

func TestUserSuite(t *testing.T) {
	suite.Run(t, &UserSuite{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)})
}

func (s *UserSuite) TestNewUser() {
	s.Run("defaults to technician", func() {
		u, err := NewUser(id.NewUserID(), " mrossi ", "m.rossi@example.com", RoleUnauthenticated, s.now)
		s.Require().NoError(err)
		s.Equal("mrossi", u.Username)
		s.Equal(RoleTechnician, u.Role)
		s.True(u.Active)
	})

	s.Run("rejects unknown role", func() {
		_, err := NewUser(id.NewUserID(), "x", "", Role("root"), s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeInvariantViolation))
	})

	s.Run("rejects missing username", func() {
		_, err := NewUser(id.NewUserID(), "  ", "", RoleAdmin, s.now)
		s.Require().Error(err)
	})

	s.Run("rejects invalid email", func() {
		_, err := NewUser(id.NewUserID(), "x", "not-an-email", RoleAdmin, s.now)
		s.Require().Error(err)
	})
}

func (s *UserSuite) TestChangeRole() {
	admin := &Actor{UserID: id.NewUserID(), Role: RoleAdmin}
	tech := &Actor{UserID: id.NewUserID(), Role: RoleTechnician}

	s.Run("admin can change role", func() {
		u, err := NewUser(id.NewUserID(), "luca", "", RoleTechnician, s.now)
		s.Require().NoError(err)
		later := s.now.Add(time.Hour)
		s.Require().NoError(u.ChangeRole(admin, RoleCommercial, later))
		s.Equal(RoleCommercial, u.Role)
		s.Equal(later, u.UpdatedAt)
	})

	s.Run("non-admin is forbidden", func() {
		u, _ := NewUser(id.NewUserID(), "luca", "", RoleTechnician, s.now)
		err := u.ChangeRole(tech, RoleAdmin, s.now)
		s.Require().Error(err)
		s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
		s.Equal(RoleTechnician, u.Role)
	})

	s.Run("anonymous is forbidden", func() {
		u, _ := NewUser(id.NewUserID(), "luca", "", RoleTechnician, s.now)
		s.Require().Error(u.ChangeRole(nil, RoleAdmin, s.now))
	})

	s.Run("unknown target role is rejected", func() {
		u, _ := NewUser(id.NewUserID(), "luca", "", RoleTechnician, s.now)
		err := u.ChangeRole(admin, Role("owner"), s.now)
		require.Error(s.T(), err)
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *UserSuite) TestDeactivate() {
	u, _ := NewUser(id.NewUserID(), "anna", "", RoleCommercial, s.now)
	s.Require().NoError(u.Deactivate(s.now))
	s.False(u.Active)
	s.Error(u.Deactivate(s.now))
}
