package token

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gestionale/internal/identity"
	id "gestionale/pkg/domain"
	dErrors "gestionale/pkg/domain-errors"
)

var (
	fixedNow = time.Date(2026, 1, 15, 9, 0, 0, 0, time.UTC)
	userID   = id.NewUserID()
)

func newService(now time.Time) *JWTService {
	return NewJWTService("test-signing-key", "gestionale", 8*time.Hour, WithClock(func() time.Time { return now }))
}

func TestIssueAndValidate(t *testing.T) {
	svc := newService(fixedNow)
	tok, err := svc.Issue(userID, identity.RoleTechnician)
	require.NoError(t, err)
	require.NotEmpty(t, tok.Value)
	assert.Equal(t, fixedNow.Add(8*time.Hour), tok.ExpiresAt)

	claims, err := svc.Parse(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, userID.String(), claims.Subject)
	assert.Equal(t, "technician", claims.Role)
	assert.Equal(t, tok.JTI, claims.ID)

	mw, err := svc.ValidateToken(tok.Value)
	require.NoError(t, err)
	assert.Equal(t, userID, mw.UserID)
	assert.Equal(t, tok.JTI, mw.JTI)
}

func TestValidateToken_Expired(t *testing.T) {
	tok, err := newService(fixedNow).Issue(userID, identity.RoleAdmin)
	require.NoError(t, err)

	_, err = newService(fixedNow.Add(9 * time.Hour)).ValidateToken(tok.Value)
	require.Error(t, err)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
	assert.Equal(t, "token has expired", dErrors.MessageOf(err))
}

func TestValidateToken_Garbage(t *testing.T) {
	_, err := newService(fixedNow).ValidateToken("not-a-token")
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateToken_WrongKey(t *testing.T) {
	tok, err := NewJWTService("other-key", "gestionale", time.Hour, WithClock(func() time.Time { return fixedNow })).Issue(userID, identity.RoleAdmin)
	require.NoError(t, err)
	_, err = newService(fixedNow).ValidateToken(tok.Value)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateToken_RejectsNoneAlgorithm(t *testing.T) {
	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID.String(), Issuer: "gestionale"},
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = newService(fixedNow).ValidateToken(unsigned)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}

func TestValidateToken_WrongIssuer(t *testing.T) {
	tok, err := NewJWTService("test-signing-key", "someone-else", time.Hour, WithClock(func() time.Time { return fixedNow })).Issue(userID, identity.RoleAdmin)
	require.NoError(t, err)
	_, err = newService(fixedNow).ValidateToken(tok.Value)
	assert.True(t, dErrors.HasCode(err, dErrors.CodeUnauthorized))
}
