package jwttoken

import (
	"testing"
	"time"

	"satvault/pkg/domain"
	dErrors "satvault/pkg/domain-errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var jwtService = NewJWTService(
	"test-signing-key",
	"test-issuer",
	"test-audience",
)
var account = domain.AccountID("acct-maintainer-1")
var roles = []domain.Role{domain.RoleMaintainer, domain.RolePauseAdmin}
var expiresIn = time.Hour

func Test_GenerateAccessToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, roles, expiresIn)
	require.NoError(t, err)
	require.NotEmpty(t, token)
	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.NotNil(t, claims)
	assert.Equal(t, string(account), claims.Account)
	assert.Equal(t, []string{"maintainer", "pause_admin"}, claims.Roles)
	assert.WithinDuration(t, time.Now().Add(expiresIn), claims.ExpiresAt.Time, time.Minute)
}

func Test_ValidateToken_InvalidToken(t *testing.T) {
	_, err := jwtService.ValidateToken("invalid-token-string")
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ValidateToken_ExpiredToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, roles, -time.Hour)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "token has expired"))
}

func Test_ValidateToken_WrongKey(t *testing.T) {
	other := NewJWTService("other-key", "test-issuer", "test-audience")
	token, err := other.GenerateAccessToken(account, roles, expiresIn)
	require.NoError(t, err)

	_, err = jwtService.ValidateToken(token)
	require.ErrorIs(t, err, dErrors.New(dErrors.CodeUnauthorized, "invalid token"))
}

func Test_ActorFromToken(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, roles, expiresIn)
	require.NoError(t, err)

	actor, err := jwtService.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, account, actor.Account)
	assert.True(t, actor.HasRole(domain.RoleMaintainer))
	assert.True(t, actor.HasRole(domain.RolePauseAdmin))
	assert.False(t, actor.HasRole(domain.RoleGovernance))
}

func Test_ActorFromToken_NoRoles(t *testing.T) {
	token, err := jwtService.GenerateAccessToken(account, nil, expiresIn)
	require.NoError(t, err)

	actor, err := jwtService.ActorFromToken(token)
	require.NoError(t, err)
	assert.Equal(t, account, actor.Account)
	assert.Empty(t, actor.Roles)
}
