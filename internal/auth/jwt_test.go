package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssueAndParse(t *testing.T) {
	tokens, err := Issue("acc-1", "alice", RoleStudent, "student-portal", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)
	require.NotEmpty(t, tokens.AccessToken)
	require.NotEmpty(t, tokens.RefreshToken)

	claims, err := Parse(tokens.AccessToken, "test-key", "student-portal")
	require.NoError(t, err)
	assert.Equal(t, "acc-1", claims.Subject)
	assert.Equal(t, "alice", claims.Username)
	assert.Equal(t, RoleStudent, claims.Role)
}

func TestParseRejectsWrongKey(t *testing.T) {
	tokens, err := Issue("acc-1", "alice", RoleAdmin, "student-portal", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, "other-key", "student-portal")
	assert.Error(t, err)
}

func TestParseRejectsIssuerMismatch(t *testing.T) {
	tokens, err := Issue("acc-1", "alice", RoleAdmin, "someone-else", "test-key", time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, "test-key", "student-portal")
	assert.Error(t, err)
}

func TestParseRejectsExpiredToken(t *testing.T) {
	tokens, err := Issue("acc-1", "alice", RoleStudent, "student-portal", "test-key", -time.Minute, time.Hour)
	require.NoError(t, err)

	_, err = Parse(tokens.AccessToken, "test-key", "student-portal")
	assert.Error(t, err)
}
