package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRoundTrip(t *testing.T) {
	m := NewSessionManager("test-secret", "lattice-gateway")

	token, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	email, err := m.Validate(token)
	require.NoError(t, err)
	assert.Equal(t, "alice@example.com", email)
}

func TestSessionWrongSecret(t *testing.T) {
	m := NewSessionManager("secret-a", "lattice-gateway")
	other := NewSessionManager("secret-b", "lattice-gateway")

	token, err := m.Issue("alice@example.com")
	require.NoError(t, err)

	_, err = other.Validate(token)
	assert.Error(t, err)
}

func TestSessionGarbageToken(t *testing.T) {
	m := NewSessionManager("test-secret", "lattice-gateway")
	_, err := m.Validate("not-a-jwt")
	assert.Error(t, err)
}
