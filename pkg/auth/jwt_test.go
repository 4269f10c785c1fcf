package auth

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSigner_RoundTrip(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	tok, err := s.GenerateToken("alice")
	require.NoError(t, err)

	claims, err := s.ValidateToken(tok)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.UserID)
	assert.Equal(t, "alice", claims.Subject)
}

func TestSigner_RejectsForeignSecretAndExpired(t *testing.T) {
	tok, err := NewSigner("other", time.Hour).GenerateToken("alice")
	require.NoError(t, err)
	_, err = NewSigner("secret", time.Hour).ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := &Signer{key: []byte("secret"), ttl: -time.Minute}
	tok, err = expired.GenerateToken("alice")
	require.NoError(t, err)
	_, err = expired.ValidateToken(tok)
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestSigner_FromRequest(t *testing.T) {
	s := NewSigner("secret", time.Hour)
	tok, err := s.GenerateToken("bob")
	require.NoError(t, err)

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Authorization", "Bearer "+tok)
	claims, err := s.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.UserID)

	r = httptest.NewRequest("GET", "/ws?token="+tok, nil)
	claims, err = s.FromRequest(r)
	require.NoError(t, err)
	assert.Equal(t, "bob", claims.UserID)

	_, err = s.FromRequest(httptest.NewRequest("GET", "/ws", nil))
	assert.ErrorIs(t, err, ErrMissingToken)
}

func TestClaimsContext(t *testing.T) {
	ctx := WithClaims(httptest.NewRequest("GET", "/", nil).Context(), &Claims{UserID: "carol"})
	c, ok := ClaimsFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, "carol", c.UserID)
}
