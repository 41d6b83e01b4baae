package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSession(t *testing.T) {
	var anon Session
	assert.False(t, anon.Authenticated())
	assert.Equal(t, "", anon.AuthorizationHeader())

	s := Session{Token: " abcdef123 ", Username: "ana"}
	assert.True(t, s.Authenticated())
	assert.Equal(t, "Bearer abcdef123", s.AuthorizationHeader())
	assert.Equal(t, "*****f123", s.MaskedToken())
	assert.Equal(t, "**", Session{Token: "ab"}.MaskedToken())
}
