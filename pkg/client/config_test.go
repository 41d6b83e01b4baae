package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidate_DefaultAcceptIsCopied(t *testing.T) {
	want := append([]string(nil), DefaultAccept...)

	var cfg Config
	require.NoError(t, cfg.Validate())
	require.Equal(t, want, cfg.Accept)

	cfg.Accept[0] = "*.gif"
	assert.Equal(t, want, DefaultAccept)

	var other Config
	require.NoError(t, other.Validate())
	assert.True(t, other.accepts("clip.mp4"))
	assert.False(t, other.accepts("clip.gif"))
}
