package mcp

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSessionRegistry_RegisterAndList(t *testing.T) {
	r := NewSessionRegistry()
	assert.Empty(t, r.Sessions())

	r.Register("sess-1")
	r.Register("sess-2")
	assert.ElementsMatch(t, []string{"sess-1", "sess-2"}, r.Sessions())
}

func TestSessionRegistry_RegisterIsIdempotent(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("sess-1")
	r.Register("sess-1")
	assert.Len(t, r.Sessions(), 1)
}

func TestSessionRegistry_IgnoresEmptyID(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("")
	assert.Empty(t, r.Sessions())
}

func TestSessionRegistry_Remove(t *testing.T) {
	r := NewSessionRegistry()
	r.Register("sess-1")
	r.Register("sess-2")

	r.Remove("sess-1")
	assert.ElementsMatch(t, []string{"sess-2"}, r.Sessions())

	// Removing an unknown session is a no-op.
	r.Remove("sess-9")
	assert.Len(t, r.Sessions(), 1)
}
