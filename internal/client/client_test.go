package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theonlypal/collabfs/internal/model"
)

func TestClientWriteFileUsesOwnSession(t *testing.T) {
	c := New(DefaultConfig("ws://example.invalid", "alice", "s1"), nil)

	c.Session().WriteFile("/a.txt", "hi", "alice", model.WriteOverwrite)

	text, ok := c.Session().ReadFile("/a.txt")
	require.True(t, ok)
	assert.Equal(t, "hi", text)
}

func TestSendActivityUpdatesLocalPresence(t *testing.T) {
	c := New(DefaultConfig("ws://example.invalid", "alice", "s1"), nil)
	c.SendActivity(model.ActivityEditing, "/a.txt")

	act, ok := c.Session().Document().Activity("alice")
	require.True(t, ok)
	assert.Equal(t, model.ActivityEditing, act.Action)
	assert.Equal(t, "/a.txt", act.CurrentFile)
}

func TestOnLocalChangeNoOpWhenDisconnected(t *testing.T) {
	c := New(DefaultConfig("ws://example.invalid", "alice", "s1"), nil)

	// No connection established: onLocalChange (wired via Document.Subscribe
	// in New) must not panic or block when writeFrame finds conn == nil.
	c.Session().WriteFile("/a.txt", "hi", "alice", model.WriteOverwrite)
}

func TestRequestMoveAndDeleteNoOpWhenDisconnected(t *testing.T) {
	c := New(DefaultConfig("ws://example.invalid", "alice", "s1"), nil)

	// Neither call touches the local document — move/delete are server-
	// authoritative, so these only attempt a frame write, which is a no-op
	// with no connection. Must not panic or block.
	c.RequestMove("/a.txt", "/b.txt")
	c.RequestDelete("/a.txt")

	assert.False(t, c.Session().Document().Exists("/b.txt"))
}
