package room

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_PutAndMembers(t *testing.T) {
	r := NewRegistry()

	r.Put("c1", "alice", "R1")
	r.Put("c2", "bob", "R1")
	r.Put("c3", "carol", "R2")

	members := r.MembersOf("R1")
	require.Len(t, members, 2)
	assert.Equal(t, "alice", members[0].Name)
	assert.Equal(t, "bob", members[1].Name)

	assert.Len(t, r.MembersOf("R2"), 1)
	assert.Equal(t, 3, r.Len())
	assert.Equal(t, []string{"R1", "R2"}, r.Rooms())
}

func TestRegistry_MembersOfUnknownRoom(t *testing.T) {
	r := NewRegistry()

	members := r.MembersOf("nowhere")
	assert.NotNil(t, members)
	assert.Empty(t, members)
}

func TestRegistry_PutIsIdempotent(t *testing.T) {
	r := NewRegistry()

	r.Put("c1", "alice", "R1")
	r.Put("c2", "bob", "R1")
	r.Put("c1", "alice", "R1")

	members := r.MembersOf("R1")
	require.Len(t, members, 2)
	assert.Equal(t, "c1", members[0].ConnID, "re-put must keep join order")
}

func TestRegistry_PutMovesConnection(t *testing.T) {
	r := NewRegistry()

	r.Put("c1", "alice", "R1")
	r.Put("c1", "alice", "R2")

	assert.Empty(t, r.MembersOf("R1"))
	assert.Len(t, r.MembersOf("R2"), 1)
	assert.Equal(t, 1, r.Len())
}

func TestRegistry_Remove(t *testing.T) {
	r := NewRegistry()
	r.Put("c1", "alice", "R1")

	e, ok := r.Remove("c1")
	require.True(t, ok)
	assert.Equal(t, Entry{ConnID: "c1", Name: "alice", RoomCode: "R1", seq: 1}, e)

	_, ok = r.Remove("c1")
	assert.False(t, ok)

	_, ok = r.Get("c1")
	assert.False(t, ok)
}
