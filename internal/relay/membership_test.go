package relay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMembershipJoinAndLeaveTransitions(t *testing.T) {
	m := NewMembership()

	assert.True(t, m.Join("w1", "u1"), "first connection comes online")
	assert.False(t, m.Join("w1", "u1"), "second connection is not a transition")
	assert.True(t, m.IsOnline("w1", "u1"))

	assert.False(t, m.Leave("w1", "u1"), "one connection remains")
	assert.True(t, m.IsOnline("w1", "u1"))
	assert.True(t, m.Leave("w1", "u1"), "last connection goes offline")
	assert.False(t, m.IsOnline("w1", "u1"))
}

func TestMembershipLeaveIsSafeWhenAbsent(t *testing.T) {
	m := NewMembership()

	assert.False(t, m.Leave("w1", "u1"))

	m.Join("w1", "u1")
	m.Leave("w1", "u1")
	assert.False(t, m.Leave("w1", "u1"))
}

func TestMembershipIsolatesWorkspaces(t *testing.T) {
	m := NewMembership()

	m.Join("w1", "u1")
	m.Join("w2", "u1")
	m.Join("w1", "u2")

	assert.ElementsMatch(t, []string{"u1", "u2"}, m.Online("w1"))
	assert.ElementsMatch(t, []string{"u1"}, m.Online("w2"))

	m.Leave("w1", "u1")
	assert.False(t, m.IsOnline("w1", "u1"))
	assert.True(t, m.IsOnline("w2", "u1"))
}

func TestMembershipPrunesEmptyWorkspaces(t *testing.T) {
	m := NewMembership()

	m.Join("w1", "u1")
	m.Leave("w1", "u1")

	assert.Nil(t, m.Online("w1"))
}
