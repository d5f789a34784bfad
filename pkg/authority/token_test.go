package authority

import (
	"testing"
	"time"

	"github.com/cfoust/dodgeball/pkg/protocol"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRequestsAreSerialized(t *testing.T) {
	token := New(1)
	assert.True(t, token.IsOwner(1))
	assert.False(t, token.Request(1, 0))

	require.True(t, token.Request(2, 0))
	assert.False(t, token.Request(3, 0))

	from, to, ok := token.Pending()
	require.True(t, ok)
	assert.Equal(t, protocol.ActorID(1), from)
	assert.Equal(t, protocol.ActorID(2), to)

	// Still the old owner until the grant arrives.
	assert.True(t, token.IsOwner(1))
	assert.False(t, token.IsOwner(2))

	require.NoError(t, token.Grant(1, 2))
	assert.Equal(t, Owned, token.Status())
	assert.True(t, token.IsOwner(2))
	assert.True(t, token.Request(3, 0))
}

func TestGrantFromStranger(t *testing.T) {
	token := New(1)
	assert.Error(t, token.Grant(2, 3))
	assert.True(t, token.IsOwner(1))

	unowned := New(protocol.NoActor)
	assert.False(t, unowned.IsOwner(protocol.NoActor))
	require.NoError(t, unowned.Grant(2, 3))
	assert.True(t, unowned.IsOwner(3))
}

func TestPendingExpires(t *testing.T) {
	token := New(1)
	require.True(t, token.Request(2, time.Second))

	assert.False(t, token.Expired(2*time.Second, 2*time.Second))
	assert.True(t, token.Expired(3*time.Second, 2*time.Second))

	assert.False(t, token.Cancel(3))
	assert.True(t, token.Cancel(2))
	assert.False(t, token.Expired(10*time.Second, 2*time.Second))
	assert.True(t, token.IsOwner(1))
}

func TestForce(t *testing.T) {
	token := New(1)
	token.Request(2, 0)
	token.Defer(3)
	_, to, ok := token.Pending()
	require.True(t, ok)
	assert.Equal(t, protocol.ActorID(2), to)

	token.Force(4)
	assert.True(t, token.IsOwner(4))
	_, _, ok = token.Pending()
	assert.False(t, ok)
	assert.Empty(t, token.TakeDeferred())

	token.Force(protocol.NoActor)
	assert.Equal(t, Unowned, token.Status())
}

func TestDeferWhileMutating(t *testing.T) {
	token := New(1)
	token.BeginMutation()
	assert.True(t, token.Mutating())
	token.Defer(2)
	token.Defer(3)
	token.EndMutation()

	assert.Equal(t, []protocol.ActorID{2, 3}, token.TakeDeferred())
	assert.Empty(t, token.TakeDeferred())
}
