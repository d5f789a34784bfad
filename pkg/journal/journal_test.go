package journal

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/cfoust/dodgeball/pkg/geom"
	"github.com/cfoust/dodgeball/pkg/lifecycle"
	"github.com/cfoust/dodgeball/pkg/protocol"
	"github.com/cfoust/dodgeball/pkg/utils"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func open(t *testing.T) *Journal {
	j, err := Open(filepath.Join(t.TempDir(), "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { j.Close() })
	return j
}

func TestRecord(t *testing.T) {
	j := open(t)

	assert.Error(t, j.Record(lifecycle.Event{Kind: lifecycle.EventHit}))

	match, err := j.Begin("court", 2)
	require.NoError(t, err)

	require.NoError(t, j.Record(lifecycle.Event{
		Kind:     lifecycle.EventHit,
		Handle:   65537,
		Actor:    2,
		Attacker: 1,
		Damage:   14,
		Reason:   protocol.DamageFailedCatch,
		Position: geom.Vec{1, 2, 3},
		At:       1500 * time.Millisecond,
	}))
	require.NoError(t, j.Record(lifecycle.Event{Kind: lifecycle.EventThrown, Actor: 1}))
	require.NoError(t, j.Record(lifecycle.Event{Kind: lifecycle.EventThrown, Actor: 1}))
	// Not kept.
	require.NoError(t, j.Record(lifecycle.Event{Kind: lifecycle.EventWallBounce}))

	events, err := j.Events(match)
	require.NoError(t, err)
	require.Len(t, events, 3)

	hit := events[0]
	assert.Equal(t, "hit", hit.Kind)
	assert.Equal(t, uint32(65537), hit.Ball)
	assert.Equal(t, int32(1), hit.Attacker)
	assert.Equal(t, 14, hit.Damage)
	assert.Equal(t, "failed-catch", hit.Reason)
	assert.Equal(t, 3.0, hit.Z)
	assert.Equal(t, 1500*time.Millisecond, hit.At)

	summary, err := j.Summary(match)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"hit": 1, "thrown": 2}, summary)

	// A new match starts empty.
	next, err := j.Begin("court", 2)
	require.NoError(t, err)
	events, err = j.Events(next)
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestFollow(t *testing.T) {
	j := open(t)
	match, err := j.Begin("court", 1)
	require.NoError(t, err)

	topic := utils.NewTopic[lifecycle.Event]()
	ctx, cancel := context.WithCancel(context.Background())
	sub := topic.Subscribe()
	done := make(chan struct{})
	go func() {
		j.Follow(ctx, sub)
		close(done)
	}()

	topic.Publish(lifecycle.Event{Kind: lifecycle.EventCaught, Actor: 2})
	topic.Publish(lifecycle.Event{Kind: lifecycle.EventReset})

	require.Eventually(t, func() bool {
		events, err := j.Events(match)
		return err == nil && len(events) == 2
	}, 5*time.Second, 10*time.Millisecond)

	cancel()
	<-done
}
