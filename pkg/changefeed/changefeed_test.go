package changefeed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryFeedDeliversOnlySubscribedTables(t *testing.T) {
	feed := NewMemoryFeed()
	ch, cancel, err := feed.Subscribe(context.Background(), "appointments")
	require.NoError(t, err)
	defer cancel()

	require.NoError(t, feed.Publish(context.Background(), Change{Table: "notifications", Op: OpInsert}))
	require.NoError(t, feed.Publish(context.Background(), Change{Table: "Appointments", ID: "a1", Op: OpUpdate}))

	select {
	case got := <-ch:
		assert.Equal(t, "a1", got.ID)
		assert.Equal(t, OpUpdate, got.Op)
	case <-time.After(time.Second):
		t.Fatal("expected change")
	}
	select {
	case extra := <-ch:
		t.Fatalf("unexpected change %+v", extra)
	default:
	}
}

func TestMemoryFeedClosesOnContextCancel(t *testing.T) {
	feed := NewMemoryFeed()
	ctx, stop := context.WithCancel(context.Background())
	ch, _, err := feed.Subscribe(ctx, "events")
	require.NoError(t, err)

	stop()
	require.Eventually(t, func() bool {
		select {
		case _, open := <-ch:
			return !open
		default:
			return false
		}
	}, time.Second, 5*time.Millisecond)
}

func TestSubscribeRequiresTables(t *testing.T) {
	_, _, err := NewMemoryFeed().Subscribe(context.Background())
	assert.Error(t, err)
	assert.Equal(t, "changes:appointments", Channel(" Appointments "))
}

func TestChangeVisibleTo(t *testing.T) {
	public := Change{Table: "events", ID: "e1", Op: OpInsert}
	assert.True(t, public.VisibleTo("anyone"))

	scoped := Change{Table: "appointments", ID: "a1", Op: OpUpdate, Audience: []string{"tutor-1", "tutee-1"}}
	assert.True(t, scoped.VisibleTo("tutee-1"))
	assert.False(t, scoped.VisibleTo("tutee-2"))
	assert.False(t, scoped.VisibleTo(""))
	assert.Equal(t, Change{Table: "appointments", ID: "a1", Op: OpUpdate}, scoped.Signal())
}
