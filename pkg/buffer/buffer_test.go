package buffer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cuemby/warden/pkg/types"
)

func userAdd(user string) *types.Event {
	ev := types.NewEvent(types.ActionAdd, types.KindUser)
	ev.User = user
	return ev.Stamp()
}

func groupAdd(group string) *types.Event {
	ev := types.NewEvent(types.ActionAdd, types.KindGroup)
	ev.Group = group
	return ev.Stamp()
}

// TestDrainMergesInEnqueueOrder tests that events of different kinds come
// back in global enqueue order
func TestDrainMergesInEnqueueOrder(t *testing.T) {
	b := New(0)
	e1 := userAdd("u1")
	e2 := groupAdd("g1")
	e3 := userAdd("u2")
	e4 := groupAdd("g2")
	b.EnqueueAll([]*types.Event{e1, e2, e3, e4})

	assert.Equal(t, 4, b.Len())
	batch := b.Drain()
	require.Len(t, batch, 4)
	assert.Equal(t, []*types.Event{e1, e2, e3, e4}, batch)

	assert.Equal(t, 0, b.Len())
	assert.Empty(t, b.Drain())
}

// TestSizeThresholdPulsesSignal tests the size-limited flush trigger
func TestSizeThresholdPulsesSignal(t *testing.T) {
	b := New(3)
	b.Enqueue(userAdd("u1"))
	b.Enqueue(userAdd("u2"))

	select {
	case <-b.Signal():
		t.Fatal("signal pulsed below threshold")
	default:
	}

	b.Enqueue(userAdd("u3"))
	select {
	case <-b.Signal():
	default:
		t.Fatal("signal not pulsed at threshold")
	}
}

type fakePersister struct {
	batches [][]*types.Event
	err     error
}

func (p *fakePersister) PersistBatch(ctx context.Context, events []*types.Event) error {
	if p.err != nil {
		return p.err
	}
	p.batches = append(p.batches, events)
	return nil
}

type recordingAppender struct {
	appended []*types.Event
}

func (a *recordingAppender) Append(events []*types.Event) {
	a.appended = append(a.appended, events...)
}

// TestFlushPersistsThenCaches tests that a flush persists the drained batch
// and only then feeds the cache
func TestFlushPersistsThenCaches(t *testing.T) {
	b := New(0)
	p := &fakePersister{}
	a := &recordingAppender{}
	f := NewFlusher(b, p, a, FlusherConfig{})

	e1 := userAdd("u1")
	e2 := groupAdd("g1")
	b.EnqueueAll([]*types.Event{e1, e2})
	f.Flush()

	require.Len(t, p.batches, 1)
	assert.Equal(t, []*types.Event{e1, e2}, p.batches[0])
	assert.Equal(t, []*types.Event{e1, e2}, a.appended)
	assert.Equal(t, 0, b.Len())

	// An empty buffer flush is a no-op
	f.Flush()
	assert.Len(t, p.batches, 1)
}

// TestFlushFailureInvokesCallback tests that a failed persist skips the cache
// and reports through OnFailure
func TestFlushFailureInvokesCallback(t *testing.T) {
	b := New(0)
	persistErr := errors.New("disk full")
	p := &fakePersister{err: persistErr}
	a := &recordingAppender{}

	var reported error
	f := NewFlusher(b, p, a, FlusherConfig{OnFailure: func(err error) { reported = err }})

	b.Enqueue(userAdd("u1"))
	f.Flush()

	assert.ErrorIs(t, reported, persistErr)
	assert.Empty(t, a.appended)
}

// TestStopDrainsRemainingEvents tests the final drain on shutdown
func TestStopDrainsRemainingEvents(t *testing.T) {
	b := New(0)
	p := &fakePersister{}
	f := NewFlusher(b, p, nil, FlusherConfig{})
	f.Start()

	b.Enqueue(userAdd("u1"))
	f.Stop()

	require.Len(t, p.batches, 1)
	assert.Len(t, p.batches[0], 1)
}
