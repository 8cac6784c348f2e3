package pause

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestOpenGatePassesImmediately tests the resumed state
func TestOpenGatePassesImmediately(t *testing.T) {
	p := New()
	assert.False(t, p.Paused())
	assert.NoError(t, p.TestPause(context.Background()))
}

// TestPauseBlocksUntilResume tests that checkpoints block while paused and
// release on resume
func TestPauseBlocksUntilResume(t *testing.T) {
	p := New()
	p.Pause()
	require.True(t, p.Paused())

	released := make(chan error, 1)
	go func() {
		released <- p.TestPause(context.Background())
	}()

	select {
	case <-released:
		t.Fatal("checkpoint passed while paused")
	case <-time.After(20 * time.Millisecond):
	}

	p.Resume()
	select {
	case err := <-released:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("checkpoint not released by resume")
	}
}

// TestPauseRespectsContext tests that a blocked checkpoint honors
// cancellation
func TestPauseRespectsContext(t *testing.T) {
	p := New()
	p.Pause()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.TestPause(ctx), context.DeadlineExceeded)
}

// TestRepeatedPauseAndResume tests idempotent transitions
func TestRepeatedPauseAndResume(t *testing.T) {
	p := New()
	p.Pause()
	p.Pause()
	assert.True(t, p.Paused())

	p.Resume()
	p.Resume()
	assert.False(t, p.Paused())
	assert.NoError(t, p.TestPause(context.Background()))
}
