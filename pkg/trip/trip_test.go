package trip

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTripIsOneShot tests that only the first actuation records a cause
func TestTripIsOneShot(t *testing.T) {
	s := New(ModeReject, nil)
	require.False(t, s.Tripped())
	require.NoError(t, s.Check())
	assert.Nil(t, s.Cause())

	first := errors.New("persist failed")
	s.Trip(first)
	s.Trip(errors.New("second cause"))

	assert.True(t, s.Tripped())
	assert.ErrorIs(t, s.Check(), ErrTripped)
	assert.Equal(t, first, s.Cause())
}

// TestShutdownModeInvokesCallbackOnce tests the shutdown actuation path
func TestShutdownModeInvokesCallbackOnce(t *testing.T) {
	calls := 0
	s := New(ModeShutdown, func() { calls++ })

	s.Trip(errors.New("boom"))
	s.Trip(errors.New("again"))
	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, s.Check(), ErrTripped)
}

// TestUnknownModeCoercedToReject tests the mode fallback
func TestUnknownModeCoercedToReject(t *testing.T) {
	calls := 0
	s := New(Mode("explode"), func() { calls++ })

	s.Trip(errors.New("boom"))
	assert.True(t, s.Tripped())
	assert.Equal(t, 0, calls)
}
