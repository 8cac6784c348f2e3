package trip

import (
	"errors"
	"sync"

	"github.com/cuemby/warden/pkg/log"
	"github.com/cuemby/warden/pkg/metrics"
)

// ErrTripped indicates the switch has been actuated; non-exempt requests
// fail fast until the process restarts
var ErrTripped = errors.New("service unavailable: trip switch actuated")

// Mode selects what actuation does, chosen once at startup
type Mode string

const (
	// ModeReject fails all subsequent non-exempt requests with ErrTripped
	ModeReject Mode = "reject"
	// ModeShutdown additionally initiates process shutdown
	ModeShutdown Mode = "shutdown"
)

// Switch is a one-shot circuit breaker scoped to its enclosing service
// instance. Once actuated it stays actuated for the life of the process;
// there is no half-open state.
type Switch struct {
	mode       Mode
	onShutdown func()

	mu      sync.RWMutex
	tripped bool
	cause   error
}

// New creates a switch. onShutdown is invoked once when a ModeShutdown
// switch actuates; it may be nil for ModeReject.
func New(mode Mode, onShutdown func()) *Switch {
	if mode != ModeShutdown {
		mode = ModeReject
	}
	return &Switch{mode: mode, onShutdown: onShutdown}
}

// Trip actuates the switch. Only the first call has effect.
func (s *Switch) Trip(cause error) {
	s.mu.Lock()
	if s.tripped {
		s.mu.Unlock()
		return
	}
	s.tripped = true
	s.cause = cause
	s.mu.Unlock()

	metrics.TripSwitchActuated.Set(1)
	logger := log.WithComponent("trip")
	logger.Error().Err(cause).Str("mode", string(s.mode)).Msg("trip switch actuated")

	if s.mode == ModeShutdown && s.onShutdown != nil {
		s.onShutdown()
	}
}

// Tripped reports whether the switch has been actuated
func (s *Switch) Tripped() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.tripped
}

// Check returns ErrTripped when the switch has been actuated
func (s *Switch) Check() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.tripped {
		return ErrTripped
	}
	return nil
}

// Cause returns the error that actuated the switch, or nil
func (s *Switch) Cause() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cause
}
