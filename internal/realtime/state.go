// Package realtime implements the websocket speech session: one persistent
// bidirectional connection carrying one conversation turn.
package realtime

import (
	"errors"
	"fmt"
	"sync"
)

// State represents the lifecycle state of a session.
type State int

const (
	// StateConnecting - dial in progress, nothing sent yet.
	StateConnecting State = iota
	// StateOpen - connection established, turn not yet sent.
	StateOpen
	// StateAwaitingReply - turn sent, no reply audio received yet.
	StateAwaitingReply
	// StateStreaming - reply fragments are arriving.
	StateStreaming
	// StateDone - service signalled completion. Terminal.
	StateDone
	// StateError - connection or protocol failure. Terminal.
	StateError
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "CONNECTING"
	case StateOpen:
		return "OPEN"
	case StateAwaitingReply:
		return "AWAITING_REPLY"
	case StateStreaming:
		return "STREAMING"
	case StateDone:
		return "DONE"
	case StateError:
		return "ERROR"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", s)
	}
}

// IsTerminal returns true if the state is terminal (DONE or ERROR).
func (s State) IsTerminal() bool {
	return s == StateDone || s == StateError
}

// Errors for invalid state transitions.
var (
	ErrSessionTerminal  = errors.New("session is in a terminal state")
	ErrTurnAlreadySent  = errors.New("turn already sent on this session")
	ErrTurnNotSent      = errors.New("no turn has been sent on this session")
	ErrSessionNotOpen   = errors.New("session is not open")
)

// Lifecycle manages the state machine for a single session.
// Thread-safe for concurrent access.
//
// State transitions:
//
//	CONNECTING → OPEN → AWAITING_REPLY → STREAMING → DONE
//	     │         │          │              │
//	     └─────────┴──────────┴──────────────┴──→ ERROR
//
// One turn per session: SendTurn is valid exactly once, replies may stream
// any number of fragments, Finish is valid once a turn is in flight.
type Lifecycle struct {
	mu    sync.RWMutex
	state State
}

// NewLifecycle creates a new session lifecycle in CONNECTING state.
func NewLifecycle() *Lifecycle {
	return &Lifecycle{state: StateConnecting}
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Opened transitions CONNECTING → OPEN.
func (l *Lifecycle) Opened() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state != StateConnecting {
		return fmt.Errorf("cannot open from %s", l.state)
	}
	l.state = StateOpen
	return nil
}

// TurnSent transitions OPEN → AWAITING_REPLY.
func (l *Lifecycle) TurnSent() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateOpen:
		l.state = StateAwaitingReply
		return nil
	case StateAwaitingReply, StateStreaming:
		return ErrTurnAlreadySent
	case StateDone, StateError:
		return ErrSessionTerminal
	default:
		return ErrSessionNotOpen
	}
}

// DeltaReceived records an incoming reply fragment, transitioning
// AWAITING_REPLY → STREAMING on the first one.
func (l *Lifecycle) DeltaReceived() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateAwaitingReply:
		l.state = StateStreaming
		return nil
	case StateStreaming:
		return nil
	case StateDone, StateError:
		return ErrSessionTerminal
	default:
		return ErrTurnNotSent
	}
}

// Finish transitions AWAITING_REPLY or STREAMING → DONE.
func (l *Lifecycle) Finish() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch l.state {
	case StateAwaitingReply, StateStreaming:
		l.state = StateDone
		return nil
	case StateDone, StateError:
		return ErrSessionTerminal
	default:
		return ErrTurnNotSent
	}
}

// Fail transitions any non-terminal state to ERROR. Idempotent on ERROR.
// Returns true if the state changed.
func (l *Lifecycle) Fail() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.state.IsTerminal() {
		return false
	}
	l.state = StateError
	return true
}
