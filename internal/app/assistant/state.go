package assistant

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// State is the stage an assistant turn has reached
type State string

const (
	StateSent       State = "SENT"
	StateAnalyzing  State = "ANALYZING"
	StateEnriched   State = "ENRICHED"
	StateDispatched State = "DISPATCHED"
	StateReplied    State = "REPLIED"
	StateFailed     State = "FAILED"
)

// ErrInvalidTransition is returned when a turn is moved out of order
var ErrInvalidTransition = errors.New("invalid assistant state transition")

// every non-terminal state may also fail
var transitions = map[State][]State{
	StateSent:       {StateAnalyzing, StateFailed},
	StateAnalyzing:  {StateEnriched, StateFailed},
	StateEnriched:   {StateDispatched, StateFailed},
	StateDispatched: {StateReplied, StateFailed},
}

// Terminal reports whether no transition leaves s
func (s State) Terminal() bool {
	return s == StateReplied || s == StateFailed
}

// CanTransition reports whether s may move to next
func (s State) CanTransition(next State) bool {
	return slices.Contains(transitions[s], next)
}

// TurnEvent describes a state change of one turn
type TurnEvent struct {
	ChatID    string
	MessageID string
	UserID    string
	State     State
	Intent    string
}

// Listener observes turn state changes. Listeners run synchronously on the
// goroutine driving the turn and must not block.
type Listener func(TurnEvent)

// Turn is one user message travelling through the assistant pipeline
type Turn struct {
	mu        sync.Mutex
	chatID    string
	messageID string
	userID    string
	state     State
	intent    string
	notify    Listener
}

// NewTurn starts a turn in SENT
func NewTurn(chatID, messageID, userID string, notify Listener) *Turn {
	return &Turn{
		chatID:    chatID,
		messageID: messageID,
		userID:    userID,
		state:     StateSent,
		notify:    notify,
	}
}

// State returns the current state
func (t *Turn) State() State {
	if t == nil {
		return ""
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}

// SetIntent records the intent that enriched the turn
func (t *Turn) SetIntent(name string) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.intent = name
	t.mu.Unlock()
}

// Advance moves the turn to next. A nil turn accepts every transition, so
// generation can run without tracking.
func (t *Turn) Advance(next State) error {
	if t == nil {
		return nil
	}
	t.mu.Lock()
	if !t.state.CanTransition(next) {
		current := t.state
		t.mu.Unlock()
		return fmt.Errorf("%s -> %s: %w", current, next, ErrInvalidTransition)
	}
	t.state = next
	event := TurnEvent{
		ChatID:    t.chatID,
		MessageID: t.messageID,
		UserID:    t.userID,
		State:     next,
		Intent:    t.intent,
	}
	t.mu.Unlock()

	if t.notify != nil {
		t.notify(event)
	}
	return nil
}

// Fail moves the turn to FAILED unless it already ended
func (t *Turn) Fail() {
	if t.State().Terminal() {
		return
	}
	_ = t.Advance(StateFailed)
}
