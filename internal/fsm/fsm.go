// Package fsm is the lifecycle of a capture controller.
//
//	uninitialized -init-> initializing -loaded-> ready -start-> capturing
//	                      initializing -fail->   uninitialized
//	                                             capturing -stop-> ready
//
// close moves any state except closed to closed.
package fsm

import (
	"errors"
	"fmt"
)

type State string

type Event string

const (
	StateUninitialized State = "uninitialized"
	StateInitializing  State = "initializing"
	StateReady         State = "ready"
	StateCapturing     State = "capturing"
	StateClosed        State = "closed"
)

const (
	EventInit   Event = "init"
	EventLoaded Event = "loaded"
	EventFail   Event = "fail"
	EventStart  Event = "start"
	EventStop   Event = "stop"
	EventClose  Event = "close"
)

// ErrInvalidTransition is wrapped by every rejected transition.
var ErrInvalidTransition = errors.New("invalid transition")

type edge struct {
	from State
	on   Event
}

var table = map[edge]State{
	{StateUninitialized, EventInit}: StateInitializing,
	{StateInitializing, EventLoaded}: StateReady,
	{StateInitializing, EventFail}:   StateUninitialized,
	{StateReady, EventStart}:         StateCapturing,
	{StateCapturing, EventStop}:      StateReady,
}

func known(s State) bool {
	switch s {
	case StateUninitialized, StateInitializing, StateReady, StateCapturing, StateClosed:
		return true
	}
	return false
}

// Transition returns the state after event, or current and an error.
func Transition(current State, event Event) (State, error) {
	if !known(current) {
		return current, fmt.Errorf("unknown state %q", current)
	}
	if event == EventClose && current != StateClosed {
		return StateClosed, nil
	}
	if next, ok := table[edge{current, event}]; ok {
		return next, nil
	}
	return current, fmt.Errorf("%w: %s --(%s)--> ?", ErrInvalidTransition, current, event)
}
