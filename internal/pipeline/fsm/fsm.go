// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package fsm is the typed state machine behind each platform's auth
// lifecycle (UNKNOWN -> CHECKING -> AUTHENTICATED/DEGRADED/DISABLED and
// the heal path back). Unknown transitions are errors, never silent
// no-ops, so an adapter can't drive a platform into a state the session
// manager doesn't expect.
package fsm

import (
	"context"
	"fmt"
	"sync"
)

// Transition is one legal edge. Guard may veto the move; Action runs the
// edge's side effects (a token refresh, a browser re-login) before the
// state is committed.
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

type edge[S ~string, E ~string] struct {
	from  S
	event E
}

// Machine holds the current state and the transition table.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	edges map[edge[S, E]]Transition[S, E]
}

// New builds a Machine starting at initial. A duplicate (from, event)
// pair is a programming error and is rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	edges := make(map[edge[S, E]]Transition[S, E], len(transitions))
	for _, t := range transitions {
		e := edge[S, E]{from: t.From, event: t.Event}
		if _, dup := edges[e]; dup {
			return nil, fmt.Errorf("duplicate transition: %s -> %s", t.From, t.Event)
		}
		edges[e] = t
	}
	return &Machine[S, E]{state: initial, edges: edges}, nil
}

// State returns the current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Fire applies event to the current state. Guard and Action run outside
// the lock — a heal action may take seconds on the shared browser — so a
// concurrent Fire that wins the race invalidates this one instead of
// deadlocking it.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.edges[edge[S, E]{from: from, event: event}]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("invalid transition: state=%s event=%s", from, event)
	}
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, t.To, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != from {
		return m.state, fmt.Errorf("concurrent transition detected: from=%s cur=%s event=%s", from, m.state, event)
	}
	m.state = t.To
	return t.To, nil
}
