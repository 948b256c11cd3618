// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package fsm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authState string
type authEvent string

const (
	stUnknown authState = "UNKNOWN"
	stChecking authState = "CHECKING"
	stOK      authState = "AUTHENTICATED"
	stBad     authState = "DEGRADED"

	evCheck authEvent = "check"
	evOK    authEvent = "ok"
	evBad   authEvent = "bad"
)

func table() []Transition[authState, authEvent] {
	return []Transition[authState, authEvent]{
		{From: stUnknown, Event: evCheck, To: stChecking},
		{From: stChecking, Event: evOK, To: stOK},
		{From: stChecking, Event: evBad, To: stBad},
	}
}

func TestFireFollowsTransitionTable(t *testing.T) {
	m, err := New(stUnknown, table())
	require.NoError(t, err)

	got, err := m.Fire(context.Background(), evCheck)
	require.NoError(t, err)
	assert.Equal(t, stChecking, got)

	got, err = m.Fire(context.Background(), evOK)
	require.NoError(t, err)
	assert.Equal(t, stOK, got)
	assert.Equal(t, stOK, m.State())
}

func TestFireRejectsUnknownTransition(t *testing.T) {
	m, err := New(stUnknown, table())
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), evOK)
	require.Error(t, err)
	assert.Equal(t, stUnknown, m.State(), "state must not move on an invalid event")
}

func TestNewRejectsDuplicateEdges(t *testing.T) {
	dup := append(table(), Transition[authState, authEvent]{From: stUnknown, Event: evCheck, To: stBad})
	_, err := New(stUnknown, dup)
	require.Error(t, err)
}

func TestGuardVetoesTransition(t *testing.T) {
	veto := errors.New("token cache unreadable")
	trs := []Transition[authState, authEvent]{
		{From: stUnknown, Event: evCheck, To: stChecking, Guard: func(ctx context.Context, from authState, event authEvent) error {
			return veto
		}},
	}
	m, err := New(stUnknown, trs)
	require.NoError(t, err)

	_, err = m.Fire(context.Background(), evCheck)
	assert.ErrorIs(t, err, veto)
	assert.Equal(t, stUnknown, m.State())
}

func TestActionRunsBeforeCommit(t *testing.T) {
	ran := false
	trs := []Transition[authState, authEvent]{
		{From: stUnknown, Event: evCheck, To: stChecking, Action: func(ctx context.Context, from, to authState, event authEvent) error {
			ran = true
			return nil
		}},
	}
	m, err := New(stUnknown, trs)
	require.NoError(t, err)

	got, err := m.Fire(context.Background(), evCheck)
	require.NoError(t, err)
	assert.True(t, ran)
	assert.Equal(t, stChecking, got)
}
