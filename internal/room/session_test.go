// internal/room/session_test.go
package room

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/game"
	"github.com/jason-s-yu/landlord/internal/models"
)

// fakeMember records every event the session delivers to one connection.
type fakeMember struct {
	mu     sync.Mutex
	events []game.Event
}

func (m *fakeMember) Send(ev game.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
}

func (m *fakeMember) lastSnapshot() *game.Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == game.EventStateSnapshot {
			return m.events[i].State
		}
	}
	return nil
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.WarnLevel)
	s := NewSession(logger, board.Classic(), game.DefaultSettings())
	t.Cleanup(s.Close)
	return s
}

func TestJoinDeliversSnapshot(t *testing.T) {
	s := newTestSession(t)

	m1 := &fakeMember{}
	p1, err := s.Join("alice", false, m1)
	require.NoError(t, err)
	require.NotNil(t, p1)

	snap := m1.lastSnapshot()
	require.NotNil(t, snap, "joining must deliver the current state")
	assert.False(t, snap.Started)
	assert.Len(t, snap.Players, 1)
}

func TestStartAndCommandOrdering(t *testing.T) {
	s := newTestSession(t)

	m1, m2 := &fakeMember{}, &fakeMember{}
	p1, err := s.Join("alice", false, m1)
	require.NoError(t, err)
	_, err = s.Join("bob", false, m2)
	require.NoError(t, err)

	require.NoError(t, s.Start())

	// The queue is FIFO, so a Snapshot() issued after Enqueue observes the
	// command's effects.
	require.NoError(t, s.Enqueue(p1.ID, models.Command{
		Type: models.CmdRollDice,
		Dice: &models.DiceOverride{D1: 1, D2: 2},
	}))
	snap := s.Snapshot()
	require.NotNil(t, snap)
	assert.Equal(t, game.StateAwaitingPropertyDecision, snap.State)
	assert.Equal(t, 3, snap.Players[0].Position)

	require.NoError(t, s.Enqueue(p1.ID, models.Command{Type: models.CmdBuyProperty}))
	snap = s.Snapshot()
	own, ok := snap.Ownerships["Rio"]
	require.True(t, ok)
	assert.Equal(t, p1.ID, own.Owner)
	assert.Equal(t, 1440, snap.Players[0].Cash)

	// Both members saw the post-purchase state.
	for _, m := range []*fakeMember{m1, m2} {
		latest := m.lastSnapshot()
		require.NotNil(t, latest)
		_, ok := latest.Ownerships["Rio"]
		assert.True(t, ok)
	}
}

func TestStartRequiresTwoPlayers(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Join("alone", false, &fakeMember{})
	require.NoError(t, err)
	assert.Error(t, s.Start())
}

func TestReconnectResendsSnapshotOnly(t *testing.T) {
	s := newTestSession(t)

	m1 := &fakeMember{}
	p1, err := s.Join("alice", false, m1)
	require.NoError(t, err)
	_, err = s.Join("bob", false, &fakeMember{})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	s.Disconnect(p1.ID)
	snapBefore := s.Snapshot()

	m1b := &fakeMember{}
	require.NoError(t, s.Reconnect(p1.ID, m1b))
	snap := m1b.lastSnapshot()
	require.NotNil(t, snap)
	assert.Equal(t, snapBefore.State, snap.State)
	assert.Len(t, snap.Players, 2, "reconnection never mutates the roster")

	assert.Error(t, s.Reconnect(uuid.New(), &fakeMember{}), "unknown player")
}

func TestCloseRejectsEnqueue(t *testing.T) {
	s := newTestSession(t)
	p, err := s.Join("alice", false, &fakeMember{})
	require.NoError(t, err)

	s.Close()
	assert.Error(t, s.Enqueue(p.ID, models.Command{Type: models.CmdRollDice}))
}

func TestLastDisconnectTearsDownRoom(t *testing.T) {
	s := newTestSession(t)

	var emptied bool
	s.OnEmpty = func(id uuid.UUID) { emptied = true }

	p, err := s.Join("alice", false, &fakeMember{})
	require.NoError(t, err)
	s.Disconnect(p.ID)

	assert.True(t, emptied)
	assert.Error(t, s.Enqueue(p.ID, models.Command{Type: models.CmdRollDice}))
}

func TestGameLogAccumulates(t *testing.T) {
	s := newTestSession(t)
	_, err := s.Join("alice", false, &fakeMember{})
	require.NoError(t, err)
	_, err = s.Join("bob", false, &fakeMember{})
	require.NoError(t, err)
	require.NoError(t, s.Start())

	entries := s.Log()
	require.NotEmpty(t, entries)
	types := make(map[string]bool)
	for _, e := range entries {
		types[e.Type] = true
	}
	assert.True(t, types["player_join"])
	assert.True(t, types["game_start"])
}

func TestBotPlaysItsTurn(t *testing.T) {
	s := newTestSession(t)

	m1 := &fakeMember{}
	human, err := s.Join("alice", false, m1)
	require.NoError(t, err)
	_, err = s.AddBot("robby")
	require.NoError(t, err)
	require.NoError(t, s.Start())

	// Human turn first: roll, resolve, end.
	require.NoError(t, s.Enqueue(human.ID, models.Command{
		Type: models.CmdRollDice,
		Dice: &models.DiceOverride{D1: 1, D2: 2},
	}))
	require.NoError(t, s.Enqueue(human.ID, models.Command{Type: models.CmdDeclineProperty}))

	// The bot never bids; once the human passes too the property stays with
	// the bank and the turn boundary comes back to the human.
	snap := s.Snapshot()
	if snap.Auction != nil {
		require.NoError(t, s.Enqueue(human.ID, models.Command{Type: models.CmdAuctionPass}))
		require.Eventually(t, func() bool {
			cur := s.Snapshot()
			return cur != nil && cur.Auction == nil
		}, 5*time.Second, 50*time.Millisecond, "bot should pass and drain the auction")
	}
	snap = s.Snapshot()
	if snap.State == game.StateAwaitingEndTurn && snap.CurrentPlayerID == human.ID {
		require.NoError(t, s.Enqueue(human.ID, models.Command{Type: models.CmdEndTurn}))
	}

	// The bot takes its whole turn unattended and hands play back.
	assert.Eventually(t, func() bool {
		cur := s.Snapshot()
		return cur != nil && cur.CurrentPlayerID == human.ID && cur.State == game.StateAwaitingRoll
	}, 10*time.Second, 50*time.Millisecond, "bot should finish its turn on its own")
}
