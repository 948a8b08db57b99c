// internal/room/session.go
package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/jason-s-yu/landlord/internal/board"
	"github.com/jason-s-yu/landlord/internal/cache"
	"github.com/jason-s-yu/landlord/internal/database"
	"github.com/jason-s-yu/landlord/internal/game"
	"github.com/jason-s-yu/landlord/internal/models"
)

// maxLogEntries caps the in-memory game log kept for late joiners; older
// entries survive only in the historian's database.
const maxLogEntries = 256

// botMoveDelay spaces out bot commands so humans can follow the game.
const botMoveDelay = 400 * time.Millisecond

// Member is one connected room member's send side. Implementations must not
// block: the engine broadcasts from the room worker goroutine.
type Member interface {
	Send(ev game.Event)
}

// envelope is one unit of work for the room worker: either a player command
// or a control closure (join/leave/start) that needs engine access.
type envelope struct {
	playerID uuid.UUID
	cmd      models.Command
	control  func()
	ack      chan struct{}
}

// Session is one live room: the engine plus the single worker goroutine that
// serializes every command for it. All engine access goes through the inbox,
// so the engine itself needs no locking.
type Session struct {
	ID     uuid.UUID
	logger *logrus.Logger
	game   *game.Game

	inbox chan envelope
	done  chan struct{}
	once  sync.Once

	// mu guards the member table and log buffer, which the transport
	// goroutines read while the worker writes.
	mu      sync.Mutex
	members map[uuid.UUID]Member
	logBuf  []models.LogEntry
	logIdx  int

	// OnEmpty is invoked after the last member disconnects, typically to
	// delete the session from the store.
	OnEmpty func(roomID uuid.UUID)
}

// NewSession creates a room over the given board with the given settings and
// starts its worker goroutine.
func NewSession(logger *logrus.Logger, m *board.Map, settings game.Settings) *Session {
	id, _ := uuid.NewRandom()
	s := &Session{
		ID:      id,
		logger:  logger,
		inbox:   make(chan envelope, 64),
		done:    make(chan struct{}),
		members: make(map[uuid.UUID]Member),
	}
	g := game.NewGame(id, m, settings, time.Now().UnixNano())
	g.BroadcastFn = s.broadcast
	g.BroadcastToPlayerFn = s.broadcastToPlayer
	g.ScheduleFn = s.schedule
	g.LogFn = s.appendLog
	g.OnGameEnd = s.persistResults
	s.game = g

	go s.run()
	return s
}

func (s *Session) run() {
	for {
		select {
		case env := <-s.inbox:
			if env.control != nil {
				env.control()
				if env.ack != nil {
					close(env.ack)
				}
			} else {
				s.game.HandleCommand(env.playerID, env.cmd)
			}
			s.maybeQueueBotMove()
		case <-s.done:
			return
		}
	}
}

// Enqueue submits a player command to the room's ordered queue.
func (s *Session) Enqueue(playerID uuid.UUID, cmd models.Command) error {
	select {
	case <-s.done:
		return fmt.Errorf("room %s is closed", s.ID)
	case s.inbox <- envelope{playerID: playerID, cmd: cmd}:
		return nil
	default:
		return fmt.Errorf("room %s command queue is full", s.ID)
	}
}

// do runs fn on the worker goroutine and waits for it to complete.
func (s *Session) do(fn func()) error {
	ack := make(chan struct{})
	select {
	case <-s.done:
		return fmt.Errorf("room %s is closed", s.ID)
	case s.inbox <- envelope{control: fn, ack: ack}:
	}
	select {
	case <-ack:
		return nil
	case <-s.done:
		return fmt.Errorf("room %s closed while processing", s.ID)
	}
}

// Join adds a player and registers their connection. Reconnection of a known
// player never mutates game state; it only re-sends the snapshot.
func (s *Session) Join(name string, isBot bool, m Member) (*models.Player, error) {
	var p *models.Player
	var joinErr error
	err := s.do(func() {
		p, joinErr = s.game.AddPlayer(name, isBot)
	})
	if err != nil {
		return nil, err
	}
	if joinErr != nil {
		return nil, joinErr
	}
	if m != nil {
		s.mu.Lock()
		s.members[p.ID] = m
		s.mu.Unlock()
		s.sendSnapshot(p.ID)
	}
	return p, nil
}

// AddBot joins a bot player with no connection.
func (s *Session) AddBot(name string) (*models.Player, error) {
	return s.Join(name, true, nil)
}

// Reconnect re-attaches a connection for an existing player and re-sends the
// full snapshot. The engine holds no per-connection data.
func (s *Session) Reconnect(playerID uuid.UUID, m Member) error {
	var known bool
	err := s.do(func() {
		for _, p := range s.game.Players {
			if p.ID == playerID {
				p.Connected = true
				known = true
				return
			}
		}
	})
	if err != nil {
		return err
	}
	if !known {
		return fmt.Errorf("player %s is not in room %s", playerID, s.ID)
	}
	s.mu.Lock()
	s.members[playerID] = m
	s.mu.Unlock()
	s.sendSnapshot(playerID)
	s.logger.WithFields(logrus.Fields{"room": s.ID, "player": playerID}).Info("player reconnected")
	return nil
}

// Disconnect detaches a member's connection. The player keeps their seat and
// may reconnect; an empty room tears the session down.
func (s *Session) Disconnect(playerID uuid.UUID) {
	_ = s.do(func() {
		for _, p := range s.game.Players {
			if p.ID == playerID {
				p.Connected = false
				return
			}
		}
	})

	s.mu.Lock()
	delete(s.members, playerID)
	empty := len(s.members) == 0
	s.mu.Unlock()

	if empty {
		s.logger.WithField("room", s.ID).Info("room empty, tearing down")
		s.Close()
		if s.OnEmpty != nil {
			s.OnEmpty(s.ID)
		}
	}
}

// Start begins the game.
func (s *Session) Start() error {
	var startErr error
	if err := s.do(func() { startErr = s.game.Start() }); err != nil {
		return err
	}
	return startErr
}

// Snapshot returns the current state (for HTTP listings and tests).
func (s *Session) Snapshot() *game.Snapshot {
	var snap *game.Snapshot
	_ = s.do(func() { snap = s.game.BuildSnapshot() })
	return snap
}

// Log returns a copy of the capped in-memory game log.
func (s *Session) Log() []models.LogEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.LogEntry, len(s.logBuf))
	copy(out, s.logBuf)
	return out
}

// Close stops the worker. Idempotent.
func (s *Session) Close() {
	s.once.Do(func() { close(s.done) })
}

// --- engine callbacks (run on the worker goroutine) ---

func (s *Session) broadcast(ev game.Event) {
	s.mu.Lock()
	targets := make([]Member, 0, len(s.members))
	for _, m := range s.members {
		targets = append(targets, m)
	}
	s.mu.Unlock()
	for _, m := range targets {
		m.Send(ev)
	}
}

func (s *Session) broadcastToPlayer(playerID uuid.UUID, ev game.Event) {
	s.mu.Lock()
	m, ok := s.members[playerID]
	s.mu.Unlock()
	if ok {
		m.Send(ev)
	}
}

func (s *Session) sendSnapshot(playerID uuid.UUID) {
	var snap *game.Snapshot
	if err := s.do(func() { snap = s.game.BuildSnapshot() }); err != nil {
		return
	}
	s.broadcastToPlayer(playerID, game.Event{Type: game.EventStateSnapshot, State: snap})
}

// schedule arms a timer whose expiry is injected back into the command queue
// as a synthetic command, preserving strict per-room ordering.
func (s *Session) schedule(d time.Duration, cmd models.Command) {
	time.AfterFunc(d, func() {
		if err := s.Enqueue(uuid.Nil, cmd); err != nil {
			s.logger.WithFields(logrus.Fields{"room": s.ID, "cmd": cmd.Type}).Debug("dropped timer command for closed room")
		}
	})
}

// appendLog keeps the capped in-memory log and pushes the entry onto the
// historian's queue without blocking the worker.
func (s *Session) appendLog(entry models.LogEntry) {
	s.mu.Lock()
	s.logBuf = append(s.logBuf, entry)
	if len(s.logBuf) > maxLogEntries {
		s.logBuf = s.logBuf[len(s.logBuf)-maxLogEntries:]
	}
	s.logIdx++
	idx := s.logIdx
	s.mu.Unlock()

	if cache.Rdb == nil {
		return
	}
	record := cache.GameLogRecord{
		RoomID:    s.ID,
		Index:     idx,
		Actor:     entry.Actor,
		Type:      entry.Type,
		Message:   entry.Message,
		Timestamp: entry.Timestamp,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := cache.PublishGameLog(ctx, record); err != nil {
			s.logger.WithError(err).Warn("failed to publish game log record")
		}
	}()
}

// persistResults records the final outcome once the game resolves.
func (s *Session) persistResults(winnerID uuid.UUID, netWorth map[uuid.UUID]int) {
	if database.DB == nil {
		return
	}
	players := make([]*models.Player, len(s.game.Players))
	copy(players, s.game.Players)
	roomID := s.ID
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.RecordGameResults(ctx, roomID, players, netWorth, winnerID); err != nil {
			s.logger.WithError(err).Error("failed to persist game results")
		}
	}()
}

// maybeQueueBotMove schedules the next bot command when a bot is up to act.
// The command is validated again when it reaches the engine, so a state
// change in between is a harmless rejection.
func (s *Session) maybeQueueBotMove() {
	playerID, cmd, ok := nextBotCommand(s.game)
	if !ok {
		return
	}
	time.AfterFunc(botMoveDelay, func() {
		_ = s.Enqueue(playerID, cmd)
	})
}
