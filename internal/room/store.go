package room

import (
	"sync"

	"github.com/google/uuid"
)

// Store holds the live sessions, keyed by room id.
type Store struct {
	mu    sync.Mutex
	rooms map[uuid.UUID]*Session
}

func NewStore() *Store {
	return &Store{
		rooms: make(map[uuid.UUID]*Session),
	}
}

func (s *Store) AddRoom(sess *Session) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rooms[sess.ID] = sess
}

func (s *Store) GetRoom(id uuid.UUID) (*Session, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, exists := s.rooms[id]
	return sess, exists
}

func (s *Store) DeleteRoom(id uuid.UUID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, id)
}

// ListRooms returns the current sessions in no particular order.
func (s *Store) ListRooms() []*Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Session, 0, len(s.rooms))
	for _, sess := range s.rooms {
		out = append(out, sess)
	}
	return out
}
