// Package store keeps lobbies and running matches in memory.
package store

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/minaorangina/gamehost/engine"
)

var (
	ErrUnknownMatchID = errors.New("unknown match ID")
	ErrMatchExists    = errors.New("match ID already in use")
	ErrStoreFull      = errors.New("too many matches in progress")
	ErrLobbyFull      = errors.New("lobby is full")
	ErrMatchStarted   = errors.New("match has already started")
)

// PlayerInfo is a player waiting in a lobby
type PlayerInfo struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
}

// Lobby collects players until its creator starts the match.
// Players are seated in the order they joined.
type Lobby struct {
	ID        string
	Game      string
	CreatorID string
	MaxSeats  int
	Computers int
	Values    map[string]string
	Players   []PlayerInfo
	CreatedAt time.Time
}

// Seat returns playerID's seat, or -1
func (l Lobby) Seat(playerID string) int {
	for i, p := range l.Players {
		if p.PlayerID == playerID {
			return i
		}
	}
	return -1
}

// Names returns every player's name in seat order
func (l Lobby) Names() []string {
	names := make([]string, 0, len(l.Players))
	for _, p := range l.Players {
		names = append(names, p.Name)
	}
	return names
}

type MatchStore interface {
	AddLobby(l Lobby) error
	FindLobby(id string) (Lobby, bool)
	AddPlayer(id, playerID, name string) (int, error)
	Promote(id string, match *engine.Match) error
	FindMatch(id string) *engine.Match
	Remove(id string)
	Sweep(retention time.Duration) []string
}

// InMemoryMatchStore maps match IDs to lobbies and running matches
type InMemoryMatchStore struct {
	mu         sync.RWMutex
	lobbies    map[string]*Lobby
	matches    map[string]*engine.Match
	maxMatches int
	now        func() time.Time
}

// NewInMemoryMatchStore constructs an InMemoryMatchStore.
// maxMatches limits lobbies plus matches; zero means no limit.
func NewInMemoryMatchStore(maxMatches int) *InMemoryMatchStore {
	return &InMemoryMatchStore{
		lobbies:    map[string]*Lobby{},
		matches:    map[string]*engine.Match{},
		maxMatches: maxMatches,
		now:        time.Now,
	}
}

func (s *InMemoryMatchStore) existsLocked(id string) bool {
	_, lobby := s.lobbies[id]
	_, match := s.matches[id]
	return lobby || match
}

// AddLobby registers a new lobby. Its creator must already be in Players.
func (s *InMemoryMatchStore) AddLobby(l Lobby) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.existsLocked(l.ID) {
		return fmt.Errorf("lobby %s: %w", l.ID, ErrMatchExists)
	}
	if s.maxMatches > 0 && len(s.lobbies)+len(s.matches) >= s.maxMatches {
		return ErrStoreFull
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now()
	}
	l.Players = append([]PlayerInfo(nil), l.Players...)
	s.lobbies[l.ID] = &l
	return nil
}

// FindLobby returns a copy of a lobby that has not started yet
func (s *InMemoryMatchStore) FindLobby(id string) (Lobby, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	l, ok := s.lobbies[id]
	if !ok {
		return Lobby{}, false
	}
	out := *l
	out.Players = append([]PlayerInfo(nil), l.Players...)
	return out, true
}

// AddPlayer seats a player in a lobby and returns the seat
func (s *InMemoryMatchStore) AddPlayer(id, playerID, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	l, ok := s.lobbies[id]
	if !ok {
		if _, started := s.matches[id]; started {
			return -1, ErrMatchStarted
		}
		return -1, fmt.Errorf("lobby %s: %w", id, ErrUnknownMatchID)
	}
	if seat := l.Seat(playerID); seat >= 0 {
		return seat, nil
	}
	if l.MaxSeats > 0 && len(l.Players)+l.Computers >= l.MaxSeats {
		return -1, ErrLobbyFull
	}

	l.Players = append(l.Players, PlayerInfo{PlayerID: playerID, Name: name})
	return len(l.Players) - 1, nil
}

// Promote replaces a lobby by its running match
func (s *InMemoryMatchStore) Promote(id string, match *engine.Match) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.lobbies[id]; !ok {
		if _, started := s.matches[id]; started {
			return ErrMatchStarted
		}
		return fmt.Errorf("lobby %s: %w", id, ErrUnknownMatchID)
	}
	delete(s.lobbies, id)
	s.matches[id] = match
	return nil
}

// FindMatch returns a started match, or nil
func (s *InMemoryMatchStore) FindMatch(id string) *engine.Match {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.matches[id]
}

// Remove forgets a lobby or match, closing the match
func (s *InMemoryMatchStore) Remove(id string) {
	s.mu.Lock()
	m := s.matches[id]
	delete(s.matches, id)
	delete(s.lobbies, id)
	s.mu.Unlock()

	if m != nil {
		m.Close()
	}
}

// Len returns the number of lobbies and matches held
func (s *InMemoryMatchStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.lobbies) + len(s.matches)
}

// Sweep removes matches that ended more than retention ago and lobbies
// that were never started within retention. It returns the removed IDs.
func (s *InMemoryMatchStore) Sweep(retention time.Duration) []string {
	cutoff := s.now().Add(-retention)

	s.mu.Lock()
	removed := []string{}
	closing := []*engine.Match{}
	for id, m := range s.matches {
		ended := m.EndedAt()
		if !ended.IsZero() && ended.Before(cutoff) {
			removed = append(removed, id)
			closing = append(closing, m)
			delete(s.matches, id)
		}
	}
	for id, l := range s.lobbies {
		if l.CreatedAt.Before(cutoff) {
			removed = append(removed, id)
			delete(s.lobbies, id)
		}
	}
	s.mu.Unlock()

	for _, m := range closing {
		m.Close()
	}
	sort.Strings(removed)
	return removed
}
