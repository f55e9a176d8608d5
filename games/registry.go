// Package games lists the games a host can run.
package games

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/minaorangina/gamehost/engine"
	"github.com/minaorangina/gamehost/games/highcard"
)

var (
	ErrUnknownGame   = errors.New("unknown game")
	ErrDuplicateGame = errors.New("game already registered")
)

// Registry maps game names to games
type Registry struct {
	mu    sync.RWMutex
	games map[string]engine.Game
}

// NewRegistry creates a registry holding gs
func NewRegistry(gs ...engine.Game) (*Registry, error) {
	r := &Registry{games: map[string]engine.Game{}}
	for _, g := range gs {
		if err := r.Register(g); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Default returns a registry of every built-in game
func Default() *Registry {
	r, err := NewRegistry(highcard.Game{})
	if err != nil {
		panic(err)
	}
	return r
}

func (r *Registry) Register(g engine.Game) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.games[g.Name()]; ok {
		return fmt.Errorf("%s: %w", g.Name(), ErrDuplicateGame)
	}
	r.games[g.Name()] = g
	return nil
}

func (r *Registry) Find(name string) (engine.Game, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	g, ok := r.games[name]
	if !ok {
		return nil, fmt.Errorf("%q: %w", name, ErrUnknownGame)
	}
	return g, nil
}

// Names returns every registered game name, sorted
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.games))
	for name := range r.games {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
