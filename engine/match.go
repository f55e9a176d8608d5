// Package engine drives matches: it serialises every command, departure and
// timer expiry on a match through one lock and plays computer seats.
package engine

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
	"github.com/minaorangina/gamehost/timer"
	uuid "github.com/satori/go.uuid"
	"go.uber.org/zap"
)

// PlayState represents the state of a match
// Idle -> waiting to start
// InProgress -> stages are running
// Over -> the main stage has finished
type PlayState int

const (
	Idle PlayState = iota
	InProgress
	Over
)

var playStateNames = []string{"idle", "inProgress", "over"}

func (ps PlayState) String() string {
	if ps < 0 || int(ps) >= len(playStateNames) {
		return ""
	}
	return playStateNames[ps]
}

var (
	ErrTooFewSeats    = errors.New("too few seats for this game")
	ErrTooManySeats   = errors.New("too many seats for this game")
	ErrUnknownSeat    = errors.New("unknown seat")
	ErrComputerSeat   = errors.New("seat is played by the computer")
	ErrSeatLeft       = errors.New("seat has left the match")
	ErrNotStarted     = errors.New("match has not started")
	ErrAlreadyStarted = errors.New("match has already started")
	ErrMatchOver      = errors.New("match is over")
)

// Game creates the stage tree for one match
type Game interface {
	Name() string
	Seats() (min, max int)
	NewMain(ctx *stage.Context) (stage.Node, error)
}

// NewID constructs a match ID
func NewID() string {
	return uuid.NewV4().String()
}

type MatchOpts struct {
	// ID is generated when empty
	ID        string
	Game      Game
	Seats     int
	Computers []int
	// HookOnTimeout skips seats that let a stage time out until they act again
	HookOnTimeout bool
	Alerts        []time.Duration
	Values        map[string]string
	Transport     messenger.Transport
	// Timer defaults to a wall clock timer
	Timer  timer.Timer
	Logger *zap.Logger
}

// Match is one running game
type Match struct {
	mu        sync.Mutex
	id        string
	game      Game
	ctx       *stage.Context
	root      stage.Node
	logger    *zap.Logger
	computers []int
	isCPU     map[int]bool
	actedIn   map[int]uint64
	retired   bool
	playState PlayState
	scores    []int64
	endedAt   time.Time
}

// NewMatch builds a match and its stage tree. Nothing runs until Start.
func NewMatch(opts MatchOpts) (*Match, error) {
	if opts.Game == nil {
		return nil, errors.New("a game is required")
	}

	min, max := opts.Game.Seats()
	if opts.Seats < min {
		return nil, fmt.Errorf("%s needs %d seats, got %d: %w", opts.Game.Name(), min, opts.Seats, ErrTooFewSeats)
	}
	if opts.Seats > max {
		return nil, fmt.Errorf("%s allows %d seats, got %d: %w", opts.Game.Name(), max, opts.Seats, ErrTooManySeats)
	}

	isCPU := map[int]bool{}
	for _, seat := range opts.Computers {
		if seat < 0 || seat >= opts.Seats {
			return nil, fmt.Errorf("computer seat %d: %w", seat, ErrUnknownSeat)
		}
		isCPU[seat] = true
	}
	computers := make([]int, 0, len(isCPU))
	for seat := range isCPU {
		computers = append(computers, seat)
	}
	sort.Ints(computers)

	id := opts.ID
	if id == "" {
		id = NewID()
	}

	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("match_id", id), zap.String("game", opts.Game.Name()))

	t := opts.Timer
	if t == nil {
		t = timer.NewClock()
	}

	m := &Match{
		id:        id,
		game:      opts.Game,
		logger:    logger,
		computers: computers,
		isCPU:     isCPU,
		actedIn:   map[int]uint64{},
	}

	m.ctx = stage.NewContext(stage.Options{
		Seats:         opts.Seats,
		HookOnTimeout: opts.HookOnTimeout,
		Alerts:        opts.Alerts,
		Values:        opts.Values,
	}, opts.Transport, t, logger)
	m.ctx.SetGuard(m.guard)

	root, err := opts.Game.NewMain(m.ctx)
	if err != nil {
		return nil, fmt.Errorf("could not set up %s: %w", opts.Game.Name(), err)
	}
	m.root = root

	return m, nil
}

func (m *Match) ID() string {
	return m.id
}

func (m *Match) GameName() string {
	return m.game.Name()
}

func (m *Match) Seats() int {
	return m.ctx.Seats()
}

// IsComputer reports whether seat is played by the computer
func (m *Match) IsComputer(seat int) bool {
	return m.isCPU[seat]
}

func (m *Match) PlayState() PlayState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.playState
}

// Over reports whether the main stage has finished
func (m *Match) Over() bool {
	return m.PlayState() == Over
}

// EndedAt returns when the match finished, or the zero time
func (m *Match) EndedAt() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.endedAt
}

// Scores returns the final scores once the match is over
func (m *Match) Scores() ([]int64, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.playState != Over {
		return nil, false
	}
	return append([]int64(nil), m.scores...), true
}

// Achievements returns every seat's achievement counters
func (m *Match) Achievements() []map[string]int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.ctx.Achievements()
}

// Start enters the main stage
func (m *Match) Start() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playState != Idle {
		return ErrAlreadyStarted
	}

	m.logger.Info("match starting",
		zap.Int("seats", m.ctx.Seats()),
		zap.Ints("computers", m.computers))
	m.playState = InProgress
	m.ctx.Begin(m.root)
	m.afterLocked()
	return nil
}

// Request hands a player's text to the current stage. A seat that was
// skipped after a timeout becomes active again with its next accepted command.
func (m *Match) Request(seat int, public bool, text string) (protocol.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHumanLocked(seat); err != nil {
		return protocol.ResultNotFound, err
	}

	hooked := m.ctx.Masker().Activity(seat) == protocol.TemporarilyInactive
	if hooked {
		if err := m.ctx.Masker().Reactivate(seat); err != nil {
			return protocol.ResultNotFound, err
		}
	}

	res := m.root.HandleCommand(seat, public, text)
	m.logger.Debug("request handled",
		zap.Int("seat", seat),
		zap.Bool("public", public),
		zap.Stringer("result", res))

	switch {
	case !hooked:
	case res == protocol.ResultNotFound || res == protocol.ResultFailed:
		// a rejected command changes nothing, the seat stays skipped
		m.ctx.Masker().SetTemporaryInactive(seat)
	default:
		m.logger.Debug("seat reactivated", zap.Int("seat", seat))
	}

	m.afterLocked()
	return res, nil
}

// Leave removes seat from the match for good
func (m *Match) Leave(seat int) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkSeatLocked(seat); err != nil {
		return err
	}
	if m.ctx.Masker().Activity(seat) == protocol.PermanentlyInactive {
		return nil
	}

	m.logger.Info("seat left", zap.Int("seat", seat))
	m.root.HandleLeave(seat)
	m.afterLocked()
	return nil
}

// Act plays the current stage's automated action for a human seat, for
// example when the player asks the host to move for them.
func (m *Match) Act(seat int) (protocol.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.checkHumanLocked(seat); err != nil {
		return protocol.Failed, err
	}
	if m.ctx.Masker().IsReady(seat) {
		return protocol.Failed, nil
	}

	out := m.root.HandleAutomatedAction(seat, true)
	m.afterLocked()
	return out, nil
}

// Close stops the match's timer. The match cannot be used afterwards.
func (m *Match) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playState == InProgress {
		m.logger.Info("match closed before it finished")
	}
	m.ctx.End()
	if m.playState != Over {
		m.playState = Over
		m.endedAt = time.Now()
	}
}

func (m *Match) checkSeatLocked(seat int) error {
	switch m.playState {
	case Idle:
		return ErrNotStarted
	case Over:
		return ErrMatchOver
	}
	if seat < 0 || seat >= m.ctx.Seats() {
		return fmt.Errorf("seat %d: %w", seat, ErrUnknownSeat)
	}
	return nil
}

func (m *Match) checkHumanLocked(seat int) error {
	if err := m.checkSeatLocked(seat); err != nil {
		return err
	}
	if m.isCPU[seat] {
		return fmt.Errorf("seat %d: %w", seat, ErrComputerSeat)
	}
	if m.ctx.Masker().Activity(seat) == protocol.PermanentlyInactive {
		return fmt.Errorf("seat %d: %w", seat, ErrSeatLeft)
	}
	return nil
}

// guard is how timer callbacks enter the match
func (m *Match) guard(fn func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.playState != InProgress {
		return
	}
	fn()
	m.afterLocked()
}

func (m *Match) afterLocked() {
	m.driveComputersLocked()
	if m.playState == InProgress && m.root.Over() {
		m.finishLocked()
	}
}

// driveComputersLocked lets every computer seat act once per stage
func (m *Match) driveComputersLocked() {
	for !m.root.Over() {
		if !m.retired && !m.humansPresentLocked() {
			m.retireComputersLocked()
			continue
		}

		moved := false
		for _, seat := range m.computers {
			if m.root.Over() {
				return
			}
			mk := m.ctx.Masker()
			serial := m.ctx.Serial()
			if !mk.IsActive(seat) || mk.IsReady(seat) || m.actedIn[seat] == serial {
				continue
			}
			m.actedIn[seat] = serial
			m.root.HandleAutomatedAction(seat, m.noHumanWaitedOnLocked())
			moved = true
		}
		if !moved {
			return
		}
	}
}

// noHumanWaitedOnLocked reports whether every active human seat is already ready
func (m *Match) noHumanWaitedOnLocked() bool {
	mk := m.ctx.Masker()
	for seat := 0; seat < mk.Size(); seat++ {
		if !m.isCPU[seat] && mk.IsActive(seat) && !mk.IsReady(seat) {
			return false
		}
	}
	return true
}

func (m *Match) humansPresentLocked() bool {
	mk := m.ctx.Masker()
	for seat := 0; seat < mk.Size(); seat++ {
		if !m.isCPU[seat] && mk.Activity(seat) != protocol.PermanentlyInactive {
			return true
		}
	}
	return false
}

// retireComputersLocked removes the computer seats once no human is left,
// so the match resolves itself.
func (m *Match) retireComputersLocked() {
	m.retired = true
	m.logger.Info("no players left, retiring computer seats")
	for _, seat := range m.computers {
		if m.root.Over() {
			return
		}
		if m.ctx.Masker().Activity(seat) != protocol.PermanentlyInactive {
			m.root.HandleLeave(seat)
		}
	}
}

func (m *Match) finishLocked() {
	m.playState = Over
	m.endedAt = time.Now()

	if scorer, ok := m.root.(stage.Scorer); ok {
		m.scores = scorer.Scores()
	}
	m.ctx.End()

	m.logger.Info("match over",
		zap.Int64s("scores", m.scores),
		zap.Bool("deduction", m.ctx.InDeduction()))
}
