package engine_test

import (
	"errors"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/engine"
	utils "github.com/minaorangina/gamehost/internal"
	"github.com/minaorangina/gamehost/internal/mocks"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
	"github.com/minaorangina/gamehost/timer"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

// countGame plays a fixed number of rounds. Every seat says "go" each round
// and scores a point for doing so itself.
type countGame struct{}

func (countGame) Name() string { return "count" }

func (countGame) Seats() (int, int) { return 1, 4 }

func (countGame) NewMain(ctx *stage.Context) (stage.Node, error) {
	rounds, err := strconv.Atoi(ctx.Value("rounds", "2"))
	if err != nil || rounds < 1 {
		return nil, fmt.Errorf("bad rounds %q", ctx.Value("rounds", ""))
	}
	return newCountMain(ctx, rounds), nil
}

type roundChild interface {
	stage.Node
	isRound()
}

type countMain struct {
	*stage.Compound[roundChild]
	ctx     *stage.Context
	rounds  int
	played  int
	scores  []int64
	timeout time.Duration
}

func newCountMain(ctx *stage.Context, rounds int) *countMain {
	s := &countMain{ctx: ctx, rounds: rounds, scores: make([]int64, ctx.Seats()), timeout: 30 * time.Second}
	s.Compound = stage.NewCompound[roundChild](ctx, "main", s, stage.CompoundOpts{})
	return s
}

func (s *countMain) FirstChild() roundChild {
	return newGoStage(s)
}

func (s *countMain) NextChild(finished roundChild, reason protocol.Reason) (roundChild, bool) {
	s.played++
	if s.played >= s.rounds {
		return nil, false
	}
	return newGoStage(s), true
}

func (s *countMain) Scores() []int64 {
	return s.scores
}

type goStage struct {
	*stage.Atomic
	main *countMain
}

func newGoStage(main *countMain) *goStage {
	s := &goStage{main: main}
	s.Atomic = stage.NewAtomic(main.ctx, "go", s, stage.AtomicOpts{
		Timeout: main.timeout,
		Commands: command.Table{
			{
				Description: "go",
				Checkers:    []command.Checker{command.Keyword("go")},
				Handler: func(c command.Call) protocol.Outcome {
					s.main.scores[c.Seat]++
					return protocol.Ready
				},
				UnreadyOnly: true,
			},
		},
	})
	return s
}

func (s *goStage) isRound() {}

func (s *goStage) OnEnter() protocol.Outcome {
	s.main.ctx.Broadcast().Text("round %d", s.main.played+1).Flush()
	return protocol.Continue
}

func newTestMatch(t *testing.T, opts engine.MatchOpts) *engine.Match {
	t.Helper()
	if opts.Game == nil {
		opts.Game = countGame{}
	}
	if opts.Timer == nil {
		opts.Timer = timer.NewManual()
	}
	m, err := engine.NewMatch(opts)
	require.NoError(t, err)
	return m
}

func TestNewMatch(t *testing.T) {
	t.Run("validates the seat count", func(t *testing.T) {
		_, err := engine.NewMatch(engine.MatchOpts{Game: countGame{}, Seats: 0})
		utils.AssertErrorIs(t, err, engine.ErrTooFewSeats)

		_, err = engine.NewMatch(engine.MatchOpts{Game: countGame{}, Seats: 5})
		utils.AssertErrorIs(t, err, engine.ErrTooManySeats)
	})

	t.Run("validates computer seats", func(t *testing.T) {
		_, err := engine.NewMatch(engine.MatchOpts{Game: countGame{}, Seats: 2, Computers: []int{2}})
		utils.AssertErrorIs(t, err, engine.ErrUnknownSeat)
	})

	t.Run("reports game setup errors", func(t *testing.T) {
		_, err := engine.NewMatch(engine.MatchOpts{Game: countGame{}, Seats: 2, Values: map[string]string{"rounds": "zero"}})
		utils.AssertErrored(t, err)
	})

	t.Run("generates an id", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 2})
		utils.AssertNotEmptyString(t, m.ID())
		utils.AssertEqual(t, m.PlayState(), engine.Idle)
	})
}

func TestMatchRequests(t *testing.T) {
	t.Run("requests need a started match", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 2})
		_, err := m.Request(0, true, "go")
		utils.AssertErrorIs(t, err, engine.ErrNotStarted)

		require.NoError(t, m.Start())
		utils.AssertErrorIs(t, m.Start(), engine.ErrAlreadyStarted)
	})

	t.Run("plays to the end and reports scores", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 2})
		require.NoError(t, m.Start())

		_, ok := m.Scores()
		utils.AssertFalse(t, ok)

		for round := 0; round < 2; round++ {
			res, err := m.Request(0, true, "go")
			require.NoError(t, err)
			utils.AssertEqual(t, res, protocol.ResultOK)

			res, err = m.Request(1, true, "go")
			require.NoError(t, err)
			utils.AssertEqual(t, res, protocol.ResultCheckout)
		}

		utils.AssertTrue(t, m.Over())
		scores, ok := m.Scores()
		require.True(t, ok)
		assert.Equal(t, []int64{2, 2}, scores)

		_, err := m.Request(0, true, "go")
		utils.AssertErrorIs(t, err, engine.ErrMatchOver)
	})

	t.Run("rejects unknown seats", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 2})
		require.NoError(t, m.Start())

		_, err := m.Request(7, true, "go")
		utils.AssertErrorIs(t, err, engine.ErrUnknownSeat)
		utils.AssertErrorIs(t, m.Leave(-1), engine.ErrUnknownSeat)
	})

	t.Run("departed seats cannot send commands", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 3})
		require.NoError(t, m.Start())

		require.NoError(t, m.Leave(2))
		require.NoError(t, m.Leave(2))
		_, err := m.Request(2, true, "go")
		utils.AssertErrorIs(t, err, engine.ErrSeatLeft)
	})

	t.Run("act moves for a human seat", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 1, Values: map[string]string{"rounds": "1"}})
		require.NoError(t, m.Start())

		out, err := m.Act(0)
		require.NoError(t, err)
		utils.AssertEqual(t, out, protocol.Checkout)
		utils.AssertTrue(t, m.Over())
	})
}

func TestMatchComputers(t *testing.T) {
	t.Run("computer seats act on their own", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 2, Computers: []int{1}})
		require.NoError(t, m.Start())
		utils.AssertTrue(t, m.IsComputer(1))

		_, err := m.Request(1, true, "go")
		utils.AssertErrorIs(t, err, engine.ErrComputerSeat)

		res, err := m.Request(0, true, "go")
		require.NoError(t, err)
		utils.AssertEqual(t, res, protocol.ResultCheckout)

		m.Request(0, true, "go")
		utils.AssertTrue(t, m.Over())
	})

	t.Run("a match of computers resolves itself", func(t *testing.T) {
		m := newTestMatch(t, engine.MatchOpts{Seats: 3, Computers: []int{0, 1, 2}})
		require.NoError(t, m.Start())

		utils.AssertTrue(t, m.Over())
		scores, _ := m.Scores()
		assert.Equal(t, []int64{0, 0, 0}, scores)
	})

	t.Run("computers retire when the last human leaves", func(t *testing.T) {
		rec := messenger.NewRecorder()
		m := newTestMatch(t, engine.MatchOpts{Seats: 2, Computers: []int{1}, Transport: rec, Values: map[string]string{"rounds": "5"}})
		require.NoError(t, m.Start())
		rec.Reset()

		require.NoError(t, m.Leave(0))

		utils.AssertTrue(t, m.Over())
		assert.Empty(t, rec.Deliveries())
	})
}

func TestMatchTimers(t *testing.T) {
	t.Run("hooked seats come back by sending a command", func(t *testing.T) {
		clock := timer.NewManual()
		m := newTestMatch(t, engine.MatchOpts{Seats: 2, HookOnTimeout: true, Timer: clock, Values: map[string]string{"rounds": "3"}})
		require.NoError(t, m.Start())

		m.Request(0, true, "go")
		clock.Advance(30 * time.Second)

		t.Log("Then seat 1 was hooked and round two only waits on seat 0")
		res, err := m.Request(0, true, "go")
		require.NoError(t, err)
		utils.AssertEqual(t, res, protocol.ResultCheckout)

		t.Log("When seat 1 speaks again it is waited on once more")
		res, err = m.Request(1, true, "go")
		require.NoError(t, err)
		utils.AssertEqual(t, res, protocol.ResultOK)
		utils.AssertFalse(t, m.Over())

		res, _ = m.Request(0, true, "go")
		utils.AssertEqual(t, res, protocol.ResultCheckout)
		utils.AssertTrue(t, m.Over())
	})

	t.Run("a rejected command leaves a hooked seat skipped", func(t *testing.T) {
		clock := timer.NewManual()
		m := newTestMatch(t, engine.MatchOpts{Seats: 2, HookOnTimeout: true, Timer: clock, Values: map[string]string{"rounds": "3"}})
		require.NoError(t, m.Start())

		t.Log("Given both seats were hooked by a timeout")
		clock.Advance(30 * time.Second)

		t.Log("When seat 0 sends something the stage does not understand")
		res, err := m.Request(0, true, "gibberish")
		require.NoError(t, err)
		utils.AssertEqual(t, res, protocol.ResultNotFound)

		t.Log("Then the round is still not waiting on seat 0")
		res, err = m.Request(1, true, "go")
		require.NoError(t, err)
		utils.AssertEqual(t, res, protocol.ResultCheckout)
	})

	t.Run("wall clock timeouts are serialised with requests", func(t *testing.T) {
		m, err := engine.NewMatch(engine.MatchOpts{
			Game:   timeoutGame{d: 5 * time.Millisecond},
			Seats:  2,
			Values: map[string]string{"rounds": "3"},
		})
		require.NoError(t, err)
		require.NoError(t, m.Start())

		var wg sync.WaitGroup
		for seat := 0; seat < 2; seat++ {
			wg.Add(1)
			go func(seat int) {
				defer wg.Done()
				for i := 0; i < 50 && !m.Over(); i++ {
					m.Request(seat, true, "go")
					time.Sleep(time.Millisecond)
				}
			}(seat)
		}

		utils.Within(t, 5*time.Second, func() {
			wg.Wait()
			for !m.Over() {
				time.Sleep(5 * time.Millisecond)
			}
		})
		m.Close()
	})
}

type timeoutGame struct {
	d time.Duration
}

func (timeoutGame) Name() string { return "count-fast" }

func (timeoutGame) Seats() (int, int) { return 1, 4 }

func (g timeoutGame) NewMain(ctx *stage.Context) (stage.Node, error) {
	main, err := countGame{}.NewMain(ctx)
	if err != nil {
		return nil, err
	}
	main.(*countMain).timeout = g.d
	return main, nil
}

func TestDeliveryFailuresDoNotStopTheMatch(t *testing.T) {
	ctrl := gomock.NewController(t)
	tr := mocks.NewMockTransport(ctrl)
	tr.EXPECT().Deliver(messenger.Broadcast(), gomock.Any()).Return(errors.New("socket closed")).Times(2)

	m := newTestMatch(t, engine.MatchOpts{Seats: 1, Transport: tr})
	require.NoError(t, m.Start())

	m.Request(0, true, "go")
	m.Request(0, true, "go")
	utils.AssertTrue(t, m.Over())
}
