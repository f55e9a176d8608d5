// Package highcard is a short card game: every round each seat plays one
// card in secret and the highest card wins the round. Seats that lost the
// previous round may first swap a card.
package highcard

import (
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/minaorangina/gamehost/stage"
)

const (
	handSize       = 3
	maxSeats       = 8
	defaultRounds  = 3
	maxRounds      = 20
	defaultTimeout = 60 * time.Second
)

var (
	ErrBadOption = errors.New("bad game option")
)

// Game is the engine.Game for High Card
type Game struct{}

func (Game) Name() string {
	return "highcard"
}

func (Game) Seats() (int, int) {
	return 2, maxSeats
}

func (Game) NewMain(ctx *stage.Context) (stage.Node, error) {
	opts, err := parseOptions(ctx)
	if err != nil {
		return nil, err
	}
	return newMainStage(ctx, opts), nil
}

type options struct {
	rounds  int
	timeout time.Duration
	seed    int64
	// playOut keeps the match going when fewer than two seats remain
	playOut bool
}

func parseOptions(ctx *stage.Context) (options, error) {
	opts := options{
		rounds:  defaultRounds,
		timeout: defaultTimeout,
		seed:    time.Now().UnixNano(),
	}

	if v := ctx.Value("rounds", ""); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > maxRounds {
			return opts, fmt.Errorf("rounds must be between 1 and %d, got %q: %w", maxRounds, v, ErrBadOption)
		}
		opts.rounds = n
	}

	if v := ctx.Value("timeout", ""); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return opts, fmt.Errorf("timeout %q: %w", v, ErrBadOption)
		}
		opts.timeout = d
	}

	if v := ctx.Value("seed", ""); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return opts, fmt.Errorf("seed %q: %w", v, ErrBadOption)
		}
		opts.seed = n
	}

	switch v := ctx.Value("finish", "early"); v {
	case "early":
	case "playout":
		opts.playOut = true
	default:
		return opts, fmt.Errorf("finish must be early or playout, got %q: %w", v, ErrBadOption)
	}

	return opts, nil
}
