package highcard

import (
	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
)

// tradeStage lets last round's losers swap one card for the top of the deck
type tradeStage struct {
	*stage.Atomic
	round    *roundStage
	eligible map[int]bool
}

func newTradeStage(r *roundStage) *tradeStage {
	s := &tradeStage{round: r, eligible: map[int]bool{}}
	s.Atomic = stage.NewAtomic(r.main.ctx, "trade", s, stage.AtomicOpts{
		Timeout: r.main.opts.timeout,
		Commands: command.Table{
			{
				Description: "swap card n for the top of the deck",
				Checkers:    []command.Checker{command.Keyword("swap"), command.Int(1, handSize)},
				Handler:     s.swap,
				UnreadyOnly: true,
				Channel:     command.PrivateOnly,
			},
			{
				Description: "keep your hand",
				Checkers:    []command.Checker{command.Keyword("keep")},
				Handler:     s.keep,
				UnreadyOnly: true,
			},
		},
	})
	return s
}

func (s *tradeStage) isRoundChild() {}

func (s *tradeStage) OnEnter() protocol.Outcome {
	ctx := s.round.main.ctx
	m := ctx.Masker()

	for _, seat := range s.round.main.losers {
		if m.IsActive(seat) {
			s.eligible[seat] = true
		}
	}
	if len(s.eligible) == 0 {
		return protocol.Checkout
	}

	b := ctx.Broadcast().Text("Waiting for ")
	first := true
	for seat := 0; seat < m.Size(); seat++ {
		if s.eligible[seat] {
			if !first {
				b.Text(", ")
			}
			b.Mention(seat)
			first = false
			continue
		}
		m.SilentlySetReady(seat)
	}
	b.Text(" to swap a card or keep their hand.").Flush()

	return protocol.Continue
}

func (s *tradeStage) swap(c command.Call) protocol.Outcome {
	if !s.eligible[c.Seat] {
		c.Reply.Text("Only last round's losers may swap.")
		return protocol.Failed
	}

	hand := s.round.hands[c.Seat]
	n := c.Int(1) - 1
	drawn := s.round.deck.Deal(1)
	if len(drawn) == 0 {
		c.Reply.Text("The deck is empty.")
		return protocol.Failed
	}
	c.Reply.Text("You swapped the %s for the %s. ", hand[n], drawn[0])
	hand[n] = drawn[0]
	s.round.showHand(c.Reply, c.Seat)
	return protocol.Ready
}

func (s *tradeStage) keep(c command.Call) protocol.Outcome {
	if !s.eligible[c.Seat] {
		c.Reply.Text("Only last round's losers may swap.")
		return protocol.Failed
	}
	return protocol.Ready
}

// OnLeave closes the stage once nobody is left who may swap
func (s *tradeStage) OnLeave(seat int) protocol.Outcome {
	delete(s.eligible, seat)

	m := s.round.main.ctx.Masker()
	for loser := range s.eligible {
		if m.IsActive(loser) {
			return protocol.Continue
		}
	}
	return protocol.Checkout
}

// OnAutomatedAction keeps the hand
func (s *tradeStage) OnAutomatedAction(seat int) protocol.Outcome {
	return protocol.Ready
}
