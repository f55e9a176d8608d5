package highcard

import (
	"fmt"
	"strings"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/deck"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
	"go.uber.org/zap"
)

// playStage collects one secret card per seat and reveals them together
type playStage struct {
	*stage.Atomic
	round *roundStage
}

func newPlayStage(r *roundStage) *playStage {
	s := &playStage{round: r}
	s.Atomic = stage.NewAtomic(r.main.ctx, "play", s, stage.AtomicOpts{
		Timeout: r.main.opts.timeout,
		Commands: command.Table{
			{
				Description: "play card n from your hand",
				Checkers:    []command.Checker{command.Keyword("play", "p"), command.Int(1, handSize)},
				Handler:     s.play,
				UnreadyOnly: true,
				Channel:     command.PrivateOnly,
			},
			{
				Description: "show your hand",
				Checkers:    []command.Checker{command.Keyword("hand")},
				Handler:     s.hand,
				Channel:     command.PrivateOnly,
			},
		},
	})
	return s
}

func (s *playStage) isRoundChild() {}

func (s *playStage) OnEnter() protocol.Outcome {
	s.round.main.ctx.Broadcast().
		Text("Choose a card: send \"play <1-%d>\" in a private message.", handSize).
		Flush()
	return protocol.Continue
}

func (s *playStage) play(c command.Call) protocol.Outcome {
	n := c.Int(1) - 1
	s.round.played[c.Seat] = n
	c.Reply.Text("You play the %s.", s.round.hands[c.Seat][n])
	return protocol.Ready
}

func (s *playStage) hand(c command.Call) protocol.Outcome {
	s.round.showHand(c.Reply, c.Seat)
	return protocol.Continue
}

// OnAutomatedAction plays the weakest card
func (s *playStage) OnAutomatedAction(seat int) protocol.Outcome {
	if s.round.played[seat] < 0 {
		s.round.played[seat] = s.round.lowest(seat)
	}
	return protocol.Ready
}

func (s *playStage) OnAllReady() protocol.Outcome {
	s.resolve()
	return protocol.Checkout
}

func (s *playStage) OnTimeout() protocol.Outcome {
	s.resolve()
	return protocol.Checkout
}

func (s *playStage) resolve() {
	ms := s.round.main
	ctx := ms.ctx

	winner := -1
	var best deck.Card
	var table strings.Builder
	table.WriteString("| Seat | Card |\n|---|---|\n")
	for seat, idx := range s.round.played {
		if idx < 0 {
			continue
		}
		card := s.round.hands[seat][idx]
		fmt.Fprintf(&table, "| %d | %s |\n", seat+1, card)
		if winner < 0 || card.Beats(best) {
			winner, best = seat, card
		}
	}

	if winner < 0 {
		ms.losers = nil
		ctx.Broadcast().Text("Nobody played a card this round.").Flush()
		return
	}

	ms.scores[winner]++
	if best.Rank == deck.Ace {
		ctx.Achieve(winner, "ace-high")
	}

	losers := []int{}
	for seat, idx := range s.round.played {
		if idx >= 0 && seat != winner {
			losers = append(losers, seat)
		}
	}
	ms.losers = losers

	ctx.Logger().Debug("round resolved",
		zap.Int("round", s.round.num),
		zap.Int("winner", winner),
		zap.Stringer("card", best))

	ctx.Broadcast().
		Markdown(table.String()).
		Mention(winner).
		Text(" wins round %d with the %s.", s.round.num, best).
		Flush()
}
