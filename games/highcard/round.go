package highcard

import (
	"fmt"
	"strings"

	"github.com/minaorangina/gamehost/deck"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
)

// roundChild is every stage a round can hold
type roundChild interface {
	stage.Node
	isRoundChild()
}

type roundStage struct {
	*stage.Compound[roundChild]
	main  *mainStage
	num   int
	deck  deck.Deck
	hands [][]deck.Card
	// played holds the index into hands of each seat's card, or -1
	played []int
}

func newRoundStage(main *mainStage) *roundStage {
	r := &roundStage{
		main: main,
		num:  main.round,
	}
	r.Compound = stage.NewCompound[roundChild](main.ctx, fmt.Sprintf("round %d", main.round), r, stage.CompoundOpts{})
	return r
}

func (r *roundStage) isMainChild() {}

func (r *roundStage) OnEnter() protocol.Outcome {
	ctx := r.main.ctx

	r.deck = deck.New()
	r.deck.Shuffle(r.main.rng)
	r.hands = make([][]deck.Card, ctx.Seats())
	r.played = make([]int, ctx.Seats())
	for seat := range r.hands {
		r.hands[seat] = r.deck.Deal(handSize)
		r.played[seat] = -1
	}

	ctx.Broadcast().Text("Round %d of %d.", r.num, r.main.opts.rounds).Flush()
	for seat := range r.hands {
		if ctx.Masker().Activity(seat) == protocol.PermanentlyInactive {
			continue
		}
		r.showHand(ctx.WhisperTo(seat), seat).Flush()
	}
	return protocol.Continue
}

func (r *roundStage) FirstChild() roundChild {
	return newTradeStage(r)
}

func (r *roundStage) NextChild(finished roundChild, reason protocol.Reason) (roundChild, bool) {
	switch finished.(type) {
	case *tradeStage:
		return newPlayStage(r), true
	case *playStage:
		return nil, false
	default:
		panic(fmt.Sprintf("highcard: unexpected stage %s in a round", finished.Name()))
	}
}

func (r *roundStage) showHand(s *messenger.Sink, seat int) *messenger.Sink {
	return s.Text("Your hand: %s", formatHand(r.hands[seat]))
}

// lowest returns the index of the weakest card in seat's hand
func (r *roundStage) lowest(seat int) int {
	hand := r.hands[seat]
	low := 0
	for i := 1; i < len(hand); i++ {
		if hand[low].Beats(hand[i]) {
			low = i
		}
	}
	return low
}

func formatHand(hand []deck.Card) string {
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = fmt.Sprintf("%d) %s", i+1, c)
	}
	return strings.Join(parts, ", ")
}
