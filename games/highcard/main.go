package highcard

import (
	"fmt"
	"math/rand"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
)

// mainChild is every stage the main stage can hold
type mainChild interface {
	stage.Node
	isMainChild()
}

type mainStage struct {
	*stage.Compound[mainChild]
	ctx    *stage.Context
	opts   options
	rng    *rand.Rand
	round  int
	scores []int64
	// losers are the seats that played a card and lost the last round
	losers []int
}

func newMainStage(ctx *stage.Context, opts options) *mainStage {
	s := &mainStage{
		ctx:    ctx,
		opts:   opts,
		rng:    rand.New(rand.NewSource(opts.seed)),
		scores: make([]int64, ctx.Seats()),
	}
	s.Compound = stage.NewCompound[mainChild](ctx, "main", s, stage.CompoundOpts{
		Commands: command.Table{
			{
				Description: "show the scores",
				Checkers:    []command.Checker{command.Keyword("score", "scores")},
				Handler:     s.showScores,
			},
			{
				Description: "list the commands you can use now",
				Checkers:    []command.Checker{command.Keyword("help")},
				Handler:     s.help,
			},
		},
	})
	return s
}

func (s *mainStage) OnEnter() protocol.Outcome {
	s.ctx.Broadcast().
		Text("High Card: %d rounds. Play your highest card in secret; the best card wins the round. ", s.opts.rounds).
		Text("Send \"help\" for commands.").
		Flush()
	return protocol.Continue
}

func (s *mainStage) FirstChild() mainChild {
	s.round = 1
	return newRoundStage(s)
}

func (s *mainStage) NextChild(finished mainChild, reason protocol.Reason) (mainChild, bool) {
	switch finished.(type) {
	case *roundStage:
	default:
		panic(fmt.Sprintf("highcard: unexpected stage %s in the main stage", finished.Name()))
	}

	if s.round >= s.opts.rounds {
		s.awardSweeps()
		return nil, false
	}
	s.round++
	return newRoundStage(s), true
}

// OnLeaveNotification ends the match once fewer than two seats remain,
// unless the match was set up to play out.
func (s *mainStage) OnLeaveNotification(seat int) protocol.Outcome {
	if s.opts.playOut {
		return protocol.Continue
	}

	m := s.ctx.Masker()
	remaining := 0
	for i := 0; i < m.Size(); i++ {
		if m.Activity(i) != protocol.PermanentlyInactive {
			remaining++
		}
	}
	if remaining >= 2 {
		return protocol.Continue
	}

	s.ctx.Broadcast().Text("Not enough players left, the match ends here.").Flush()
	return protocol.Checkout
}

func (s *mainStage) Scores() []int64 {
	return append([]int64(nil), s.scores...)
}

func (s *mainStage) awardSweeps() {
	if s.opts.rounds < 2 {
		return
	}
	for seat, score := range s.scores {
		if score == int64(s.opts.rounds) {
			s.ctx.Achieve(seat, "clean-sweep")
		}
	}
}

func (s *mainStage) showScores(c command.Call) protocol.Outcome {
	c.Reply.Text("Scores after %d of %d rounds:", s.round, s.opts.rounds)
	for seat, score := range s.scores {
		c.Reply.Text("\n").Mention(seat).Text(": %d", score)
	}
	return protocol.Continue
}

type commander interface {
	Commands() command.Table
}

func (s *mainStage) help(c command.Call) protocol.Outcome {
	c.Reply.Text("%s", s.Commands().Help())

	round, ok := s.Current()
	if !ok {
		return protocol.Continue
	}
	if r, ok := round.(*roundStage); ok {
		if child, ok := r.Current(); ok {
			if cmds, ok := child.(commander); ok && len(cmds.Commands()) > 0 {
				c.Reply.Text("\n%s", cmds.Commands().Help())
			}
		}
	}
	return protocol.Continue
}
