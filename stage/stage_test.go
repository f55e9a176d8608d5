package stage_test

import (
	"fmt"
	"time"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
	"github.com/minaorangina/gamehost/timer"
	"go.uber.org/zap"
)

type journal struct {
	events []string
}

func (j *journal) add(format string, args ...interface{}) {
	j.events = append(j.events, fmt.Sprintf(format, args...))
}

func (j *journal) count(event string) int {
	n := 0
	for _, e := range j.events {
		if e == event {
			n++
		}
	}
	return n
}

func (j *journal) index(event string) int {
	for i, e := range j.events {
		if e == event {
			return i
		}
	}
	return -1
}

// child is the closed set of stages the test compound accepts
type child interface {
	stage.Node
	testChild()
}

type actStage struct {
	*stage.Atomic
	j                 *journal
	skip              bool
	continueOnTimeout bool
	reopen            bool
}

func newActStage(ctx *stage.Context, j *journal, name string, timeout time.Duration) *actStage {
	s := &actStage{j: j}
	s.Atomic = stage.NewAtomic(ctx, name, s, stage.AtomicOpts{
		Timeout: timeout,
		Commands: command.Table{
			{
				Description: "act",
				Checkers:    []command.Checker{command.Keyword("act")},
				Handler:     s.act,
				UnreadyOnly: true,
			},
			{
				Description: "wait",
				Checkers:    []command.Checker{command.Keyword("wait")},
				Handler:     func(command.Call) protocol.Outcome { return protocol.Continue },
			},
			{
				Description: "finish the stage",
				Checkers:    []command.Checker{command.Keyword("finish")},
				Handler:     func(command.Call) protocol.Outcome { return protocol.Checkout },
			},
			{
				Description: "act privately",
				Checkers:    []command.Checker{command.Keyword("secret")},
				Handler:     s.act,
				Channel:     command.PrivateOnly,
			},
			{
				Description: "bid",
				Checkers:    []command.Checker{command.Keyword("bid"), command.Int(1, 3)},
				Handler:     s.act,
			},
		},
	})
	return s
}

func (s *actStage) testChild() {}

func (s *actStage) act(c command.Call) protocol.Outcome {
	s.j.add("%s:act:%d", s.Name(), c.Seat)
	c.Reply.Text("ok")
	return protocol.Ready
}

func (s *actStage) OnEnter() protocol.Outcome {
	s.j.add("%s:enter", s.Name())
	if s.skip {
		return protocol.Checkout
	}
	return protocol.Continue
}

func (s *actStage) OnTimeout() protocol.Outcome {
	s.j.add("%s:timeout", s.Name())
	if s.continueOnTimeout {
		return protocol.Continue
	}
	return protocol.Checkout
}

func (s *actStage) OnAllReady() protocol.Outcome {
	s.j.add("%s:all-ready", s.Name())
	if s.reopen {
		return protocol.Continue
	}
	return protocol.Checkout
}

func (s *actStage) OnRelease() {
	s.j.add("%s:release", s.Name())
}

type seqStage struct {
	*stage.Compound[child]
	j          *journal
	pending    []func() child
	reasons    []protocol.Reason
	endOnLeave bool
}

func newSeqStage(ctx *stage.Context, j *journal, name string, children ...func() child) *seqStage {
	s := &seqStage{j: j, pending: children}
	s.Compound = stage.NewCompound[child](ctx, name, s, stage.CompoundOpts{
		Commands: command.Table{
			{
				Description: "status",
				Checkers:    []command.Checker{command.Keyword("status")},
				Handler: func(c command.Call) protocol.Outcome {
					c.Reply.Text("%s is running", name)
					return protocol.Continue
				},
			},
			{
				Description: "abort",
				Checkers:    []command.Checker{command.Keyword("abort")},
				Handler:     func(command.Call) protocol.Outcome { return protocol.Checkout },
			},
			{
				Description: "claim",
				Checkers:    []command.Checker{command.Keyword("claim")},
				Handler:     func(command.Call) protocol.Outcome { return protocol.Ready },
			},
		},
	})
	return s
}

func (s *seqStage) testChild() {}

func (s *seqStage) pop() (child, bool) {
	if len(s.pending) == 0 {
		return nil, false
	}
	c := s.pending[0]()
	s.pending = s.pending[1:]
	return c, true
}

func (s *seqStage) FirstChild() child {
	c, _ := s.pop()
	return c
}

func (s *seqStage) NextChild(finished child, reason protocol.Reason) (child, bool) {
	s.j.add("%s:next:%s:%s", s.Name(), finished.Name(), reason)
	s.reasons = append(s.reasons, reason)
	return s.pop()
}

func (s *seqStage) OnLeaveNotification(seat int) protocol.Outcome {
	s.j.add("%s:leave-notified:%d", s.Name(), seat)
	if s.endOnLeave {
		return protocol.Checkout
	}
	return protocol.Continue
}

type fixture struct {
	ctx   *stage.Context
	rec   *messenger.Recorder
	clock *timer.Manual
	j     *journal
}

func newFixture(seats int, opts ...func(*stage.Options)) *fixture {
	o := stage.Options{Seats: seats}
	for _, fn := range opts {
		fn(&o)
	}
	f := &fixture{
		rec:   messenger.NewRecorder(),
		clock: timer.NewManual(),
		j:     &journal{},
	}
	f.ctx = stage.NewContext(o, f.rec, f.clock, zap.NewNop())
	return f
}

func (f *fixture) act(name string, timeout time.Duration) func() child {
	return func() child {
		return newActStage(f.ctx, f.j, name, timeout)
	}
}

func (f *fixture) skipping(name string) func() child {
	return func() child {
		s := newActStage(f.ctx, f.j, name, 0)
		s.skip = true
		return s
	}
}
