package stage

import (
	"time"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/protocol"
	"go.uber.org/zap"
)

type AtomicOpts struct {
	Commands command.Table
	// Timeout arms the match timer when the stage is entered. Zero means no timer.
	Timeout time.Duration
}

// Atomic is a leaf stage. Players act on it directly.
type Atomic struct {
	base
	logic    interface{}
	commands command.Table
	timeout  time.Duration
}

// NewAtomic creates an atomic stage. logic is the embedding game stage;
// it may implement any of the atomic hook interfaces.
// Nothing happens until the stage is entered.
func NewAtomic(ctx *Context, name string, logic interface{}, opts AtomicOpts) *Atomic {
	return &Atomic{
		base:     base{ctx: ctx, name: name},
		logic:    logic,
		commands: opts.Commands,
		timeout:  opts.Timeout,
	}
}

// Commands returns the stage's command table
func (a *Atomic) Commands() command.Table {
	return a.commands
}

// StartTimer arms, or re-arms, the match timer for this stage
func (a *Atomic) StartTimer(d time.Duration) {
	a.ctx.armTimer(a, d)
}

// StopTimer disarms the timer if this stage armed it
func (a *Atomic) StopTimer() {
	a.ctx.disarm(a)
}

func (a *Atomic) enter() {
	a.markEntered()
	a.ctx.serial++
	a.ctx.logger.Debug("stage entered", zap.String("stage", a.name))

	if a.timeout > 0 && !a.ctx.deduction {
		a.StartTimer(a.timeout)
	}

	out := protocol.Continue
	if h, ok := a.logic.(Enterer); ok {
		out = h.OnEnter()
	}
	switch out {
	case protocol.Checkout:
		a.finish()
		return
	case protocol.Continue:
	default:
		panic(badOutcome(a.name, "OnEnter", out))
	}

	a.settle()
}

// HandleCommand matches text against the stage's commands and runs the first match
func (a *Atomic) HandleCommand(seat int, public bool, text string) protocol.Result {
	a.mustBeLive("HandleCommand")
	if a.over {
		return protocol.ResultNotFound
	}

	m := a.commands.Lookup(text)
	if !m.Found {
		if len(m.Misused) > 0 {
			a.ctx.replyUsage(seat, public, m.Misused)
			return protocol.ResultFailed
		}
		return protocol.ResultNotFound
	}

	out := a.ctx.run(m, seat, public)
	switch out {
	case protocol.Failed:
		return protocol.ResultFailed
	case protocol.Continue:
	case protocol.Ready:
		a.ctx.masker.SetReady(seat, true)
	case protocol.Checkout:
		a.finish()
	default:
		panic(badOutcome(a.name, "command handler", out))
	}

	a.settle()
	if a.over {
		return protocol.ResultCheckout
	}
	return protocol.ResultOK
}

// HandleTimeout ends the stage unless its logic decides otherwise
func (a *Atomic) HandleTimeout() protocol.Outcome {
	a.mustBeLive("HandleTimeout")
	if a.over {
		return protocol.Checkout
	}

	if a.ctx.opts.HookOnTimeout {
		a.hookUnready()
	}

	out := protocol.Checkout
	if h, ok := a.logic.(TimeoutHandler); ok {
		out = h.OnTimeout()
	}
	switch out {
	case protocol.Checkout:
		a.finish()
	case protocol.Continue:
		a.settle()
	default:
		panic(badOutcome(a.name, "OnTimeout", out))
	}

	if a.over {
		return protocol.Checkout
	}
	return protocol.Continue
}

func (a *Atomic) hookUnready() {
	m := a.ctx.masker
	for seat := 0; seat < m.Size(); seat++ {
		if m.Activity(seat) != protocol.Active || m.IsReady(seat) {
			continue
		}
		m.SetTemporaryInactive(seat)
		a.ctx.WhisperTo(seat).
			Text("You did not act in time and will be skipped until you send a command.").
			Flush()
	}
}

// HandleLeave marks seat as gone for good, then tells the stage's logic
func (a *Atomic) HandleLeave(seat int) protocol.Outcome {
	a.mustBeLive("HandleLeave")
	a.ctx.markLeft(seat)
	if a.over {
		return protocol.Checkout
	}

	out := protocol.Continue
	if h, ok := a.logic.(LeaveHandler); ok {
		out = h.OnLeave(seat)
	}
	switch out {
	case protocol.Continue, protocol.Failed:
	case protocol.Ready:
		a.ctx.masker.SilentlySetReady(seat)
	case protocol.Checkout:
		a.finish()
	default:
		panic(badOutcome(a.name, "OnLeave", out))
	}

	a.settle()
	if a.over {
		return protocol.Checkout
	}
	return protocol.Continue
}

// HandleAutomatedAction acts for a seat with nobody behind it
func (a *Atomic) HandleAutomatedAction(seat int, countsAsHuman bool) protocol.Outcome {
	a.mustBeLive("HandleAutomatedAction")
	if a.over {
		return protocol.Checkout
	}

	out := a.act(seat, countsAsHuman)
	a.settle()
	if a.over {
		return protocol.Checkout
	}
	return out
}

func (a *Atomic) act(seat int, countsAsHuman bool) protocol.Outcome {
	out := protocol.Ready
	if h, ok := a.logic.(AutomatedActor); ok {
		out = h.OnAutomatedAction(seat)
	}

	switch out {
	case protocol.Ready:
		if countsAsHuman {
			a.ctx.masker.SetReady(seat, true)
		} else {
			a.ctx.masker.SilentlySetReady(seat)
		}
	case protocol.Checkout:
		a.finish()
	case protocol.Continue, protocol.Failed:
	default:
		panic(badOutcome(a.name, "OnAutomatedAction", out))
	}
	return out
}

// settle closes the stage for as long as every seat it waits on is ready.
// In deduction every seat gets its automated action first.
func (a *Atomic) settle() {
	m := a.ctx.masker
	for round := 0; !a.over; round++ {
		if round == maxSettleRounds {
			panic("stage " + a.name + ": readiness never settled")
		}

		if a.ctx.deduction {
			for seat := 0; seat < m.Size() && !a.over; seat++ {
				if !m.IsReady(seat) {
					a.act(seat, false)
				}
			}
			if a.over {
				return
			}
		}

		if !m.Ok() {
			return
		}

		out := protocol.Checkout
		if h, ok := a.logic.(AllReadyHandler); ok {
			out = h.OnAllReady()
		}
		switch out {
		case protocol.Checkout:
			a.finish()
		case protocol.Continue:
		default:
			panic(badOutcome(a.name, "OnAllReady", out))
		}
	}
}

func (a *Atomic) alert(remaining time.Duration) {
	if h, ok := a.logic.(Alerter); ok {
		h.OnAlert(remaining)
		return
	}

	m := a.ctx.masker
	for seat := 0; seat < m.Size(); seat++ {
		if m.IsActive(seat) && !m.IsReady(seat) {
			a.ctx.WhisperTo(seat).Text("%s left to act.", remaining.Round(time.Second)).Flush()
		}
	}
}

func (a *Atomic) finish() {
	if a.over {
		return
	}
	a.over = true
	a.ctx.disarm(a)
	a.ctx.logger.Debug("stage over", zap.String("stage", a.name))
}

func (a *Atomic) release() {
	a.mustBeLive("release")
	a.ctx.disarm(a)
	a.over = true
	a.released = true
	if h, ok := a.logic.(Releaser); ok {
		h.OnRelease()
	}
}
