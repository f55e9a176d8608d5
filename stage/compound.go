package stage

import (
	"fmt"

	"github.com/minaorangina/gamehost/command"
	"github.com/minaorangina/gamehost/protocol"
	"go.uber.org/zap"
)

// CompoundLogic picks a compound stage's children. C is the closed set of
// child types the compound accepts, usually a small interface implemented
// only by the game's own child stages.
type CompoundLogic[C Node] interface {
	FirstChild() C
	// NextChild returns the child to enter after finished, or false when the compound is done
	NextChild(finished C, reason protocol.Reason) (C, bool)
}

type CompoundOpts struct {
	// Commands are tried before the current child's, in every child
	Commands command.Table
}

// Compound is an interior stage owning one child at a time
type Compound[C Node] struct {
	base
	logic    CompoundLogic[C]
	commands command.Table
	child    C
	hasChild bool
}

// NewCompound creates a compound stage. logic is the embedding game stage;
// it may also implement Enterer, LeaveNotifier and Releaser.
// Nothing happens until the stage is entered.
func NewCompound[C Node](ctx *Context, name string, logic CompoundLogic[C], opts CompoundOpts) *Compound[C] {
	return &Compound[C]{
		base:     base{ctx: ctx, name: name},
		logic:    logic,
		commands: opts.Commands,
	}
}

// Current returns the child being played, and false once the compound has none
func (c *Compound[C]) Current() (C, bool) {
	return c.child, c.hasChild
}

// Commands returns the compound's own command table
func (c *Compound[C]) Commands() command.Table {
	return c.commands
}

func (c *Compound[C]) self() Node {
	if n, ok := c.logic.(Node); ok {
		return n
	}
	return c
}

func (c *Compound[C]) enter() {
	c.markEntered()
	c.ctx.logger.Debug("stage entered", zap.String("stage", c.name))

	if h, ok := c.logic.(Enterer); ok {
		switch out := h.OnEnter(); out {
		case protocol.Checkout:
			c.finish()
			return
		case protocol.Continue:
		default:
			panic(badOutcome(c.name, "OnEnter", out))
		}
	}

	c.begin(c.logic.FirstChild())
}

// begin enters next, moving on with Skip for as long as the entered child is
// already over.
func (c *Compound[C]) begin(next C) {
	for {
		if Node(next) == nil {
			panic(fmt.Sprintf("stage %s: nil child", c.name))
		}
		next.core().adoptBy(c.self())
		c.child = next
		c.hasChild = true

		c.ctx.masker.ClearAll()
		next.enter()
		if !next.Over() {
			return
		}

		var ok bool
		old := next
		next, ok = c.logic.NextChild(old, protocol.Skip)
		c.drop(old, protocol.Skip)
		if !ok {
			c.finish()
			return
		}
	}
}

// checkout replaces the finished child with its successor
func (c *Compound[C]) checkout(reason protocol.Reason) {
	old := c.child
	next, ok := c.logic.NextChild(old, reason)
	c.drop(old, reason)
	if !ok {
		c.finish()
		return
	}
	c.begin(next)
}

func (c *Compound[C]) drop(old C, reason protocol.Reason) {
	c.ctx.logger.Debug("stage checked out",
		zap.String("stage", old.Name()),
		zap.String("parent", c.name),
		zap.Stringer("reason", reason))

	var zero C
	c.child = zero
	c.hasChild = false
	old.release()
}

// abort ends the compound before its child has finished
func (c *Compound[C]) abort(reason protocol.Reason) {
	if c.hasChild {
		c.drop(c.child, reason)
	}
	c.finish()
}

// HandleCommand tries the compound's own commands, then the current child's
func (c *Compound[C]) HandleCommand(seat int, public bool, text string) protocol.Result {
	c.mustBeLive("HandleCommand")
	if c.over {
		return protocol.ResultNotFound
	}

	m := c.commands.Lookup(text)
	if m.Found {
		switch out := c.ctx.run(m, seat, public); out {
		case protocol.Failed:
			return protocol.ResultFailed
		case protocol.Continue:
			return protocol.ResultOK
		case protocol.Checkout:
			c.abort(protocol.ByRequest)
			return protocol.ResultCheckout
		default:
			panic(badOutcome(c.name, "command handler", out))
		}
	}

	res := c.child.HandleCommand(seat, public, text)
	if res == protocol.ResultNotFound && len(m.Misused) > 0 {
		c.ctx.replyUsage(seat, public, m.Misused)
		return protocol.ResultFailed
	}
	if c.child.Over() {
		c.checkout(protocol.ByRequest)
	}
	if c.over {
		return protocol.ResultCheckout
	}
	return res
}

// HandleTimeout forwards the timeout to the current child
func (c *Compound[C]) HandleTimeout() protocol.Outcome {
	c.mustBeLive("HandleTimeout")
	if c.over {
		return protocol.Checkout
	}

	c.child.HandleTimeout()
	if c.child.Over() {
		c.checkout(protocol.ByTimeout)
	}
	if c.over {
		return protocol.Checkout
	}
	return protocol.Continue
}

// HandleLeave marks seat as gone, lets the compound react, then forwards the leave
func (c *Compound[C]) HandleLeave(seat int) protocol.Outcome {
	c.mustBeLive("HandleLeave")
	c.ctx.markLeft(seat)
	if c.over {
		return protocol.Checkout
	}

	if h, ok := c.logic.(LeaveNotifier); ok {
		switch out := h.OnLeaveNotification(seat); out {
		case protocol.Checkout:
			c.abort(protocol.ByLeave)
			return protocol.Checkout
		case protocol.Continue:
		default:
			panic(badOutcome(c.name, "OnLeaveNotification", out))
		}
	}

	c.child.HandleLeave(seat)
	if c.child.Over() {
		c.checkout(protocol.ByLeave)
	}
	if c.over {
		return protocol.Checkout
	}
	return protocol.Continue
}

// HandleAutomatedAction forwards to the current child
func (c *Compound[C]) HandleAutomatedAction(seat int, countsAsHuman bool) protocol.Outcome {
	c.mustBeLive("HandleAutomatedAction")
	if c.over {
		return protocol.Checkout
	}

	out := c.child.HandleAutomatedAction(seat, countsAsHuman)
	if c.child.Over() {
		c.checkout(protocol.ByRequest)
	}
	if c.over {
		return protocol.Checkout
	}
	return out
}

func (c *Compound[C]) finish() {
	if c.over {
		return
	}
	c.over = true
	c.ctx.logger.Debug("stage over", zap.String("stage", c.name))
}

func (c *Compound[C]) release() {
	c.mustBeLive("release")
	if c.hasChild {
		c.drop(c.child, protocol.ByRequest)
	}
	c.over = true
	c.released = true
	if h, ok := c.logic.(Releaser); ok {
		h.OnRelease()
	}
}
