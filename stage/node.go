package stage

import (
	"fmt"
	"time"

	"github.com/minaorangina/gamehost/protocol"
)

// maxSettleRounds bounds how often a stage may become ready again from
// within its own OnAllReady before the game is considered broken.
const maxSettleRounds = 1024

// Node is a stage in the tree. Games build nodes by embedding *Atomic or
// *Compound and never implement Node directly.
type Node interface {
	Name() string
	Over() bool
	HandleCommand(seat int, public bool, text string) protocol.Result
	HandleTimeout() protocol.Outcome
	HandleLeave(seat int) protocol.Outcome
	HandleAutomatedAction(seat int, countsAsHuman bool) protocol.Outcome

	core() *base
	enter()
	release()
}

// Scorer is implemented by main stages that produce a final score per seat
type Scorer interface {
	Scores() []int64
}

// Hooks an atomic stage's logic may implement

type Enterer interface {
	OnEnter() protocol.Outcome
}

type TimeoutHandler interface {
	OnTimeout() protocol.Outcome
}

type LeaveHandler interface {
	OnLeave(seat int) protocol.Outcome
}

type AutomatedActor interface {
	OnAutomatedAction(seat int) protocol.Outcome
}

type AllReadyHandler interface {
	OnAllReady() protocol.Outcome
}

type Alerter interface {
	OnAlert(remaining time.Duration)
}

type Releaser interface {
	OnRelease()
}

// LeaveNotifier lets a compound stage react to a departure before its child
// does. Returning Checkout ends the compound stage.
type LeaveNotifier interface {
	OnLeaveNotification(seat int) protocol.Outcome
}

type base struct {
	ctx      *Context
	name     string
	parent   Node
	entered  bool
	over     bool
	released bool
}

// Name returns the stage's name
func (b *base) Name() string {
	return b.name
}

// Over reports whether the stage has finished
func (b *base) Over() bool {
	return b.over
}

// Parent returns the compound stage owning this one, or nil for the main stage
func (b *base) Parent() Node {
	return b.parent
}

// IsMain reports whether this is the match's main stage
func (b *base) IsMain() bool {
	return b.parent == nil
}

// Context returns the match context
func (b *base) Context() *Context {
	return b.ctx
}

func (b *base) core() *base {
	return b
}

func (b *base) mustBeLive(op string) {
	if b.released {
		panic(fmt.Sprintf("stage %s: %s after release", b.name, op))
	}
}

func (b *base) markEntered() {
	b.mustBeLive("enter")
	if b.entered {
		panic(fmt.Sprintf("stage %s: entered twice", b.name))
	}
	b.entered = true
}

func (b *base) adoptBy(parent Node) {
	if b.parent != nil && b.parent != parent {
		panic(fmt.Sprintf("stage %s: already owned by %s", b.name, b.parent.Name()))
	}
	b.parent = parent
}

func badOutcome(stage, hook string, out protocol.Outcome) string {
	return fmt.Sprintf("stage %s: %s returned unexpected outcome %s", stage, hook, out)
}
