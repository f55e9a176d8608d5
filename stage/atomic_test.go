package stage_test

import (
	"testing"
	"time"

	utils "github.com/minaorangina/gamehost/internal"
	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
	"github.com/minaorangina/gamehost/stage"
	"github.com/stretchr/testify/assert"
)

func TestAtomicReadiness(t *testing.T) {
	t.Run("both seats must act", func(t *testing.T) {
		f := newFixture(2)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		t.Log("Given seat 0 acts")
		utils.AssertEqual(t, s.HandleCommand(0, false, "act"), protocol.ResultOK)
		utils.AssertFalse(t, s.Over())

		t.Log("When seat 1 acts too")
		res := s.HandleCommand(1, false, "act")

		t.Log("Then the stage checks out")
		utils.AssertEqual(t, res, protocol.ResultCheckout)
		utils.AssertTrue(t, s.Over())
		utils.AssertEqual(t, f.j.count("A:all-ready"), 1)
	})

	t.Run("a leave after another seat acted closes the stage", func(t *testing.T) {
		f := newFixture(2)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(0, false, "act"), protocol.ResultOK)

		out := s.HandleLeave(1)

		utils.AssertEqual(t, f.ctx.Masker().Activity(1), protocol.PermanentlyInactive)
		utils.AssertEqual(t, out, protocol.Checkout)
		utils.AssertTrue(t, s.Over())
		utils.AssertFalse(t, f.ctx.InDeduction())
	})

	t.Run("everyone leaving without acting switches to deduction", func(t *testing.T) {
		f := newFixture(3)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleLeave(0), protocol.Continue)
		utils.AssertEqual(t, s.HandleLeave(1), protocol.Continue)
		utils.AssertFalse(t, f.ctx.InDeduction())

		out := s.HandleLeave(2)

		m := f.ctx.Masker()
		utils.AssertFalse(t, m.AnyReady())
		utils.AssertTrue(t, m.AllPermanentlyInactive())
		utils.AssertTrue(t, m.Ok())
		utils.AssertTrue(t, f.ctx.InDeduction())
		utils.AssertEqual(t, out, protocol.Checkout)
	})

	t.Run("unready only commands are rejected once ready", func(t *testing.T) {
		f := newFixture(2)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(0, false, "act"), protocol.ResultOK)
		f.rec.Reset()

		utils.AssertEqual(t, s.HandleCommand(0, false, "act"), protocol.ResultFailed)

		m := f.ctx.Masker()
		utils.AssertTrue(t, m.IsReady(0))
		utils.AssertFalse(t, m.IsReady(1))
		utils.AssertFalse(t, s.Over())
		assert.Equal(t, []string{"You have already acted in this stage."}, f.rec.To(messenger.Whisper(0)))
		utils.AssertEqual(t, f.j.count("A:act:0"), 1)
	})

	t.Run("unknown and malformed commands change nothing", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(0, true, "dance"), protocol.ResultNotFound)
		utils.AssertEqual(t, s.HandleCommand(0, true, "bid 7"), protocol.ResultFailed)
		utils.AssertFalse(t, f.ctx.Masker().IsReady(0))
		assert.Equal(t, []string{"Usage:\n  bid <1-3>"}, f.rec.To(messenger.GroupChannel()))

		utils.AssertEqual(t, s.HandleCommand(0, true, "bid 2"), protocol.ResultCheckout)
	})

	t.Run("channel restrictions", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(0, true, "secret"), protocol.ResultFailed)
		utils.AssertFalse(t, f.ctx.Masker().IsReady(0))
		utils.AssertEqual(t, s.HandleCommand(0, false, "secret"), protocol.ResultCheckout)
	})

	t.Run("continue leaves readiness alone", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(0, false, "wait"), protocol.ResultOK)
		utils.AssertFalse(t, f.ctx.Masker().IsReady(0))
	})

	t.Run("a handler may end the stage outright", func(t *testing.T) {
		f := newFixture(3)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleCommand(2, false, "finish"), protocol.ResultCheckout)
		utils.AssertTrue(t, s.Over())
	})

	t.Run("a stage that never settles is a programming error", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		s.reopen = true
		f.ctx.Begin(s)

		utils.AssertPanics(t, func() { s.HandleCommand(0, false, "act") })
	})
}

func TestAtomicAutomatedActions(t *testing.T) {
	t.Run("automated readiness alone does not close the stage", func(t *testing.T) {
		f := newFixture(2)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleAutomatedAction(0, false), protocol.Ready)
		utils.AssertEqual(t, s.HandleAutomatedAction(1, false), protocol.Ready)
		utils.AssertFalse(t, s.Over())

		f.ctx.Masker().UnsetReady(1)
		utils.AssertEqual(t, s.HandleCommand(1, false, "act"), protocol.ResultCheckout)
	})

	t.Run("automated readiness counting as human closes the stage", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		utils.AssertEqual(t, s.HandleAutomatedAction(0, true), protocol.Checkout)
	})
}

func TestAtomicTimer(t *testing.T) {
	t.Run("a timeout ends the stage by default", func(t *testing.T) {
		f := newFixture(2)
		s := newActStage(f.ctx, f.j, "A", 10*time.Second)
		f.ctx.Begin(s)
		utils.AssertTrue(t, f.clock.Armed())

		f.clock.Advance(10 * time.Second)

		utils.AssertTrue(t, s.Over())
		utils.AssertEqual(t, f.j.count("A:timeout"), 1)
	})

	t.Run("finishing early stops the timer", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 10*time.Second)
		f.ctx.Begin(s)

		s.HandleCommand(0, false, "act")

		utils.AssertFalse(t, f.clock.Armed())
	})

	t.Run("stopping an unarmed timer is harmless", func(t *testing.T) {
		f := newFixture(1)
		s := newActStage(f.ctx, f.j, "A", 0)
		f.ctx.Begin(s)

		s.StopTimer()
		s.StopTimer()
		utils.AssertFalse(t, f.clock.Armed())
		utils.AssertFalse(t, s.Over())
	})

	t.Run("alerts remind seats that have not acted", func(t *testing.T) {
		f := newFixture(2, func(o *stage.Options) { o.Alerts = []time.Duration{3 * time.Second} })
		s := newActStage(f.ctx, f.j, "A", 10*time.Second)
		f.ctx.Begin(s)
		s.HandleCommand(0, false, "act")
		f.rec.Reset()

		f.clock.Advance(7 * time.Second)

		assert.Empty(t, f.rec.To(messenger.Whisper(0)))
		assert.Equal(t, []string{"3s left to act."}, f.rec.To(messenger.Whisper(1)))
		utils.AssertFalse(t, s.Over())
	})

	t.Run("timeouts hook unready seats", func(t *testing.T) {
		f := newFixture(3, func(o *stage.Options) { o.HookOnTimeout = true })
		s := newActStage(f.ctx, f.j, "A", 10*time.Second)
		s.continueOnTimeout = true
		f.ctx.Begin(s)

		s.HandleCommand(0, false, "act")
		f.clock.Advance(10 * time.Second)

		m := f.ctx.Masker()
		utils.AssertEqual(t, m.Activity(0), protocol.Active)
		utils.AssertEqual(t, m.Activity(1), protocol.TemporarilyInactive)
		utils.AssertEqual(t, m.Activity(2), protocol.TemporarilyInactive)

		t.Log("Then the hooked seats are no longer waited on")
		utils.AssertTrue(t, s.Over())
		assert.Len(t, f.rec.To(messenger.Whisper(1)), 1)
	})

	t.Run("a timeout with nobody ready keeps a continuing stage open", func(t *testing.T) {
		f := newFixture(2, func(o *stage.Options) { o.HookOnTimeout = true })
		s := newActStage(f.ctx, f.j, "A", 10*time.Second)
		s.continueOnTimeout = true
		f.ctx.Begin(s)

		f.clock.Advance(10 * time.Second)

		utils.AssertFalse(t, s.Over())
	})
}
