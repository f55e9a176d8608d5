// Package masker tracks which seats have acted in the current stage and which
// seats the match is still waiting on.
package masker

import (
	"errors"
	"fmt"

	"github.com/minaorangina/gamehost/protocol"
)

var (
	ErrPermanentlyInactive = errors.New("seat has left the match")
	ErrNotInactive         = errors.New("seat is not temporarily inactive")
)

// Masker holds a ready flag and an activity state per seat.
// Ready and activity are independent: a seat can be made ready
// by an automated action without counting as a human decision.
type Masker struct {
	ready    []bool
	activity []protocol.Activity
	anyReady bool
}

// New creates a Masker for n seats, all active and none ready
func New(n int) *Masker {
	if n < 1 {
		panic(fmt.Sprintf("masker: need at least one seat, got %d", n))
	}
	return &Masker{
		ready:    make([]bool, n),
		activity: make([]protocol.Activity, n),
	}
}

// Size returns the number of seats
func (m *Masker) Size() int {
	return len(m.ready)
}

func (m *Masker) check(seat int) {
	if seat < 0 || seat >= len(m.ready) {
		panic(fmt.Sprintf("masker: seat %d out of range [0, %d)", seat, len(m.ready)))
	}
}

// SetReady marks seat as ready. Only a human action counts towards AnyReady.
func (m *Masker) SetReady(seat int, isHuman bool) {
	m.check(seat)
	m.ready[seat] = true
	if isHuman {
		m.anyReady = true
	}
}

// SilentlySetReady marks seat as ready without registering a human action
func (m *Masker) SilentlySetReady(seat int) {
	m.check(seat)
	m.ready[seat] = true
}

// UnsetReady clears seat's ready flag. AnyReady is left alone.
func (m *Masker) UnsetReady(seat int) {
	m.check(seat)
	m.ready[seat] = false
}

// ClearAll resets readiness for a new stage. Activity is kept.
func (m *Masker) ClearAll() {
	for i := range m.ready {
		m.ready[i] = false
	}
	m.anyReady = false
}

// SetTemporaryInactive hooks seat so it is skipped until reactivated.
// It has no effect on a seat that has already left.
func (m *Masker) SetTemporaryInactive(seat int) {
	m.check(seat)
	if m.activity[seat] == protocol.PermanentlyInactive {
		return
	}
	m.activity[seat] = protocol.TemporarilyInactive
}

// SetPermanentInactive marks seat as gone for the rest of the match
func (m *Masker) SetPermanentInactive(seat int) {
	m.check(seat)
	m.activity[seat] = protocol.PermanentlyInactive
}

// Reactivate brings a hooked seat back
func (m *Masker) Reactivate(seat int) error {
	m.check(seat)
	switch m.activity[seat] {
	case protocol.PermanentlyInactive:
		return fmt.Errorf("reactivate seat %d: %w", seat, ErrPermanentlyInactive)
	case protocol.Active:
		return fmt.Errorf("reactivate seat %d: %w", seat, ErrNotInactive)
	}
	m.activity[seat] = protocol.Active
	return nil
}

// IsReady reports whether seat has acted in the current stage
func (m *Masker) IsReady(seat int) bool {
	m.check(seat)
	return m.ready[seat]
}

// Activity returns seat's activity state
func (m *Masker) Activity(seat int) protocol.Activity {
	m.check(seat)
	return m.activity[seat]
}

// IsActive reports whether the match is waiting on seat
func (m *Masker) IsActive(seat int) bool {
	return m.Activity(seat) == protocol.Active
}

// AnyReady reports whether any human has acted in the current stage
func (m *Masker) AnyReady() bool {
	return m.anyReady
}

// AllPermanentlyInactive reports whether every seat has left
func (m *Masker) AllPermanentlyInactive() bool {
	for _, a := range m.activity {
		if a != protocol.PermanentlyInactive {
			return false
		}
	}
	return true
}

// ActiveSeats returns the seats that are neither hooked nor gone
func (m *Masker) ActiveSeats() []int {
	seats := []int{}
	for i, a := range m.activity {
		if a == protocol.Active {
			seats = append(seats, i)
		}
	}
	return seats
}

// Ok reports whether the current stage may close: either every seat
// has left, or every seat is ready or inactive and a human has acted.
func (m *Masker) Ok() bool {
	if m.AllPermanentlyInactive() {
		return true
	}
	if !m.anyReady {
		return false
	}
	for i := range m.ready {
		if !m.ready[i] && m.activity[i] == protocol.Active {
			return false
		}
	}
	return true
}

func (m *Masker) String() string {
	return fmt.Sprintf("ready=%v activity=%v anyReady=%t", m.ready, m.activity, m.anyReady)
}
