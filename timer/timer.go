// Package timer provides the timer capability a match uses to expire stages.
package timer

import (
	"sort"
	"sync"
	"time"
)

//go:generate go tool mockgen -destination=../internal/mocks/timer.go -package=mocks github.com/minaorangina/gamehost/timer Timer

// Timer arms at most one countdown at a time. onTick is called with the
// elapsed time at every alert offset and finally at d itself. Start replaces
// any armed countdown; Stop is idempotent.
type Timer interface {
	Start(d time.Duration, alerts []time.Duration, onTick func(elapsed time.Duration))
	Stop()
}

// offsets returns the sorted alert offsets strictly inside (0, d) followed by d
func offsets(d time.Duration, alerts []time.Duration) []time.Duration {
	out := []time.Duration{}
	seen := map[time.Duration]bool{}
	for _, a := range alerts {
		if a <= 0 || a >= d || seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return append(out, d)
}

// Clock is a Timer backed by time.AfterFunc
type Clock struct {
	mu     sync.Mutex
	timers []*time.Timer
	gen    uint64
}

// NewClock creates an unarmed Clock
func NewClock() *Clock {
	return &Clock{}
}

func (c *Clock) Start(d time.Duration, alerts []time.Duration, onTick func(elapsed time.Duration)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	gen := c.gen
	for _, at := range offsets(d, alerts) {
		at := at
		c.timers = append(c.timers, time.AfterFunc(at, func() {
			c.mu.Lock()
			live := c.gen == gen
			c.mu.Unlock()
			if live {
				onTick(at)
			}
		}))
	}
}

func (c *Clock) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopLocked()
}

func (c *Clock) stopLocked() {
	for _, t := range c.timers {
		t.Stop()
	}
	c.timers = nil
	c.gen++
}

// Manual is a Timer driven by explicit calls to Advance.
// Hosts with their own tick loop use it, as do tests.
type Manual struct {
	mu      sync.Mutex
	armed   bool
	gen     uint64
	elapsed time.Duration
	pending []time.Duration
	onTick  func(time.Duration)
}

// NewManual creates an unarmed Manual timer
func NewManual() *Manual {
	return &Manual{}
}

func (m *Manual) Start(d time.Duration, alerts []time.Duration, onTick func(elapsed time.Duration)) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.armed = true
	m.elapsed = 0
	m.pending = offsets(d, alerts)
	m.onTick = onTick
}

func (m *Manual) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.gen++
	m.armed = false
	m.pending = nil
	m.onTick = nil
}

// Armed reports whether a countdown is running
func (m *Manual) Armed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Remaining returns the time left before the deadline, or 0 when unarmed
func (m *Manual) Remaining() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.armed {
		return 0
	}
	return m.pending[len(m.pending)-1] - m.elapsed
}

// Advance moves the countdown forward by d, firing every offset that falls due.
// Callbacks run without the timer's lock held. If a callback re-arms or stops
// the timer, the rest of d is discarded.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	target := m.elapsed + d
	m.mu.Unlock()

	for {
		m.mu.Lock()
		if !m.armed || len(m.pending) == 0 || m.pending[0] > target {
			if m.armed {
				m.elapsed = target
			}
			m.mu.Unlock()
			return
		}

		at := m.pending[0]
		m.pending = m.pending[1:]
		m.elapsed = at
		fn := m.onTick
		if len(m.pending) == 0 {
			m.armed = false
		}
		gen := m.gen
		m.mu.Unlock()

		fn(at)

		m.mu.Lock()
		superseded := m.gen != gen
		m.mu.Unlock()
		if superseded {
			return
		}
	}
}
