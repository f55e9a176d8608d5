package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/minaorangina/gamehost/messenger"
	"go.uber.org/zap"
)

const sendBuffer = 64

var ErrClientBehind = errors.New("client is not keeping up")

// OutboundFrame is what a seat's connection receives
type OutboundFrame struct {
	ID      uint64 `json:"id,omitempty"`
	To      string `json:"to,omitempty"`
	Text    string `json:"text,omitempty"`
	Event   string `json:"event,omitempty"`
	Result  string `json:"result,omitempty"`
	Error   string `json:"error,omitempty"`
	Seat    *int   `json:"seat,omitempty"`
	MatchID string `json:"match_id,omitempty"`
}

// InboundFrame is what a seat's connection sends
type InboundFrame struct {
	Text   string `json:"text"`
	Public bool   `json:"public"`
	Leave  bool   `json:"leave"`
	// Auto asks the host to act for the seat
	Auto bool `json:"auto"`
}

type client struct {
	seat int
	send chan []byte
}

func newClient(seat int) *client {
	return &client{seat: seat, send: make(chan []byte, sendBuffer)}
}

// hub fans a match's messages out to the connected seats. It is the match's
// messenger.Transport and never blocks the match.
type hub struct {
	mu      sync.Mutex
	matchID string
	clients map[int]*client
	closed  bool
	logger  *zap.Logger
}

func newHub(matchID string, logger *zap.Logger) *hub {
	return &hub{
		matchID: matchID,
		clients: map[int]*client{},
		logger:  logger.With(zap.String("match_id", matchID)),
	}
}

// attach connects c to its seat, disconnecting whoever held it before
func (h *hub) attach(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	if old, ok := h.clients[c.seat]; ok {
		close(old.send)
	}
	h.clients[c.seat] = c
	h.logger.Debug("seat connected", zap.Int("seat", c.seat))
	return true
}

// detach disconnects c unless it was already replaced
func (h *hub) detach(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.clients[c.seat] != c {
		return
	}
	delete(h.clients, c.seat)
	close(c.send)
	h.logger.Debug("seat disconnected", zap.Int("seat", c.seat))
}

func (h *hub) close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	for seat, c := range h.clients {
		close(c.send)
		delete(h.clients, seat)
	}
}

func (h *hub) connected(seat int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.clients[seat]
	return ok
}

// Deliver implements messenger.Transport
func (h *hub) Deliver(to messenger.Target, msg messenger.Message) error {
	return h.sendFrame(to, OutboundFrame{ID: msg.ID, To: to.String(), Text: msg.String()})
}

func (h *hub) sendFrame(to messenger.Target, frame OutboundFrame) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	var errs []error
	for seat, c := range h.clients {
		if to.Kind == messenger.Seat && to.Seat != seat {
			continue
		}
		select {
		case c.send <- data:
		default:
			errs = append(errs, fmt.Errorf("seat %d: %w", seat, ErrClientBehind))
		}
	}
	return errors.Join(errs...)
}
