package messenger

import (
	"fmt"
	"io"
	"sync"
)

// Delivery is a message recorded with its target
type Delivery struct {
	To  Target
	Msg Message
}

// Recorder is an in-memory Transport
type Recorder struct {
	mu         sync.Mutex
	deliveries []Delivery
}

// NewRecorder creates an empty Recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) Deliver(to Target, msg Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = append(r.deliveries, Delivery{To: to, Msg: msg})
	return nil
}

// Deliveries returns a copy of everything delivered so far
func (r *Recorder) Deliveries() []Delivery {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Delivery(nil), r.deliveries...)
}

// To returns the plain text of every message sent to target
func (r *Recorder) To(target Target) []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	texts := []string{}
	for _, d := range r.deliveries {
		if d.To == target {
			texts = append(texts, d.Msg.String())
		}
	}
	return texts
}

// Reset forgets everything recorded
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deliveries = nil
}

// NewWriterTransport prints every message to w, prefixed by its target
func NewWriterTransport(w io.Writer) Transport {
	var mu sync.Mutex
	return TransportFunc(func(to Target, msg Message) error {
		mu.Lock()
		defer mu.Unlock()
		_, err := fmt.Fprintf(w, "[%s #%d] %s\n", to, msg.ID, msg)
		return err
	})
}
