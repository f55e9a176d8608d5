package messenger

import "fmt"

// Sink accumulates the parts of one logical reply. It is flushed once.
type Sink struct {
	to        Target
	transport Transport
	nextID    func() uint64
	muted     bool
	flushed   bool
	parts     []Part
}

// NewSink creates a sink delivering to target. nextID numbers the message on flush.
func NewSink(to Target, transport Transport, nextID func() uint64) *Sink {
	return &Sink{to: to, transport: transport, nextID: nextID}
}

// Muted returns a sink that accepts parts and never delivers them
func Muted() *Sink {
	return &Sink{muted: true}
}

// Target returns where the sink delivers
func (s *Sink) Target() Target {
	return s.to
}

// Text appends formatted text
func (s *Sink) Text(format string, args ...interface{}) *Sink {
	if len(args) == 0 {
		return s.add(Part{Kind: Text, Text: format})
	}
	return s.add(Part{Kind: Text, Text: fmt.Sprintf(format, args...)})
}

// Mention appends a reference to seat
func (s *Sink) Mention(seat int) *Sink {
	return s.add(Part{Kind: Mention, Seat: seat})
}

// Markdown appends pre-rendered markdown
func (s *Sink) Markdown(md string) *Sink {
	return s.add(Part{Kind: Markdown, Text: md})
}

// Image appends an image reference
func (s *Sink) Image(ref string) *Sink {
	return s.add(Part{Kind: Image, Text: ref})
}

func (s *Sink) add(p Part) *Sink {
	if s.muted {
		return s
	}
	s.parts = append(s.parts, p)
	return s
}

// Len returns the number of parts added so far
func (s *Sink) Len() int {
	return len(s.parts)
}

// Flush delivers the accumulated parts. Flushing an empty or muted sink
// delivers nothing.
func (s *Sink) Flush() error {
	if s.flushed {
		return ErrAlreadyFlushed
	}
	s.flushed = true

	if s.muted || len(s.parts) == 0 {
		return nil
	}

	msg := Message{Parts: s.parts}
	if s.nextID != nil {
		msg.ID = s.nextID()
	}
	if err := s.transport.Deliver(s.to, msg); err != nil {
		return fmt.Errorf("deliver to %s: %w", s.to, err)
	}
	return nil
}
