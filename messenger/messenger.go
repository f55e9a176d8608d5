// Package messenger describes how stages talk to players. Stages build
// messages out of opaque parts and the host decides how to render and
// deliver them.
package messenger

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrAlreadyFlushed = errors.New("message already flushed")
)

// TargetKind says who a message is for
type TargetKind int

const (
	Everyone TargetKind = iota
	Group
	Seat
)

var targetKindNames = []string{"Everyone", "Group", "Seat"}

func (k TargetKind) String() string {
	if k < 0 || int(k) >= len(targetKindNames) {
		return "Unknown"
	}
	return targetKindNames[k]
}

// Target addresses a message
type Target struct {
	Kind TargetKind `json:"kind"`
	Seat int        `json:"seat,omitempty"`
}

// Broadcast targets every seat in the match
func Broadcast() Target {
	return Target{Kind: Everyone}
}

// GroupChannel targets the match's shared channel
func GroupChannel() Target {
	return Target{Kind: Group}
}

// Whisper targets a single seat privately
func Whisper(seat int) Target {
	return Target{Kind: Seat, Seat: seat}
}

func (t Target) String() string {
	if t.Kind == Seat {
		return fmt.Sprintf("Seat(%d)", t.Seat)
	}
	return t.Kind.String()
}

// PartKind is the type of a renderable part
type PartKind int

const (
	Text PartKind = iota
	Mention
	Markdown
	Image
)

var partKindNames = []string{"Text", "Mention", "Markdown", "Image"}

func (k PartKind) String() string {
	if k < 0 || int(k) >= len(partKindNames) {
		return "Unknown"
	}
	return partKindNames[k]
}

// Part is one piece of a message
type Part struct {
	Kind PartKind `json:"kind"`
	Text string   `json:"text,omitempty"`
	Seat int      `json:"seat,omitempty"`
}

// Message is a flushed, numbered group of parts
type Message struct {
	ID    uint64 `json:"id"`
	Parts []Part `json:"parts"`
}

// String renders the message as plain text
func (m Message) String() string {
	var b strings.Builder
	for _, p := range m.Parts {
		switch p.Kind {
		case Mention:
			fmt.Fprintf(&b, "@seat%d", p.Seat)
		case Image:
			fmt.Fprintf(&b, "[image %s]", p.Text)
		default:
			b.WriteString(p.Text)
		}
	}
	return b.String()
}

//go:generate go tool mockgen -destination=../internal/mocks/transport.go -package=mocks github.com/minaorangina/gamehost/messenger Transport

// Transport delivers messages on behalf of a match.
// Implementations must not call back into the match that is sending.
type Transport interface {
	Deliver(to Target, msg Message) error
}

// TransportFunc adapts a function to a Transport
type TransportFunc func(to Target, msg Message) error

func (f TransportFunc) Deliver(to Target, msg Message) error {
	return f(to, msg)
}

// Discard drops every message
var Discard Transport = TransportFunc(func(Target, Message) error { return nil })
