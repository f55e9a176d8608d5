// Package command matches player text against an ordered table of commands.
package command

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/minaorangina/gamehost/messenger"
	"github.com/minaorangina/gamehost/protocol"
)

// Channel restricts where a command may be sent
type Channel int

const (
	AnyChannel Channel = iota
	PublicOnly
	PrivateOnly
)

// Allows reports whether a command limited to c may be sent on a channel
func (c Channel) Allows(public bool) bool {
	switch c {
	case PublicOnly:
		return public
	case PrivateOnly:
		return !public
	}
	return true
}

// Checker validates one whitespace separated token
type Checker interface {
	Check(token string) (interface{}, bool)
	Usage() string
}

type keyword []string

// Keyword matches any of aliases, case-insensitively. The argument is the first alias.
func Keyword(aliases ...string) Checker {
	return keyword(aliases)
}

func (k keyword) Check(token string) (interface{}, bool) {
	for _, a := range k {
		if strings.EqualFold(a, token) {
			return k[0], true
		}
	}
	return nil, false
}

func (k keyword) Usage() string {
	return strings.Join(k, "|")
}

type integer struct {
	min, max int
}

// Int matches an integer between min and max inclusive
func Int(min, max int) Checker {
	return integer{min, max}
}

func (c integer) Check(token string) (interface{}, bool) {
	n, err := strconv.Atoi(token)
	if err != nil || n < c.min || n > c.max {
		return nil, false
	}
	return n, true
}

func (c integer) Usage() string {
	return fmt.Sprintf("<%d-%d>", c.min, c.max)
}

type choice []string

// Choice matches one of options, case-insensitively. The argument is the option's index.
func Choice(options ...string) Checker {
	return choice(options)
}

func (c choice) Check(token string) (interface{}, bool) {
	for i, o := range c {
		if strings.EqualFold(o, token) {
			return i, true
		}
	}
	return nil, false
}

func (c choice) Usage() string {
	return "{" + strings.Join(c, ",") + "}"
}

type word string

// Word matches any single token
func Word(name string) Checker {
	return word(name)
}

func (w word) Check(token string) (interface{}, bool) {
	return token, true
}

func (w word) Usage() string {
	return "<" + string(w) + ">"
}

// Call is what a handler receives when its command matched
type Call struct {
	Seat   int
	Public bool
	// Reply goes back to the sender, publicly or privately depending on where the command came from
	Reply *messenger.Sink
	Args  []interface{}
}

// Int returns argument i as an int
func (c Call) Int(i int) int {
	return c.Args[i].(int)
}

// String returns argument i as a string
func (c Call) String(i int) string {
	return c.Args[i].(string)
}

// Handler runs a matched command
type Handler func(Call) protocol.Outcome

// Command binds a sequence of checkers to a handler
type Command struct {
	Description string
	Checkers    []Checker
	Handler     Handler
	// UnreadyOnly commands are rejected once the sender is ready
	UnreadyOnly bool
	Channel     Channel
}

// Usage renders the command's shape
func (c Command) Usage() string {
	parts := make([]string, 0, len(c.Checkers))
	for _, ch := range c.Checkers {
		parts = append(parts, ch.Usage())
	}
	return strings.Join(parts, " ")
}

func (c Command) match(tokens []string) ([]interface{}, bool) {
	if len(tokens) != len(c.Checkers) {
		return nil, false
	}
	args := make([]interface{}, 0, len(tokens))
	for i, ch := range c.Checkers {
		v, ok := ch.Check(tokens[i])
		if !ok {
			return nil, false
		}
		args = append(args, v)
	}
	return args, true
}

// leads reports whether the first token names this command
func (c Command) leads(tokens []string) bool {
	if len(tokens) == 0 || len(c.Checkers) == 0 {
		return false
	}
	if _, ok := c.Checkers[0].(keyword); !ok {
		return false
	}
	_, ok := c.Checkers[0].Check(tokens[0])
	return ok
}

// Match is the result of looking text up in a Table
type Match struct {
	Command Command
	Args    []interface{}
	// Found is false when no command matched
	Found bool
	// Misused lists the commands whose keyword matched when nothing else did
	Misused []Command
}

// Table is an ordered list of commands. The first structural match wins.
type Table []Command

// Lookup finds the first command matching text
func (t Table) Lookup(text string) Match {
	tokens := strings.Fields(text)
	misused := []Command{}
	for _, c := range t {
		if args, ok := c.match(tokens); ok {
			return Match{Command: c, Args: args, Found: true}
		}
		if c.leads(tokens) {
			misused = append(misused, c)
		}
	}
	return Match{Misused: misused}
}

// Help lists every command with its usage
func (t Table) Help() string {
	var b strings.Builder
	for i, c := range t {
		if i > 0 {
			b.WriteString("\n")
		}
		fmt.Fprintf(&b, "%s: %s", c.Usage(), c.Description)
	}
	return b.String()
}
