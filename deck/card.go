package deck

import (
	"fmt"
)

// Rank represents a rank in a deck of cards
type Rank int

var rankNames = []string{"Ace", "Two", "Three", "Four", "Five", "Six", "Seven", "Eight", "Nine", "Ten", "Jack", "Queen", "King"}

const (
	Ace Rank = iota
	Two
	Three
	Four
	Five
	Six
	Seven
	Eight
	Nine
	Ten
	Jack
	Queen
	King
)

func (r Rank) String() string {
	return rankNames[r]
}

// Suit represents a suit in a deck of cards
type Suit int

var suitNames = []string{"Clubs", "Diamonds", "Hearts", "Spades"}

const (
	Clubs Suit = iota
	Diamonds
	Hearts
	Spades
)

func (s Suit) String() string {
	return suitNames[s]
}

// Card is a playing card
type Card struct {
	Rank Rank `json:"rank"`
	Suit Suit `json:"suit"`
}

// NewCard constructs a card. It panics when rank or suit is out of range.
func NewCard(rank Rank, suit Suit) Card {
	if rank < Ace || rank > King || suit < Clubs || suit > Spades {
		panic(fmt.Sprintf("card out of range: rank %d, suit %d", rank, suit))
	}
	return Card{Rank: rank, Suit: suit}
}

func (c Card) String() string {
	return fmt.Sprintf("%s of %s", c.Rank, c.Suit)
}

// Value ranks cards with aces high: Two is 2, Ace is 14
func (c Card) Value() int {
	if c.Rank == Ace {
		return 14
	}
	return int(c.Rank) + 1
}

// Beats reports whether c outranks other, comparing suits on equal value
func (c Card) Beats(other Card) bool {
	if c.Value() != other.Value() {
		return c.Value() > other.Value()
	}
	return c.Suit > other.Suit
}
