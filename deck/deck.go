package deck

import (
	"math/rand"
)

// Deck represents a deck of cards
type Deck []Card

// New creates an ordered deck of 52 cards
func New() Deck {
	cards := make(Deck, 0, len(suitNames)*len(rankNames))
	for suit := range suitNames {
		for rank := range rankNames {
			cards = append(cards, NewCard(Rank(rank), Suit(suit)))
		}
	}
	return cards
}

// Shuffle shuffles the deck using rng
func (d Deck) Shuffle(rng *rand.Rand) {
	for i := len(d) - 1; i > 0; i-- {
		j := rng.Intn(i + 1)
		d[i], d[j] = d[j], d[i]
	}
}

// Deal deals n cards from the top of the deck, or none if there are not enough
func (d *Deck) Deal(n int) []Card {
	numCardsInDeck := len(*d)
	if n < 0 || n > numCardsInDeck {
		return []Card{}
	}
	startingIndex := numCardsInDeck - n
	dealt := append([]Card(nil), (*d)[startingIndex:]...)
	*d = (*d)[:startingIndex]
	return dealt
}
