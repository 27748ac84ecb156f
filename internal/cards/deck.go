package cards

import (
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
)

var ErrDeckExhausted = errors.New("deck exhausted")

// Deck is one shuffled 52-card permutation. It is used for a single hand and then discarded.
type Deck struct {
	cards [52]Card
	next  int
}

// NewShuffledDeck returns a fresh uniformly random permutation drawn from crypto/rand.
func NewShuffledDeck() (*Deck, error) {
	return newDeckFrom(rand.Reader)
}

func newDeckFrom(src io.Reader) (*Deck, error) {
	d := &Deck{}
	i := 0
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			d.cards[i] = Card{Rank: rank, Suit: suit}
			i++
		}
	}

	// Fisher-Yates. rand.Int rejects out-of-range samples, so there is no modulo bias.
	for i := len(d.cards) - 1; i > 0; i-- {
		n, err := rand.Int(src, big.NewInt(int64(i+1)))
		if err != nil {
			return nil, fmt.Errorf("shuffle: %w", err)
		}
		j := int(n.Int64())
		d.cards[i], d.cards[j] = d.cards[j], d.cards[i]
	}
	return d, nil
}

// Draw removes and returns the top card. Running out of cards is a programming error and panics.
func (d *Deck) Draw() Card {
	if d.next >= len(d.cards) {
		panic(ErrDeckExhausted)
	}
	c := d.cards[d.next]
	d.next++
	return c
}

func (d *Deck) Remaining() int { return len(d.cards) - d.next }

// Stack builds a deck whose draws return top in order before falling back to a fixed order.
// It exists for deterministic tests of the game engine.
func Stack(top ...Card) *Deck {
	d := &Deck{}
	used := make(map[Card]bool, len(top))
	i := 0
	for _, c := range top {
		d.cards[i] = c
		used[c] = true
		i++
	}
	for suit := Clubs; suit <= Spades; suit++ {
		for rank := Two; rank <= Ace; rank++ {
			c := Card{Rank: rank, Suit: suit}
			if used[c] {
				continue
			}
			d.cards[i] = c
			i++
		}
	}
	return d
}
