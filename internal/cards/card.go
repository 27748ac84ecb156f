package cards

import "fmt"

// Rank values. Aces are high (14); the wheel straight is handled by the evaluator.
const (
	Two   = 2
	Ten   = 10
	Jack  = 11
	Queen = 12
	King  = 13
	Ace   = 14
)

// Suits.
const (
	Clubs = iota
	Diamonds
	Hearts
	Spades
)

type Card struct {
	Rank int `json:"rank"`
	Suit int `json:"suit"`
}

func (c Card) Valid() bool {
	return c.Rank >= Two && c.Rank <= Ace && c.Suit >= Clubs && c.Suit <= Spades
}

func (c Card) String() string {
	const ranks = "  23456789TJQKA"
	const suits = "cdhs"
	if !c.Valid() {
		return "??"
	}
	return fmt.Sprintf("%c%c", ranks[c.Rank], suits[c.Suit])
}

// Parse reads the two-character form produced by String, e.g. "As" or "Td".
func Parse(s string) (Card, error) {
	if len(s) != 2 {
		return Card{}, fmt.Errorf("parse card %q: want 2 characters", s)
	}
	var c Card
	switch r := s[0]; {
	case r >= '2' && r <= '9':
		c.Rank = int(r - '0')
	case r == 'T':
		c.Rank = Ten
	case r == 'J':
		c.Rank = Jack
	case r == 'Q':
		c.Rank = Queen
	case r == 'K':
		c.Rank = King
	case r == 'A':
		c.Rank = Ace
	default:
		return Card{}, fmt.Errorf("parse card %q: bad rank", s)
	}
	switch s[1] {
	case 'c':
		c.Suit = Clubs
	case 'd':
		c.Suit = Diamonds
	case 'h':
		c.Suit = Hearts
	case 's':
		c.Suit = Spades
	default:
		return Card{}, fmt.Errorf("parse card %q: bad suit", s)
	}
	return c, nil
}

// MustParse is Parse for fixtures; it panics on malformed input.
func MustParse(cs ...string) []Card {
	out := make([]Card, 0, len(cs))
	for _, s := range cs {
		c, err := Parse(s)
		if err != nil {
			panic(err)
		}
		out = append(out, c)
	}
	return out
}
