package cards

import (
	"fmt"

	"github.com/paulhankin/poker"
)

// Category is the hand class, ordered from weakest to strongest.
type Category int

const (
	HighCard Category = iota
	Pair
	TwoPair
	Trips
	Straight
	Flush
	FullHouse
	Quads
	StraightFlush
)

var categoryNames = [...]string{
	HighCard:      "High Card",
	Pair:          "Pair",
	TwoPair:       "Two Pair",
	Trips:         "Three of a Kind",
	Straight:      "Straight",
	Flush:         "Flush",
	FullHouse:     "Full House",
	Quads:         "Four of a Kind",
	StraightFlush: "Straight Flush",
}

func (c Category) String() string {
	if c < HighCard || c > StraightFlush {
		return "Unknown"
	}
	return categoryNames[c]
}

// Strength is a poker.Eval7 score: higher is stronger and equal means a tie.
type Strength int16

// Category finds the band the score falls in.
func (s Strength) Category() Category {
	for c := StraightFlush; c > HighCard; c-- {
		if s >= floors[c] {
			return c
		}
	}
	return HighCard
}

var phSuits = [...]poker.Suit{Clubs: poker.Club, Diamonds: poker.Diamond, Hearts: poker.Heart, Spades: poker.Spade}

// toPoker converts to the library's card; the library numbers the ace 1.
func toPoker(c Card) poker.Card {
	r := poker.Rank(c.Rank)
	if c.Rank == Ace {
		r = 1
	}
	pc, err := poker.MakeCard(phSuits[c.Suit], r)
	if err != nil {
		panic(fmt.Sprintf("cards: %v: %v", c, err))
	}
	return pc
}

// floors holds the weakest score of every category.
var floors = func() [StraightFlush + 1]Strength {
	weakest := [...]struct {
		cat  Category
		hand []string
	}{
		{Pair, []string{"2c", "2d", "3h", "4s", "5c"}},
		{TwoPair, []string{"3c", "3d", "2h", "2s", "4c"}},
		{Trips, []string{"2c", "2d", "2h", "3s", "4c"}},
		{Straight, []string{"Ac", "2d", "3h", "4s", "5c"}},
		{Flush, []string{"2s", "3s", "4s", "5s", "7s"}},
		{FullHouse, []string{"2c", "2d", "2h", "3s", "3c"}},
		{Quads, []string{"2c", "2d", "2h", "2s", "3c"}},
		{StraightFlush, []string{"As", "2s", "3s", "4s", "5s"}},
	}
	var f [StraightFlush + 1]Strength
	for _, w := range weakest {
		var five [5]poker.Card
		for i, c := range MustParse(w.hand...) {
			five[i] = toPoker(c)
		}
		f[w.cat] = Strength(poker.Eval5(&five))
	}
	return f
}()

// Evaluate returns the strength of the best five-card hand that can be made from seven cards.
func Evaluate(hand [7]Card) Strength {
	var h [7]poker.Card
	for i, c := range hand {
		h[i] = toPoker(c)
	}
	return Strength(poker.Eval7(&h))
}

// Best evaluates two hole cards against a complete five-card board.
func Best(hole []Card, board []Card) (Strength, bool) {
	if len(hole) != 2 || len(board) != 5 {
		return 0, false
	}
	var h [7]Card
	copy(h[:2], hole)
	copy(h[2:], board)
	return Evaluate(h), true
}
