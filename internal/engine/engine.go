package engine

import (
	"errors"

	"github.com/DoyleJ11/headsup-poker-backend/internal/cards"
)

var ErrNotYourTurn = errors.New("not your turn")
var ErrHandOver = errors.New("hand is over")
var ErrCannotCheck = errors.New("cannot check facing a bet")
var ErrCannotRaise = errors.New("no raise is possible")
var ErrUnknownAction = errors.New("unknown action")
var ErrMatchOver = errors.New("match is over")
var ErrInvariant = errors.New("engine invariant violated")

type Street string

const (
	StreetPreflop  Street = "preflop"
	StreetFlop     Street = "flop"
	StreetTurn     Street = "turn"
	StreetRiver    Street = "river"
	StreetShowdown Street = "showdown"
)

type Rules struct {
	StartingStack int `yaml:"starting_stack"`
	SmallBlind    int `yaml:"small_blind"`
	BigBlind      int `yaml:"big_blind"`
}

func DefaultRules() Rules {
	return Rules{StartingStack: 200, SmallBlind: 1, BigBlind: 2}
}

type Player struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Seat struct {
	Player
	Stack  int          `json:"stack"`
	Hole   []cards.Card `json:"hole"`
	Folded bool         `json:"folded"`
}

// State is the full, unredacted hand state. Pot holds chips from finished betting rounds;
// chips committed in the current round live in BetThisRound until the round ends.
type State struct {
	HandID        int          `json:"handId"`
	Dealer        int          `json:"dealer"`
	SmallBlind    int          `json:"smallBlind"`
	BigBlind      int          `json:"bigBlind"`
	Seats         [2]Seat      `json:"players"`
	Board         []cards.Card `json:"board"`
	Pot           int          `json:"pot"`
	Street        Street       `json:"street"`
	ToAct         int          `json:"toAct"`
	LastAggressor int          `json:"lastAggressor"`
	CurBet        int          `json:"curBet"`
	LastRaise     int          `json:"lastRaise"`
	BetThisRound  [2]int       `json:"betThisRound"`
	Acted         [2]bool      `json:"acted"`
	Message       string       `json:"message"`
	GameOver      bool         `json:"gameOver"`
	Winner        string       `json:"gameOverWinner"`
}

// Chips is every chip still in play: both stacks, the collected pot and live bets.
func (s State) Chips() int {
	return s.Seats[0].Stack + s.Seats[1].Stack + s.Pot + s.BetThisRound[0] + s.BetThisRound[1]
}

func (s State) TotalPot() int {
	return s.Pot + s.BetThisRound[0] + s.BetThisRound[1]
}

func (s State) Clone() State {
	cp := s
	cp.Board = append([]cards.Card(nil), s.Board...)
	for i := range cp.Seats {
		cp.Seats[i].Hole = append([]cards.Card(nil), s.Seats[i].Hole...)
	}
	return cp
}

type CommandType string

const (
	CmdFold     CommandType = "fold"
	CmdCheck    CommandType = "check"
	CmdCall     CommandType = "call"
	CmdBetRaise CommandType = "bet_raise"
)

type Command struct {
	Type   CommandType
	Amount int // raise-to target for CmdBetRaise
}

type EventType string

const (
	EvtHandStarted   EventType = "HandStarted"
	EvtBlindPosted   EventType = "BlindPosted"
	EvtFolded        EventType = "Folded"
	EvtChecked       EventType = "Checked"
	EvtCalled        EventType = "Called"
	EvtBetRaised     EventType = "BetRaised"
	EvtStreetDealt   EventType = "StreetDealt"
	EvtUncalled      EventType = "UncalledReturned"
	EvtHandCompleted EventType = "HandCompleted"
	EvtMatchOver     EventType = "MatchOver"
)

// Event records one transition. Seat is -1 when no single seat applies (a split pot, a deal).
type Event struct {
	Type   EventType
	Seat   int
	Amount int
	Street Street
}

// Game owns one heads-up match: seats persist across hands, the deck lives for one hand.
type Game struct {
	state State
	deck  *cards.Deck
	// chips expected in play; lowered only by split-pot remainders
	total int
	// newDeck is swapped in tests for a stacked deck
	newDeck func() (*cards.Deck, error)
}

// NewGame seats p0 and p1 with starting stacks. The first StartHand makes seat 0 the dealer.
func NewGame(rules Rules, p0, p1 Player) *Game {
	g := &Game{newDeck: cards.NewShuffledDeck}
	g.state = State{
		Dealer:        1,
		SmallBlind:    rules.SmallBlind,
		BigBlind:      rules.BigBlind,
		Street:        StreetPreflop,
		LastAggressor: -1,
		Seats: [2]Seat{
			{Player: p0, Stack: rules.StartingStack},
			{Player: p1, Stack: rules.StartingStack},
		},
	}
	g.total = g.state.Chips()
	return g
}

// State returns a deep copy safe to hand to other goroutines.
func (g *Game) State() State { return g.state.Clone() }

func (g *Game) Street() Street { return g.state.Street }

func (g *Game) ToAct() int { return g.state.ToAct }

func (g *Game) Stacks() [2]int {
	return [2]int{g.state.Seats[0].Stack, g.state.Seats[1].Stack}
}

// BothCanPlay reports whether both seats still have chips for another hand.
func (g *Game) BothCanPlay() bool {
	return g.state.Seats[0].Stack > 0 && g.state.Seats[1].Stack > 0
}

// ResetStacks splits every chip in play evenly; an odd chip goes to seat 1. It ends a finished
// match so the next StartHand begins a fresh one with the same seats.
func (g *Game) ResetStacks() {
	s := &g.state
	total := s.Chips()
	half := total / 2
	s.Seats[0].Stack = half
	s.Seats[1].Stack = total - half
	s.Pot = 0
	s.BetThisRound = [2]int{}
	s.CurBet = 0
	s.GameOver = false
	s.Winner = ""
	g.total = total
}
