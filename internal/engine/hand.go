package engine

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/headsup-poker-backend/internal/cards"
)

type DeckSource func() (*cards.Deck, error)

// SetDeckSource replaces the shuffler used by later hands.
func (g *Game) SetDeckSource(src DeckSource) {
	if src == nil {
		src = cards.NewShuffledDeck
	}
	g.newDeck = src
}

// StartHand flips the dealer, posts blinds (dealer posts the big blind) and deals hole cards.
func (g *Game) StartHand() (evs []Event, err error) {
	defer g.recoverInvariant(&err)

	s := &g.state
	if s.GameOver || !g.BothCanPlay() {
		return nil, ErrMatchOver
	}
	deck, err := g.newDeck()
	if err != nil {
		return nil, fmt.Errorf("start hand: %w", err)
	}
	g.deck = deck

	s.HandID++
	s.Dealer = other(s.Dealer)
	s.Board = nil
	s.Pot = 0
	s.BetThisRound = [2]int{}
	s.Acted = [2]bool{}
	s.CurBet = 0
	s.LastAggressor = -1
	s.LastRaise = s.BigBlind
	s.Street = StreetPreflop
	s.Message = ""
	for i := range s.Seats {
		s.Seats[i].Folded = false
		s.Seats[i].Hole = nil
	}
	g.total = s.Chips()

	dealer, blind := s.Dealer, other(s.Dealer)
	evs = append(evs, Event{Type: EvtHandStarted, Seat: dealer, Amount: s.HandID, Street: StreetPreflop})
	evs = append(evs, Event{Type: EvtBlindPosted, Seat: blind, Amount: g.commit(blind, s.SmallBlind), Street: StreetPreflop})
	evs = append(evs, Event{Type: EvtBlindPosted, Seat: dealer, Amount: g.commit(dealer, s.BigBlind), Street: StreetPreflop})
	s.CurBet = max(s.BetThisRound[0], s.BetThisRound[1])

	for round := 0; round < 2; round++ {
		for _, seat := range [2]int{dealer, blind} {
			s.Seats[seat].Hole = append(s.Seats[seat].Hole, g.deck.Draw())
		}
	}
	s.ToAct = blind

	// A short stack can be all-in from the blinds alone.
	if g.bettingClosed() {
		evs = append(evs, g.runout()...)
	}
	return evs, g.checkChips()
}

// Apply runs one betting action for seat. Rejected actions leave the state untouched.
func (g *Game) Apply(seat int, cmd Command) (evs []Event, err error) {
	defer g.recoverInvariant(&err)

	s := &g.state
	if seat != 0 && seat != 1 {
		return nil, fmt.Errorf("seat %d: %w", seat, ErrNotYourTurn)
	}
	if s.Street == StreetShowdown {
		return nil, ErrHandOver
	}
	if seat != s.ToAct {
		return nil, ErrNotYourTurn
	}

	switch cmd.Type {
	case CmdFold:
		evs = g.fold(seat)
	case CmdCheck:
		evs, err = g.check(seat)
	case CmdCall:
		evs = g.call(seat)
	case CmdBetRaise:
		evs, err = g.betRaise(seat, cmd.Amount)
	default:
		return nil, fmt.Errorf("%q: %w", cmd.Type, ErrUnknownAction)
	}
	if err != nil {
		return nil, err
	}
	return evs, g.checkChips()
}

func (g *Game) toCall(seat int) int {
	s := &g.state
	return max(0, s.CurBet-s.BetThisRound[seat])
}

// raiseBounds returns the legal raise-to range for the seat to act.
func (s State) raiseBounds() (lo, hi int, ok bool) {
	hi = min(s.Seats[0].Stack+s.BetThisRound[0], s.Seats[1].Stack+s.BetThisRound[1])
	if hi <= s.CurBet {
		return 0, 0, false
	}
	lo = s.BigBlind
	if s.CurBet > 0 {
		lo = s.CurBet + s.LastRaise
	}
	return min(lo, hi), hi, true
}

func (g *Game) fold(seat int) []Event {
	s := &g.state
	winner := other(seat)
	s.Seats[seat].Folded = true

	won := s.TotalPot()
	s.Seats[winner].Stack += won
	s.Pot = 0
	s.BetThisRound = [2]int{}
	s.CurBet = 0
	s.Street = StreetShowdown
	s.Message = fmt.Sprintf("%s wins %d", s.Seats[winner].Name, won)

	evs := []Event{
		{Type: EvtFolded, Seat: seat, Street: StreetShowdown},
		{Type: EvtHandCompleted, Seat: winner, Amount: won, Street: StreetShowdown},
	}
	return append(evs, g.checkMatchOver()...)
}

func (g *Game) check(seat int) ([]Event, error) {
	s := &g.state
	if g.toCall(seat) > 0 {
		return nil, ErrCannotCheck
	}
	street := s.Street
	s.Acted[seat] = true
	evs := []Event{{Type: EvtChecked, Seat: seat, Street: street}}

	// The big blind's option: blinds matched, no raise, dealer checks to close preflop.
	bbOption := street == StreetPreflop && seat == s.Dealer && s.LastAggressor == -1 &&
		s.BetThisRound[0] == s.BetThisRound[1] && s.CurBet >= s.BigBlind
	if bbOption || g.roundComplete() {
		return append(evs, g.endStreet()...), nil
	}
	s.ToAct = other(seat)
	return evs, nil
}

func (g *Game) call(seat int) []Event {
	s := &g.state
	street := s.Street
	paid := g.commit(seat, g.toCall(seat))
	s.Acted[seat] = true
	s.CurBet = max(s.BetThisRound[0], s.BetThisRound[1])
	evs := []Event{{Type: EvtCalled, Seat: seat, Amount: paid, Street: street}}

	switch {
	case g.bettingClosed():
		return append(evs, g.runout()...)
	case street == StreetPreflop && seat != s.Dealer && s.LastAggressor == -1 &&
		s.BetThisRound[0] == s.BetThisRound[1]:
		// small blind completes; big blind keeps its option
		s.ToAct = s.Dealer
		return evs
	case g.roundComplete():
		return append(evs, g.endStreet()...)
	}
	s.ToAct = other(seat)
	return evs
}

func (g *Game) betRaise(seat, amount int) ([]Event, error) {
	s := &g.state
	lo, hi, ok := s.raiseBounds()
	if !ok {
		return nil, ErrCannotRaise
	}
	target := clamp(amount, lo, hi)
	if inc := target - s.CurBet; inc >= s.LastRaise {
		s.LastRaise = inc
	}
	g.commit(seat, target-s.BetThisRound[seat])
	s.CurBet = target
	s.LastAggressor = seat
	s.Acted = [2]bool{}
	s.Acted[seat] = true
	evs := []Event{{Type: EvtBetRaised, Seat: seat, Amount: target, Street: s.Street}}

	if g.bettingClosed() {
		return append(evs, g.runout()...), nil
	}
	s.ToAct = other(seat)
	return evs, nil
}

// commit moves up to amount from seat's stack into its round commitment and returns what moved.
func (g *Game) commit(seat, amount int) int {
	st := &g.state.Seats[seat]
	amount = clamp(amount, 0, st.Stack)
	st.Stack -= amount
	g.state.BetThisRound[seat] += amount
	return amount
}

func (g *Game) roundComplete() bool {
	s := &g.state
	return s.Acted[0] && s.Acted[1] && s.BetThisRound[0] == s.BetThisRound[1]
}

// bettingClosed reports that an all-in seat has matched or been matched, so nobody can act again.
func (g *Game) bettingClosed() bool {
	s := &g.state
	for seat := range s.Seats {
		if s.Seats[seat].Stack == 0 && s.BetThisRound[seat] <= s.BetThisRound[other(seat)] {
			return true
		}
	}
	return false
}

// runout returns any uncalled chips and deals the rest of the board without betting.
func (g *Game) runout() []Event {
	s := &g.state
	var evs []Event
	for seat := range s.Seats {
		if extra := s.BetThisRound[seat] - s.BetThisRound[other(seat)]; extra > 0 {
			s.BetThisRound[seat] -= extra
			s.Seats[seat].Stack += extra
			evs = append(evs, Event{Type: EvtUncalled, Seat: seat, Amount: extra, Street: s.Street})
		}
	}
	s.CurBet = max(s.BetThisRound[0], s.BetThisRound[1])
	for s.Street != StreetShowdown {
		evs = append(evs, g.endStreet()...)
	}
	return evs
}

// endStreet collects the round's bets into the pot and deals the next street. The dealer acts
// first on every postflop street.
func (g *Game) endStreet() []Event {
	s := &g.state
	s.Pot += s.BetThisRound[0] + s.BetThisRound[1]
	s.BetThisRound = [2]int{}
	s.CurBet = 0
	s.LastRaise = s.BigBlind
	s.LastAggressor = -1
	s.Acted = [2]bool{}
	s.ToAct = s.Dealer

	next := NextStreet(s.Street)
	s.Street = next.Street
	var evs []Event
	if next.Deal > 0 {
		for i := 0; i < next.Deal; i++ {
			s.Board = append(s.Board, g.deck.Draw())
		}
		evs = append(evs, Event{Type: EvtStreetDealt, Seat: -1, Amount: next.Deal, Street: next.Street})
	}
	if next.Street == StreetShowdown {
		evs = append(evs, g.settle()...)
	}
	return evs
}

func (g *Game) settle() []Event {
	s := &g.state
	pot := s.Pot
	s.Pot = 0

	winner, hand := -1, ""
	switch {
	case s.Seats[0].Folded:
		winner = 1
	case s.Seats[1].Folded:
		winner = 0
	default:
		h0, _ := cards.Best(s.Seats[0].Hole, s.Board)
		h1, _ := cards.Best(s.Seats[1].Hole, s.Board)
		switch {
		case h0 > h1:
			winner = 0
		case h1 > h0:
			winner = 1
		}
		hand = max(h0, h1).Category().String()
	}

	switch {
	case winner < 0:
		// Odd chip is dropped.
		half := pot / 2
		s.Seats[0].Stack += half
		s.Seats[1].Stack += half
		g.total -= pot - 2*half
		s.Message = "Split pot"
	case hand != "":
		s.Seats[winner].Stack += pot
		s.Message = fmt.Sprintf("%s wins %d with %s", s.Seats[winner].Name, pot, hand)
	default:
		s.Seats[winner].Stack += pot
		s.Message = fmt.Sprintf("%s wins %d", s.Seats[winner].Name, pot)
	}

	evs := []Event{{Type: EvtHandCompleted, Seat: winner, Amount: pot, Street: StreetShowdown}}
	return append(evs, g.checkMatchOver()...)
}

func (g *Game) checkMatchOver() []Event {
	s := &g.state
	busted0, busted1 := s.Seats[0].Stack <= 0, s.Seats[1].Stack <= 0
	if busted0 == busted1 {
		s.GameOver = false
		s.Winner = ""
		return nil
	}
	winner := 0
	if busted0 {
		winner = 1
	}
	s.GameOver = true
	s.Winner = s.Seats[winner].Name
	return []Event{{Type: EvtMatchOver, Seat: winner, Amount: s.Seats[winner].Stack, Street: StreetShowdown}}
}

func (g *Game) checkChips() error {
	s := &g.state
	for i, seat := range s.Seats {
		if seat.Stack < 0 {
			return fmt.Errorf("%w: seat %d stack %d", ErrInvariant, i, seat.Stack)
		}
	}
	if got := s.Chips(); got != g.total {
		return fmt.Errorf("%w: %d chips in play, want %d", ErrInvariant, got, g.total)
	}
	return nil
}

func (g *Game) recoverInvariant(err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok && errors.Is(e, cards.ErrDeckExhausted) {
		*err = fmt.Errorf("%w: %v", ErrInvariant, e)
		return
	}
	panic(r)
}
