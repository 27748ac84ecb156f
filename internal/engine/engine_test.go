package engine

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/DoyleJ11/headsup-poker-backend/internal/cards"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestGame deals top in order: dealer, other seat, dealer, other seat, then the board.
func newTestGame(t *testing.T, rules Rules, top ...string) *Game {
	t.Helper()
	g := NewGame(rules, Player{ID: "p0", Name: "alice"}, Player{ID: "p1", Name: "bob"})
	fixed := cards.MustParse(top...)
	g.SetDeckSource(func() (*cards.Deck, error) { return cards.Stack(fixed...), nil })
	return g
}

func mustApply(t *testing.T, g *Game, seat int, cmd Command) []Event {
	t.Helper()
	evs, err := g.Apply(seat, cmd)
	require.NoError(t, err, "seat %d %s", seat, cmd.Type)
	return evs
}

func TestStartHand_DealerPostsBigBlind(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	s := g.State()
	assert.Equal(t, 1, s.HandID)
	assert.Equal(t, 0, s.Dealer)
	assert.Equal(t, [2]int{2, 1}, s.BetThisRound)
	assert.Equal(t, 198, s.Seats[0].Stack)
	assert.Equal(t, 199, s.Seats[1].Stack)
	assert.Equal(t, 2, s.CurBet)
	assert.Equal(t, 1, s.ToAct)
	assert.Equal(t, StreetPreflop, s.Street)
	assert.Len(t, s.Seats[0].Hole, 2)
	assert.Len(t, s.Seats[1].Hole, 2)
	assert.Empty(t, s.Board)

	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	mustApply(t, g, 1, Command{Type: CmdCheck})

	// Dealer alternates and the blinds follow it.
	g2 := newTestGame(t, DefaultRules())
	_, err = g2.StartHand()
	require.NoError(t, err)
	mustApply(t, g2, 1, Command{Type: CmdFold})
	_, err = g2.StartHand()
	require.NoError(t, err)
	s = g2.State()
	assert.Equal(t, 1, s.Dealer)
	assert.Equal(t, [2]int{1, 2}, s.BetThisRound)
	assert.Equal(t, 0, s.ToAct)
}

func TestApply_PreflopOptionThenFlop(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	mustApply(t, g, 1, Command{Type: CmdCall})
	s := g.State()
	require.Equal(t, StreetPreflop, s.Street, "small blind completing must not end preflop")
	require.Equal(t, 0, s.ToAct)
	require.Equal(t, [2]int{2, 2}, s.BetThisRound)

	evs := mustApply(t, g, 0, Command{Type: CmdCheck})
	s = g.State()
	assert.True(t, ContainsEvent(evs, EvtStreetDealt))
	assert.Equal(t, StreetFlop, s.Street)
	assert.Len(t, s.Board, 3)
	assert.Equal(t, 0, s.ToAct, "dealer acts first postflop")
	assert.Equal(t, 4, s.Pot)
	assert.Equal(t, [2]int{}, s.BetThisRound)
}

func TestApply_BigBlindMayRaiseTheOption(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 6})
	s := g.State()
	assert.Equal(t, StreetPreflop, s.Street)
	assert.Equal(t, 1, s.ToAct)
	assert.Equal(t, 6, s.CurBet)

	mustApply(t, g, 1, Command{Type: CmdCall})
	s = g.State()
	assert.Equal(t, StreetFlop, s.Street)
	assert.Equal(t, 12, s.Pot)
}

func TestApply_FlopBetAndCallAdvancesToTurn(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)
	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdCheck})

	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 10})
	s := g.State()
	require.Equal(t, 10, s.CurBet)
	require.Equal(t, 1, s.ToAct)
	require.Equal(t, [2]bool{true, false}, s.Acted)

	mustApply(t, g, 1, Command{Type: CmdCall})
	s = g.State()
	assert.Equal(t, StreetTurn, s.Street)
	assert.Len(t, s.Board, 4)
	assert.Equal(t, 24, s.Pot)
	assert.Equal(t, 0, s.CurBet)
	assert.Equal(t, [2]int{}, s.BetThisRound)
	assert.Equal(t, [2]bool{}, s.Acted)
	assert.Equal(t, -1, s.LastAggressor)
	assert.Equal(t, 0, s.ToAct)
}

func TestApply_AllInCallRunsOutTheBoard(t *testing.T) {
	g := newTestGame(t, Rules{StartingStack: 52, SmallBlind: 1, BigBlind: 2},
		"As", "Kc", "Ad", "Kd", "2h", "7s", "9d", "3c", "4h")
	_, err := g.StartHand()
	require.NoError(t, err)
	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	require.Equal(t, [2]int{50, 50}, g.Stacks())

	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 50})
	require.Equal(t, StreetFlop, g.Street())
	evs := mustApply(t, g, 1, Command{Type: CmdCall})

	s := g.State()
	assert.Equal(t, StreetShowdown, s.Street)
	assert.Len(t, s.Board, 5)
	assert.True(t, ContainsEvent(evs, EvtHandCompleted))
	assert.Equal(t, 104, s.Seats[0].Stack)
	assert.Equal(t, 0, s.Seats[1].Stack)
	assert.Equal(t, 0, s.Pot)
	assert.True(t, s.GameOver)
	assert.Equal(t, "alice", s.Winner)
	assert.Contains(t, s.Message, "alice wins 104")

	_, err = g.StartHand()
	assert.ErrorIs(t, err, ErrMatchOver)

	g.ResetStacks()
	assert.Equal(t, [2]int{52, 52}, g.Stacks())
	assert.False(t, g.State().GameOver)
	_, err = g.StartHand()
	assert.NoError(t, err)
}

func TestApply_ShortAllInRefundsUncalledChips(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	g.state.Seats[1].Stack = 30
	g.total = g.state.Chips()
	_, err := g.StartHand()
	require.NoError(t, err)

	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 100})
	s := g.State()
	require.Equal(t, 30, s.CurBet, "raise is capped by what the opponent can call")

	mustApply(t, g, 1, Command{Type: CmdCall})
	s = g.State()
	assert.Equal(t, StreetShowdown, s.Street)
	assert.Equal(t, 230, s.Seats[0].Stack+s.Seats[1].Stack)
}

func TestApply_CallForLessThanFullAmount(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	g.state.Seats[1].Stack = 20
	g.total = g.state.Chips()
	_, err := g.StartHand()
	require.NoError(t, err)

	// Seat 1 can put in at most 20, so raising beyond that is clamped for both sides.
	mustApply(t, g, 1, Command{Type: CmdBetRaise, Amount: 20})
	require.Equal(t, 0, g.Stacks()[1])
	evs := mustApply(t, g, 0, Command{Type: CmdCall})
	assert.True(t, ContainsEvent(evs, EvtHandCompleted))
	assert.Equal(t, StreetShowdown, g.Street())
	assert.Equal(t, 220, g.State().Chips())
}

func TestStartHand_BlindsAllInRunOut(t *testing.T) {
	g := newTestGame(t, Rules{StartingStack: 1, SmallBlind: 1, BigBlind: 2})
	evs, err := g.StartHand()
	require.NoError(t, err)
	assert.Equal(t, StreetShowdown, g.Street())
	assert.True(t, ContainsEvent(evs, EvtHandCompleted))
	assert.Equal(t, 2, g.State().Chips())
}

func TestApply_FoldAwardsPot(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	evs := mustApply(t, g, 1, Command{Type: CmdFold})
	s := g.State()
	assert.True(t, ContainsEvent(evs, EvtFolded))
	assert.Equal(t, StreetShowdown, s.Street)
	assert.Equal(t, 201, s.Seats[0].Stack)
	assert.Equal(t, 199, s.Seats[1].Stack)
	assert.Equal(t, 0, s.TotalPot())
	assert.Empty(t, s.Board, "a fold deals no further board cards")
	assert.Equal(t, "alice wins 3", s.Message)
	assert.False(t, s.GameOver)
}

func TestApply_FoldNeverBustsTheFolder(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	g.state.Seats[1].Stack = 6
	g.total = g.state.Chips()
	_, err := g.StartHand()
	require.NoError(t, err)

	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 6})
	evs := mustApply(t, g, 1, Command{Type: CmdFold})
	s := g.State()
	assert.False(t, ContainsEvent(evs, EvtMatchOver))
	assert.Equal(t, 4, s.Seats[1].Stack)
	assert.False(t, s.GameOver)
}

func TestApply_SplitPotDropsOddChip(t *testing.T) {
	g := newTestGame(t, DefaultRules(),
		"2c", "2d", "3d", "3c", "As", "Ks", "Qs", "Js", "Ts")
	_, err := g.StartHand()
	require.NoError(t, err)
	mustApply(t, g, 1, Command{Type: CmdCall})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	mustApply(t, g, 1, Command{Type: CmdCheck})
	mustApply(t, g, 0, Command{Type: CmdCheck})
	mustApply(t, g, 1, Command{Type: CmdCheck})
	require.Equal(t, StreetRiver, g.Street())

	// Force an odd pot, as if a stray chip had been collected.
	g.state.Pot++
	g.total++
	before := g.State()

	mustApply(t, g, 0, Command{Type: CmdCheck})
	evs := mustApply(t, g, 1, Command{Type: CmdCheck})
	s := g.State()
	require.True(t, ContainsEvent(evs, EvtHandCompleted))
	assert.Equal(t, "Split pot", s.Message)
	assert.Equal(t, before.Seats[0].Stack+2, s.Seats[0].Stack)
	assert.Equal(t, before.Seats[1].Stack+2, s.Seats[1].Stack)
	assert.Equal(t, before.Chips()-1, s.Chips(), "remainder chip is not awarded")
}

func TestApply_Rejections(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	cases := []struct {
		name string
		seat int
		cmd  Command
		want error
	}{
		{"out of turn", 0, Command{Type: CmdCall}, ErrNotYourTurn},
		{"bad seat", 3, Command{Type: CmdCall}, ErrNotYourTurn},
		{"check facing blind", 1, Command{Type: CmdCheck}, ErrCannotCheck},
		{"unknown", 1, Command{Type: "shove"}, ErrUnknownAction},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			before := g.State()
			_, err := g.Apply(tc.seat, tc.cmd)
			if !errors.Is(err, tc.want) {
				t.Fatalf("want %v, got %v", tc.want, err)
			}
			assert.Equal(t, before, g.State(), "rejected action must not mutate state")
		})
	}

	mustApply(t, g, 1, Command{Type: CmdFold})
	_, err = g.Apply(0, Command{Type: CmdCheck})
	assert.ErrorIs(t, err, ErrHandOver)
}

func TestApply_RaiseIsClampedToLegalRange(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	mustApply(t, g, 1, Command{Type: CmdBetRaise, Amount: 1})
	assert.Equal(t, 4, g.State().CurBet, "min raise is current bet plus last raise")

	mustApply(t, g, 0, Command{Type: CmdBetRaise, Amount: 10_000})
	s := g.State()
	assert.Equal(t, 200, s.CurBet)
	assert.Equal(t, 0, s.Seats[0].Stack)

	_, err = g.Apply(1, Command{Type: CmdBetRaise, Amount: 400})
	assert.ErrorIs(t, err, ErrCannotRaise)

	mustApply(t, g, 1, Command{Type: CmdCall})
	assert.Equal(t, StreetShowdown, g.Street())
}

func TestStartHand_DeckExhaustionIsAnInvariantError(t *testing.T) {
	g := NewGame(DefaultRules(), Player{ID: "p0", Name: "alice"}, Player{ID: "p1", Name: "bob"})
	g.SetDeckSource(func() (*cards.Deck, error) {
		d := cards.Stack()
		for d.Remaining() > 2 {
			d.Draw()
		}
		return d, nil
	})
	_, err := g.StartHand()
	assert.ErrorIs(t, err, ErrInvariant)
}

func TestApply_ChipsAreConserved(t *testing.T) {
	g := NewGame(DefaultRules(), Player{ID: "p0", Name: "alice"}, Player{ID: "p1", Name: "bob"})
	rng := rand.New(rand.NewSource(42))
	actions := []CommandType{CmdFold, CmdCheck, CmdCall, CmdCall, CmdBetRaise, CmdCheck}

	hands := 300
	if testing.Short() {
		hands = 50
	}
	for h := 0; h < hands; h++ {
		if !g.BothCanPlay() {
			g.ResetStacks()
		}
		_, err := g.StartHand()
		require.NoError(t, err)
		start := g.State().Chips()
		require.Equal(t, 400, start)

		for steps := 0; g.Street() != StreetShowdown; steps++ {
			require.Less(t, steps, 1000, "hand did not terminate")
			cmd := Command{Type: actions[rng.Intn(len(actions))], Amount: rng.Intn(120)}
			_, err := g.Apply(g.ToAct(), cmd)
			if err != nil && !errors.Is(err, ErrCannotCheck) && !errors.Is(err, ErrCannotRaise) {
				t.Fatalf("hand %d: %v", h, err)
			}
			s := g.State()
			require.Equal(t, start, s.Chips(), "hand %d", h)
			require.Equal(t, max(s.BetThisRound[0], s.BetThisRound[1]), s.CurBet)
			require.GreaterOrEqual(t, s.Seats[0].Stack, 0)
			require.GreaterOrEqual(t, s.Seats[1].Stack, 0)
		}
	}
}

func TestProject_HidesOpponentAndUnrevealedBoard(t *testing.T) {
	board := cards.MustParse("2h", "7s", "9d", "3c", "4h")
	s := State{
		Street: StreetFlop,
		Board:  board,
		Seats: [2]Seat{
			{Player: Player{ID: "p0", Name: "alice"}, Stack: 100, Hole: cards.MustParse("As", "Ad")},
			{Player: Player{ID: "p1", Name: "bob"}, Stack: 100, Hole: cards.MustParse("Kc", "Kd")},
		},
	}

	v := Project(s, 0)
	require.Len(t, v.Players[1].Hole, 2)
	assert.Nil(t, v.Players[1].Hole[0])
	assert.Nil(t, v.Players[1].Hole[1])
	require.NotNil(t, v.Players[0].Hole[0])
	assert.Equal(t, cards.MustParse("As")[0], *v.Players[0].Hole[0])
	assert.Equal(t, board[:3], v.Board)
	assert.Empty(t, v.Players[0].Hand)

	// The view shares no memory with the state.
	v.Board[0] = cards.Card{}
	*v.Players[0].Hole[0] = cards.Card{}
	assert.Equal(t, cards.MustParse("2h")[0], s.Board[0])
	assert.Equal(t, cards.MustParse("As")[0], s.Seats[0].Hole[0])

	for street, n := range map[Street]int{StreetPreflop: 0, StreetTurn: 4, StreetRiver: 5} {
		s.Street = street
		assert.Len(t, Project(s, 1).Board, n, string(street))
	}

	s.Street = StreetShowdown
	v = Project(s, 0)
	require.NotNil(t, v.Players[1].Hole[0])
	assert.Equal(t, cards.MustParse("Kc")[0], *v.Players[1].Hole[0])
	assert.Equal(t, "Pair", v.Players[1].Hand)
}

func TestViewFor_ActionHints(t *testing.T) {
	g := newTestGame(t, DefaultRules())
	_, err := g.StartHand()
	require.NoError(t, err)

	v := g.ViewFor(1)
	assert.Equal(t, 1, v.ToCall)
	assert.Equal(t, 4, v.MinRaiseTo)
	assert.Equal(t, 200, v.MaxRaiseTo)
	assert.Equal(t, 3, v.TotalPot)

	v = g.ViewFor(0)
	assert.Zero(t, v.ToCall)
	assert.Zero(t, v.MinRaiseTo)
	assert.Equal(t, 0, g.SeatOf("p0"))
	assert.Equal(t, -1, g.SeatOf("nobody"))
}
