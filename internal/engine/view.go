package engine

import "github.com/DoyleJ11/headsup-poker-backend/internal/cards"

type SeatView struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Stack  int           `json:"stack"`
	Hole   []*cards.Card `json:"hole"` // nil entries are face-down cards
	Folded bool          `json:"folded"`
	Hand   string        `json:"hand,omitempty"`
}

// View is what one seat is allowed to see. It shares no memory with the live state.
type View struct {
	HandID        int          `json:"handId"`
	Dealer        int          `json:"dealer"`
	SmallBlind    int          `json:"smallBlind"`
	BigBlind      int          `json:"bigBlind"`
	Players       [2]SeatView  `json:"players"`
	Board         []cards.Card `json:"board"`
	Pot           int          `json:"pot"`
	TotalPot      int          `json:"totalPot"`
	Street        Street       `json:"street"`
	ToAct         int          `json:"toAct"`
	LastAggressor int          `json:"lastAggressor"`
	CurBet        int          `json:"curBet"`
	BetThisRound  [2]int       `json:"betThisRound"`
	Acted         [2]bool      `json:"acted"`
	Message       string       `json:"message"`
	GameOver      bool         `json:"gameOver"`
	Winner        string       `json:"gameOverWinner,omitempty"`

	// Hints for the viewer; zero unless it is the viewer's turn.
	ToCall     int `json:"toCall"`
	MinRaiseTo int `json:"minRaiseTo"`
	MaxRaiseTo int `json:"maxRaiseTo"`
}

func (g *Game) ViewFor(seat int) View { return Project(g.state, seat) }

// Project redacts s for viewer: the opponent's hole cards become two placeholders until
// showdown and the board is cut to what the street has revealed.
func Project(s State, viewer int) View {
	v := View{
		HandID:        s.HandID,
		Dealer:        s.Dealer,
		SmallBlind:    s.SmallBlind,
		BigBlind:      s.BigBlind,
		Pot:           s.Pot,
		TotalPot:      s.TotalPot(),
		Street:        s.Street,
		ToAct:         s.ToAct,
		LastAggressor: s.LastAggressor,
		CurBet:        s.CurBet,
		BetThisRound:  s.BetThisRound,
		Acted:         s.Acted,
		Message:       s.Message,
		GameOver:      s.GameOver,
		Winner:        s.Winner,
	}

	showdown := s.Street == StreetShowdown
	for i, seat := range s.Seats {
		sv := SeatView{ID: seat.ID, Name: seat.Name, Stack: seat.Stack, Folded: seat.Folded}
		if i == viewer || showdown {
			sv.Hole = make([]*cards.Card, 0, len(seat.Hole))
			for _, c := range seat.Hole {
				c := c
				sv.Hole = append(sv.Hole, &c)
			}
		} else {
			sv.Hole = []*cards.Card{nil, nil}
		}
		if showdown && !seat.Folded {
			if st, ok := cards.Best(seat.Hole, s.Board); ok {
				sv.Hand = st.Category().String()
			}
		}
		v.Players[i] = sv
	}

	n := min(VisibleBoard(s.Street), len(s.Board))
	v.Board = append([]cards.Card{}, s.Board[:n]...)

	if !showdown && viewer == s.ToAct && (viewer == 0 || viewer == 1) {
		v.ToCall = min(max(0, s.CurBet-s.BetThisRound[viewer]), s.Seats[viewer].Stack)
		if lo, hi, ok := s.raiseBounds(); ok {
			v.MinRaiseTo, v.MaxRaiseTo = lo, hi
		}
	}
	return v
}

// SeatOf returns the seat held by playerID, or -1.
func (g *Game) SeatOf(playerID string) int {
	for i, seat := range g.state.Seats {
		if seat.ID == playerID {
			return i
		}
	}
	return -1
}
