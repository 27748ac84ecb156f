package stats

import (
	"cmp"
	"context"
	"errors"
	"slices"

	"go.uber.org/zap"

	"github.com/DoyleJ11/headsup-poker-backend/internal/events"
	"github.com/DoyleJ11/headsup-poker-backend/internal/store"
)

// Key is where the leaderboard blob lives in the key-value store.
const Key = "leaderboard"

var ErrBacklog = errors.New("leaderboard backlog full")

type Entry struct {
	Player  string `json:"player"`
	Wins    int    `json:"wins"`
	Matches int    `json:"matches"`
	Hands   int    `json:"hands"`
}

type board struct {
	Players map[string]*Entry `json:"players"`
}

func (b *board) entry(name string) *Entry {
	if b.Players == nil {
		b.Players = make(map[string]*Entry)
	}
	e, ok := b.Players[name]
	if !ok {
		e = &Entry{Player: name}
		b.Players[name] = e
	}
	return e
}

// Leaderboard is an events.Sink. Publish only queues; a single worker owns the read-modify-write
// on the stored blob so concurrent sessions never lose an update.
type Leaderboard struct {
	kv  store.KV
	log *zap.Logger
	in  chan events.Event
}

func NewLeaderboard(kv store.KV, log *zap.Logger) *Leaderboard {
	if log == nil {
		log = zap.NewNop()
	}
	return &Leaderboard{kv: kv, log: log.Named("leaderboard"), in: make(chan events.Event, 256)}
}

func (l *Leaderboard) Publish(_ context.Context, e events.Event) error {
	switch e.(type) {
	case events.HandCompleted, events.MatchOver:
	default:
		return nil
	}
	select {
	case l.in <- e:
		return nil
	default:
		return ErrBacklog
	}
}

// Run applies queued events until ctx is done.
func (l *Leaderboard) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case e := <-l.in:
			if err := l.apply(ctx, e); err != nil {
				l.log.Warn("leaderboard update failed",
					zap.String("event", e.Type()),
					zap.String("session_id", e.Session()),
					zap.Error(err))
			}
		}
	}
}

func (l *Leaderboard) load(ctx context.Context) (board, error) {
	var b board
	err := store.GetJSON(ctx, l.kv, Key, &b)
	if errors.Is(err, store.ErrNotFound) {
		return board{}, nil
	}
	return b, err
}

func (l *Leaderboard) apply(ctx context.Context, e events.Event) error {
	b, err := l.load(ctx)
	if err != nil {
		return err
	}
	switch ev := e.(type) {
	case events.HandCompleted:
		for _, name := range ev.Players {
			b.entry(name).Hands++
		}
	case events.MatchOver:
		b.entry(ev.Winner).Wins++
		b.entry(ev.Winner).Matches++
		b.entry(ev.Loser).Matches++
	}
	return store.PutJSON(ctx, l.kv, Key, b)
}

// Top returns up to n entries ordered by wins, then hands played, then name.
func (l *Leaderboard) Top(ctx context.Context, n int) ([]Entry, error) {
	b, err := l.load(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Entry, 0, len(b.Players))
	for _, e := range b.Players {
		out = append(out, *e)
	}
	slices.SortFunc(out, func(a, b Entry) int {
		if c := cmp.Compare(b.Wins, a.Wins); c != 0 {
			return c
		}
		if c := cmp.Compare(b.Hands, a.Hands); c != 0 {
			return c
		}
		return cmp.Compare(a.Player, b.Player)
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}
