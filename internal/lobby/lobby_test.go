package lobby

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/DoyleJ11/headsup-poker-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const wait = 200 * time.Millisecond

// helper: receive one message with a timeout so tests never hang
func recvMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) types.ServerMessage {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			t.Fatalf("client outbox closed unexpectedly")
		}
		return m
	case <-time.After(within):
		t.Fatalf("timed out waiting for message")
		return types.ServerMessage{} // unreachable
	}
}

// recvType skips messages until one of type typ arrives.
func recvType(t *testing.T, ch <-chan types.ServerMessage, typ string) types.ServerMessage {
	t.Helper()
	deadline := time.After(wait)
	for {
		select {
		case m, ok := <-ch:
			if !ok {
				t.Fatalf("client outbox closed while waiting for %s", typ)
			}
			if m.Type == typ {
				return m
			}
		case <-deadline:
			t.Fatalf("timed out waiting for %s", typ)
			return types.ServerMessage{}
		}
	}
}

func recvNoMsg(t *testing.T, ch <-chan types.ServerMessage, within time.Duration) {
	t.Helper()
	select {
	case m, ok := <-ch:
		if !ok {
			return
		}
		t.Fatalf("expected no message within %v, but got: %+v", within, m)
	case <-time.After(within):
		// good: no message
	}
}

func drain(ch <-chan types.ServerMessage) {
	for {
		select {
		case <-ch:
		default:
			return
		}
	}
}

func recvView(t *testing.T, l *Lobby) View {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	v, err := l.Snapshot(ctx)
	require.NoError(t, err)
	return v
}

type fakeSessions struct {
	mu       sync.Mutex
	prepared []string
}

func (f *fakeSessions) Prepare(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prepared = append(f.prepared, id)
	return nil
}

func (f *fakeSessions) ids() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.prepared...)
}

func newTestLobby(t *testing.T) (*Lobby, *clockwork.FakeClock, *fakeSessions) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	clock := clockwork.NewFakeClock()
	sessions := &fakeSessions{}
	l := NewLobby(ctx, Config{Clock: clock, Logger: zaptest.NewLogger(t), Sessions: sessions})
	return l, clock, sessions
}

func connect(l *Lobby, connID string) chan types.ServerMessage {
	out := make(chan types.ServerMessage, 32)
	l.Inbox() <- Connect{ConnID: connID, Outbox: out}
	return out
}

// join connects and joins a player, waiting for the roster that includes it.
func join(t *testing.T, l *Lobby, id, name string) chan types.ServerMessage {
	t.Helper()
	out := connect(l, "conn-"+id)
	l.Inbox() <- Join{ConnID: "conn-" + id, PlayerID: id, PlayerName: name}
	m := recvMsg(t, out, wait)
	require.Equal(t, types.MsgLobbyUpdate, m.Type, "join %s: %+v", name, m)
	return out
}

func statusOf(v View, id string) types.PlayerStatus {
	for _, p := range v.Players {
		if p.ID == id {
			return p.Status
		}
	}
	return ""
}

func TestLobby_JoinBroadcastsRosterInJoinOrder(t *testing.T) {
	l, _, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")
	join(t, l, "b", "bob")

	m := recvMsg(t, a, wait)
	require.Equal(t, types.MsgLobbyUpdate, m.Type)
	assert.Equal(t, []types.LobbyPlayer{
		{ID: "a", Name: "alice", Status: types.StatusAvailable},
		{ID: "b", Name: "bob", Status: types.StatusAvailable},
	}, m.Players)
}

func TestLobby_JoinValidation(t *testing.T) {
	l, _, _ := newTestLobby(t)
	join(t, l, "a", "alice")
	join(t, l, "x", strings.Repeat("x", 20))

	cases := []struct {
		name   string
		id     string
		player string
		want   error
	}{
		{"21 characters", "b", strings.Repeat("y", 21), ErrNameInvalid},
		{"empty name", "b", "", ErrNameInvalid},
		{"blank name", "b", "   ", ErrNameInvalid},
		{"21 with trailing space", "b", strings.Repeat("z", 20) + " ", ErrNameInvalid},
		{"not normalized", "b", "Rene\u0301", ErrNameInvalid},
		{"missing id", "", "bob", ErrNameInvalid},
		{"duplicate name", "b", "alice", ErrNameTaken},
		{"duplicate id", "a", "alice2", ErrPlayerExists},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			out := connect(l, "conn-"+tc.name)
			l.Inbox() <- Join{ConnID: "conn-" + tc.name, PlayerID: tc.id, PlayerName: tc.player}
			m := recvMsg(t, out, wait)
			assert.Equal(t, types.MsgError, m.Type)
			assert.Equal(t, tc.want.Error(), m.Message)
		})
	}

	// Names are compared exactly, so a different case or padding is a different name.
	join(t, l, "c", "Alice")
	join(t, l, "d", " alice")
	join(t, l, "e", "Ren\u00e9")
	assert.Len(t, recvView(t, l).Players, 5)
}

func TestLobby_EleventhJoinIsRejected(t *testing.T) {
	l, _, _ := newTestLobby(t)
	for i := 0; i < 10; i++ {
		id := string(rune('a' + i))
		join(t, l, id, "player-"+id)
	}

	out := connect(l, "late")
	l.Inbox() <- Join{ConnID: "late", PlayerID: "k", PlayerName: "latecomer"}
	m := recvMsg(t, out, wait)
	assert.Equal(t, types.MsgError, m.Type)
	assert.Equal(t, ErrLobbyFull.Error(), m.Message)
	assert.Len(t, recvView(t, l).Players, 10)
}

func TestLobby_ChallengeMarksOnlyChallenger(t *testing.T) {
	l, _, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")
	b := join(t, l, "b", "bob")
	drain(a)

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "b"}
	got := recvType(t, b, types.MsgChallengeReceived)
	assert.Equal(t, "alice", got.From)
	assert.NotEmpty(t, got.ChallengeID)
	require.NotNil(t, got.Opponent)
	assert.Equal(t, "a", got.Opponent.ID)

	update := recvType(t, a, types.MsgLobbyUpdate)
	assert.Equal(t, types.StatusChallenging, update.Players[0].Status)
	assert.Equal(t, types.StatusAvailable, update.Players[1].Status)

	// A challenging player cannot be challenged or challenge again.
	c := join(t, l, "c", "carol")
	l.Inbox() <- Challenge{ConnID: "conn-c", ChallengerID: "c", TargetID: "a"}
	assert.Equal(t, ErrPlayerUnavailable.Error(), recvType(t, c, types.MsgError).Message)

	// The target stays available and can still be challenged.
	l.Inbox() <- Challenge{ConnID: "conn-c", ChallengerID: "c", TargetID: "b"}
	recvType(t, b, types.MsgChallengeReceived)
	assert.Equal(t, 2, recvView(t, l).Challenges)
}

func TestLobby_ChallengeRequiresRosteredPlayers(t *testing.T) {
	l, _, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "ghost"}
	assert.Equal(t, ErrPlayerUnavailable.Error(), recvType(t, a, types.MsgError).Message)

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "a"}
	assert.Equal(t, ErrPlayerUnavailable.Error(), recvType(t, a, types.MsgError).Message)
}

func TestLobby_ChallengeExpiresAfterTimeout(t *testing.T) {
	l, clock, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")
	join(t, l, "b", "bob")

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "b"}
	v := recvView(t, l)
	require.Equal(t, 1, v.Challenges)
	require.Equal(t, types.StatusChallenging, statusOf(v, "a"))
	drain(a)

	ctx, cancel := context.WithTimeout(context.Background(), wait)
	defer cancel()
	require.NoError(t, clock.BlockUntilContext(ctx, 1))
	clock.Advance(29 * time.Second)
	recvNoMsg(t, a, 50*time.Millisecond)

	clock.Advance(time.Second)
	update := recvType(t, a, types.MsgLobbyUpdate)
	assert.Equal(t, types.StatusAvailable, update.Players[0].Status)
	assert.Equal(t, 0, recvView(t, l).Challenges)
}

func TestLobby_AcceptRemovesBothAndSharesSession(t *testing.T) {
	l, _, sessions := newTestLobby(t)
	a := join(t, l, "a", "alice")
	b := join(t, l, "b", "bob")
	watcher := join(t, l, "c", "carol")

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "b"}
	id := recvType(t, b, types.MsgChallengeReceived).ChallengeID

	l.Inbox() <- ChallengeResponse{ConnID: "conn-b", ChallengeID: id, Accept: true}
	ma := recvType(t, a, types.MsgChallengeAccepted)
	mb := recvType(t, b, types.MsgChallengeAccepted)
	require.NotEmpty(t, ma.SessionID)
	assert.Equal(t, ma.SessionID, mb.SessionID)
	assert.Equal(t, "bob", ma.Opponent.Name)
	assert.Equal(t, "alice", mb.Opponent.Name)
	assert.Equal(t, []string{ma.SessionID}, sessions.ids())

	v := recvView(t, l)
	drain(watcher)
	assert.Equal(t, []types.LobbyPlayer{{ID: "c", Name: "carol", Status: types.StatusAvailable}}, v.Players)
	assert.Equal(t, 0, v.Challenges)

	// A late expiry for the accepted challenge changes nothing.
	l.Inbox() <- challengeExpired{ID: id}
	recvNoMsg(t, watcher, 50*time.Millisecond)
}

func TestLobby_DeclineResetsChallenger(t *testing.T) {
	l, _, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")
	b := join(t, l, "b", "bob")

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "b"}
	id := recvType(t, b, types.MsgChallengeReceived).ChallengeID

	// Only the target may answer.
	l.Inbox() <- ChallengeResponse{ConnID: "conn-a", ChallengeID: id, Accept: true}
	assert.Equal(t, ErrNotYourChallenge.Error(), recvType(t, a, types.MsgError).Message)

	l.Inbox() <- ChallengeResponse{ConnID: "conn-b", ChallengeID: id, Accept: false}
	declined := recvType(t, a, types.MsgChallengeDeclined)
	assert.Equal(t, "bob", declined.From)

	v := recvView(t, l)
	assert.Equal(t, types.StatusAvailable, statusOf(v, "a"))
	assert.Equal(t, 0, v.Challenges)

	l.Inbox() <- ChallengeResponse{ConnID: "conn-b", ChallengeID: id, Accept: true}
	assert.Equal(t, ErrChallengeNotFound.Error(), recvType(t, b, types.MsgError).Message)
}

func TestLobby_DisconnectCleansUpChallenges(t *testing.T) {
	l, _, _ := newTestLobby(t)
	a := join(t, l, "a", "alice")
	b := join(t, l, "b", "bob")

	l.Inbox() <- Challenge{ConnID: "conn-a", ChallengerID: "a", TargetID: "b"}
	recvType(t, b, types.MsgChallengeReceived)
	recvView(t, l)
	drain(b)

	l.Inbox() <- Disconnect{ConnID: "conn-a"}
	update := recvType(t, b, types.MsgLobbyUpdate)
	assert.Equal(t, []types.LobbyPlayer{{ID: "b", Name: "bob", Status: types.StatusAvailable}}, update.Players)

	v := recvView(t, l)
	assert.Equal(t, 0, v.Challenges)
	assert.Equal(t, 1, v.Conns)

	// The disconnected outbox is closed.
	for range a {
	}
}

func TestLobby_LeaveKeepsConnection(t *testing.T) {
	l, _, _ := newTestLobby(t)
	join(t, l, "a", "alice")

	l.Inbox() <- Leave{ConnID: "conn-a", PlayerID: "a"}
	v := recvView(t, l)
	assert.Empty(t, v.Players)
	assert.Equal(t, 1, v.Conns)
}

func TestLobby_DropSlowClient(t *testing.T) {
	l, _, _ := newTestLobby(t)
	slow := make(chan types.ServerMessage, 1)
	l.Inbox() <- Connect{ConnID: "slow", Outbox: slow}
	l.Inbox() <- Join{ConnID: "slow", PlayerID: "s", PlayerName: "sloth"}
	// Never drained: the next roster update cannot be delivered.
	join(t, l, "b", "bob")

	v := recvView(t, l)
	assert.Equal(t, []types.LobbyPlayer{{ID: "b", Name: "bob", Status: types.StatusAvailable}}, v.Players)
	assert.Equal(t, 1, v.Conns)
}
