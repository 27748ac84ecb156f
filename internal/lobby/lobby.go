package lobby

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/DoyleJ11/headsup-poker-backend/pkg/types"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"
)

var (
	ErrNotConnected      = errors.New("not connected")
	ErrAlreadyJoined     = errors.New("already joined")
	ErrNameInvalid       = errors.New("invalid player name")
	ErrNameTaken         = errors.New("name already taken")
	ErrPlayerExists      = errors.New("player already in lobby")
	ErrLobbyFull         = errors.New("lobby is full")
	ErrPlayerUnavailable = errors.New("player unavailable")
	ErrChallengeNotFound = errors.New("challenge not found")
	ErrNotYourChallenge  = errors.New("challenge is not addressed to you")
)

type Msg interface{ isLobbyMsg() }

// Connect registers a connection before it joins the roster.
type Connect struct {
	ConnID string
	Outbox chan types.ServerMessage
}

func (Connect) isLobbyMsg() {}

// Disconnect drops the connection, its roster entry and its challenges, and closes its outbox.
type Disconnect struct{ ConnID string }

func (Disconnect) isLobbyMsg() {}

type Join struct {
	ConnID     string
	PlayerID   string
	PlayerName string
}

func (Join) isLobbyMsg() {}

type Leave struct {
	ConnID   string
	PlayerID string
}

func (Leave) isLobbyMsg() {}

type Challenge struct {
	ConnID       string
	ChallengerID string
	TargetID     string
}

func (Challenge) isLobbyMsg() {}

type ChallengeResponse struct {
	ConnID      string
	ChallengeID string
	Accept      bool
}

func (ChallengeResponse) isLobbyMsg() {}

type challengeExpired struct{ ID string }

func (challengeExpired) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type View struct {
	Players    []types.LobbyPlayer
	Challenges int
	Conns      int
}

// SessionPreparer creates the game session an accepted challenge will be routed to.
type SessionPreparer interface {
	Prepare(ctx context.Context, sessionID string) error
}

type Config struct {
	Capacity         int
	MaxNameLength    int
	ChallengeTimeout time.Duration
	Clock            clockwork.Clock
	Logger           *zap.Logger
	Sessions         SessionPreparer
}

func DefaultConfig() Config {
	return Config{Capacity: 10, MaxNameLength: 20, ChallengeTimeout: 30 * time.Second}
}

type player struct {
	id     string
	name   string
	status types.PlayerStatus
	connID string
}

type challenge struct {
	id           string
	challengerID string
	targetID     string
	sessionID    string
	createdAt    time.Time
	timer        clockwork.Timer
}

type Lobby struct {
	cfg   Config
	clock clockwork.Clock
	log   *zap.Logger

	inbox      chan Msg
	conns      map[string]chan types.ServerMessage
	roster     []*player // join order
	challenges map[string]*challenge

	ctx    context.Context
	cancel context.CancelFunc
}

func NewLobby(parent context.Context, cfg Config) *Lobby {
	def := DefaultConfig()
	if cfg.Capacity <= 0 {
		cfg.Capacity = def.Capacity
	}
	if cfg.MaxNameLength <= 0 {
		cfg.MaxNameLength = def.MaxNameLength
	}
	if cfg.ChallengeTimeout <= 0 {
		cfg.ChallengeTimeout = def.ChallengeTimeout
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(parent)

	l := &Lobby{
		cfg:        cfg,
		clock:      cfg.Clock,
		log:        cfg.Logger.Named("lobby"),
		inbox:      make(chan Msg, 64), // Small buffer
		conns:      make(map[string]chan types.ServerMessage),
		challenges: make(map[string]*challenge),
		ctx:        ctx,
		cancel:     cancel,
	}

	go l.loop()
	return l
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }

// Send delivers m unless ctx or the lobby is done first.
func (l *Lobby) Send(ctx context.Context, m Msg) error {
	select {
	case l.inbox <- m:
		return nil
	case <-l.ctx.Done():
		return context.Canceled
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the current roster.
func (l *Lobby) Snapshot(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := l.Send(ctx, GetState{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-l.ctx.Done():
		return View{}, context.Canceled
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			switch msg := m.(type) {
			case Connect:
				l.conns[msg.ConnID] = msg.Outbox

			case Disconnect:
				l.removeConnPlayer(msg.ConnID)
				if ch, ok := l.conns[msg.ConnID]; ok {
					close(ch)
					delete(l.conns, msg.ConnID)
				}

			case Join:
				if err := l.join(msg); err != nil {
					l.log.Debug("join rejected", zap.String("player_id", msg.PlayerID), zap.Error(err))
					l.reply(msg.ConnID, err)
				}

			case Leave:
				if p := l.playerByConn(msg.ConnID); p != nil && (msg.PlayerID == "" || msg.PlayerID == p.id) {
					l.removeConnPlayer(msg.ConnID)
				}

			case Challenge:
				if err := l.challenge(msg); err != nil {
					l.reply(msg.ConnID, err)
				}

			case ChallengeResponse:
				if err := l.respond(msg); err != nil {
					l.reply(msg.ConnID, err)
				}

			case challengeExpired:
				l.expire(msg.ID)

			case GetState:
				// reflect internal state without data races; backs Snapshot and tests
				msg.Reply <- View{Players: l.players(), Challenges: len(l.challenges), Conns: len(l.conns)}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) join(msg Join) error {
	if _, ok := l.conns[msg.ConnID]; !ok {
		return ErrNotConnected
	}
	if l.playerByConn(msg.ConnID) != nil {
		return ErrAlreadyJoined
	}
	// Names are kept as sent and compared exactly. A name must already be NFC so that two
	// names that render the same cannot both be on the roster.
	name := msg.PlayerName
	if msg.PlayerID == "" || strings.TrimSpace(name) == "" ||
		utf8.RuneCountInString(name) > l.cfg.MaxNameLength || !norm.NFC.IsNormalString(name) {
		return ErrNameInvalid
	}
	if len(l.roster) >= l.cfg.Capacity {
		return ErrLobbyFull
	}
	for _, p := range l.roster {
		if p.name == name {
			return ErrNameTaken
		}
		if p.id == msg.PlayerID {
			return ErrPlayerExists
		}
	}

	l.roster = append(l.roster, &player{id: msg.PlayerID, name: name, status: types.StatusAvailable, connID: msg.ConnID})
	l.log.Info("player joined", zap.String("player_id", msg.PlayerID), zap.Int("roster", len(l.roster)))
	l.broadcast()
	return nil
}

func (l *Lobby) challenge(msg Challenge) error {
	challenger, target := l.player(msg.ChallengerID), l.player(msg.TargetID)
	if challenger == nil || challenger.connID != msg.ConnID {
		return ErrPlayerUnavailable
	}
	if target == nil || target == challenger {
		return ErrPlayerUnavailable
	}
	if challenger.status != types.StatusAvailable || target.status != types.StatusAvailable {
		return ErrPlayerUnavailable
	}

	c := &challenge{
		id:           uuid.NewString(),
		challengerID: challenger.id,
		targetID:     target.id,
		sessionID:    uuid.NewString(),
		createdAt:    l.clock.Now(),
	}
	c.timer = l.clock.AfterFunc(l.cfg.ChallengeTimeout, func() {
		select {
		case l.inbox <- challengeExpired{ID: c.id}:
		case <-l.ctx.Done():
		}
	})
	l.challenges[c.id] = c
	challenger.status = types.StatusChallenging

	l.log.Info("challenge issued",
		zap.String("challenge_id", c.id), zap.String("from", challenger.id), zap.String("to", target.id))
	l.sendTo(target, types.ServerMessage{
		Type:        types.MsgChallengeReceived,
		From:        challenger.name,
		ChallengeID: c.id,
		Opponent:    &types.Opponent{ID: challenger.id, Name: challenger.name},
	})
	l.broadcast()
	return nil
}

func (l *Lobby) respond(msg ChallengeResponse) error {
	c, ok := l.challenges[msg.ChallengeID]
	if !ok {
		return ErrChallengeNotFound
	}
	target := l.player(c.targetID)
	if target == nil || target.connID != msg.ConnID {
		return ErrNotYourChallenge
	}
	l.dropChallenge(c)
	challenger := l.player(c.challengerID)
	if challenger == nil {
		return ErrPlayerUnavailable
	}

	if !msg.Accept {
		challenger.status = types.StatusAvailable
		l.sendTo(challenger, types.ServerMessage{Type: types.MsgChallengeDeclined, From: target.name})
		l.broadcast()
		return nil
	}

	if l.cfg.Sessions != nil {
		ctx, cancel := context.WithTimeout(l.ctx, 2*time.Second)
		err := l.cfg.Sessions.Prepare(ctx, c.sessionID)
		cancel()
		if err != nil {
			challenger.status = types.StatusAvailable
			l.broadcast()
			return fmt.Errorf("prepare session: %w", err)
		}
	}

	l.sendTo(challenger, types.ServerMessage{
		Type:      types.MsgChallengeAccepted,
		SessionID: c.sessionID,
		Opponent:  &types.Opponent{ID: target.id, Name: target.name},
	})
	l.sendTo(target, types.ServerMessage{
		Type:      types.MsgChallengeAccepted,
		SessionID: c.sessionID,
		Opponent:  &types.Opponent{ID: challenger.id, Name: challenger.name},
	})
	l.log.Info("challenge accepted", zap.String("challenge_id", c.id), zap.String("session_id", c.sessionID))

	// Both players are in a game now; that is modelled as absence from the roster.
	l.removePlayer(challenger)
	l.removePlayer(target)
	l.broadcast()
	return nil
}

// expire is a no-op for a challenge already accepted or declined.
func (l *Lobby) expire(id string) {
	c, ok := l.challenges[id]
	if !ok {
		return
	}
	l.dropChallenge(c)
	if p := l.player(c.challengerID); p != nil && p.status == types.StatusChallenging {
		p.status = types.StatusAvailable
	}
	l.log.Info("challenge expired", zap.String("challenge_id", id), zap.Duration("age", l.clock.Since(c.createdAt)))
	l.broadcast()
}

func (l *Lobby) dropChallenge(c *challenge) {
	if c.timer != nil {
		c.timer.Stop()
	}
	delete(l.challenges, c.id)
}

// removeConnPlayer takes the connection's player off the roster, if it joined.
func (l *Lobby) removeConnPlayer(connID string) {
	p := l.playerByConn(connID)
	if p == nil {
		return
	}
	l.removePlayer(p)
	l.log.Info("player left", zap.String("player_id", p.id))
	l.broadcast()
}

// removePlayer drops p and every challenge it is part of.
func (l *Lobby) removePlayer(p *player) {
	for _, c := range l.challenges {
		if c.challengerID != p.id && c.targetID != p.id {
			continue
		}
		l.dropChallenge(c)
		if c.targetID == p.id {
			if ch := l.player(c.challengerID); ch != nil && ch.status == types.StatusChallenging {
				ch.status = types.StatusAvailable
			}
		}
	}
	for i, q := range l.roster {
		if q == p {
			l.roster = append(l.roster[:i], l.roster[i+1:]...)
			break
		}
	}
}

func (l *Lobby) player(id string) *player {
	for _, p := range l.roster {
		if p.id == id {
			return p
		}
	}
	return nil
}

func (l *Lobby) playerByConn(connID string) *player {
	for _, p := range l.roster {
		if p.connID == connID {
			return p
		}
	}
	return nil
}

func (l *Lobby) players() []types.LobbyPlayer {
	out := make([]types.LobbyPlayer, 0, len(l.roster))
	for _, p := range l.roster {
		out = append(out, types.LobbyPlayer{ID: p.id, Name: p.name, Status: p.status})
	}
	return out
}

func (l *Lobby) reply(connID string, err error) {
	l.deliver(connID, types.Error(err.Error()))
}

func (l *Lobby) sendTo(p *player, m types.ServerMessage) {
	l.deliver(p.connID, m)
}

// deliver never blocks the actor. A full outbox means a slow client, which is dropped.
func (l *Lobby) deliver(connID string, m types.ServerMessage) {
	ch, ok := l.conns[connID]
	if !ok {
		return
	}
	select {
	case ch <- m:
	default:
		l.log.Warn("dropping slow lobby client", zap.String("conn_id", connID))
		close(ch)
		delete(l.conns, connID)
		if p := l.playerByConn(connID); p != nil {
			l.removePlayer(p)
		}
	}
}

// broadcast sends the roster to every joined player.
func (l *Lobby) broadcast() {
	for {
		n := len(l.roster)
		snap := types.ServerMessage{Type: types.MsgLobbyUpdate, Players: l.players()}
		for _, p := range append([]*player(nil), l.roster...) {
			l.deliver(p.connID, snap)
		}
		// A dropped client changed the roster; the others need the new one.
		if len(l.roster) == n {
			return
		}
	}
}

func (l *Lobby) shutdown() {
	for _, c := range l.challenges {
		l.dropChallenge(c)
	}
	for id, ch := range l.conns {
		close(ch) // Tell client no more messages
		delete(l.conns, id)
	}
	l.roster = nil
	l.cancel()
}
