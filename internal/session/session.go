package session

import (
	"context"
	"errors"
	"time"

	"github.com/DoyleJ11/headsup-poker-backend/internal/engine"
	"github.com/DoyleJ11/headsup-poker-backend/internal/events"
	"github.com/DoyleJ11/headsup-poker-backend/pkg/types"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

var ErrClosed = errors.New("session closed")

const (
	ReasonOpponentLeft = "Opponent disconnected"
	ReasonInternal     = "internal error"
	ReasonReplaced     = "Connected from another window"
)

type Msg interface{ isSessionMsg() }

// Join seats a connection. Seats are assigned in join order.
type Join struct {
	ConnID     string
	PlayerID   string
	PlayerName string
	Outbox     chan types.ServerMessage
}

func (Join) isSessionMsg() {}

type Action struct {
	ConnID string
	Action types.Action
}

func (Action) isSessionMsg() {}

// Ping is answered on Outbox whether or not the sender is seated.
type Ping struct {
	ConnID string
	Outbox chan types.ServerMessage
}

func (Ping) isSessionMsg() {}

type Leave struct{ ConnID string }

func (Leave) isSessionMsg() {}

type Shutdown struct{}

func (Shutdown) isSessionMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isSessionMsg() {}

type timerFired struct{ gen uint64 }

func (timerFired) isSessionMsg() {}

type idleFired struct{}

func (idleFired) isSessionMsg() {}

// View is a test and diagnostics snapshot of the actor.
type View struct {
	Seated     int
	Started    bool
	Ready      [2]bool
	PlayAgain  [2]bool
	TimerArmed bool
	State      engine.State
}

type Config struct {
	ID              string
	Rules           engine.Rules
	ShowdownTimeout time.Duration
	// IdleTimeout ends a session that nobody has joined. Defaults to one minute.
	IdleTimeout     time.Duration
	Clock           clockwork.Clock
	Logger          *zap.Logger
	Events          events.Sink
	Deck            engine.DeckSource // nil uses the crypto shuffler
	// OnClose runs once from the actor when the session ends for any reason. It must not block.
	OnClose func(id, reason string)
}

type seat struct {
	connID string
	player engine.Player
	out    chan types.ServerMessage
}

type Session struct {
	id    string
	cfg   Config
	clock clockwork.Clock
	log   *zap.Logger

	inbox chan Msg
	seats [2]*seat
	game  *engine.Game
	ready [2]bool
	again [2]bool

	timer    clockwork.Timer
	timerGen uint64
	idle     clockwork.Timer

	closed bool
	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func New(parent context.Context, cfg Config) *Session {
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	if cfg.Events == nil {
		cfg.Events = events.Nop{}
	}
	if cfg.Rules == (engine.Rules{}) {
		cfg.Rules = engine.DefaultRules()
	}
	if cfg.ShowdownTimeout <= 0 {
		cfg.ShowdownTimeout = 5 * time.Second
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = time.Minute
	}
	ctx, cancel := context.WithCancel(parent)

	s := &Session{
		id:     cfg.ID,
		cfg:    cfg,
		clock:  cfg.Clock,
		log:    cfg.Logger.Named("session").With(zap.String("session_id", cfg.ID)),
		inbox:  make(chan Msg, 64),
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	s.idle = s.clock.AfterFunc(cfg.IdleTimeout, func() {
		select {
		case s.inbox <- idleFired{}:
		case <-s.ctx.Done():
		}
	})
	go s.loop()
	return s
}

func (s *Session) ID() string { return s.id }

// Expose the inbox so tests or the WS layer can send messages.
func (s *Session) Inbox() chan<- Msg { return s.inbox }

// Send delivers m unless the session has ended or ctx is done first.
func (s *Session) Send(ctx context.Context, m Msg) error {
	select {
	case <-s.done:
		return ErrClosed
	default:
	}
	select {
	case s.inbox <- m:
		return nil
	case <-s.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close ends the session as if the server were shutting down. Safe to call more than once.
func (s *Session) Close() { s.cancel() }

// Done is closed once the actor has stopped.
func (s *Session) Done() <-chan struct{} { return s.done }

func (s *Session) loop() {
	defer close(s.done)
	for {
		select {
		case <-s.ctx.Done():
			s.terminate("shutdown")
			return

		case m := <-s.inbox:
			switch msg := m.(type) {
			case Join:
				s.handleJoin(msg)
			case Action:
				s.handleAction(msg)
			case Ping:
				trySend(msg.Outbox, types.ServerMessage{Type: types.MsgPong, Timestamp: s.clock.Now().UnixMilli()})
			case Leave:
				s.handleLeave(msg.ConnID)
			case timerFired:
				s.handleTimer(msg)
			case idleFired:
				if s.seated() == 0 {
					s.terminate("idle")
				}
			case GetState:
				msg.Reply <- s.view()
			case Shutdown:
				s.terminate("shutdown")
			}
			if s.closed {
				return
			}
		}
	}
}

func (s *Session) view() View {
	v := View{Seated: s.seated(), Ready: s.ready, PlayAgain: s.again, TimerArmed: s.timer != nil}
	if s.game != nil {
		v.Started = true
		v.State = s.game.State()
	}
	return v
}

func (s *Session) seated() int {
	n := 0
	for _, st := range s.seats {
		if st != nil {
			n++
		}
	}
	return n
}

func (s *Session) seatOf(connID string) int {
	for i, st := range s.seats {
		if st != nil && st.connID == connID {
			return i
		}
	}
	return -1
}

func (s *Session) seatOfPlayer(playerID string) int {
	for i, st := range s.seats {
		if st != nil && st.player.ID == playerID {
			return i
		}
	}
	return -1
}

func (s *Session) handleJoin(msg Join) {
	if s.seatOf(msg.ConnID) >= 0 {
		return
	}
	if idx := s.seatOfPlayer(msg.PlayerID); idx >= 0 {
		s.rejoin(idx, msg)
		return
	}
	idx := -1
	for i, st := range s.seats {
		if st == nil {
			idx = i
			break
		}
	}
	if idx < 0 || s.game != nil {
		trySend(msg.Outbox, types.Error("session full"))
		return
	}

	s.seats[idx] = &seat{
		connID: msg.ConnID,
		player: engine.Player{ID: msg.PlayerID, Name: msg.PlayerName},
		out:    msg.Outbox,
	}
	s.log.Info("player joined", zap.String("player_id", msg.PlayerID), zap.Int("seat", idx))
	if s.idle != nil {
		s.idle.Stop()
		s.idle = nil
	}

	if s.seats[other(idx)] == nil {
		s.send(idx, types.ServerMessage{Type: types.MsgGameWaiting, PlayersConnected: 1})
		return
	}
	s.newMatch()
}

// rejoin moves a seated player onto a new connection. The old connection is told and closed;
// its later Leave no longer matches a seat.
func (s *Session) rejoin(idx int, msg Join) {
	st := s.seats[idx]
	trySend(st.out, types.ServerMessage{Type: types.MsgGameEnded, Reason: ReasonReplaced})
	close(st.out)
	st.connID = msg.ConnID
	st.out = msg.Outbox
	s.log.Info("player reconnected", zap.String("player_id", msg.PlayerID), zap.Int("seat", idx))

	if s.game == nil {
		s.send(idx, types.ServerMessage{Type: types.MsgGameWaiting, PlayersConnected: s.seated()})
		return
	}
	if !s.send(idx, s.stateMsg(idx)) {
		s.handleLeave(st.connID)
	}
}

// newMatch seats both players with fresh stacks and deals the first hand.
func (s *Session) newMatch() {
	s.game = engine.NewGame(s.cfg.Rules, s.seats[0].player, s.seats[1].player)
	if s.cfg.Deck != nil {
		s.game.SetDeckSource(s.cfg.Deck)
	}
	s.log.Info("match started",
		zap.String("seat0", s.seats[0].player.ID), zap.String("seat1", s.seats[1].player.ID))
	s.nextHand()
}

func (s *Session) nextHand() {
	s.cancelTimer()
	s.ready = [2]bool{}
	s.again = [2]bool{}
	if !s.game.BothCanPlay() {
		s.game.ResetStacks()
	}
	evs, err := s.game.StartHand()
	if err != nil {
		s.fail(err)
		return
	}
	s.log.Debug("hand started", zap.Int("hand_id", s.game.State().HandID))
	s.afterTransition(evs)
}

func (s *Session) handleAction(msg Action) {
	idx := s.seatOf(msg.ConnID)
	if idx < 0 {
		return
	}
	if s.game == nil {
		return
	}

	switch msg.Action.Type {
	case string(engine.CmdFold), string(engine.CmdCheck), string(engine.CmdCall), string(engine.CmdBetRaise):
		if s.game.Street() == engine.StreetShowdown || s.game.ToAct() != idx {
			s.log.Debug("action out of turn", zap.Int("seat", idx), zap.String("action", msg.Action.Type))
			return
		}
		evs, err := s.game.Apply(idx, engine.Command{Type: engine.CommandType(msg.Action.Type), Amount: msg.Action.Amount})
		if errors.Is(err, engine.ErrInvariant) {
			s.fail(err)
			return
		}
		if err != nil {
			s.log.Debug("action rejected", zap.Int("seat", idx), zap.Error(err))
			return
		}
		s.afterTransition(evs)

	case types.ActionContinue:
		if s.game.Street() != engine.StreetShowdown {
			return
		}
		s.ready[idx] = true
		if s.ready[0] && s.ready[1] {
			s.nextHand()
			return
		}
		s.broadcast()

	case types.ActionPlayAgain:
		if s.game.Street() != engine.StreetShowdown {
			return
		}
		s.again[idx] = true
		if s.again[0] && s.again[1] {
			s.newMatch()
			return
		}
		s.broadcast()

	default:
		// Unknown actions are tolerated for older clients.
	}
}

// afterTransition publishes what happened, arms the showdown timer and pushes fresh views.
func (s *Session) afterTransition(evs []engine.Event) {
	s.publish(evs)
	if s.game.Street() == engine.StreetShowdown {
		s.ready = [2]bool{}
		s.again = [2]bool{}
		s.cancelTimer()
		if s.game.BothCanPlay() {
			s.armTimer()
		}
	}
	s.broadcast()
}

func (s *Session) handleTimer(msg timerFired) {
	if msg.gen != s.timerGen || s.game == nil || s.game.Street() != engine.StreetShowdown {
		return
	}
	s.timer = nil
	s.log.Debug("showdown timeout, dealing next hand")
	s.nextHand()
}

func (s *Session) armTimer() {
	s.timerGen++
	gen := s.timerGen
	s.timer = s.clock.AfterFunc(s.cfg.ShowdownTimeout, func() {
		select {
		case s.inbox <- timerFired{gen: gen}:
		case <-s.ctx.Done():
		}
	})
}

// cancelTimer stops the pending timer; a callback already in flight is dropped by its generation.
func (s *Session) cancelTimer() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	s.timerGen++
}

func (s *Session) publish(evs []engine.Event) {
	st := s.game.State()
	names := [2]string{st.Seats[0].Name, st.Seats[1].Name}
	now := s.clock.Now().UTC()
	for _, ev := range evs {
		var out events.Event
		switch ev.Type {
		case engine.EvtHandCompleted:
			hc := events.HandCompleted{SessionID: s.id, HandID: st.HandID, Players: names, Pot: ev.Amount, OccurredAt: now}
			if ev.Seat >= 0 {
				hc.Winner = names[ev.Seat]
			}
			out = hc
		case engine.EvtMatchOver:
			out = events.MatchOver{
				SessionID:  s.id,
				Winner:     names[ev.Seat],
				Loser:      names[other(ev.Seat)],
				Hands:      st.HandID,
				OccurredAt: now,
			}
		default:
			continue
		}
		if err := s.cfg.Events.Publish(s.ctx, out); err != nil {
			s.log.Warn("publish event failed", zap.String("event", out.Type()), zap.Error(err))
		}
	}
}

// broadcast builds both seat views first so the two sends describe the same transition.
func (s *Session) broadcast() {
	var msgs [2]types.ServerMessage
	for i, st := range s.seats {
		if st != nil {
			msgs[i] = s.stateMsg(i)
		}
	}

	slow := -1
	for i := range s.seats {
		if s.seats[i] != nil && !s.send(i, msgs[i]) && slow < 0 {
			slow = i
		}
	}
	if slow >= 0 {
		s.log.Warn("dropping slow client", zap.Int("seat", slow))
		s.handleLeave(s.seats[slow].connID)
	}
}

func (s *Session) stateMsg(idx int) types.ServerMessage {
	v := s.game.ViewFor(idx)
	m := types.ServerMessage{Type: types.MsgGameState, MyPlayerID: &idx, State: &v}
	if opp := s.seats[other(idx)]; opp != nil {
		m.Opponent = &types.Opponent{ID: opp.player.ID, Name: opp.player.Name}
	}
	if v.Street == engine.StreetShowdown {
		m.Ready = []bool{s.ready[0], s.ready[1]}
		m.PlayAgain = []bool{s.again[0], s.again[1]}
	}
	return m
}

func (s *Session) send(idx int, m types.ServerMessage) bool {
	st := s.seats[idx]
	if st == nil {
		return false
	}
	return trySend(st.out, m)
}

func trySend(ch chan types.ServerMessage, m types.ServerMessage) bool {
	if ch == nil {
		return false
	}
	select {
	case ch <- m:
		return true
	default:
		return false
	}
}

func (s *Session) handleLeave(connID string) {
	idx := s.seatOf(connID)
	if idx < 0 {
		return
	}
	s.log.Info("player left", zap.String("player_id", s.seats[idx].player.ID), zap.Int("seat", idx))
	close(s.seats[idx].out)
	s.seats[idx] = nil
	s.send(other(idx), types.ServerMessage{Type: types.MsgGameEnded, Reason: ReasonOpponentLeft})
	s.terminate("player disconnected")
}

func (s *Session) fail(err error) {
	s.log.Error("session aborted", zap.Error(err))
	for i := range s.seats {
		s.send(i, types.ServerMessage{Type: types.MsgGameEnded, Reason: ReasonInternal})
	}
	s.terminate("invariant violation")
}

// terminate releases every resource the session holds. It runs once.
func (s *Session) terminate(reason string) {
	if s.closed {
		return
	}
	s.closed = true
	s.cancelTimer()
	if s.idle != nil {
		s.idle.Stop()
	}
	for i, st := range s.seats {
		if st != nil {
			close(st.out)
			s.seats[i] = nil
		}
	}
	s.log.Info("session ended", zap.String("reason", reason))
	if s.cfg.OnClose != nil {
		s.cfg.OnClose(s.id, reason)
	}
	s.cancel()
}

func other(seat int) int { return 1 - seat }
