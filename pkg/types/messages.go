package types

import "github.com/DoyleJ11/headsup-poker-backend/internal/engine"

// Client -> Server message types.
const (
	MsgJoin              = "join"
	MsgLeave             = "leave"
	MsgChallenge         = "challenge"
	MsgChallengeResponse = "challenge_response"
	MsgJoinGame          = "join_game"
	MsgPlayerAction      = "player_action"
	MsgPing              = "ping"
)

// Server -> Client message types.
const (
	MsgLobbyUpdate       = "lobby_update"
	MsgChallengeReceived = "challenge_received"
	MsgChallengeAccepted = "challenge_accepted"
	MsgChallengeDeclined = "challenge_declined"
	MsgGameWaiting       = "game_waiting"
	MsgGameState         = "game_state"
	MsgGameEnded         = "game_ended"
	MsgPong              = "pong"
	MsgError             = "error"
)

// Player actions beyond the engine's betting commands.
const (
	ActionContinue  = "continue"
	ActionPlayAgain = "play_again"
)

type Action struct {
	Type   string `json:"type"`
	Amount int    `json:"amount,omitempty"`
}

type ClientMessage struct {
	Type         string  `json:"type"`
	PlayerID     string  `json:"playerId,omitempty"`
	PlayerName   string  `json:"playerName,omitempty"`
	ChallengerID string  `json:"challengerId,omitempty"`
	TargetID     string  `json:"targetId,omitempty"`
	ChallengeID  string  `json:"challengeId,omitempty"`
	Response     string  `json:"response,omitempty"` // "accept" | "decline"
	Action       *Action `json:"action,omitempty"`
}

type PlayerStatus string

const (
	StatusAvailable   PlayerStatus = "available"
	StatusChallenging PlayerStatus = "challenging"
	StatusChallenged  PlayerStatus = "challenged"
)

type LobbyPlayer struct {
	ID     string       `json:"id"`
	Name   string       `json:"name"`
	Status PlayerStatus `json:"status"`
}

type Opponent struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ServerMessage struct {
	Type             string        `json:"type"`
	Players          []LobbyPlayer `json:"players,omitempty"`
	From             string        `json:"from,omitempty"`
	ChallengeID      string        `json:"challengeId,omitempty"`
	SessionID        string        `json:"sessionId,omitempty"`
	Opponent         *Opponent     `json:"opponent,omitempty"`
	MyPlayerID       *int          `json:"myPlayerId,omitempty"` // seat index
	State            *engine.View  `json:"state,omitempty"`
	Reason           string        `json:"reason,omitempty"`
	Timestamp        int64         `json:"timestamp,omitempty"`
	Message          string        `json:"message,omitempty"`
	PlayersConnected int           `json:"playersConnected,omitempty"`
	// Showdown acknowledgements per seat.
	Ready     []bool `json:"ready,omitempty"`
	PlayAgain []bool `json:"playAgain,omitempty"`
}

func Error(msg string) ServerMessage {
	return ServerMessage{Type: MsgError, Message: msg}
}
