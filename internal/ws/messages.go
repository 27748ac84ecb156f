package ws

import (
	"errors"
	"fmt"

	"github.com/DoyleJ11/headsup-poker-backend/internal/lobby"
	"github.com/DoyleJ11/headsup-poker-backend/internal/session"
	"github.com/DoyleJ11/headsup-poker-backend/pkg/types"
)

var (
	errUnknownType   = errors.New("unknown message type")
	errBadResponse   = errors.New("response must be accept or decline")
	errMissingAction = errors.New("missing action")
)

// toLobbyMsg maps a client frame on the lobby socket to a lobby actor message.
// Pings are answered by the transport and never reach the actor.
func toLobbyMsg(connID string, m types.ClientMessage) (lobby.Msg, error) {
	switch m.Type {
	case types.MsgJoin:
		return lobby.Join{ConnID: connID, PlayerID: m.PlayerID, PlayerName: m.PlayerName}, nil
	case types.MsgLeave:
		return lobby.Leave{ConnID: connID, PlayerID: m.PlayerID}, nil
	case types.MsgChallenge:
		return lobby.Challenge{ConnID: connID, ChallengerID: m.ChallengerID, TargetID: m.TargetID}, nil
	case types.MsgChallengeResponse:
		switch m.Response {
		case "accept":
			return lobby.ChallengeResponse{ConnID: connID, ChallengeID: m.ChallengeID, Accept: true}, nil
		case "decline":
			return lobby.ChallengeResponse{ConnID: connID, ChallengeID: m.ChallengeID}, nil
		}
		return nil, errBadResponse
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, m.Type)
}

func toSessionMsg(connID string, m types.ClientMessage, out chan types.ServerMessage) (session.Msg, error) {
	switch m.Type {
	case types.MsgJoinGame:
		return session.Join{ConnID: connID, PlayerID: m.PlayerID, PlayerName: m.PlayerName, Outbox: out}, nil
	case types.MsgPlayerAction:
		if m.Action == nil {
			return nil, errMissingAction
		}
		return session.Action{ConnID: connID, Action: *m.Action}, nil
	case types.MsgPing:
		return session.Ping{ConnID: connID, Outbox: out}, nil
	}
	return nil, fmt.Errorf("%w: %q", errUnknownType, m.Type)
}
