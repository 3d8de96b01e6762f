// Package protocol defines the wire messages exchanged between the arena
// server and its clients. Messages are flat JSON objects discriminated by a
// top-level "type" field, one object per websocket text frame.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Client-to-server message types.
const (
	TypeRequestPlayers = "requestPlayers"
	TypeUpdate         = "update"
	TypePlayerDamage   = "playerDamage"
	TypePlayerDied     = "playerDied"
)

// Server-to-client message types.
const (
	TypeInit         = "init"
	TypePlayers      = "players"
	TypeNewPlayer    = "newPlayer"
	TypePlayerUpdate = "playerUpdate"
	TypePlayerLeft   = "playerLeft"
)

// ErrUnknownType marks a message whose type tag is not part of the protocol.
// Callers drop such messages instead of failing the connection.
var ErrUnknownType = errors.New("protocol: unknown message type")

// Vec3 is a position or Euler rotation triple.
type Vec3 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// PlayerInfo is the replicated per-player state as last reported.
type PlayerInfo struct {
	ID       string `json:"id"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Gold     int64  `json:"gold"`
	Name     string `json:"name"`
	Color    string `json:"color"`
}

// RequestPlayers announces the joining player's identity and asks for the
// current roster.
type RequestPlayers struct {
	Type  string `json:"type"`
	Name  string `json:"name,omitempty"`
	Color string `json:"color,omitempty"`
}

// Update reports the local ship's transform. Gold is optional: nil means the
// client did not report a gold value with this snapshot.
type Update struct {
	Type     string `json:"type"`
	Position Vec3   `json:"position"`
	Rotation Vec3   `json:"rotation"`
	Gold     *int64 `json:"gold,omitempty"`
}

// PlayerDamage is sent by an attacker and relayed verbatim to the target.
type PlayerDamage struct {
	Type         string  `json:"type"`
	TargetID     string  `json:"targetId"`
	Damage       float64 `json:"damage"`
	AttackerName string  `json:"attackerName,omitempty"`
}

// PlayerDied is a fire-and-forget death notice.
type PlayerDied struct {
	Type     string `json:"type"`
	PlayerID string `json:"playerId"`
}

// Init assigns the client its session id and persisted gold.
type Init struct {
	Type  string `json:"type"`
	ID    string `json:"id"`
	Gold  int64  `json:"gold"`
	Name  string `json:"name"`
	Color string `json:"color"`
}

// Players is the full roster snapshot, self included.
type Players struct {
	Type    string       `json:"type"`
	Players []PlayerInfo `json:"players"`
}

// NewPlayer announces a player joining to everyone else.
type NewPlayer struct {
	Type string `json:"type"`
	PlayerInfo
}

// PlayerUpdate replicates one player's latest state to everyone else.
type PlayerUpdate struct {
	Type string `json:"type"`
	PlayerInfo
}

// PlayerLeft announces a departed player to all remaining connections.
type PlayerLeft struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type probe struct {
	Type string `json:"type"`
}

// DecodeClient parses a client-to-server message into its typed form.
// Unrecognized type tags return ErrUnknownType so the caller can drop the
// message without tearing down the connection.
func DecodeClient(data []byte) (any, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("protocol: malformed message: %w", err)
	}
	switch p.Type {
	case TypeRequestPlayers:
		return decodeAs[RequestPlayers](data)
	case TypeUpdate:
		return decodeAs[Update](data)
	case TypePlayerDamage:
		return decodeAs[PlayerDamage](data)
	case TypePlayerDied:
		return decodeAs[PlayerDied](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}

// DecodeServer parses a server-to-client message into its typed form.
func DecodeServer(data []byte) (any, error) {
	var p probe
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("protocol: malformed message: %w", err)
	}
	switch p.Type {
	case TypeInit:
		return decodeAs[Init](data)
	case TypePlayers:
		return decodeAs[Players](data)
	case TypeNewPlayer:
		return decodeAs[NewPlayer](data)
	case TypePlayerUpdate:
		return decodeAs[PlayerUpdate](data)
	case TypePlayerLeft:
		return decodeAs[PlayerLeft](data)
	case TypePlayerDamage:
		return decodeAs[PlayerDamage](data)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownType, p.Type)
	}
}

func decodeAs[T any](data []byte) (*T, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("protocol: malformed payload: %w", err)
	}
	return &m, nil
}

// GoldValue returns a clamped copy of the optional gold field: absent reports
// stay absent, negative reports are floored at zero.
func (m *Update) GoldValue() (int64, bool) {
	if m.Gold == nil {
		return 0, false
	}
	gold := *m.Gold
	if gold < 0 {
		gold = 0
	}
	return gold, true
}
