package protocol

import (
	"encoding/json"
	"fmt"
)

// Every websocket frame of a running game is wrapped in an envelope.
type MsgEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

const (
	TypeStart     = "Start"     // S -> C only
	TypeLineSend  = "LineSend"  // garbage lines for the opponent
	TypeGameState = "GameState" // board snapshot, relayed as is
	TypeGameOver  = "GameOver"  // relayed as is
	TypeError     = "Error"
)

// Start is sent to both players once both sockets are bound.
type Start struct {
	Seed     string       `json:"seed"` // hex, shared piece sequence
	Settings GameSettings `json:"settings"`
}

type LineSend struct {
	Lines uint8 `json:"lines"`
}

type ErrorMsg struct {
	Message string `json:"message"`
}

// Text frames used outside of a running game.

func LobbyEvent(gameID string) string { return "lobby " + gameID }

func ReadyEvent(gameID, playerID string) string {
	return fmt.Sprintf("ready %s/%s", gameID, playerID)
}

func CancelEvent(reason string) string { return "cancel " + reason }

// Encode wraps v in an envelope of the given type.
func Encode(typ string, v interface{}) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return json.Marshal(MsgEnvelope{Type: typ, Data: b})
}
