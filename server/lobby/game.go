package lobby

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"tetris/shared/protocol"
)

type gameState int

const (
	// One player holds the lobby socket and waits for an opponent.
	stateWaiting gameState = iota
	// Both player slots are assigned, waiting for both sockets to connect.
	stateReady
	// Both sockets are bound and frames are relayed.
	stateRunning
	// Removed from the hub; nothing more is sent.
	stateClosed
)

func (s gameState) String() string {
	switch s {
	case stateWaiting:
		return "waiting"
	case stateReady:
		return "ready"
	case stateRunning:
		return "running"
	default:
		return "closed"
	}
}

type slot struct {
	id   string
	conn *client
}

type Game struct {
	mu       sync.Mutex
	id       string
	state    gameState
	settings protocol.GameSettings
	host     *client // lobby socket while waiting
	p1, p2   slot
	since    time.Time // entered the current state
}

func (g *Game) logger() *log.Entry {
	return log.WithFields(log.Fields{"game": g.id, "state": g.state})
}

// slotFor returns the free slot reserved for playerID, if the game is
// still accepting connections.
func (g *Game) slotFor(playerID string) *slot {
	if g.state != stateReady {
		return nil
	}
	switch {
	case g.p1.conn == nil && g.p1.id == playerID:
		return &g.p1
	case g.p2.conn == nil && g.p2.id == playerID:
		return &g.p2
	}
	return nil
}

func (g *Game) opponent(playerID string) *client {
	if g.p1.id == playerID {
		return g.p2.conn
	}
	return g.p1.conn
}

// start is called with g.mu held once both sockets are bound.
func (g *Game) start() {
	var seed [16]byte
	_, _ = rand.Read(seed[:])
	msg := protocol.Start{Seed: hex.EncodeToString(seed[:]), Settings: g.settings}
	g.state = stateRunning
	g.since = time.Now()
	g.p1.conn.sendJSON(protocol.TypeStart, msg)
	g.p2.conn.sendJSON(protocol.TypeStart, msg)
	g.logger().Info("game started")
}

func (g *Game) self(playerID string) *client {
	if g.p1.id == playerID {
		return g.p1.conn
	}
	return g.p2.conn
}

// relay forwards a frame from playerID to the opponent. Line sends are
// re-encoded after validation, Start frames are server-only and dropped,
// anything else passes through unchanged. Frames that cannot be decoded are
// answered with an Error envelope to the sender.
func (g *Game) relay(playerID string, data []byte) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != stateRunning {
		return
	}
	env, err := decodeEnvelope(data)
	if err != nil {
		g.logger().WithError(err).Warn("invalid message received from websocket")
		g.self(playerID).sendJSON(protocol.TypeError, protocol.ErrorMsg{Message: "invalid frame"})
		return
	}
	other := g.opponent(playerID)
	switch env.Type {
	case protocol.TypeLineSend:
		var ls protocol.LineSend
		if err := json.Unmarshal(env.Data, &ls); err != nil {
			g.logger().WithError(err).Warn("invalid line send")
			g.self(playerID).sendJSON(protocol.TypeError, protocol.ErrorMsg{Message: "invalid line send"})
			return
		}
		g.logger().WithField("lines", ls.Lines).Debug("line send")
		other.sendJSON(protocol.TypeLineSend, ls)
	case protocol.TypeStart:
	default:
		other.sendRaw(data)
	}
}

// close tells every bound socket why the game ended and closes them.
// It reports false if the game was already closed.
func (g *Game) close(reason string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state == stateClosed {
		return false
	}
	prev := g.state
	g.state = stateClosed
	for _, c := range []*client{g.host, g.p1.conn, g.p2.conn} {
		if c == nil {
			continue
		}
		if prev != stateWaiting {
			c.sendText(protocol.CancelEvent(reason))
		}
		c.closeWith(websocket.CloseGoingAway, reason)
	}
	log.WithFields(log.Fields{"game": g.id, "was": prev, "reason": reason}).Info("game closed")
	return true
}
