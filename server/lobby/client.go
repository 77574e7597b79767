package lobby

import (
	"encoding/json"
	"errors"
	"net"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"tetris/shared/protocol"
)

const (
	writeWait      = 5 * time.Second
	maxMessageSize = 64 << 10
)

type frame struct {
	kind int
	data []byte
}

// client owns one websocket. Writes go through send and are performed by
// the writer goroutine only.
type client struct {
	conn *websocket.Conn
	send chan frame
	quit chan struct{}
	once sync.Once
}

func newClient(conn *websocket.Conn) *client {
	return &client{conn: conn, send: make(chan frame, 64), quit: make(chan struct{})}
}

// reader blocks until the socket fails or stays silent for longer than
// protocol.ClientTimeout. Any frame, ping or pong counts as activity.
// It returns the reason the socket ended.
func (c *client) reader(onMessage func(data []byte)) string {
	defer c.stop()
	c.conn.SetReadLimit(maxMessageSize)
	alive := func() { _ = c.conn.SetReadDeadline(time.Now().Add(protocol.ClientTimeout)) }
	alive()
	c.conn.SetPongHandler(func(string) error { alive(); return nil })
	c.conn.SetPingHandler(func(data string) error {
		alive()
		err := c.conn.WriteControl(websocket.PongMessage, []byte(data), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})
	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				return "timeout"
			}
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).Debug("websocket read")
			}
			return "disconnect"
		}
		alive()
		if kind == websocket.TextMessage || kind == websocket.BinaryMessage {
			onMessage(data)
		}
	}
}

// writer drains send and pings the peer every protocol.HeartbeatInterval.
func (c *client) writer() {
	ticker := time.NewTicker(protocol.HeartbeatInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()
	for {
		select {
		case f := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(f.kind, f.data); err != nil {
				return
			}
			if f.kind == websocket.CloseMessage {
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-c.quit:
			return
		}
	}
}

func (c *client) stop() { c.once.Do(func() { close(c.quit) }) }

func (c *client) enqueue(f frame) {
	select {
	case <-c.quit:
	case c.send <- f:
	default:
		// peer is not keeping up
		c.stop()
	}
}

func (c *client) sendText(s string) { c.enqueue(frame{websocket.TextMessage, []byte(s)}) }

func (c *client) sendRaw(b []byte) { c.enqueue(frame{websocket.TextMessage, b}) }

func (c *client) sendJSON(typ string, v interface{}) {
	out, err := protocol.Encode(typ, v)
	if err != nil {
		log.WithError(err).WithField("type", typ).Error("encode message")
		return
	}
	c.sendRaw(out)
}

// closeWith queues a close frame after anything already queued.
func (c *client) closeWith(code int, reason string) {
	c.enqueue(frame{websocket.CloseMessage, websocket.FormatCloseMessage(code, reason)})
}

func decodeEnvelope(data []byte) (protocol.MsgEnvelope, error) {
	var env protocol.MsgEnvelope
	err := json.Unmarshal(data, &env)
	return env, err
}
