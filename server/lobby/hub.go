// Package lobby pairs two players, checks their connect tokens and relays
// game frames between them.
package lobby

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"tetris/server/metrics"
	"tetris/shared/protocol"
)

// ReadyTimeout bounds how long a joined game waits for both sockets.
const ReadyTimeout = time.Minute

// ConnectVerifier checks the derived token sent with a connect request.
type ConnectVerifier interface {
	VerifyConnect(playerID, token string) error
}

type Hub struct {
	mu     sync.Mutex
	games  map[string]*Game
	auth   ConnectVerifier
	events *Broadcaster

	upgrader websocket.Upgrader
}

func NewHub(v ConnectVerifier) *Hub {
	return &Hub{
		games:  make(map[string]*Game),
		auth:   v,
		events: NewBroadcaster(),
		upgrader: websocket.Upgrader{
			HandshakeTimeout: 10 * time.Second,
			ReadBufferSize:   2048,
			WriteBufferSize:  2048,
			CheckOrigin:      func(r *http.Request) bool { return true },
		},
	}
}

// Register mounts the lobby endpoints on mux.
func (h *Hub) Register(mux *http.ServeMux) {
	mux.HandleFunc("GET /create-game", h.HandleCreate)
	mux.HandleFunc("GET /join-game/{id}", h.HandleJoin)
	mux.HandleFunc("GET /connect/{game}/{player}", h.HandleConnect)
	mux.HandleFunc("GET /games", h.HandleGames)
}

// Run expires games that were joined but never connected. It returns when
// ctx is done, closing every remaining game.
func (h *Hub) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			h.closeAll("shutdown")
			return nil
		case now := <-ticker.C:
			h.expire(now)
		}
	}
}

func (h *Hub) expire(now time.Time) {
	h.mu.Lock()
	var stale []*Game
	for _, g := range h.games {
		g.mu.Lock()
		if g.state == stateReady && now.Sub(g.since) > ReadyTimeout {
			stale = append(stale, g)
		}
		g.mu.Unlock()
	}
	h.mu.Unlock()
	for _, g := range stale {
		h.cancel(g, "timeout")
	}
}

func (h *Hub) closeAll(reason string) {
	h.mu.Lock()
	games := make([]*Game, 0, len(h.games))
	for _, g := range h.games {
		games = append(games, g)
	}
	h.mu.Unlock()
	for _, g := range games {
		h.cancel(g, reason)
	}
}

func (h *Hub) lookup(id string) *Game {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.games[id]
}

// cancel removes g from the hub and closes its sockets.
func (h *Hub) cancel(g *Game, reason string) {
	h.mu.Lock()
	if h.games[g.id] == g {
		delete(h.games, g.id)
	}
	h.mu.Unlock()
	if g.close(reason) {
		metrics.GamesCanceled.WithLabelValues(reason).Inc()
		h.changed()
	}
}

// snapshot encodes the settings of every waiting game keyed by id and
// refreshes the per-state gauge.
func (h *Hub) snapshot() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	waiting := make(map[string]protocol.GameSettings)
	counts := map[gameState]int{}
	for id, g := range h.games {
		g.mu.Lock()
		counts[g.state]++
		if g.state == stateWaiting {
			waiting[id] = g.settings
		}
		g.mu.Unlock()
	}
	for _, s := range []gameState{stateWaiting, stateReady, stateRunning} {
		metrics.Games.WithLabelValues(s.String()).Set(float64(counts[s]))
	}
	b, _ := json.Marshal(waiting)
	return string(b)
}

func (h *Hub) changed() {
	msg := h.snapshot()
	log.WithField("games", msg).Debug("broadcasting lobby")
	h.events.Broadcast(msg)
}

func parseSettings(r *http.Request) protocol.GameSettings {
	q := r.URL.Query()
	flag := func(k string) bool {
		v, _ := strconv.ParseBool(q.Get(k))
		return v
	}
	return protocol.GameSettings{
		Jupiter: flag("jupiter"),
		Easy:    flag("easy"),
		NES:     flag("nes"),
		Random:  flag("random"),
	}
}

// HandleCreate handles GET /create-game. The socket stays open as the
// lobby entry until an opponent joins or the creator leaves.
func (h *Hub) HandleCreate(w http.ResponseWriter, r *http.Request) {
	settings := parseSettings(r)
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade create-game")
		return
	}
	c := newClient(conn)
	g := &Game{id: protocol.NewID(), state: stateWaiting, settings: settings, host: c, since: time.Now()}

	g.logger().Info("game created")
	h.mu.Lock()
	h.games[g.id] = g
	h.mu.Unlock()
	h.changed()

	go c.writer()
	c.sendText(protocol.LobbyEvent(g.id))
	c.reader(func([]byte) {})

	g.mu.Lock()
	stillWaiting := g.state == stateWaiting
	g.mu.Unlock()
	if stillWaiting {
		h.cancel(g, "left")
	}
}

// HandleJoin handles GET /join-game/{id}: it reserves both player slots,
// tells the creator its slot and returns "<game>/<player>" to the joiner.
func (h *Hub) HandleJoin(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	g := h.lookup(id)
	if g == nil {
		http.NotFound(w, r)
		return
	}

	g.mu.Lock()
	if g.state != stateWaiting {
		g.mu.Unlock()
		http.Error(w, "game is not waiting", http.StatusConflict)
		return
	}
	g.p1 = slot{id: protocol.NewID()}
	g.p2 = slot{id: protocol.NewID()}
	g.host.sendText(protocol.ReadyEvent(g.id, g.p1.id))
	g.host = nil
	g.state = stateReady
	g.since = time.Now()
	p2 := g.p2.id
	g.logger().Info("game joined")
	g.mu.Unlock()

	h.changed()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(id + "/" + p2)
}

// HandleConnect handles GET /connect/{game}/{player}?auth=<token>.
func (h *Hub) HandleConnect(w http.ResponseWriter, r *http.Request) {
	gameID, playerID := r.PathValue("game"), r.PathValue("player")
	if err := h.auth.VerifyConnect(playerID, r.URL.Query().Get("auth")); err != nil {
		log.WithFields(log.Fields{"game": gameID, "player": playerID}).WithError(err).Warn("connect rejected")
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	g := h.lookup(gameID)
	if g == nil {
		log.WithField("game", gameID).Info("connect to nonexistent game")
		http.NotFound(w, r)
		return
	}

	g.mu.Lock()
	free := g.slotFor(playerID) != nil
	g.mu.Unlock()
	if !free {
		log.WithFields(log.Fields{"game": g.id, "player": playerID}).Info("cannot connect, no slot free")
		http.Error(w, "no free slot", http.StatusConflict)
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("upgrade connect")
		return
	}

	// The handshake ran unlocked, so the slot may have been taken or the
	// game closed in the meantime.
	g.mu.Lock()
	s := g.slotFor(playerID)
	if s == nil {
		g.mu.Unlock()
		log.WithFields(log.Fields{"game": g.id, "player": playerID}).Info("slot taken during handshake")
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "no free slot"),
			time.Now().Add(time.Second))
		conn.Close()
		return
	}
	c := newClient(conn)
	s.conn = c
	go c.writer()
	started := false
	if g.p1.conn != nil && g.p2.conn != nil {
		g.start()
		started = true
	}
	g.mu.Unlock()
	if started {
		h.snapshot()
	}

	reason := c.reader(func(data []byte) { g.relay(playerID, data) })
	h.cancel(g, reason)
}

// HandleGames handles GET /games, a stream of the waiting games.
func (h *Hub) HandleGames(w http.ResponseWriter, r *http.Request) {
	h.events.ServeEvents(w, r, h.snapshot())
}
