// Package api serves the leaderboard endpoints and assembles the HTTP
// surface of the server.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"tetris/server/leaderboard"
	"tetris/server/metrics"
	"tetris/shared/protocol"
)

// Board is the part of the leaderboard the handlers need.
type Board interface {
	Add(req protocol.HighscoreReq) error
	List() []protocol.LeaderboardEntry
	Remove(name string, score uint32) (int, error)
}

// LimiterIdle is how long an address may stay silent before its bucket is
// dropped. A bucket idle that long has refilled, so dropping it is lossless.
const LimiterIdle = 10 * time.Minute

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// limiter hands out one token bucket per client address.
type limiter struct {
	mu      sync.Mutex
	perAddr map[string]*bucket
	limit   rate.Limit
	burst   int
}

func newLimiter(perSecond float64, burst int) *limiter {
	return &limiter{perAddr: make(map[string]*bucket), limit: rate.Limit(perSecond), burst: burst}
}

func (l *limiter) allow(addr string, now time.Time) bool {
	l.mu.Lock()
	b, ok := l.perAddr[addr]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.perAddr[addr] = b
	}
	b.seen = now
	l.mu.Unlock()
	return b.lim.AllowN(now, 1)
}

// prune drops buckets not used since before cutoff and reports how many
// remain.
func (l *limiter) prune(cutoff time.Time) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	for addr, b := range l.perAddr {
		if b.seen.Before(cutoff) {
			delete(l.perAddr, addr)
		}
	}
	return len(l.perAddr)
}

func clientAddr(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

type Handlers struct {
	board   Board
	limiter *limiter
}

func NewHandlers(b Board, perSecond float64, burst int) *Handlers {
	return &Handlers{board: b, limiter: newLimiter(perSecond, burst)}
}

// Run periodically drops idle rate limit buckets until ctx is done.
func (h *Handlers) Run(ctx context.Context) error {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case now := <-ticker.C:
			left := h.limiter.prune(now.Add(-LimiterIdle))
			log.WithField("addresses", left).Debug("pruned rate limiters")
		}
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// HandleLeaderboard handles GET /leaderboard.
func (h *Handlers) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.board.List())
}

// HandleHighscore handles POST /highscore.
func (h *Handlers) HandleHighscore(w http.ResponseWriter, r *http.Request) {
	if !h.limiter.allow(clientAddr(r), time.Now()) {
		metrics.HighscoresRejected.WithLabelValues("rate_limit").Inc()
		http.Error(w, "too many requests", http.StatusTooManyRequests)
		return
	}
	var req protocol.HighscoreReq
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4<<10)).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}
	err := h.board.Add(req)
	switch {
	case err == nil:
		w.WriteHeader(http.StatusOK)
	case errors.Is(err, leaderboard.ErrUnauthorized):
		log.WithFields(log.Fields{"name": req.Name, "score": req.Score, "addr": clientAddr(r)}).Warn("highscore token rejected")
		w.WriteHeader(http.StatusUnauthorized)
	case errors.Is(err, leaderboard.ErrEasyMode),
		errors.Is(err, leaderboard.ErrNameTooLong),
		errors.Is(err, leaderboard.ErrEmptyName):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		log.WithError(err).Error("add highscore")
		http.Error(w, "save failed", http.StatusInternalServerError)
	}
}

// HandleRemove handles DELETE /admin/leaderboard?name=&score=.
func (h *Handlers) HandleRemove(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	score, err := strconv.ParseUint(r.URL.Query().Get("score"), 10, 32)
	if name == "" || err != nil {
		http.Error(w, "name and score required", http.StatusBadRequest)
		return
	}
	n, err := h.board.Remove(name, uint32(score))
	if err != nil {
		log.WithError(err).Error("remove highscore")
		http.Error(w, "save failed", http.StatusInternalServerError)
		return
	}
	writeJSON(w, map[string]int{"removed": n})
}

// CORS allows any origin, method and header, as the browser client is
// served from a different host.
func CORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hdr := w.Header()
		hdr.Set("Access-Control-Allow-Origin", "*")
		hdr.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		hdr.Set("Access-Control-Allow-Headers", "*")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
