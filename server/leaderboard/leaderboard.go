// Package leaderboard keeps the ordered highscore list.
package leaderboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	log "github.com/sirupsen/logrus"

	"tetris/server/metrics"
	"tetris/shared/protocol"
)

var (
	ErrUnauthorized = errors.New("highscore token rejected")
	ErrEasyMode     = errors.New("games in easy mode are not eligible for a highscore")
	ErrNameTooLong  = errors.New("name is too long")
	ErrEmptyName    = errors.New("name is empty")
)

// Verifier checks the token attached to a submission.
type Verifier interface {
	VerifyHighscore(req protocol.HighscoreReq) error
}

type Board struct {
	mu       sync.RWMutex
	entries  []protocol.LeaderboardEntry // ascending, no two equal
	store    Store
	verifier Verifier
}

// Open loads the board from store.
func Open(store Store, v Verifier) (*Board, error) {
	entries, err := store.Load()
	if err != nil {
		return nil, err
	}
	b := &Board{store: store, verifier: v, entries: normalize(entries)}
	log.WithField("entries", len(b.entries)).Info("leaderboard loaded")
	return b, nil
}

// normalize sorts entries ascending and drops duplicates.
func normalize(entries []protocol.LeaderboardEntry) []protocol.LeaderboardEntry {
	out := append([]protocol.LeaderboardEntry(nil), entries...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Less(out[j]) })
	n := 0
	for i, e := range out {
		if i > 0 && !out[n-1].Less(e) {
			continue
		}
		out[n] = e
		n++
	}
	return out[:n]
}

// Add validates a submission and inserts it. Resubmitting an entry that is
// already on the board succeeds without changing it.
func (b *Board) Add(req protocol.HighscoreReq) error {
	if err := b.verifier.VerifyHighscore(req); err != nil {
		metrics.HighscoresRejected.WithLabelValues("token").Inc()
		return fmt.Errorf("%w: %w", ErrUnauthorized, err)
	}
	if req.Settings.Easy {
		metrics.HighscoresRejected.WithLabelValues("easy").Inc()
		return ErrEasyMode
	}
	if len(req.Name) > protocol.MaxNameLen {
		metrics.HighscoresRejected.WithLabelValues("name_length").Inc()
		return ErrNameTooLong
	}
	if strings.TrimSpace(req.Name) == "" {
		metrics.HighscoresRejected.WithLabelValues("name_empty").Inc()
		return ErrEmptyName
	}

	e := protocol.EntryFromRequest(req)

	b.mu.Lock()
	defer b.mu.Unlock()
	i := sort.Search(len(b.entries), func(i int) bool { return !b.entries[i].Less(e) })
	if i < len(b.entries) && !e.Less(b.entries[i]) {
		return nil
	}
	next := make([]protocol.LeaderboardEntry, 0, len(b.entries)+1)
	next = append(next, b.entries[:i]...)
	next = append(next, e)
	next = append(next, b.entries[i:]...)
	if err := b.store.Save(next); err != nil {
		return err
	}
	b.entries = next
	metrics.HighscoresAccepted.Inc()
	log.WithFields(log.Fields{"name": e.Name, "score": e.Score, "mode": e.Mode}).Info("highscore added")
	return nil
}

// List returns the board, best entry first.
func (b *Board) List() []protocol.LeaderboardEntry {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]protocol.LeaderboardEntry, len(b.entries))
	for i, e := range b.entries {
		out[len(out)-1-i] = e
	}
	return out
}

// Remove deletes every entry with the given name and score and returns
// how many were removed.
func (b *Board) Remove(name string, score uint32) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	next := make([]protocol.LeaderboardEntry, 0, len(b.entries))
	for _, e := range b.entries {
		if e.Name == name && e.Score == score {
			continue
		}
		next = append(next, e)
	}
	removed := len(b.entries) - len(next)
	if removed == 0 {
		return 0, nil
	}
	if err := b.store.Save(next); err != nil {
		return 0, err
	}
	b.entries = next
	log.WithFields(log.Fields{"name": name, "score": score, "removed": removed}).Info("highscore removed")
	return removed, nil
}

// ImportFile replaces the stored board with the JSON array in path.
func ImportFile(store Store, path string) (int, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var entries []protocol.LeaderboardEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return 0, fmt.Errorf("parse %s: %w", path, err)
	}
	entries = normalize(entries)
	if err := store.Save(entries); err != nil {
		return 0, err
	}
	return len(entries), nil
}
