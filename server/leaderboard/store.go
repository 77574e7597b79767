package leaderboard

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"

	"tetris/shared/protocol"
)

// Store persists the whole board as one document.
type Store interface {
	Load() ([]protocol.LeaderboardEntry, error)
	Save(entries []protocol.LeaderboardEntry) error
	Close() error
}

var (
	bucketName = []byte("leaderboard")
	boardKey   = []byte("b")
)

// BoltStore keeps the board in a bbolt file.
type BoltStore struct {
	db *bolt.DB
}

func OpenBolt(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open leaderboard store %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create leaderboard bucket: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Load() ([]protocol.LeaderboardEntry, error) {
	var entries []protocol.LeaderboardEntry
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketName).Get(boardKey)
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &entries)
	})
	if err != nil {
		return nil, fmt.Errorf("load leaderboard: %w", err)
	}
	return entries, nil
}

func (s *BoltStore) Save(entries []protocol.LeaderboardEntry) error {
	b, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketName).Put(boardKey, b)
	})
	if err != nil {
		return fmt.Errorf("save leaderboard: %w", err)
	}
	return nil
}

func (s *BoltStore) Close() error { return s.db.Close() }

// MemoryStore is a Store without persistence.
type MemoryStore struct {
	mu      sync.Mutex
	entries []protocol.LeaderboardEntry
	saves   int
}

func (s *MemoryStore) Load() ([]protocol.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.LeaderboardEntry(nil), s.entries...), nil
}

func (s *MemoryStore) Save(entries []protocol.LeaderboardEntry) error {
	s.mu.Lock()
	s.entries = append([]protocol.LeaderboardEntry(nil), entries...)
	s.saves++
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Close() error { return nil }
