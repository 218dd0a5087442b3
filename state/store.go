// Package state owns everything that must survive a process restart: the
// global URL registry, the persisted keyword store, and per-topic
// checkpoints. All of it lives in a single bbolt database plus atomic
// JSON exports for downstream consumers.
package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketURLs        = []byte("urls")
	bucketKeywords    = []byte("keywords")
	bucketCheckpoints = []byte("checkpoints")

	keywordsKey = []byte("global")
)

// CorruptError means persisted state failed to parse. It is fatal for the
// run: learned state must never be silently reset.
type CorruptError struct {
	What string
	Err  error
}

func (e *CorruptError) Error() string {
	return fmt.Sprintf("persisted %s is corrupt: %v", e.What, e.Err)
}

func (e *CorruptError) Unwrap() error { return e.Err }

// Checkpoint is the durable progress marker for one topic run.
type Checkpoint struct {
	Topic         string    `json:"topic"`
	Cursor        string    `json:"cursor"`
	AcceptedCount int       `json:"accepted_count"`
	Timestamp     time.Time `json:"timestamp"`
}

// Store wraps the bbolt database holding registry, keywords and
// checkpoints. Safe for concurrent use; bbolt serializes writes.
type Store struct {
	db     *bolt.DB
	logger *zap.Logger
}

// Open creates or opens the state database, creating parent directories
// and buckets as needed.
func Open(path string, logger *zap.Logger) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create state directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketURLs, bucketKeywords, bucketCheckpoints} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create buckets: %w", err)
	}

	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SeenURL reports whether the canonical form of url is already
// registered. Checked before any expensive scoring.
func (s *Store) SeenURL(rawURL string) (bool, error) {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return false, err
	}

	var seen bool
	err = s.db.View(func(tx *bolt.Tx) error {
		seen = tx.Bucket(bucketURLs).Get([]byte(canonical)) != nil
		return nil
	})
	return seen, err
}

// RegisterURL records the canonical form of url as emitted. Registering
// the same URL twice is a no-op.
func (s *Store) RegisterURL(rawURL string) error {
	canonical, err := CanonicalURL(rawURL)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketURLs).Put([]byte(canonical), []byte("1"))
	})
}

// URLCount returns the registry size.
func (s *Store) URLCount() (int, error) {
	var n int
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(bucketURLs).Stats().KeyN
		return nil
	})
	return n, err
}

// ExportURLs returns every canonical URL in the registry.
func (s *Store) ExportURLs() ([]string, error) {
	var urls []string
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketURLs).ForEach(func(k, _ []byte) error {
			urls = append(urls, string(k))
			return nil
		})
	})
	return urls, err
}

// SaveKeywords persists the keyword->weight mapping.
func (s *Store) SaveKeywords(weights map[string]float64) error {
	data, err := json.Marshal(weights)
	if err != nil {
		return fmt.Errorf("failed to marshal keywords: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketKeywords).Put(keywordsKey, data)
	})
}

// LoadKeywords returns the persisted keyword mapping, empty when none has
// been saved yet. A value that fails to parse is a CorruptError.
func (s *Store) LoadKeywords() (map[string]float64, error) {
	weights := make(map[string]float64)
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketKeywords).Get(keywordsKey)
		if data == nil {
			return nil
		}
		if err := json.Unmarshal(data, &weights); err != nil {
			return &CorruptError{What: "keyword store", Err: err}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return weights, nil
}

// SaveCheckpoint stores the progress marker for a topic, overwriting any
// previous one.
func (s *Store) SaveCheckpoint(cp Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketCheckpoints).Put([]byte(cp.Topic), data)
	})
}

// LoadCheckpoint returns the last checkpoint for a topic, nil when the
// topic has never been checkpointed. A value that fails to parse is a
// CorruptError.
func (s *Store) LoadCheckpoint(topic string) (*Checkpoint, error) {
	var cp *Checkpoint
	err := s.db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCheckpoints).Get([]byte(topic))
		if data == nil {
			return nil
		}
		var decoded Checkpoint
		if err := json.Unmarshal(data, &decoded); err != nil {
			return &CorruptError{What: "checkpoint for topic " + topic, Err: err}
		}
		cp = &decoded
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cp, nil
}
