package session

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	bolt "go.etcd.io/bbolt"
)

// Bucket and key names
var (
	bucketSession = []byte("session")
	bucketUI      = []byte("ui")

	keySnapshot = []byte("snapshot")
	keyUIState  = []byte("state")
)

// Store persists session snapshots in a small BoltDB file. Writes go
// through a single background writer so that frequent state changes never
// block the caller; only the most recent value per key is written.
type Store struct {
	db     *bolt.DB
	logger *logrus.Logger

	mu      sync.Mutex
	pending map[string]pendingWrite
	seq     uint64
	wake    chan struct{}
	done    chan struct{}
	closed  bool
	wg      sync.WaitGroup
}

type pendingWrite struct {
	bucket []byte
	key    []byte
	value  []byte // nil means delete
	seq    uint64
}

// NewStore opens (creating if needed) the session database at path.
func NewStore(path string, logger *logrus.Logger) (*Store, error) {
	if logger == nil {
		logger = logrus.New()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create session directory: %w", err)
	}

	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open session store: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketSession, bucketUI} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &Store{
		db:      db,
		logger:  logger,
		pending: make(map[string]pendingWrite),
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	s.wg.Add(1)
	go s.writeLoop()
	return s, nil
}

// SaveSnapshot queues the snapshot for persistence.
func (s *Store) SaveSnapshot(snapshot Snapshot) error {
	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	s.enqueue(bucketSession, keySnapshot, data)
	return nil
}

// LoadSnapshot reads the persisted snapshot. Returns false when none exists.
func (s *Store) LoadSnapshot() (Snapshot, bool, error) {
	data, err := s.read(bucketSession, keySnapshot)
	if err != nil || data == nil {
		return Snapshot{}, false, err
	}

	var snapshot Snapshot
	if err := json.Unmarshal(data, &snapshot); err != nil {
		return Snapshot{}, false, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	return snapshot, true, nil
}

// ClearSnapshot removes any persisted snapshot.
func (s *Store) ClearSnapshot() {
	s.enqueue(bucketSession, keySnapshot, nil)
}

// SaveUIState queues the lightweight UI state record.
func (s *Store) SaveUIState(state UIState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to encode UI state: %w", err)
	}
	s.enqueue(bucketUI, keyUIState, data)
	return nil
}

// LoadUIState reads the persisted UI state. Returns false when none exists.
func (s *Store) LoadUIState() (UIState, bool, error) {
	data, err := s.read(bucketUI, keyUIState)
	if err != nil || data == nil {
		return UIState{}, false, err
	}

	var state UIState
	if err := json.Unmarshal(data, &state); err != nil {
		return UIState{}, false, fmt.Errorf("failed to decode UI state: %w", err)
	}
	return state, true, nil
}

// Flush blocks until every queued write has reached disk.
func (s *Store) Flush() {
	for {
		s.mu.Lock()
		empty := len(s.pending) == 0
		s.mu.Unlock()
		if empty {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
}

// Close flushes queued writes and closes the database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.done)
	s.wg.Wait()
	return s.db.Close()
}

// enqueue records a write, replacing any older queued write for the same
// key. Sequence numbers keep replacement strictly latest-wins even while
// the writer is mid-flight.
func (s *Store) enqueue(bucket, key, value []byte) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.seq++
	s.pending[string(bucket)+"/"+string(key)] = pendingWrite{
		bucket: bucket,
		key:    key,
		value:  value,
		seq:    s.seq,
	}
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// read performs a synchronous read, preferring a queued-but-unwritten value
// so callers always see their own writes.
func (s *Store) read(bucket, key []byte) ([]byte, error) {
	lookup := string(bucket) + "/" + string(key)
	s.mu.Lock()
	if write, ok := s.pending[lookup]; ok {
		value := append([]byte(nil), write.value...)
		s.mu.Unlock()
		if write.value == nil {
			return nil, nil
		}
		return value, nil
	}
	s.mu.Unlock()

	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		stored := tx.Bucket(bucket).Get(key)
		if stored != nil {
			data = append([]byte(nil), stored...)
		}
		return nil
	})
	return data, err
}

// writeLoop drains queued writes in batches until Close.
func (s *Store) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case <-s.wake:
			s.drain()
		case <-s.done:
			s.drain()
			return
		}
	}
}

// drain writes every currently queued value, skipping entries that were
// superseded while the transaction ran.
func (s *Store) drain() {
	for {
		s.mu.Lock()
		if len(s.pending) == 0 {
			s.mu.Unlock()
			return
		}
		batch := make([]pendingWrite, 0, len(s.pending))
		for _, write := range s.pending {
			batch = append(batch, write)
		}
		s.mu.Unlock()

		err := s.db.Update(func(tx *bolt.Tx) error {
			for _, write := range batch {
				b := tx.Bucket(write.bucket)
				if write.value == nil {
					if err := b.Delete(write.key); err != nil {
						return err
					}
					continue
				}
				if err := b.Put(write.key, write.value); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			s.logger.WithError(err).Error("Failed to persist session data")
			// Drop the batch rather than spin on a broken database.
		}

		s.mu.Lock()
		for _, write := range batch {
			lookup := string(write.bucket) + "/" + string(write.key)
			if current, ok := s.pending[lookup]; ok && current.seq == write.seq {
				delete(s.pending, lookup)
			}
		}
		s.mu.Unlock()
	}
}
