// Package transcript records captured event streams in a local bbolt file so
// they can be listed and replayed by the CLI.
package transcript

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"
)

const (
	bucketMeta = "transcripts"
	bucketRaw  = "raw"
)

// ErrNotFound is returned for unknown transcript IDs.
var ErrNotFound = errors.New("transcript not found")

// Transcript is one recorded stream and the outcome of consuming it. Raw is
// stored in its own bucket and only loaded by Get.
type Transcript struct {
	ID           string          `json:"id"`
	Source       string          `json:"source"`
	CreatedAt    time.Time       `json:"createdAt"`
	ChunkSize    int             `json:"chunkSize"`
	TokenPatches bool            `json:"tokenPatches,omitempty"`
	Outcome      string          `json:"outcome"`
	Terminated   bool            `json:"terminated"`
	Tokens       int             `json:"tokens"`
	Patches      int             `json:"patches"`
	PatchErrors  int             `json:"patchErrors"`
	Malformed    int             `json:"malformed"`
	Bytes        int64           `json:"bytes"`
	Text         string          `json:"text,omitempty"`
	Tree         json.RawMessage `json:"tree,omitempty"`
	Raw          []byte          `json:"-"`
}

// Store is a bbolt-backed transcript archive.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the archive at path.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open transcripts %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketMeta, bucketRaw} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the file lock.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put stores t, assigning an ID and timestamp when missing.
func (s *Store) Put(t *Transcript) error {
	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	meta, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.Bucket([]byte(bucketMeta)).Put([]byte(t.ID), meta); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketRaw)).Put([]byte(t.ID), t.Raw)
	})
}

// Get loads a transcript including its raw bytes. A unique ID prefix is
// accepted.
func (s *Store) Get(id string) (*Transcript, error) {
	var t Transcript
	err := s.db.View(func(tx *bolt.Tx) error {
		key, meta, err := lookup(tx.Bucket([]byte(bucketMeta)), id)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(meta, &t); err != nil {
			return fmt.Errorf("decode transcript %s: %w", key, err)
		}
		raw := tx.Bucket([]byte(bucketRaw)).Get(key)
		t.Raw = append([]byte(nil), raw...)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func lookup(b *bolt.Bucket, id string) ([]byte, []byte, error) {
	if v := b.Get([]byte(id)); v != nil {
		return []byte(id), v, nil
	}
	if id == "" {
		return nil, nil, ErrNotFound
	}
	var key, val []byte
	c := b.Cursor()
	prefix := []byte(id)
	for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == id; k, v = c.Next() {
		if key != nil {
			return nil, nil, fmt.Errorf("transcript prefix %q is ambiguous", id)
		}
		key, val = append([]byte(nil), k...), v
	}
	if key == nil {
		return nil, nil, ErrNotFound
	}
	return key, val, nil
}

// List returns every transcript without raw bytes, newest first.
func (s *Store) List() ([]Transcript, error) {
	var out []Transcript
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket([]byte(bucketMeta)).ForEach(func(k, v []byte) error {
			var t Transcript
			if err := json.Unmarshal(v, &t); err != nil {
				return fmt.Errorf("decode transcript %s: %w", k, err)
			}
			out = append(out, t)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Delete removes a transcript. Unknown IDs return ErrNotFound.
func (s *Store) Delete(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		key, _, err := lookup(tx.Bucket([]byte(bucketMeta)), id)
		if err != nil {
			return err
		}
		if err := tx.Bucket([]byte(bucketMeta)).Delete(key); err != nil {
			return err
		}
		return tx.Bucket([]byte(bucketRaw)).Delete(key)
	})
}
