package cache

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	bucketEntries = "entries"
	openTimeout   = 2 * time.Second
)

// ErrEmptyPath is returned by OpenStore for an empty path.
var ErrEmptyPath = errors.New("cache: empty store path")

// Store persists cache entries in a bbolt database so a restarted proxy
// starts warm.
type Store struct {
	db *bolt.DB
}

// OpenStore opens or creates the database at path.
func OpenStore(path string) (*Store, error) {
	if path == "" {
		return nil, ErrEmptyPath
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: openTimeout})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucketEntries))
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// Save replaces the stored entries with the current contents of c.
// Entries are written least recently used first so Load rebuilds the
// same order.
func (s *Store) Save(c *Cache) (int, error) {
	records := c.snapshot()
	err := s.db.Update(func(tx *bolt.Tx) error {
		if err := tx.DeleteBucket([]byte(bucketEntries)); err != nil && !errors.Is(err, bolt.ErrBucketNotFound) {
			return err
		}
		b, err := tx.CreateBucket([]byte(bucketEntries))
		if err != nil {
			return err
		}
		for i, r := range records {
			val, err := json.Marshal(r)
			if err != nil {
				return err
			}
			if err := b.Put(seqKey(uint64(i)), val); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Load inserts the stored entries into c, skipping expired ones and
// records that fail to decode. It returns the number restored.
func (s *Store) Load(c *Cache) (int, error) {
	var records []record
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(bucketEntries))
		if b == nil {
			return nil
		}
		return b.ForEach(func(_, v []byte) error {
			var r record
			if err := json.Unmarshal(v, &r); err != nil {
				return nil
			}
			records = append(records, r)
			return nil
		})
	})
	if err != nil {
		return 0, err
	}

	restored := 0
	for _, r := range records {
		if c.restore(r) {
			restored++
		}
	}
	return restored, nil
}

func seqKey(i uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], i)
	return b[:]
}
