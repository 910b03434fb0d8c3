package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketEntries = []byte("entries")
	bucketStates  = []byte("states")
)

// BoltStore implements Store using BoltDB.
type BoltStore struct {
	db *bolt.DB
}

// NewBoltStore opens or creates a BoltDB database.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w", err)
	}

	// Create buckets
	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketEntries, bucketStates} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &BoltStore{db: db}, nil
}

func (s *BoltStore) SaveEntry(e *Entry) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketEntries, e.ID, e)
	})
}

func (s *BoltStore) GetEntry(id string) (*Entry, error) {
	var e Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx, bucketEntries, id, &e)
	})
	if err != nil {
		return nil, fmt.Errorf("entry %s: %w", id, err)
	}
	return &e, nil
}

func (s *BoltStore) UpdateEntry(id string, fn func(e *Entry) error) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var e Entry
		if err := getJSON(tx, bucketEntries, id, &e); err != nil {
			return fmt.Errorf("entry %s: %w", id, err)
		}
		if err := fn(&e); err != nil {
			return err
		}
		e.ID = id
		return putJSON(tx, bucketEntries, id, &e)
	})
}

func (s *BoltStore) DeleteEntry(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketEntries)
		}
		return b.Delete([]byte(id))
	})
}

func (s *BoltStore) ListEntries() ([]*Entry, error) {
	var entries []*Entry
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketEntries)
		if b == nil {
			return nil // no bucket = no entries
		}
		entries = make([]*Entry, 0, b.Stats().KeyN)
		return b.ForEach(func(k, v []byte) error {
			var e Entry
			if err := json.Unmarshal(v, &e); err != nil {
				return fmt.Errorf("entry %s: %w", k, err)
			}
			entries = append(entries, &e)
			return nil
		})
	})
	return entries, err
}

func (s *BoltStore) SaveState(st *LightState) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx, bucketStates, st.EntityID, st)
	})
}

func (s *BoltStore) GetState(entityID string) (*LightState, error) {
	var st LightState
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx, bucketStates, entityID, &st)
	})
	if err != nil {
		return nil, fmt.Errorf("state %s: %w", entityID, err)
	}
	return &st, nil
}

func (s *BoltStore) DeleteState(entityID string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketStates)
		if b == nil {
			return fmt.Errorf("bucket %q not found", bucketStates)
		}
		return b.Delete([]byte(entityID))
	})
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func putJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return b.Put([]byte(key), data)
}

func getJSON(tx *bolt.Tx, bucket []byte, key string, v any) error {
	b := tx.Bucket(bucket)
	if b == nil {
		return fmt.Errorf("bucket %q not found", bucket)
	}
	data := b.Get([]byte(key))
	if data == nil {
		return ErrNotFound
	}
	return json.Unmarshal(data, v)
}
