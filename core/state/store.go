package state

import (
	"errors"
	"fmt"
	"sort"

	"genproxy/storage"
)

// Store is a journaled write-back cache over a storage.Database. Writes stay in
// memory until Commit; Snapshot/RevertToSnapshot undo writes made after the
// snapshot was taken, which is how a failed operation discards every effect it
// produced.
//
// Store is not safe for concurrent use.
type Store struct {
	db      storage.Database
	dirty   map[string]entry
	journal []journalEntry
}

type entry struct {
	value   []byte
	deleted bool
}

type journalEntry struct {
	key     string
	prev    entry
	hadPrev bool
}

// NewStore wraps db. A nil db yields an in-memory store.
func NewStore(db storage.Database) *Store {
	if db == nil {
		db = storage.NewMemDB()
	}
	return &Store{db: db, dirty: make(map[string]entry)}
}

// Get returns the value for key, or nil when the key does not exist.
func (s *Store) Get(key []byte) ([]byte, error) {
	if len(key) == 0 {
		return nil, fmt.Errorf("state: key must not be empty")
	}
	if cached, ok := s.dirty[string(key)]; ok {
		if cached.deleted {
			return nil, nil
		}
		return append([]byte(nil), cached.value...), nil
	}
	value, err := s.db.Get(key)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// Set stages value under key.
func (s *Store) Set(key, value []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	s.record(string(key))
	s.dirty[string(key)] = entry{value: append([]byte(nil), value...)}
	return nil
}

// Delete stages the removal of key.
func (s *Store) Delete(key []byte) error {
	if len(key) == 0 {
		return fmt.Errorf("state: key must not be empty")
	}
	s.record(string(key))
	s.dirty[string(key)] = entry{deleted: true}
	return nil
}

func (s *Store) record(key string) {
	prev, ok := s.dirty[key]
	s.journal = append(s.journal, journalEntry{key: key, prev: prev, hadPrev: ok})
}

// Snapshot returns an identifier for the current journal position.
func (s *Store) Snapshot() int {
	return len(s.journal)
}

// RevertToSnapshot undoes every write recorded after the snapshot.
func (s *Store) RevertToSnapshot(id int) {
	if id < 0 {
		id = 0
	}
	for i := len(s.journal) - 1; i >= id; i-- {
		change := s.journal[i]
		if change.hadPrev {
			s.dirty[change.key] = change.prev
		} else {
			delete(s.dirty, change.key)
		}
	}
	if id < len(s.journal) {
		s.journal = s.journal[:id]
	}
}

// Pending reports how many keys are staged but not yet committed.
func (s *Store) Pending() int {
	return len(s.dirty)
}

// Commit flushes staged writes to the database in one atomic batch and clears
// the journal.
func (s *Store) Commit() error {
	if len(s.dirty) == 0 {
		s.journal = s.journal[:0]
		return nil
	}
	keys := make([]string, 0, len(s.dirty))
	for k := range s.dirty {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	ops := make([]storage.Op, 0, len(keys))
	for _, k := range keys {
		change := s.dirty[k]
		ops = append(ops, storage.Op{Key: []byte(k), Value: change.value, Delete: change.deleted})
	}
	if err := s.db.Write(ops); err != nil {
		return fmt.Errorf("state: commit: %w", err)
	}
	s.dirty = make(map[string]entry)
	s.journal = s.journal[:0]
	return nil
}

// Discard drops every staged write.
func (s *Store) Discard() {
	s.dirty = make(map[string]entry)
	s.journal = s.journal[:0]
}
