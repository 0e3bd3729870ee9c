// Package store persists allocation snapshots in SQLite, keyed by a content
// hash of the instruction sequence so identical inputs share one record.
package store

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/ternvm/tern/alloc"
	"github.com/ternvm/tern/snapshot"
)

// ErrNotFound indicates the requested snapshot doesn't exist.
var ErrNotFound = errors.New("snapshot not found")

// Store handles SQLite storage for allocation snapshots.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// Open opens (and if needed initializes) a snapshot database.
func Open(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS allocations (
		hash TEXT PRIMARY KEY,
		sequence TEXT NOT NULL,
		data BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// SequenceHash computes the content hash identifying an instruction
// sequence: its name plus the rendering of every numbered instruction.
func SequenceHash(seq *alloc.Sequence) string {
	h := sha256.New()
	h.Write([]byte(seq.Name))
	for _, inst := range seq.Instructions {
		h.Write([]byte{0})
		h.Write([]byte(inst.String()))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Save persists an allocation snapshot under the sequence's content hash and
// returns the hash.
func (s *Store) Save(seq *alloc.Sequence, snap *snapshot.Allocation) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := snapshot.MarshalAllocation(snap)
	if err != nil {
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}

	hash := SequenceHash(seq)
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO allocations (hash, sequence, data) VALUES (?, ?, ?)",
		hash, snap.Sequence, data,
	)
	if err != nil {
		return "", fmt.Errorf("saving snapshot: %w", err)
	}
	return hash, nil
}

// Load retrieves the allocation snapshot stored under a hash.
func (s *Store) Load(hash string) (*snapshot.Allocation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var data []byte
	err := s.db.QueryRow("SELECT data FROM allocations WHERE hash = ?", hash).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("%s: %w", hash, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading snapshot: %w", err)
	}
	return snapshot.UnmarshalAllocation(data)
}

// Entry describes one stored snapshot.
type Entry struct {
	Hash     string
	Sequence string
}

// List returns every stored snapshot, ordered by sequence name.
func (s *Store) List() ([]Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.db.Query("SELECT hash, sequence FROM allocations ORDER BY sequence, hash")
	if err != nil {
		return nil, fmt.Errorf("listing snapshots: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.Hash, &e.Sequence); err != nil {
			return nil, fmt.Errorf("scanning snapshot row: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Delete removes a stored snapshot. Deleting a missing hash is not an error.
func (s *Store) Delete(hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec("DELETE FROM allocations WHERE hash = ?", hash); err != nil {
		return fmt.Errorf("deleting snapshot: %w", err)
	}
	return nil
}
