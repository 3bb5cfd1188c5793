// Package leads remembers every user who talked to the bot so operators can broadcast to them.
package leads

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Store persists lead ids.
type Store interface {
	Load(ctx context.Context) ([]int64, error)
	Put(ctx context.Context, userID int64) error
}

// FileStore keeps ids as a JSON array in a single file.
type FileStore struct {
	path string

	mu  sync.Mutex
	ids map[int64]struct{}
}

// NewFileStore returns a store backed by path. The file is created on first Put.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path, ids: map[int64]struct{}{}}
}

// Load reads the file. A missing file yields no ids.
func (s *FileStore) Load(context.Context) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read leads file: %w", err)
	}
	var ids []int64
	if len(data) > 0 {
		if err := json.Unmarshal(data, &ids); err != nil {
			return nil, fmt.Errorf("parse leads file: %w", err)
		}
	}
	for _, id := range ids {
		s.ids[id] = struct{}{}
	}
	return ids, nil
}

// Put adds userID and rewrites the file atomically.
func (s *FileStore) Put(_ context.Context, userID int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ids[userID]; ok {
		return nil
	}
	s.ids[userID] = struct{}{}

	ids := make([]int64, 0, len(s.ids))
	for id := range s.ids {
		ids = append(ids, id)
	}
	sortIDs(ids)
	data, err := json.Marshal(ids)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create leads dir: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write leads file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace leads file: %w", err)
	}
	return nil
}

// PostgresStore keeps ids in the lead_recipients table.
type PostgresStore struct {
	db *sqlx.DB
}

// NewPostgresStore wraps an open connection; the schema comes from the migrations.
func NewPostgresStore(db *sqlx.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Load returns every stored id.
func (s *PostgresStore) Load(ctx context.Context) ([]int64, error) {
	var ids []int64
	if err := s.db.SelectContext(ctx, &ids, `SELECT user_id FROM lead_recipients ORDER BY user_id`); err != nil {
		return nil, fmt.Errorf("select leads: %w", err)
	}
	return ids, nil
}

// Put inserts userID once.
func (s *PostgresStore) Put(ctx context.Context, userID int64) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lead_recipients (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`, userID)
	if err != nil {
		return fmt.Errorf("insert lead: %w", err)
	}
	return nil
}
