package upgrader

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/apimplane/apim/internal/model"
)

// ErrStatusNotFound is returned when an upgrader never ran.
var ErrStatusNotFound = errors.New("installation status not found")

// Status is the stored outcome of an upgrader.
type Status struct {
	Value     model.InstallationStatus
	Message   string
	UpdatedAt time.Time
}

// InstallationStore keeps upgrader statuses.
type InstallationStore interface {
	Get(ctx context.Context, key string) (*Status, error)
	Set(ctx context.Context, key string, value model.InstallationStatus, message string) error
}

// DBStore keeps statuses in the installation table.
type DBStore struct {
	db *sql.DB
}

var _ InstallationStore = (*DBStore)(nil)

// NewDBStore creates a DBStore. The table is created by the repository migrations.
func NewDBStore(db *sql.DB) (*DBStore, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	return &DBStore{db: db}, nil
}

// Get returns the status stored under key.
func (s *DBStore) Get(ctx context.Context, key string) (*Status, error) {
	var st Status
	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value, message, updated_at FROM installation WHERE key = $1`, key,
	).Scan(&value, &st.Message, &st.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStatusNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get installation status: %w", err)
	}
	st.Value = model.InstallationStatus(value)
	return &st, nil
}

// Set stores a status under key, replacing any previous one.
func (s *DBStore) Set(ctx context.Context, key string, value model.InstallationStatus, message string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO installation (key, value, message, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, message = EXCLUDED.message, updated_at = EXCLUDED.updated_at`,
		key, string(value), message,
	)
	if err != nil {
		return fmt.Errorf("failed to set installation status: %w", err)
	}
	return nil
}

// MemoryStore keeps statuses in memory.
type MemoryStore struct {
	mu       sync.Mutex
	statuses map[string]Status
}

var _ InstallationStore = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{statuses: make(map[string]Status)}
}

func (s *MemoryStore) Get(_ context.Context, key string) (*Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.statuses[key]
	if !ok {
		return nil, ErrStatusNotFound
	}
	return &st, nil
}

func (s *MemoryStore) Set(_ context.Context, key string, value model.InstallationStatus, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.statuses[key] = Status{Value: value, Message: message, UpdatedAt: time.Now().UTC()}
	return nil
}
