package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"storyweaver/internal/logging"
	"storyweaver/internal/types"
)

// Collection names a flat keyed set of JSON records.
type Collection string

const (
	Stories Collection = "stories"
	Assets  Collection = "assets"
)

const settingsKey = "app"

// ErrUnknownCollection is returned for a collection the schema does not define.
var ErrUnknownCollection = errors.New("unknown collection")

// LocalStore persists stories, assets and the settings blob in SQLite.
// Records are stored whole as JSON keyed by id; a put is an upsert.
type LocalStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewLocalStore initializes the SQLite database at the given path.
func NewLocalStore(path string) (*LocalStore, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// A single connection keeps :memory: databases coherent and serializes writers.
	db.SetMaxOpenConns(1)

	if _, err := RunMigrations(context.Background(), db); err != nil {
		db.Close()
		return nil, err
	}

	logging.Store("Opened store at %s", path)
	return &LocalStore{db: db, dbPath: path}, nil
}

// Close closes the database.
func (s *LocalStore) Close() error {
	return s.db.Close()
}

// Path returns the database path.
func (s *LocalStore) Path() string {
	return s.dbPath
}

// GetAll returns every raw record of a collection.
func (s *LocalStore) GetAll(ctx context.Context, c Collection) ([]json.RawMessage, error) {
	if err := c.validate(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, fmt.Sprintf("SELECT data FROM %s", c))
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c, err)
	}
	defer rows.Close()

	var out []json.RawMessage
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, fmt.Errorf("failed to scan %s row: %w", c, err)
		}
		out = append(out, json.RawMessage(data))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", c, err)
	}
	logging.StoreDebug("GetAll(%s): %d records", c, len(out))
	return out, nil
}

// Put upserts a record keyed by id.
func (s *LocalStore) Put(ctx context.Context, c Collection, id string, record any) error {
	if err := c.validate(); err != nil {
		return err
	}
	if id == "" {
		return fmt.Errorf("put %s: empty id", c)
	}
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to encode %s record %s: %w", c, id, err)
	}

	var query string
	var args []any
	switch c {
	case Stories:
		var sortKey int64
		if st, ok := record.(*types.Story); ok {
			sortKey = st.UpdatedAt
		}
		query = `INSERT INTO stories (id, data, updated_at) VALUES (?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, updated_at = excluded.updated_at`
		args = []any{id, string(data), sortKey}
	case Assets:
		var created int64
		var storyID string
		if a, ok := record.(*types.Asset); ok {
			created, storyID = a.CreatedAt, a.StoryID
		}
		query = `INSERT INTO assets (id, data, created_at, story_id) VALUES (?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET data = excluded.data, created_at = excluded.created_at, story_id = excluded.story_id`
		args = []any{id, string(data), created, storyID}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		logging.StoreError("Put(%s, %s) failed: %v", c, id, err)
		return fmt.Errorf("failed to write %s record %s: %w", c, id, err)
	}
	logging.StoreDebug("Put(%s, %s): %d bytes", c, id, len(data))
	return nil
}

// Delete removes a record by id. Deleting a missing id is not an error.
func (s *LocalStore) Delete(ctx context.Context, c Collection, id string) error {
	if err := c.validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = ?", c), id); err != nil {
		logging.StoreError("Delete(%s, %s) failed: %v", c, id, err)
		return fmt.Errorf("failed to delete %s record %s: %w", c, id, err)
	}
	logging.StoreDebug("Delete(%s, %s)", c, id)
	return nil
}

// LoadStories decodes every story. Undecodable rows are skipped and logged.
func (s *LocalStore) LoadStories(ctx context.Context) ([]*types.Story, error) {
	raw, err := s.GetAll(ctx, Stories)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Story, 0, len(raw))
	for _, r := range raw {
		var st types.Story
		if err := json.Unmarshal(r, &st); err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping undecodable story: %v", err)
			continue
		}
		if st.Conversation == nil {
			st.Conversation = []types.Turn{}
		}
		out = append(out, &st)
	}
	return out, nil
}

// PutStory upserts a story.
func (s *LocalStore) PutStory(ctx context.Context, st *types.Story) error {
	return s.Put(ctx, Stories, st.ID, st)
}

// DeleteStory removes a story.
func (s *LocalStore) DeleteStory(ctx context.Context, id string) error {
	return s.Delete(ctx, Stories, id)
}

// LoadAssets decodes every asset. Undecodable rows are skipped and logged.
func (s *LocalStore) LoadAssets(ctx context.Context) ([]*types.Asset, error) {
	raw, err := s.GetAll(ctx, Assets)
	if err != nil {
		return nil, err
	}
	out := make([]*types.Asset, 0, len(raw))
	for _, r := range raw {
		var a types.Asset
		if err := json.Unmarshal(r, &a); err != nil {
			logging.Get(logging.CategoryStore).Warn("Skipping undecodable asset: %v", err)
			continue
		}
		out = append(out, &a)
	}
	return out, nil
}

// PutAsset upserts an asset.
func (s *LocalStore) PutAsset(ctx context.Context, a *types.Asset) error {
	return s.Put(ctx, Assets, a.ID, a)
}

// DeleteAsset removes an asset.
func (s *LocalStore) DeleteAsset(ctx context.Context, id string) error {
	return s.Delete(ctx, Assets, id)
}

// LoadSettings returns the persisted settings blob, or nil when none was saved.
func (s *LocalStore) LoadSettings(ctx context.Context) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var value string
	err := s.db.QueryRowContext(ctx, "SELECT value FROM settings WHERE key = ?", settingsKey).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read settings: %w", err)
	}
	return []byte(value), nil
}

// SaveSettings replaces the settings blob in one statement.
func (s *LocalStore) SaveSettings(ctx context.Context, blob []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO settings (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		settingsKey, string(blob))
	if err != nil {
		logging.StoreError("SaveSettings failed: %v", err)
		return fmt.Errorf("failed to write settings: %w", err)
	}
	return nil
}

func (c Collection) validate() error {
	switch c {
	case Stories, Assets:
		return nil
	}
	return fmt.Errorf("%w: %q", ErrUnknownCollection, string(c))
}
