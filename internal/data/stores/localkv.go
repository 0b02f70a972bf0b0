package stores

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/campusclub/livefeed/internal/data/db"
)

// LocalKVStore persists string values keyed by name in the local database.
// It backs mark sets and user preferences, so values survive restarts.
type LocalKVStore struct {
	db *db.DB
}

func NewLocalKVStore(database *db.DB) *LocalKVStore {
	return &LocalKVStore{db: database}
}

// GetString returns the stored value for key. The second return value is
// false when the key has never been written.
func (s *LocalKVStore) GetString(ctx context.Context, key string) (string, bool, error) {
	var value string
	err := s.db.Conn().QueryRowContext(ctx,
		`SELECT value FROM local_kv WHERE key = ?`, key).Scan(&value)
	if IsNotFoundError(err) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get key %q: %w", key, err)
	}
	return value, true, nil
}

// SetString writes value under key, replacing any previous value.
func (s *LocalKVStore) SetString(ctx context.Context, key, value string) error {
	now := time.Now().UnixMilli()
	_, err := s.db.Conn().ExecContext(ctx,
		`INSERT INTO local_kv (key, value, created_at, updated_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET
		   value = excluded.value,
		   updated_at = excluded.updated_at`,
		key, value, now, now)
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting a missing key is not an error.
func (s *LocalKVStore) Delete(ctx context.Context, key string) error {
	_, err := s.db.Conn().ExecContext(ctx, `DELETE FROM local_kv WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}

// Keys returns every stored key, sorted.
func (s *LocalKVStore) Keys(ctx context.Context) ([]string, error) {
	rows, err := s.db.Conn().QueryContext(ctx, `SELECT key FROM local_kv ORDER BY key`)
	if err != nil {
		return nil, fmt.Errorf("failed to list keys: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var keys []string
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("failed to scan key: %w", err)
		}
		keys = append(keys, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate keys: %w", err)
	}
	return keys, nil
}

// MigrateFromJSON imports a legacy marks.json file into the store. Earlier
// releases kept read/dismissed ids in a flat JSON object of key -> id list.
// The file is renamed after a successful import so migration runs once.
func (s *LocalKVStore) MigrateFromJSON(ctx context.Context, dataDir string) error {
	jsonPath := filepath.Join(dataDir, "marks.json")
	data, err := os.ReadFile(jsonPath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read legacy marks file: %w", err)
	}

	var legacy map[string][]string
	if err := json.Unmarshal(data, &legacy); err != nil {
		return fmt.Errorf("failed to parse legacy marks file: %w", err)
	}

	err = s.db.WithTx(ctx, func(tx *sql.Tx) error {
		now := time.Now().UnixMilli()
		for key, ids := range legacy {
			sort.Strings(ids)
			value, err := json.Marshal(ids)
			if err != nil {
				return fmt.Errorf("failed to encode ids for %q: %w", key, err)
			}
			_, err = tx.ExecContext(ctx,
				`INSERT INTO local_kv (key, value, created_at, updated_at)
				 VALUES (?, ?, ?, ?)
				 ON CONFLICT(key) DO NOTHING`,
				key, string(value), now, now)
			if err != nil {
				return fmt.Errorf("failed to import key %q: %w", key, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if err := os.Rename(jsonPath, jsonPath+".migrated"); err != nil {
		return fmt.Errorf("failed to archive legacy marks file: %w", err)
	}
	return nil
}
