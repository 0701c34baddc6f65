package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// PluginStore is a namespaced key-value bag for plugin state that has to
// survive restarts.
type PluginStore struct {
	db     *DB
	plugin string
}

// NewPluginStore creates a key-value store scoped to one plugin name.
func NewPluginStore(db *DB, plugin string) *PluginStore {
	return &PluginStore{db: db, plugin: plugin}
}

// Get returns the stored value and whether the key exists.
func (s *PluginStore) Get(key string) (string, bool, error) {
	var value string
	err := s.db.sql.QueryRow(
		`SELECT value FROM plugin_data WHERE plugin = ? AND key = ?`,
		s.plugin, key,
	).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("reading %s/%s: %w", s.plugin, key, err)
	}
	return value, true, nil
}

// Set stores or overwrites a value.
func (s *PluginStore) Set(key, value string) error {
	_, err := s.db.sql.Exec(
		`INSERT INTO plugin_data (plugin, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(plugin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.plugin, key, value, time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return fmt.Errorf("writing %s/%s: %w", s.plugin, key, err)
	}
	return nil
}

// Delete removes a key. Deleting a missing key is not an error.
func (s *PluginStore) Delete(key string) error {
	_, err := s.db.sql.Exec(
		`DELETE FROM plugin_data WHERE plugin = ? AND key = ?`,
		s.plugin, key,
	)
	if err != nil {
		return fmt.Errorf("deleting %s/%s: %w", s.plugin, key, err)
	}
	return nil
}

// Incr adds delta to a numeric value, creating it at delta when absent,
// and returns the new value.
func (s *PluginStore) Incr(key string, delta int64) (int64, error) {
	tx, err := s.db.sql.Begin()
	if err != nil {
		return 0, fmt.Errorf("incr %s/%s: %w", s.plugin, key, err)
	}
	defer tx.Rollback()

	var current int64
	var raw string
	err = tx.QueryRow(
		`SELECT value FROM plugin_data WHERE plugin = ? AND key = ?`,
		s.plugin, key,
	).Scan(&raw)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return 0, fmt.Errorf("incr %s/%s: %w", s.plugin, key, err)
	default:
		current, _ = strconv.ParseInt(raw, 10, 64)
	}

	next := current + delta
	_, err = tx.Exec(
		`INSERT INTO plugin_data (plugin, key, value, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(plugin, key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		s.plugin, key, strconv.FormatInt(next, 10), time.Now().UTC().Format(time.DateTime),
	)
	if err != nil {
		return 0, fmt.Errorf("incr %s/%s: %w", s.plugin, key, err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("incr %s/%s: %w", s.plugin, key, err)
	}
	return next, nil
}
