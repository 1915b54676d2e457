package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strconv"
)

const importKeyPrefix = "import:sha256:"

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.Exec(
		`INSERT INTO metadata (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
		key, value,
	); err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}

// GetMetadata returns the value stored under key, or "" when it is unset.
func (s *Store) GetMetadata(key string) (string, error) {
	var value string
	err := s.db.QueryRow(`SELECT value FROM metadata WHERE key = ?`, key).Scan(&value)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	return value, err
}

// ImportedBank returns the id of the question bank created from a file with
// the given SHA-256 hex digest, or zero if no such file was imported.
func (s *Store) ImportedBank(hash string) (int64, error) {
	v, err := s.GetMetadata(importKeyPrefix + hash)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseInt(v, 10, 64)
}

// RecordImport remembers that the file with the given digest became bankID.
func (s *Store) RecordImport(hash string, bankID int64) error {
	return s.SetMetadata(importKeyPrefix+hash, strconv.FormatInt(bankID, 10))
}
