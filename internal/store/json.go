package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"github.com/user/weather-bot-go/internal/metrics"
	"github.com/user/weather-bot-go/internal/model"
)

// JSONBackend keeps the table as one pretty-printed JSON array in a file.
// Every Save rewrites the whole file, which is fine for small tables only;
// use the sqlite or mysql backend for larger ones.
type JSONBackend struct {
	path string
}

// NewJSONBackend creates a backend for the file at path
func NewJSONBackend(path string) *JSONBackend {
	return &JSONBackend{path: path}
}

// BackupPath returns where a corrupt data file is moved to
func (b *JSONBackend) BackupPath() string {
	return b.path + ".backup"
}

// Load reads the file. A missing or blank file is an empty table; a file
// that does not parse is moved to BackupPath and also yields an empty table.
func (b *JSONBackend) Load(ctx context.Context) ([]model.Subscriber, error) {
	data, err := os.ReadFile(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		log.Info().Str("path", b.path).Msg("Data file not found, starting with an empty table")
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read data file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		log.Info().Str("path", b.path).Msg("Data file is empty, starting with an empty table")
		return nil, nil
	}

	var subs []model.Subscriber
	if err := json.Unmarshal(data, &subs); err != nil {
		metrics.RecordError("corrupt_data")
		log.Error().Err(err).Str("path", b.path).Msg("Data file is corrupt, resetting subscriber table")

		if renameErr := os.Rename(b.path, b.BackupPath()); renameErr != nil {
			log.Error().Err(renameErr).Str("backup", b.BackupPath()).Msg("Failed to back up corrupt data file")
		} else {
			log.Warn().Str("backup", b.BackupPath()).Msg("Corrupt data file moved to backup")
		}
		return nil, nil
	}

	return subs, nil
}

// Save rewrites the whole file through a temp file and rename
func (b *JSONBackend) Save(ctx context.Context, _ model.Subscriber, all []model.Subscriber) error {
	if all == nil {
		all = []model.Subscriber{}
	}

	data, err := json.MarshalIndent(all, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode subscribers: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(b.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}
	if err := os.Rename(tmpName, b.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace data file: %w", err)
	}
	return nil
}

// Ping reports whether the data directory is reachable
func (b *JSONBackend) Ping(ctx context.Context) error {
	_, err := os.Stat(filepath.Dir(b.path))
	return err
}

// Close is a no-op; the file is not held open between writes
func (b *JSONBackend) Close() error {
	return nil
}
