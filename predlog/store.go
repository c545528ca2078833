package predlog

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
)

const (
	BackendXLSX   = "xlsx"
	BackendSQLite = "sqlite"

	DefaultFileName = "predictions_log.xlsx"

	// DefaultSQLiteFileName is used when Config.SQLitePath is empty.
	DefaultSQLiteFileName = "predictions_log.db"
)

// Store is an append-only log of predictions.
type Store interface {
	// Append adds rec as the last entry of the log, creating the log if needed.
	Append(ctx context.Context, rec Record) error
	// ReadAll returns every entry in insertion order; an absent log yields no entries.
	ReadAll(ctx context.Context) ([]Record, error)
	Exists() bool
	// Export writes the log as an xlsx workbook.
	Export(ctx context.Context, w io.Writer) error
	Close() error
}

type Config struct {
	Backend    string
	Dir        string
	FileName   string
	SQLitePath string
}

// Open builds the Store selected by cfg.Backend.
func Open(cfg Config) (Store, error) {
	if cfg.FileName == "" {
		cfg.FileName = DefaultFileName
	}
	switch cfg.Backend {
	case "", BackendXLSX:
		return NewXLSXStore(filepath.Join(cfg.Dir, cfg.FileName)), nil
	case BackendSQLite:
		path := cfg.SQLitePath
		if path == "" {
			path = filepath.Join(cfg.Dir, DefaultSQLiteFileName)
		}
		return NewSQLiteStore(path)
	default:
		return nil, fmt.Errorf("unknown prediction log backend %q", cfg.Backend)
	}
}
