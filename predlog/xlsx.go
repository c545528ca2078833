package predlog

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"go.uber.org/multierr"
)

// XLSXStore keeps the log as one workbook that is rewritten on every append.
//
// Appends are serialised by mu and each rewrite lands in a temp file that is
// renamed over the log, so readers never observe a partially written workbook.
// Writers in other processes are not coordinated.
type XLSXStore struct {
	path string
	mu   sync.Mutex
}

func NewXLSXStore(path string) *XLSXStore {
	return &XLSXStore{path: path}
}

// Path returns the workbook location.
func (s *XLSXStore) Path() string {
	return s.path
}

func (s *XLSXStore) Exists() bool {
	info, err := os.Stat(s.path)
	return err == nil && !info.IsDir()
}

func (s *XLSXStore) ReadAll(ctx context.Context) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.read()
}

func (s *XLSXStore) Append(ctx context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	records, err := s.read()
	if err != nil {
		return err
	}
	records = append(records, rec)
	return s.replace(records)
}

func (s *XLSXStore) Export(ctx context.Context, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(s.path)
	if err != nil {
		return err
	}
	defer file.Close()
	_, err = io.Copy(w, file)
	return err
}

func (s *XLSXStore) Close() error {
	return nil
}

func (s *XLSXStore) read() ([]Record, error) {
	payload, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read log: %w", err)
	}
	records, err := readWorkbook(bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("decode %s: %w", s.path, err)
	}
	return records, nil
}

// replace writes records to a sibling temp file and renames it over the log.
func (s *XLSXStore) replace(records []Record) (err error) {
	dir := filepath.Dir(s.path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp log: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			err = multierr.Append(err, os.Remove(tmpName))
		}
	}()

	if err := writeWorkbook(tmp, records); err != nil {
		return multierr.Append(fmt.Errorf("write temp log: %w", err), tmp.Close())
	}
	if err := tmp.Sync(); err != nil {
		return multierr.Append(fmt.Errorf("sync temp log: %w", err), tmp.Close())
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp log: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("chmod temp log: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("replace log: %w", err)
	}
	return nil
}
