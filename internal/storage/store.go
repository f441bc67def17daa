// Package storage persists the engine's state as JSON files: one file per
// entity collection under entities/ and one file per materialized month
// under months/. Writes are debounced and atomic (write-temp-then-rename)
// so a crash never leaves a half-written file behind.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"leftover/internal/core"
	"leftover/internal/log"
	"leftover/internal/services"
)

// DefaultDebounce coalesces the burst of saves a quick editing session
// produces into one disk write per file.
const DefaultDebounce = 500 * time.Millisecond

const (
	entitiesDir = "entities"
	monthsDir   = "months"

	billsFile      = "bills.json"
	incomesFile    = "incomes.json"
	sourcesFile    = "payment-sources.json"
	categoriesFile = "categories.json"
	undoFile       = "undo.json"
)

// FileStore implements services.Store (and services.UndoStore) on a data
// directory. Saves marshal synchronously, so encoding failures surface to
// the caller before any in-memory state is considered durable; the actual
// disk write happens on the debounced writer goroutine.
type FileStore struct {
	root     string
	debounce time.Duration
	log      *log.Logger

	mu      sync.Mutex
	pending map[string][]byte // relative path -> payload
	lastErr error
	wake    chan struct{}
}

var _ services.Store = (*FileStore)(nil)
var _ services.UndoStore = (*FileStore)(nil)

// NewFileStore prepares the data directory layout. A zero debounce falls
// back to DefaultDebounce.
func NewFileStore(root string, debounce time.Duration, logger *log.Logger) (*FileStore, error) {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	if logger == nil {
		logger = log.New(0, "storage")
	}
	for _, dir := range []string{entitiesDir, monthsDir} {
		if err := os.MkdirAll(filepath.Join(root, dir), 0o755); err != nil {
			return nil, fmt.Errorf("create %s directory: %w", dir, err)
		}
	}
	return &FileStore{
		root:     root,
		debounce: debounce,
		log:      logger,
		pending:  make(map[string][]byte),
		wake:     make(chan struct{}, 1),
	}, nil
}

// Run drives the debounced writer until ctx is cancelled, then flushes
// whatever is still pending. Run it under the process errgroup so the
// flush-on-shutdown guarantee holds.
func (s *FileStore) Run(ctx context.Context) error {
	timer := time.NewTimer(s.debounce)
	if !timer.Stop() {
		<-timer.C
	}
	for {
		select {
		case <-ctx.Done():
			return s.Flush()
		case <-s.wake:
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(s.debounce)
		case <-timer.C:
			if err := s.Flush(); err != nil {
				s.log.Error("Debounced flush failed", "error", err)
			}
		}
	}
}

// Flush writes every pending payload to disk now.
func (s *FileStore) Flush() error {
	s.mu.Lock()
	batch := s.pending
	s.pending = make(map[string][]byte)
	s.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}

	paths := make([]string, 0, len(batch))
	for rel := range batch {
		paths = append(paths, rel)
	}
	sort.Strings(paths)

	var errs []error
	for _, rel := range paths {
		if err := s.writeAtomic(rel, batch[rel]); err != nil {
			errs = append(errs, err)
		}
	}
	err := errors.Join(errs...)
	if err != nil {
		s.mu.Lock()
		s.lastErr = err
		s.mu.Unlock()
	}
	return err
}

// Close flushes outstanding writes. Safe to call after Run has returned.
func (s *FileStore) Close() error {
	return s.Flush()
}

// Err reports the most recent asynchronous write failure, if any. Write
// failures are never silently retried; they stay visible here and in the
// log until the next successful flush clears nothing (the error sticks).
func (s *FileStore) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// LoadEntities reads the four entity collections. Missing files mean a
// fresh data directory and yield empty collections.
func (s *FileStore) LoadEntities(ctx context.Context) (core.Entities, error) {
	var out core.Entities
	if err := s.readJSON(filepath.Join(entitiesDir, billsFile), &out.Bills); err != nil {
		return core.Entities{}, err
	}
	if err := s.readJSON(filepath.Join(entitiesDir, incomesFile), &out.Incomes); err != nil {
		return core.Entities{}, err
	}
	if err := s.readJSON(filepath.Join(entitiesDir, sourcesFile), &out.PaymentSources); err != nil {
		return core.Entities{}, err
	}
	if err := s.readJSON(filepath.Join(entitiesDir, categoriesFile), &out.Categories); err != nil {
		return core.Entities{}, err
	}
	if out.Bills == nil {
		out.Bills = []core.Template{}
	}
	if out.Incomes == nil {
		out.Incomes = []core.Template{}
	}
	if out.PaymentSources == nil {
		out.PaymentSources = []core.PaymentSource{}
	}
	if out.Categories == nil {
		out.Categories = []core.Category{}
	}
	return out, nil
}

// SaveEntities enqueues all four collection files.
func (s *FileStore) SaveEntities(ctx context.Context, entities core.Entities) error {
	parts := []struct {
		file string
		v    any
	}{
		{billsFile, entities.Bills},
		{incomesFile, entities.Incomes},
		{sourcesFile, entities.PaymentSources},
		{categoriesFile, entities.Categories},
	}
	for _, p := range parts {
		if err := s.enqueueJSON(filepath.Join(entitiesDir, p.file), p.v); err != nil {
			return err
		}
	}
	return nil
}

// LoadMonth returns the month's record, or (nil, nil) when none exists.
func (s *FileStore) LoadMonth(ctx context.Context, month core.Month) (*core.MonthlyData, error) {
	var data core.MonthlyData
	found, err := s.readJSONFound(s.monthPath(month), &data)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, nil
	}
	if data.BankBalances == nil {
		data.BankBalances = map[string]core.Money{}
	}
	return &data, nil
}

// SaveMonth enqueues the month's file.
func (s *FileStore) SaveMonth(ctx context.Context, data *core.MonthlyData) error {
	return s.enqueueJSON(s.monthPath(data.Month), data)
}

// LoadUndo implements services.UndoStore.
func (s *FileStore) LoadUndo(ctx context.Context) ([]services.UndoEntry, error) {
	var entries []services.UndoEntry
	if err := s.readJSON(undoFile, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}

// SaveUndo implements services.UndoStore.
func (s *FileStore) SaveUndo(ctx context.Context, entries []services.UndoEntry) error {
	return s.enqueueJSON(undoFile, entries)
}

func (s *FileStore) monthPath(month core.Month) string {
	return filepath.Join(monthsDir, month.String()+".json")
}

func (s *FileStore) enqueueJSON(rel string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode %s: %w", rel, err)
	}
	s.mu.Lock()
	s.pending[rel] = data
	s.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
	return nil
}

func (s *FileStore) readJSON(rel string, v any) error {
	_, err := s.readJSONFound(rel, v)
	return err
}

// readJSONFound reads rel into v, preferring a pending (not yet flushed)
// payload over the file so loads never observe stale state.
func (s *FileStore) readJSONFound(rel string, v any) (bool, error) {
	s.mu.Lock()
	data, pending := s.pending[rel]
	s.mu.Unlock()

	if !pending {
		var err error
		data, err = os.ReadFile(filepath.Join(s.root, rel))
		if errors.Is(err, os.ErrNotExist) {
			return false, nil
		}
		if err != nil {
			return false, fmt.Errorf("read %s: %w", rel, err)
		}
	}
	if err := json.Unmarshal(data, v); err != nil {
		return false, fmt.Errorf("decode %s: %w", rel, err)
	}
	return true, nil
}

// writeAtomic writes data to rel via a temp file in the same directory
// followed by a rename, so readers only ever see complete files.
func (s *FileStore) writeAtomic(rel string, data []byte) error {
	path := filepath.Join(s.root, rel)
	dir := filepath.Dir(path)

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp for %s: %w", rel, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", rel, err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("chmod %s: %w", rel, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync %s: %w", rel, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", rel, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("rename %s: %w", rel, err)
	}
	s.log.Debug("File written", "path", rel, "bytes", len(data))
	return nil
}
