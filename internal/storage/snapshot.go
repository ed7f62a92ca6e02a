package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"

	"childservice/internal/models"
)

// Snapshot is the persisted view of the datastore: the user map keyed by
// session token plus the report and thread collections. Listeners are
// process-local and never serialised.
type Snapshot struct {
	Users   map[string]models.User `json:"users"`
	Reports []models.Report        `json:"reports"`
	Threads []models.Thread        `json:"threads"`
}

func newSnapshot() Snapshot {
	return Snapshot{
		Users:   make(map[string]models.User),
		Reports: []models.Report{},
		Threads: []models.Thread{},
	}
}

const snapshotFileName = "ChildService.json"

// DefaultSnapshotPath resolves the OS-dependent location of the snapshot
// file. An unrecognised GOOS is a startup error rather than a silent
// fallback: the service refuses to guess where its state lives.
func DefaultSnapshotPath() (string, error) {
	switch runtime.GOOS {
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData == "" {
			return "", errors.New("APPDATA is not set")
		}
		return filepath.Join(appData, snapshotFileName), nil
	case "linux":
		home := os.Getenv("HOME")
		if home == "" {
			return "", errors.New("HOME is not set")
		}
		return filepath.Join(home, ".config", snapshotFileName), nil
	default:
		return "", fmt.Errorf("unsupported operating system %q", runtime.GOOS)
	}
}

// load reads the snapshot file into the store. A missing or empty file is not
// an error and yields an empty state; a file that exists but cannot be parsed
// is, because starting against a corrupt snapshot would silently discard it
// on the next save.
func (s *Store) load() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(s.filePath), 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	file, err := os.Open(s.filePath)
	if errors.Is(err, os.ErrNotExist) {
		s.data = newSnapshot()
		return nil
	} else if err != nil {
		return fmt.Errorf("open snapshot file: %w", err)
	}
	defer file.Close()

	decoder := json.NewDecoder(file)
	if err := decoder.Decode(&s.data); err != nil {
		if errors.Is(err, io.EOF) {
			s.data = newSnapshot()
			return nil
		}
		return fmt.Errorf("decode snapshot file: %w", err)
	}

	s.ensureSnapshotInitializedLocked()
	return nil
}

func (s *Store) ensureSnapshotInitializedLocked() {
	if s.data.Users == nil {
		s.data.Users = make(map[string]models.User)
	}
	if s.data.Reports == nil {
		s.data.Reports = []models.Report{}
	}
	if s.data.Threads == nil {
		s.data.Threads = []models.Thread{}
	}
}

// persistSnapshot writes the snapshot atomically via a temp file rename.
func (s *Store) persistSnapshot(data Snapshot) error {
	if s.persistOverride != nil {
		return s.persistOverride(data)
	}

	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, "childservice-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot file: %w", err)
	}
	tmpPath := tmpFile.Name()
	success := false
	defer func() {
		if !success {
			_ = tmpFile.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	encoder := json.NewEncoder(tmpFile)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(data); err != nil {
		return fmt.Errorf("encode snapshot file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		return fmt.Errorf("flush snapshot file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp snapshot file: %w", err)
	}

	if err := os.Rename(tmpPath, s.filePath); err != nil {
		return fmt.Errorf("replace snapshot file: %w", err)
	}
	success = true
	return nil
}

// saveLocked persists the current state. Persistence is best-effort: the
// service keeps operating in memory when the disk is unavailable, so write
// failures are logged and swallowed rather than propagated.
func (s *Store) saveLocked() {
	if err := s.persistSnapshot(s.data); err != nil && s.logger != nil {
		s.logger.Error("failed to save snapshot", "path", s.filePath, "error", err)
	}
}
