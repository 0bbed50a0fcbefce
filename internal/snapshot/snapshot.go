// Package snapshot keeps bounded, restorable copies of configuration
// files. A snapshot is taken before every config write so any change
// the assistant makes can be undone.
package snapshot

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const DefaultMaxPerFile = 10

// Meta is the sidecar metadata stored next to each snapshot payload.
type Meta struct {
	ID        string    `json:"id"`
	Path      string    `json:"path"` // relative to the config dir
	CreatedAt time.Time `json:"created_at"`
	Size      int64     `json:"size"`
}

// Store persists snapshots under dir as <id>.data + <id>.meta.json
// pairs. Paths are relative to baseDir (the HA config directory).
type Store struct {
	dir        string
	baseDir    string
	maxPerFile int
	logger     *slog.Logger

	mu sync.Mutex
}

func New(dir, baseDir string, maxPerFile int, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if maxPerFile <= 0 {
		maxPerFile = DefaultMaxPerFile
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot dir: %w", err)
	}
	return &Store{
		dir:        dir,
		baseDir:    baseDir,
		maxPerFile: maxPerFile,
		logger:     logger.With("component", "snapshot"),
	}, nil
}

// Create captures the current bytes of relPath. Returns the snapshot id.
func (s *Store) Create(relPath string) (string, error) {
	abs, err := s.resolve(relPath)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", relPath, err)
	}

	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("generate snapshot id: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	meta := Meta{
		ID:        id.String(),
		Path:      filepath.ToSlash(relPath),
		CreatedAt: time.Now().UTC(),
		Size:      int64(len(data)),
	}

	if err := os.WriteFile(s.dataPath(meta.ID), data, 0o644); err != nil {
		return "", fmt.Errorf("write snapshot payload: %w", err)
	}
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal snapshot metadata: %w", err)
	}
	if err := os.WriteFile(s.metaPath(meta.ID), metaJSON, 0o644); err != nil {
		os.Remove(s.dataPath(meta.ID))
		return "", fmt.Errorf("write snapshot metadata: %w", err)
	}

	s.evictLocked(meta.Path)

	s.logger.Info("snapshot created", "id", meta.ID, "path", meta.Path, "bytes", meta.Size)
	return meta.ID, nil
}

// List returns all snapshot metadata, newest first.
func (s *Store) List() ([]Meta, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.listLocked("")
}

// Get returns the metadata and captured bytes of one snapshot.
func (s *Store) Get(id string) (Meta, []byte, error) {
	meta, err := s.readMeta(id)
	if err != nil {
		return Meta{}, nil, err
	}
	data, err := os.ReadFile(s.dataPath(id))
	if err != nil {
		return Meta{}, nil, fmt.Errorf("read snapshot payload: %w", err)
	}
	return meta, data, nil
}

// Restore writes the captured bytes back to the file the snapshot was
// taken from. The write is atomic: temp file then rename.
func (s *Store) Restore(id string) (Meta, error) {
	meta, data, err := s.Get(id)
	if err != nil {
		return Meta{}, err
	}

	abs, err := s.resolve(meta.Path)
	if err != nil {
		return Meta{}, err
	}

	if err := WriteFileAtomic(abs, data, 0o644); err != nil {
		return Meta{}, fmt.Errorf("restore %s: %w", meta.Path, err)
	}

	s.logger.Info("snapshot restored", "id", id, "path", meta.Path, "bytes", len(data))
	return meta, nil
}

// WriteFileAtomic writes data to path via a temp file and rename, so a
// crash mid-write never leaves a truncated config file behind.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".hearthside-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpName, perm); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

// resolve joins relPath onto the base dir and rejects traversal.
func (s *Store) resolve(relPath string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(relPath))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the config directory", relPath)
	}
	return filepath.Join(s.baseDir, clean), nil
}

func (s *Store) dataPath(id string) string { return filepath.Join(s.dir, id+".data") }
func (s *Store) metaPath(id string) string { return filepath.Join(s.dir, id+".meta.json") }

func (s *Store) readMeta(id string) (Meta, error) {
	raw, err := os.ReadFile(s.metaPath(id))
	if err != nil {
		if os.IsNotExist(err) {
			return Meta{}, fmt.Errorf("snapshot %q not found", id)
		}
		return Meta{}, fmt.Errorf("read snapshot metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Meta{}, fmt.Errorf("parse snapshot metadata: %w", err)
	}
	return meta, nil
}

// listLocked returns metadata newest-first, optionally filtered by path.
func (s *Store) listLocked(path string) ([]Meta, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("read snapshot dir: %w", err)
	}

	var metas []Meta
	for _, e := range entries {
		name := e.Name()
		if !strings.HasSuffix(name, ".meta.json") {
			continue
		}
		meta, err := s.readMeta(strings.TrimSuffix(name, ".meta.json"))
		if err != nil {
			s.logger.Warn("skipping unreadable snapshot metadata", "file", name, "error", err)
			continue
		}
		if path != "" && meta.Path != path {
			continue
		}
		metas = append(metas, meta)
	}

	sort.Slice(metas, func(i, j int) bool {
		if !metas[i].CreatedAt.Equal(metas[j].CreatedAt) {
			return metas[i].CreatedAt.After(metas[j].CreatedAt)
		}
		// UUIDv7 ids are time-ordered; break sub-second ties.
		return metas[i].ID > metas[j].ID
	})
	return metas, nil
}

// evictLocked drops the oldest snapshots of path beyond the per-file cap.
func (s *Store) evictLocked(path string) {
	metas, err := s.listLocked(path)
	if err != nil {
		s.logger.Warn("snapshot eviction skipped", "path", path, "error", err)
		return
	}
	for _, meta := range metas[min(len(metas), s.maxPerFile):] {
		os.Remove(s.dataPath(meta.ID))
		os.Remove(s.metaPath(meta.ID))
		s.logger.Debug("snapshot evicted", "id", meta.ID, "path", meta.Path)
	}
}
