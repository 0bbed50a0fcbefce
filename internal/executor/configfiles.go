package executor

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hearthside-ai/hearthside/internal/snapshot"
)

const maxListedFiles = 300

// resolveConfigPath joins a relative path onto the config dir and
// rejects traversal outside it.
func (e *Executor) resolveConfigPath(rel string) (string, error) {
	if e.configDir == "" {
		return "", fmt.Errorf("%s", e.msgs.ConfigDirUnset)
	}
	clean := filepath.Clean(filepath.FromSlash(rel))
	if filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q escapes the config directory", rel)
	}
	return filepath.Join(e.configDir, clean), nil
}

func (e *Executor) readConfigFile(args map[string]any) (map[string]any, error) {
	rel := argString(args, "path")
	if rel == "" {
		return nil, fmt.Errorf("path is required")
	}
	abs, err := e.resolveConfigPath(rel)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("file '%s' not found in the config directory", rel)
		}
		return nil, fmt.Errorf("read '%s': %w", rel, err)
	}
	return map[string]any{
		"path":    rel,
		"size":    len(data),
		"content": string(data),
	}, nil
}

func (e *Executor) writeConfigFile(args map[string]any) (map[string]any, error) {
	rel := argString(args, "path")
	content, _ := args["content"].(string)
	if rel == "" || content == "" {
		return nil, fmt.Errorf("path and content are required")
	}
	abs, err := e.resolveConfigPath(rel)
	if err != nil {
		return nil, err
	}

	// Catch syntax errors before they reach disk; check_config still
	// validates the semantics afterwards.
	ext := strings.ToLower(filepath.Ext(rel))
	if ext == ".yaml" || ext == ".yml" {
		var parsed any
		if err := yaml.Unmarshal([]byte(content), &parsed); err != nil {
			return nil, fmt.Errorf("content is not valid YAML: %w", err)
		}
	}

	snapshotID := ""
	if _, err := os.Stat(abs); err == nil {
		id, err := e.snapshots.Create(rel)
		if err != nil {
			return nil, fmt.Errorf("snapshot '%s' before write: %w", rel, err)
		}
		snapshotID = id
	}

	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return nil, fmt.Errorf("create parent directory: %w", err)
	}
	if err := snapshot.WriteFileAtomic(abs, []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("write '%s': %w", rel, err)
	}

	payload := map[string]any{
		"status":  "success",
		"path":    rel,
		"message": fmt.Sprintf("Wrote '%s' (%d bytes). Run check_config to validate.", rel, len(content)),
	}
	if snapshotID != "" {
		payload["snapshot_id"] = snapshotID
	}
	return payload, nil
}

func (e *Executor) listConfigFiles() (map[string]any, error) {
	if e.configDir == "" {
		return nil, fmt.Errorf("%s", e.msgs.ConfigDirUnset)
	}

	var files []string
	err := filepath.WalkDir(e.configDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // unreadable entries are skipped, not fatal
		}
		name := d.Name()
		if d.IsDir() {
			if path != e.configDir && (strings.HasPrefix(name, ".") || name == "deps" || name == "www") {
				return filepath.SkipDir
			}
			return nil
		}
		ext := strings.ToLower(filepath.Ext(name))
		if ext != ".yaml" && ext != ".yml" {
			return nil
		}
		if len(files) >= maxListedFiles {
			return filepath.SkipAll
		}
		rel, relErr := filepath.Rel(e.configDir, path)
		if relErr != nil {
			return nil
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list config files: %w", err)
	}

	return map[string]any{"count": len(files), "files": files}, nil
}

func (e *Executor) checkConfig(ctx context.Context) (map[string]any, error) {
	result, err := e.ha.CheckConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("check configuration: %w", err)
	}
	if !result.Valid() {
		return map[string]any{
			"status":  "invalid",
			"errors":  result.Errors,
			"message": "Configuration has errors. Fix them or restore the previous version with restore_snapshot.",
		}, nil
	}
	return map[string]any{
		"status":  "success",
		"message": "Configuration is valid.",
	}, nil
}

func (e *Executor) listSnapshots(args map[string]any) (map[string]any, error) {
	pathFilter := argString(args, "path")

	metas, err := e.snapshots.List()
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}

	list := make([]map[string]any, 0, len(metas))
	for _, m := range metas {
		if pathFilter != "" && m.Path != pathFilter {
			continue
		}
		list = append(list, map[string]any{
			"snapshot_id": m.ID,
			"path":        m.Path,
			"created_at":  m.CreatedAt.Format(time.RFC3339),
			"size":        m.Size,
		})
	}
	return map[string]any{"count": len(list), "snapshots": list}, nil
}

func (e *Executor) restoreSnapshot(args map[string]any) (map[string]any, error) {
	id := argString(args, "snapshot_id")
	if id == "" {
		return nil, fmt.Errorf("snapshot_id is required")
	}

	meta, _, err := e.snapshots.Get(id)
	if err != nil {
		return nil, fmt.Errorf("snapshot '%s' not found: use list_snapshots", id)
	}

	// Keep an undo path for the restore itself.
	if _, err := e.snapshots.Create(meta.Path); err != nil {
		e.logger.Warn("could not snapshot current content before restore", "path", meta.Path, "error", err)
	}

	if _, err := e.snapshots.Restore(id); err != nil {
		return nil, fmt.Errorf("restore snapshot '%s': %w", id, err)
	}
	return map[string]any{
		"status":  "success",
		"path":    meta.Path,
		"message": fmt.Sprintf(e.msgs.SnapshotRestored, meta.Path, id),
	}, nil
}
