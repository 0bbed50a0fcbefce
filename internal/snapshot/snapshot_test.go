package snapshot

import (
	"os"
	"path/filepath"
	"testing"
)

func newTestStore(t *testing.T, maxPerFile int) (*Store, string) {
	t.Helper()
	base := t.TempDir()
	store, err := New(filepath.Join(base, "snapshots"), base, maxPerFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	return store, base
}

func writeConfig(t *testing.T, base, rel, content string) {
	t.Helper()
	path := filepath.Join(base, rel)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestCreateAndRestore(t *testing.T) {
	store, base := newTestStore(t, 10)
	writeConfig(t, base, "automations.yaml", "alias: original\n")

	id, err := store.Create("automations.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if id == "" {
		t.Fatal("expected snapshot id")
	}

	// Overwrite the file, then restore.
	writeConfig(t, base, "automations.yaml", "alias: broken\n")

	meta, err := store.Restore(id)
	if err != nil {
		t.Fatal(err)
	}
	if meta.Path != "automations.yaml" {
		t.Errorf("unexpected meta path: %s", meta.Path)
	}

	got, err := os.ReadFile(filepath.Join(base, "automations.yaml"))
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "alias: original\n" {
		t.Errorf("restore returned %q, want original content", got)
	}
}

func TestGetReturnsExactBytes(t *testing.T) {
	store, base := newTestStore(t, 10)
	content := "binary-ish \x00\x01 content\n"
	writeConfig(t, base, "configuration.yaml", content)

	id, err := store.Create("configuration.yaml")
	if err != nil {
		t.Fatal(err)
	}

	_, data, err := store.Get(id)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != content {
		t.Errorf("payload mismatch: %q", data)
	}
}

func TestListNewestFirst(t *testing.T) {
	store, base := newTestStore(t, 10)
	writeConfig(t, base, "scripts.yaml", "v1\n")

	var ids []string
	for i := 0; i < 3; i++ {
		id, err := store.Create("scripts.yaml")
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(metas) != 3 {
		t.Fatalf("expected 3 snapshots, got %d", len(metas))
	}
	if metas[0].ID != ids[2] {
		t.Errorf("expected newest first, got %s", metas[0].ID)
	}
	if metas[2].ID != ids[0] {
		t.Errorf("expected oldest last, got %s", metas[2].ID)
	}
}

func TestPerFileEviction(t *testing.T) {
	store, base := newTestStore(t, 2)
	writeConfig(t, base, "automations.yaml", "a\n")
	writeConfig(t, base, "scripts.yaml", "s\n")

	var autoIDs []string
	for i := 0; i < 4; i++ {
		id, err := store.Create("automations.yaml")
		if err != nil {
			t.Fatal(err)
		}
		autoIDs = append(autoIDs, id)
	}
	scriptID, err := store.Create("scripts.yaml")
	if err != nil {
		t.Fatal(err)
	}

	metas, err := store.List()
	if err != nil {
		t.Fatal(err)
	}

	// Cap applies per path: 2 automations survive plus the script.
	if len(metas) != 3 {
		t.Fatalf("expected 3 snapshots after eviction, got %d", len(metas))
	}
	byID := map[string]bool{}
	for _, m := range metas {
		byID[m.ID] = true
	}
	if !byID[autoIDs[3]] || !byID[autoIDs[2]] {
		t.Error("newest automation snapshots should survive")
	}
	if byID[autoIDs[0]] || byID[autoIDs[1]] {
		t.Error("oldest automation snapshots should be evicted")
	}
	if !byID[scriptID] {
		t.Error("other file's snapshot must not be evicted")
	}

	// Evicted snapshots are really gone.
	if _, _, err := store.Get(autoIDs[0]); err == nil {
		t.Error("expected error for evicted snapshot")
	}
}

func TestRestoreUnknownID(t *testing.T) {
	store, _ := newTestStore(t, 10)
	if _, err := store.Restore("not-a-snapshot"); err == nil {
		t.Fatal("expected error for unknown id")
	}
}

func TestCreateRejectsTraversal(t *testing.T) {
	store, _ := newTestStore(t, 10)
	for _, path := range []string{"../etc/passwd", "/etc/passwd", "a/../../outside.yaml"} {
		if _, err := store.Create(path); err == nil {
			t.Errorf("expected traversal rejection for %q", path)
		}
	}
}

func TestWriteFileAtomic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "out.yaml")

	if err := WriteFileAtomic(path, []byte("one\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := WriteFileAtomic(path, []byte("two\n"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "two\n" {
		t.Errorf("unexpected content: %q", got)
	}

	// No temp files left behind.
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("leftover files in dir: %v", entries)
	}
}
