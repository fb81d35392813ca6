package discovery

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestWatchStoreTriggersOnWrite(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "registry.db")
	if err := os.WriteFile(db, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	triggered := make(chan struct{}, 1)
	w, err := WatchStore(db, 20*time.Millisecond, func() {
		select {
		case triggered <- struct{}{}:
		default:
		}
	})
	if err != nil {
		t.Fatalf("WatchStore failed: %v", err)
	}
	defer w.Close()

	// Writes to the WAL sidecar count as registry changes too.
	if err := os.WriteFile(db+"-wal", []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-triggered:
	case <-time.After(2 * time.Second):
		t.Fatal("watcher never triggered")
	}
}

func TestWatchStoreIgnoresUnrelatedFiles(t *testing.T) {
	dir := t.TempDir()
	db := filepath.Join(dir, "registry.db")
	if err := os.WriteFile(db, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	triggered := make(chan struct{}, 1)
	w, err := WatchStore(db, 10*time.Millisecond, func() {
		triggered <- struct{}{}
	})
	if err != nil {
		t.Fatalf("WatchStore failed: %v", err)
	}
	defer w.Close()

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("y"), 0o644); err != nil {
		t.Fatal(err)
	}

	select {
	case <-triggered:
		t.Fatal("unrelated file must not trigger")
	case <-time.After(100 * time.Millisecond):
	}
}
