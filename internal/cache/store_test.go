package cache

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"
)

func TestStorePutAndGet(t *testing.T) {
	store := newTestStore(t)
	key := "fetched/audio/intro.mp3"

	modTime := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	payload := []byte("payload")
	if _, err := store.Put(context.Background(), key, bytes.NewReader(payload), PutOptions{ModTime: modTime}); err != nil {
		t.Fatalf("put error: %v", err)
	}

	result, err := store.Get(context.Background(), key)
	if err != nil {
		t.Fatalf("get error: %v", err)
	}
	defer result.Reader.Close()

	body, err := io.ReadAll(result.Reader)
	if err != nil {
		t.Fatalf("read cached body error: %v", err)
	}
	if string(body) != string(payload) {
		t.Fatalf("cached payload mismatch: %s", string(body))
	}
	if result.Entry.SizeBytes != int64(len(payload)) {
		t.Fatalf("size mismatch: %d", result.Entry.SizeBytes)
	}
	if !result.Entry.ModTime.Equal(modTime) {
		t.Fatalf("modtime mismatch: expected %v got %v", modTime, result.Entry.ModTime)
	}
}

func TestStoreGetMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Get(context.Background(), "/missing")
	if err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestStoreGetBelowRegularFile(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Put(context.Background(), "file.bin", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if _, err := store.Get(context.Background(), "file.bin/child"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound below a file, got %v", err)
	}
}

func TestStorePublishesReadableFiles(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("unix permission bits")
	}
	store := newTestStore(t)
	entry, err := store.Put(context.Background(), "audio/intro.mp3", bytes.NewReader([]byte("ID3")), PutOptions{})
	if err != nil {
		t.Fatalf("put error: %v", err)
	}
	info, err := os.Stat(entry.FilePath)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o644 {
		t.Fatalf("expected 0644, got %o", perm)
	}
}

func TestStoreRemove(t *testing.T) {
	store := newTestStore(t)
	key := "cache/remove"
	if _, err := store.Put(context.Background(), key, bytes.NewReader([]byte("data")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), key); err != nil {
		t.Fatalf("remove error: %v", err)
	}
	if _, err := store.Get(context.Background(), key); err != ErrNotFound {
		t.Fatalf("expected not found after remove, got %v", err)
	}
}

func TestStoreRemoveMissingAndDirectory(t *testing.T) {
	store := newTestStore(t)
	if err := store.Remove(context.Background(), "never/written"); err != nil {
		t.Fatalf("removing a missing entry should succeed, got %v", err)
	}
	if _, err := store.Put(context.Background(), "dir/file", bytes.NewReader([]byte("x")), PutOptions{}); err != nil {
		t.Fatalf("put error: %v", err)
	}
	if err := store.Remove(context.Background(), "dir"); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("expected ErrInvalidKey for directory, got %v", err)
	}
	if _, err := store.Get(context.Background(), "dir/file"); err != nil {
		t.Fatalf("directory contents must survive, got %v", err)
	}
}

func TestStoreIgnoresDirectories(t *testing.T) {
	store := newTestStore(t)

	fs, ok := store.(*fileStore)
	if !ok {
		t.Fatalf("unexpected store type %T", store)
	}

	filePath, err := fs.entryPath("models")
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if err := os.MkdirAll(filePath, 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}

	if _, err := store.Get(context.Background(), "models"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound for directory, got %v", err)
	}
}

func TestStoreNeverServesTempFiles(t *testing.T) {
	store := newTestStore(t)
	partial := filepath.Join(store.Root(), "data", ".cache-12345")
	if err := os.MkdirAll(filepath.Dir(partial), 0o755); err != nil {
		t.Fatalf("mkdir error: %v", err)
	}
	if err := os.WriteFile(partial, []byte("half"), 0o644); err != nil {
		t.Fatalf("write error: %v", err)
	}

	if _, err := store.Get(context.Background(), "data/.cache-12345"); err != ErrNotFound {
		t.Fatalf("temp files must not be hits, got %v", err)
	}
}

func TestStoreRejectsEscapingKeys(t *testing.T) {
	store := newTestStore(t)
	for _, key := range []string{"", "/", ".."} {
		if _, err := store.Get(context.Background(), key); err != ErrInvalidKey {
			t.Fatalf("key %q: expected ErrInvalidKey, got %v", key, err)
		}
	}
	fs := store.(*fileStore)
	p, err := fs.entryPath("../../etc/passwd")
	if err != nil {
		t.Fatalf("path error: %v", err)
	}
	if filepath.Dir(p) != filepath.Join(store.Root(), "etc") {
		t.Fatalf("key should be clamped under root, got %s", p)
	}
}

func TestStoreCleansUpInterruptedWrite(t *testing.T) {
	store := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := store.Put(ctx, "big/blob.bin", bytes.NewReader(make([]byte, 1<<20)), PutOptions{}); err == nil {
		t.Fatalf("expected context error")
	}
	matches, _ := filepath.Glob(filepath.Join(store.Root(), "big", ".cache-*"))
	if len(matches) != 0 {
		t.Fatalf("temporary files should be removed, found %v", matches)
	}
	if _, err := os.Stat(filepath.Join(store.Root(), "big", "blob.bin")); !os.IsNotExist(err) {
		t.Fatalf("final path must not exist, err=%v", err)
	}
}

// newTestStore returns a Store backed by a temporary directory.
func newTestStore(t *testing.T) Store {
	t.Helper()
	store, err := NewStore(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	return store
}
