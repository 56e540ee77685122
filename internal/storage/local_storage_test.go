package storage

import (
	"context"
	"os"
	"path/filepath"
	"testing"
)

func TestLocalStorageSave(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	key, err := store.Save(context.Background(), []byte("mp3-bytes"), SaveOptions{
		Category:  "songs",
		Extension: "mp3",
		BaseName:  "My_Song_task-1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(key)))
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "mp3-bytes" {
		t.Errorf("unexpected file contents %q", data)
	}
}

func TestLocalStorageSkipIfExists(t *testing.T) {
	dir := t.TempDir()
	store, err := NewLocalStorage(dir)
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}

	opts := SaveOptions{
		Category:     "songs",
		Extension:    "mp3",
		BaseName:     "same-song",
		SkipIfExists: true,
	}

	first, err := store.Save(context.Background(), []byte("original"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, err := store.Save(context.Background(), []byte("overwrite attempt"), opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if first != second {
		t.Errorf("expected identical keys, got %q and %q", first, second)
	}

	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(first)))
	if err != nil {
		t.Fatalf("stored file unreadable: %v", err)
	}
	if string(data) != "original" {
		t.Errorf("re-save should be a no-op, file now holds %q", data)
	}
}

func TestLocalStorageRejectsEmptyPayload(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create storage: %v", err)
	}
	if _, err := store.Save(context.Background(), nil, SaveOptions{Category: "songs"}); err == nil {
		t.Fatal("expected error for empty payload")
	}
}
