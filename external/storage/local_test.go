package storage

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLocalAudioStoreSaveAudio(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalAudioStore(dir, "http://localhost:8080/media/")

	url, err := store.SaveAudio(context.Background(), "sessions/abc", []byte("mp3data"))
	if err != nil {
		t.Fatalf("SaveAudio failed: %v", err)
	}

	if !strings.HasPrefix(url, "http://localhost:8080/media/sessions/abc/") {
		t.Fatalf("unexpected URL: %s", url)
	}
	if !strings.HasSuffix(url, ".mp3") {
		t.Fatalf("URL missing extension: %s", url)
	}

	rel := strings.TrimPrefix(url, "http://localhost:8080/media/")
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("reading saved file failed: %v", err)
	}
	if string(data) != "mp3data" {
		t.Fatalf("unexpected file contents: %q", data)
	}
}

func TestLocalAudioStoreRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	store := NewLocalAudioStore(dir, "http://localhost:8080/media")

	url, err := store.SaveAudio(context.Background(), "../../etc", []byte("x"))
	if err != nil {
		t.Fatalf("SaveAudio failed: %v", err)
	}
	if strings.Contains(url, "..") {
		t.Fatalf("URL contains traversal: %s", url)
	}

	entries, err := os.ReadDir(filepath.Join(dir, "etc"))
	if err != nil {
		t.Fatalf("expected files under sanitized directory: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one file, got %d", len(entries))
	}
}
