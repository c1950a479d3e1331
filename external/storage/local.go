package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/aktivelabs/livecaption/internal/storage"
)

// LocalAudioStore writes synthesized audio under a directory served as
// static media and returns the public URL.
type LocalAudioStore struct {
	dir     string
	baseURL string
}

func NewLocalAudioStore(dir, baseURL string) storage.AudioStore {
	return &LocalAudioStore{
		dir:     dir,
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

func (s *LocalAudioStore) SaveAudio(_ context.Context, scope string, audio []byte) (string, error) {
	scope = sanitizeScope(scope)
	filename := fmt.Sprintf("%s.mp3", uuid.NewString())
	dir := filepath.Join(s.dir, scope)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create audio directory: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, filename), audio, 0o644); err != nil {
		return "", fmt.Errorf("write audio file: %w", err)
	}
	return fmt.Sprintf("%s/%s/%s", s.baseURL, scope, filename), nil
}

// sanitizeScope keeps scope a flat relative path so caller-supplied values
// cannot escape the storage directory.
func sanitizeScope(scope string) string {
	parts := strings.Split(scope, "/")
	clean := make([]string, 0, len(parts))
	for _, p := range parts {
		if p == "" || p == "." || p == ".." {
			continue
		}
		clean = append(clean, p)
	}
	if len(clean) == 0 {
		return "misc"
	}
	return strings.Join(clean, "/")
}
