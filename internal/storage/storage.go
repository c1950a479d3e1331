package storage

import "context"

// AudioStore persists synthesized audio and returns a URL from which a
// client can fetch it.
type AudioStore interface {
	SaveAudio(ctx context.Context, scope string, audio []byte) (string, error)
}
