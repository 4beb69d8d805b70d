// Package objectstore publishes episode artifacts to S3, a NATS JetStream
// object bucket or a local directory.
package objectstore

import (
	"context"
	"errors"
	"io"
	"strings"
)

// ErrExists is returned when a key has already been written. Artifacts are
// write-once.
var ErrExists = errors.New("object already exists")

// ErrNotFound is returned by Get for a missing key.
var ErrNotFound = errors.New("object not found")

// Object is a readable stored artifact. Callers close Body.
type Object struct {
	Body        io.ReadCloser
	Size        int64
	ContentType string
}

// Reader serves stored artifacts back out, for backends without their own
// public endpoint.
type Reader interface {
	Get(ctx context.Context, key string) (*Object, error)
}

// AudioKey is the object key for an episode's audio.
func AudioKey(episodeID string) string {
	return "audio/" + episodeID + ".mp3"
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
