package assembly

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"
)

const ContentTypeMP3 = "audio/mpeg"

var (
	// ErrScratch marks a failure writing or reading the scratch file.
	ErrScratch = errors.New("scratch storage")
	// ErrUpload marks a failure publishing to the object store.
	ErrUpload = errors.New("upload")
	// ErrNoAudio is returned when there is nothing to assemble.
	ErrNoAudio = errors.New("no audio segments to assemble")
)

// ObjectStore publishes a finished artifact and returns its public URL.
type ObjectStore interface {
	Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error)
}

// Artifact describes a published episode file.
type Artifact struct {
	Key         string
	URL         string
	ContentType string
	Size        int64
	Duration    time.Duration
}

// Assembler joins synthesized segments into one file and publishes it.
type Assembler struct {
	store      ObjectStore
	scratchDir string
	prober     Prober
	log        *slog.Logger
}

// NewAssembler returns an assembler writing scratch files under scratchDir
// (the OS temp dir when empty). prober may be nil.
func NewAssembler(store ObjectStore, scratchDir string, prober Prober, log *slog.Logger) *Assembler {
	if log == nil {
		log = slog.Default()
	}
	return &Assembler{store: store, scratchDir: scratchDir, prober: prober, log: log}
}

// Assemble concatenates segments in index order and uploads the result under
// key. Segments share one constant-bitrate MP3 encoding, so byte
// concatenation yields a playable stream. The scratch file is removed on
// every path.
func (a *Assembler) Assemble(ctx context.Context, key string, segments [][]byte) (art *Artifact, err error) {
	if len(segments) == 0 {
		return nil, ErrNoAudio
	}

	f, err := os.CreateTemp(a.scratchDir, "episode-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("%w: create: %v", ErrScratch, err)
	}
	path := f.Name()
	defer func() {
		f.Close()
		if rmErr := os.Remove(path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) && err == nil {
			err = fmt.Errorf("%w: remove %s: %v", ErrScratch, path, rmErr)
			art = nil
		}
	}()

	var size int64
	for i, seg := range segments {
		n, werr := f.Write(seg)
		if werr != nil {
			return nil, fmt.Errorf("%w: write segment %d: %v", ErrScratch, i, werr)
		}
		size += int64(n)
	}
	if size == 0 {
		return nil, ErrNoAudio
	}
	if err := f.Sync(); err != nil {
		return nil, fmt.Errorf("%w: sync: %v", ErrScratch, err)
	}

	var duration time.Duration
	if a.prober != nil {
		if d, perr := a.prober.Duration(ctx, path); perr == nil {
			duration = d
		} else {
			a.log.DebugContext(ctx, "duration probe skipped", "error", perr)
		}
	}

	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("%w: rewind: %v", ErrScratch, err)
	}

	url, err := a.store.Put(ctx, key, f, size, ContentTypeMP3)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUpload, key, err)
	}

	return &Artifact{
		Key:         key,
		URL:         url,
		ContentType: ContentTypeMP3,
		Size:        size,
		Duration:    duration,
	}, nil
}
