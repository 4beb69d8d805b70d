package store

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// Status is the lifecycle state of an episode record.
type Status string

const (
	StatusSubmitted    Status = "submitted"
	StatusIngesting    Status = "ingesting"
	StatusScripting    Status = "scripting"
	StatusSegmenting   Status = "segmenting"
	StatusSynthesizing Status = "synthesizing"
	StatusAssembling   Status = "assembling"
	StatusComplete     Status = "complete"
	StatusFailed       Status = "failed"
)

// Terminal reports whether no further transitions can follow.
func (s Status) Terminal() bool {
	return s == StatusComplete || s == StatusFailed
}

var (
	ErrExists   = errors.New("episode already exists")
	ErrNotFound = errors.New("episode not found")
)

// DefaultListLimit applies when List is called with a non-positive limit.
const DefaultListLimit = 20

// Episode is the persisted record of one generation request.
type Episode struct {
	ID              string
	Title           string
	Source          string
	Status          Status
	ProgressPercent float64
	StageMessage    string
	ErrorStage      string
	ErrorMessage    string
	TTSProvider     string
	Model           string
	Preset          string
	Transcript      string
	AudioKey        string
	AudioURL        string
	Duration        string
	SizeBytes       int64
	Tier            string
	Utterances      int
	PlayCount       int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Completion carries the published artifact's metadata.
type Completion struct {
	Title      string
	AudioKey   string
	AudioURL   string
	Duration   string
	SizeBytes  int64
	Tier       string
	Utterances int
}

// Store persists episode records. Implementations must be safe for
// concurrent use.
type Store interface {
	Create(ctx context.Context, ep Episode) error
	UpdateProgress(ctx context.Context, id string, status Status, percent float64, message string) error
	SaveTranscript(ctx context.Context, id, transcript string) error
	Complete(ctx context.Context, id string, c Completion) error
	Fail(ctx context.Context, id, stage, message string) error
	Get(ctx context.Context, id string) (*Episode, error)
	// List returns episodes newest first. The returned cursor is empty on
	// the last page.
	List(ctx context.Context, limit int, cursor string) ([]Episode, string, error)
	AddPlays(ctx context.Context, id string, n int) error
	Checkpoint(ctx context.Context, name string) (string, error)
	SetCheckpoint(ctx context.Context, name, value string) error
	Close() error
}

// NewEpisodeID generates a ULID for a new episode.
func NewEpisodeID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

// sortLayout is fixed width so sort keys order lexically by time.
const sortLayout = "2006-01-02T15:04:05.000000000Z"

func sortKey(createdAt time.Time, id string) string {
	return createdAt.UTC().Format(sortLayout) + "#" + id
}
