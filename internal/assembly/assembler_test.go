package assembly

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memStore struct {
	key         string
	body        []byte
	size        int64
	contentType string
	err         error
}

func (m *memStore) Put(_ context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if m.err != nil {
		return "", m.err
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return "", err
	}
	m.key, m.body, m.size, m.contentType = key, data, size, contentType
	return "https://cdn.example.com/" + key, nil
}

type fixedProber time.Duration

func (p fixedProber) Duration(context.Context, string) (time.Duration, error) {
	return time.Duration(p), nil
}

type failingProber struct{}

func (failingProber) Duration(context.Context, string) (time.Duration, error) {
	return 0, errors.New("ffprobe not installed")
}

func assertScratchEmpty(t *testing.T, dir string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "scratch file must be removed")
}

func TestAssembleConcatenatesInOrder(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{}
	a := NewAssembler(store, dir, fixedProber(95*time.Second), nil)

	art, err := a.Assemble(context.Background(), "audio/ep.mp3", [][]byte{[]byte("AA"), []byte("BBB"), []byte("C")})

	require.NoError(t, err)
	assert.Equal(t, "AABBBC", string(store.body))
	assert.Equal(t, int64(6), store.size)
	assert.Equal(t, ContentTypeMP3, store.contentType)
	assert.Equal(t, "audio/ep.mp3", store.key)
	assert.Equal(t, &Artifact{
		Key:         "audio/ep.mp3",
		URL:         "https://cdn.example.com/audio/ep.mp3",
		ContentType: ContentTypeMP3,
		Size:        6,
		Duration:    95 * time.Second,
	}, art)
	assertScratchEmpty(t, dir)
}

func TestAssembleProbeFailureIsNotFatal(t *testing.T) {
	dir := t.TempDir()
	a := NewAssembler(&memStore{}, dir, failingProber{}, nil)

	art, err := a.Assemble(context.Background(), "k", [][]byte{[]byte("x")})

	require.NoError(t, err)
	assert.Zero(t, art.Duration)
	assertScratchEmpty(t, dir)
}

func TestAssembleUploadFailure(t *testing.T) {
	dir := t.TempDir()
	cause := errors.New("access denied")
	a := NewAssembler(&memStore{err: cause}, dir, nil, nil)

	art, err := a.Assemble(context.Background(), "k", [][]byte{[]byte("x")})

	assert.Nil(t, art)
	assert.ErrorIs(t, err, ErrUpload)
	assert.ErrorIs(t, err, cause)
	assertScratchEmpty(t, dir)
}

func TestAssembleScratchFailure(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "does", "not", "exist")
	a := NewAssembler(&memStore{}, missing, nil, nil)

	_, err := a.Assemble(context.Background(), "k", [][]byte{[]byte("x")})

	assert.ErrorIs(t, err, ErrScratch)
}

func TestAssembleNoAudio(t *testing.T) {
	dir := t.TempDir()
	store := &memStore{}
	a := NewAssembler(store, dir, nil, nil)

	_, err := a.Assemble(context.Background(), "k", nil)
	assert.ErrorIs(t, err, ErrNoAudio)

	_, err = a.Assemble(context.Background(), "k", [][]byte{{}, {}})
	assert.ErrorIs(t, err, ErrNoAudio)
	assert.Empty(t, store.key, "nothing is uploaded")
	assertScratchEmpty(t, dir)
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "0:00", FormatDuration(0))
	assert.Equal(t, "1:35", FormatDuration(95*time.Second))
	assert.Equal(t, "12:01", FormatDuration(12*time.Minute+1400*time.Millisecond))
}
