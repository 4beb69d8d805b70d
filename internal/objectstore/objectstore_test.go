package objectstore_test

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats-server/v2/test"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/apresai/papercast/internal/objectstore"
)

func startNATS(t *testing.T) (*server.Server, *nats.Conn) {
	t.Helper()

	opts := test.DefaultTestOptions
	opts.Port = -1
	opts.JetStream = true
	opts.StoreDir = t.TempDir()
	srv := test.RunServer(&opts)

	nc, err := nats.Connect(srv.ClientURL())
	require.NoError(t, err)
	return srv, nc
}

func TestNatsStorePutGet(t *testing.T) {
	t.Parallel()

	srv, nc := startNATS(t)
	defer srv.Shutdown()
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)

	store, err := objectstore.NewNatsStore(js, "episodes", "http://localhost:8000/")
	require.NoError(t, err)

	ctx := context.Background()
	key := objectstore.AudioKey("01HZY")
	data := []byte("ID3 fake mp3 payload")

	url, err := store.Put(ctx, key, bytes.NewReader(data), int64(len(data)), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:8000/audio/01HZY.mp3", url)

	obj, err := store.Get(ctx, key)
	require.NoError(t, err)
	defer obj.Body.Close()
	got, err := io.ReadAll(obj.Body)
	require.NoError(t, err)
	assert.Equal(t, data, got)
	assert.Equal(t, int64(len(data)), obj.Size)
	assert.Equal(t, "audio/mpeg", obj.ContentType)

	_, err = store.Put(ctx, key, bytes.NewReader([]byte("other")), 5, "audio/mpeg")
	assert.ErrorIs(t, err, objectstore.ErrExists)

	_, err = store.Get(ctx, "audio/missing.mp3")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	again, err := objectstore.NewNatsStore(js, "episodes", "http://localhost:8000")
	require.NoError(t, err, "binding to an existing bucket succeeds")
	_, err = again.Get(ctx, key)
	assert.NoError(t, err)
}

func TestNatsStoreSizeMismatchLeavesNothing(t *testing.T) {
	t.Parallel()

	srv, nc := startNATS(t)
	defer srv.Shutdown()
	defer nc.Close()

	js, err := nc.JetStream()
	require.NoError(t, err)
	store, err := objectstore.NewNatsStore(js, "episodes", "http://localhost:8000")
	require.NoError(t, err)

	ctx := context.Background()
	key := objectstore.AudioKey("01HZZ")

	_, err = store.Put(ctx, key, strings.NewReader("short"), 999, "audio/mpeg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "expected 999")

	_, err = store.Get(ctx, key)
	assert.ErrorIs(t, err, objectstore.ErrNotFound)

	_, err = store.Put(ctx, key, strings.NewReader("short"), 5, "audio/mpeg")
	assert.NoError(t, err, "the key is free again after a failed write")
}

func TestFileStore(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := objectstore.NewFileStore(dir, "https://cdn.example.com")
	require.NoError(t, err)

	ctx := context.Background()
	url, err := store.Put(ctx, "audio/ep1.mp3", strings.NewReader("abc"), 3, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio/ep1.mp3", url)

	_, err = store.Put(ctx, "audio/ep1.mp3", strings.NewReader("xyz"), 3, "audio/mpeg")
	assert.ErrorIs(t, err, objectstore.ErrExists)

	obj, err := store.Get(ctx, "audio/ep1.mp3")
	require.NoError(t, err)
	defer obj.Body.Close()
	got, _ := io.ReadAll(obj.Body)
	assert.Equal(t, "abc", string(got))
	assert.Equal(t, "audio/mpeg", obj.ContentType)

	_, err = store.Put(ctx, "../escape.mp3", strings.NewReader("x"), 1, "audio/mpeg")
	assert.ErrorContains(t, err, "invalid object key")

	_, err = store.Get(ctx, "audio/none.mp3")
	assert.ErrorIs(t, err, objectstore.ErrNotFound)
}

func TestFileStoreDefaultURL(t *testing.T) {
	store, err := objectstore.NewFileStore(t.TempDir(), "")
	require.NoError(t, err)
	url, err := store.Put(context.Background(), "a.mp3", strings.NewReader("x"), 1, "audio/mpeg")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(url, "file://"))
	assert.True(t, strings.HasSuffix(url, "/a.mp3"))
}

// fakeS3 records PutObject requests and rejects overwrites the way S3 does
// for If-None-Match: *.
type fakeS3 struct {
	mu      sync.Mutex
	objects map[string][]byte
	headers http.Header
}

func (f *fakeS3) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if r.Method != http.MethodPut {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	f.headers = r.Header.Clone()
	if _, ok := f.objects[r.URL.Path]; ok && r.Header.Get("If-None-Match") == "*" {
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`<Error><Code>PreconditionFailed</Code><Message>exists</Message></Error>`))
		return
	}
	body, _ := io.ReadAll(r.Body)
	f.objects[r.URL.Path] = body
	w.Header().Set("ETag", `"etag"`)
	w.WriteHeader(http.StatusOK)
}

func newTestS3(t *testing.T, endpoint string) *s3.Client {
	t.Helper()
	return s3.New(s3.Options{
		Region:                     "us-east-1",
		BaseEndpoint:               aws.String(endpoint),
		UsePathStyle:               true,
		Credentials:                credentials.NewStaticCredentialsProvider("AKID", "SECRET", ""),
		RequestChecksumCalculation: aws.RequestChecksumCalculationWhenRequired,
	})
}

func TestS3StorePut(t *testing.T) {
	t.Parallel()

	fake := &fakeS3{objects: map[string][]byte{}}
	srv := httptest.NewServer(fake)
	defer srv.Close()

	store := objectstore.NewS3Store(newTestS3(t, srv.URL), "papers", "https://cdn.example.com")
	ctx := context.Background()
	data := []byte("ID3 payload")

	url, err := store.Put(ctx, "audio/ep.mp3", bytes.NewReader(data), int64(len(data)), "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/audio/ep.mp3", url)
	assert.Contains(t, string(fake.objects["/papers/audio/ep.mp3"]), "ID3 payload")
	assert.Equal(t, "audio/mpeg", fake.headers.Get("Content-Type"))
	assert.Equal(t, "*", fake.headers.Get("If-None-Match"))

	_, err = store.Put(ctx, "audio/ep.mp3", bytes.NewReader(data), int64(len(data)), "audio/mpeg")
	assert.ErrorIs(t, err, objectstore.ErrExists)
}

func TestS3StoreDefaultURL(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(&fakeS3{objects: map[string][]byte{}})
	defer srv.Close()

	store := objectstore.NewS3Store(newTestS3(t, srv.URL), "papers", "")
	url, err := store.Put(context.Background(), objectstore.AudioKey("x"), strings.NewReader("a"), 1, "audio/mpeg")
	require.NoError(t, err)
	assert.Equal(t, "https://papers.s3.amazonaws.com/audio/x.mp3", url)
}
