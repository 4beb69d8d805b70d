package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
)

// NatsStore keeps artifacts in a JetStream object bucket. Objects are served
// over HTTP by the server's audio handler, so URLs point at publicBaseURL.
type NatsStore struct {
	bucket        string
	store         nats.ObjectStore
	publicBaseURL string
}

// NewNatsStore creates the bucket, or binds to it if it already exists.
func NewNatsStore(js nats.JetStreamContext, bucket, publicBaseURL string) (*NatsStore, error) {
	store, err := js.CreateObjectStore(&nats.ObjectStoreConfig{
		Bucket:      bucket,
		Description: "Episode audio artifacts.",
		Storage:     nats.FileStorage,
		Replicas:    1,
	})
	if err != nil {
		if !errors.Is(err, jetstream.ErrBucketExists) && !errors.Is(err, nats.ErrStreamNameAlreadyInUse) {
			return nil, fmt.Errorf("create object store bucket %q: %w", bucket, err)
		}
		store, err = js.ObjectStore(bucket)
		if err != nil {
			return nil, fmt.Errorf("bind object store bucket %q: %w", bucket, err)
		}
	}
	return &NatsStore{bucket: bucket, store: store, publicBaseURL: publicBaseURL}, nil
}

func (n *NatsStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	if _, err := n.store.GetInfo(key, nats.Context(ctx)); err == nil {
		return "", fmt.Errorf("bucket %s key %s: %w", n.bucket, key, ErrExists)
	} else if !errors.Is(err, nats.ErrObjectNotFound) {
		return "", fmt.Errorf("stat object %q in bucket %q: %w", key, n.bucket, err)
	}

	meta := &nats.ObjectMeta{
		Name:    key,
		Headers: nats.Header{"Content-Type": []string{contentType}},
	}
	info, err := n.store.Put(meta, body, nats.Context(ctx))
	if err != nil {
		return "", fmt.Errorf("put object %q to bucket %q: %w", key, n.bucket, err)
	}
	if size > 0 && int64(info.Size) != size {
		err := fmt.Errorf("put object %q: wrote %d bytes, expected %d", key, info.Size, size)
		if derr := n.store.Delete(key); derr != nil {
			return "", errors.Join(err, fmt.Errorf("remove short object: %w", derr))
		}
		return "", err
	}
	return joinURL(n.publicBaseURL, key), nil
}

func (n *NatsStore) Get(ctx context.Context, key string) (*Object, error) {
	res, err := n.store.Get(key, nats.Context(ctx))
	if err != nil {
		if errors.Is(err, nats.ErrObjectNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get object %q from bucket %q: %w", key, n.bucket, err)
	}
	info, err := res.Info()
	if err != nil {
		res.Close()
		return nil, fmt.Errorf("object info %q: %w", key, err)
	}
	ct := "application/octet-stream"
	if info.Headers != nil && info.Headers.Get("Content-Type") != "" {
		ct = info.Headers.Get("Content-Type")
	}
	return &Object{Body: res, Size: int64(info.Size), ContentType: ct}, nil
}
