package app

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/nats-io/nats.go"

	"github.com/apresai/papercast/internal/assembly"
	"github.com/apresai/papercast/internal/config"
	"github.com/apresai/papercast/internal/objectstore"
	"github.com/apresai/papercast/internal/store"
)

// PublicBaseURL is where this process serves /audio/ for backends without
// their own public endpoint.
func PublicBaseURL(cfg config.Config) string {
	if cfg.HTTP.PublicBaseURL != "" {
		return cfg.HTTP.PublicBaseURL
	}
	return "http://localhost:" + strconv.Itoa(cfg.HTTP.Port)
}

// OpenObjectStore returns the configured artifact store. The Reader is set
// when audio must be served back out through this process; S3 artifacts
// go through the CDN instead. js is only used by the nats backend.
func OpenObjectStore(cfg config.Config, awsCfg aws.Config, js nats.JetStreamContext) (assembly.ObjectStore, objectstore.Reader, error) {
	switch cfg.Storage.Backend {
	case "s3":
		return objectstore.NewS3Store(s3.NewFromConfig(awsCfg), cfg.Storage.Bucket, cfg.Storage.CDNBaseURL), nil, nil
	case "nats":
		if js == nil {
			return nil, nil, errors.New("storage.backend=nats needs a bus connection")
		}
		ns, err := objectstore.NewNatsStore(js, cfg.Storage.Bucket, PublicBaseURL(cfg))
		if err != nil {
			return nil, nil, err
		}
		return ns, ns, nil
	case "file":
		fs, err := objectstore.NewFileStore(cfg.Storage.Dir, PublicBaseURL(cfg))
		if err != nil {
			return nil, nil, err
		}
		return fs, fs, nil
	}
	return nil, nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
}

// OpenStore returns the configured episode record store.
func OpenStore(ctx context.Context, cfg config.Config, awsCfg aws.Config) (store.Store, error) {
	switch cfg.Store.Backend {
	case "dynamodb":
		return store.NewDynamoStore(dynamodb.NewFromConfig(awsCfg), cfg.Store.Table), nil
	case "sqlite":
		return store.OpenSQLite(ctx, cfg.Store.Path)
	}
	return nil, fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
}
