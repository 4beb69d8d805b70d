package objectstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/aws/aws-sdk-go-v2/aws"
	awshttp "github.com/aws/aws-sdk-go-v2/aws/transport/http"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// S3Store uploads artifacts to an S3 bucket fronted by a CDN.
type S3Store struct {
	client     *s3.Client
	bucket     string
	cdnBaseURL string // e.g. "https://podcasts.example.com"
}

// NewS3Store creates an S3 store. With no CDN the bucket's virtual-hosted
// URL is used.
func NewS3Store(client *s3.Client, bucket, cdnBaseURL string) *S3Store {
	if cdnBaseURL == "" {
		cdnBaseURL = fmt.Sprintf("https://%s.s3.amazonaws.com", bucket)
	}
	return &S3Store{client: client, bucket: bucket, cdnBaseURL: cdnBaseURL}
}

// Put uploads body under key and returns its public URL. The write is
// conditional on the key not existing.
func (s *S3Store) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) (string, error) {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(size),
		IfNoneMatch:   aws.String("*"),
	})
	if err != nil {
		var re *awshttp.ResponseError
		if errors.As(err, &re) && re.HTTPStatusCode() == http.StatusPreconditionFailed {
			return "", fmt.Errorf("s3 %s: %w", key, ErrExists)
		}
		return "", fmt.Errorf("upload to s3: %w", err)
	}
	return joinURL(s.cdnBaseURL, key), nil
}
