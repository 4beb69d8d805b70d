// Package plays tallies episode downloads from CDN access logs into the
// episode store.
package plays

import (
	"bufio"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/papercast/internal/store"
)

// CheckpointName marks the newest log object already counted.
const CheckpointName = "play-counter"

// audioPathRe matches /audio/{ULID}.mp3 request paths.
var audioPathRe = regexp.MustCompile(`^/audio/([0-9A-HJKMNP-TV-Z]{26})\.mp3$`)

// ParseLog counts successful audio GETs per episode in a CloudFront
// standard log. Fields: date time x-edge-location sc-bytes c-ip cs-method
// cs(Host) cs-uri-stem sc-status ...
func ParseLog(r io.Reader) (map[string]int, error) {
	counts := make(map[string]int)
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasPrefix(line, "#") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		method, path, status := fields[5], fields[7], fields[8]
		if method != "GET" || (status != "200" && status != "206") {
			continue
		}
		if m := audioPathRe.FindStringSubmatch(path); m != nil {
			counts[m[1]]++
		}
	}
	return counts, scanner.Err()
}

// S3API is the subset of the S3 client the counter reads logs with.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Counter reads new log objects and adds their plays to the store.
type Counter struct {
	S3     S3API
	Store  store.Store
	Bucket string
	Prefix string
	Log    *slog.Logger
}

// Summary reports one run.
type Summary struct {
	Files    int
	Episodes int
	Plays    int
}

// Run counts every log object modified after the checkpoint, then moves
// the checkpoint to the newest object seen. Unreadable files are logged
// and skipped.
func (c *Counter) Run(ctx context.Context) (Summary, error) {
	var sum Summary

	last, err := c.Store.Checkpoint(ctx, CheckpointName)
	if err != nil {
		return sum, fmt.Errorf("read checkpoint: %w", err)
	}
	var since time.Time
	if last != "" {
		if since, err = time.Parse(time.RFC3339Nano, last); err != nil {
			return sum, fmt.Errorf("parse checkpoint %q: %w", last, err)
		}
	}
	c.Log.InfoContext(ctx, "counting plays", "bucket", c.Bucket, "prefix", c.Prefix, "since", last)

	totals := make(map[string]int)
	newest := since
	paginator := s3.NewListObjectsV2Paginator(c.S3, &s3.ListObjectsV2Input{
		Bucket: &c.Bucket,
		Prefix: &c.Prefix,
	})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return sum, fmt.Errorf("list log objects: %w", err)
		}
		for _, obj := range page.Contents {
			if obj.Key == nil || obj.LastModified == nil || !obj.LastModified.After(since) {
				continue
			}
			counts, err := c.countObject(ctx, *obj.Key)
			if err != nil {
				c.Log.WarnContext(ctx, "skip log file", "key", *obj.Key, "error", err)
				continue
			}
			for id, n := range counts {
				totals[id] += n
			}
			sum.Files++
			if obj.LastModified.After(newest) {
				newest = *obj.LastModified
			}
		}
	}

	for id, n := range totals {
		if err := c.Store.AddPlays(ctx, id, n); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				c.Log.InfoContext(ctx, "plays for unknown episode", "episode_id", id, "plays", n)
				continue
			}
			return sum, fmt.Errorf("add plays for %s: %w", id, err)
		}
		sum.Episodes++
		sum.Plays += n
	}

	if newest.After(since) {
		if err := c.Store.SetCheckpoint(ctx, CheckpointName, newest.UTC().Format(time.RFC3339Nano)); err != nil {
			return sum, fmt.Errorf("write checkpoint: %w", err)
		}
	}
	c.Log.InfoContext(ctx, "plays counted", "files", sum.Files, "episodes", sum.Episodes, "plays", sum.Plays)
	return sum, nil
}

func (c *Counter) countObject(ctx context.Context, key string) (map[string]int, error) {
	out, err := c.S3.GetObject(ctx, &s3.GetObjectInput{Bucket: &c.Bucket, Key: &key})
	if err != nil {
		return nil, fmt.Errorf("get object: %w", err)
	}
	defer out.Body.Close()

	var r io.Reader = out.Body
	if strings.HasSuffix(key, ".gz") {
		gz, err := gzip.NewReader(out.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip reader: %w", err)
		}
		defer gz.Close()
		r = gz
	}
	return ParseLog(r)
}
