// Package storage publishes finalized snapshots to a blob backend (local
// filesystem, S3-compatible, or GCS) and reads the previous snapshot back for
// incremental crawls. Timestamped artifacts are written first; the _latest
// aliases are only refreshed once every timestamped write is durable.
package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"time"

	"github.com/klauspost/compress/zstd"
	"gocloud.dev/blob"
	"gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/gcsblob" // GCS driver
	_ "gocloud.dev/blob/s3blob"  // S3 driver
	"gocloud.dev/gcerrors"

	"github.com/hyz2023/odps-crawler/internal/snapshot"
)

var (
	// ErrNoSnapshot is returned by ReadLatest when no prior snapshot exists.
	ErrNoSnapshot = errors.New("no prior snapshot found")
)

// FinalizeError marks a failure while publishing the crawl result. It is
// fatal: a run whose artifacts cannot be written has produced nothing.
type FinalizeError struct {
	Key string
	Err error
}

func (e *FinalizeError) Error() string {
	return fmt.Sprintf("finalize snapshot: write %s: %v", e.Key, e.Err)
}

func (e *FinalizeError) Unwrap() error { return e.Err }

// Config configures the snapshot store backend.
type Config struct {
	Backend string // "local" | "s3" | "gcs"

	// Local filesystem
	LocalDir string

	// S3 (also works for OSS, B2, R2, MinIO)
	S3Bucket   string
	S3Endpoint string
	S3Region   string

	// GCS
	GCSBucket string

	// Common
	Prefix   string // key prefix within the bucket or local dir
	Compress bool   // zstd-compress the metadata snapshot
	Parquet  bool   // also write the column listing as parquet
}

// Store publishes snapshot artifacts to one blob bucket.
type Store struct {
	bucket   *blob.Bucket
	compress bool
	parquet  bool
}

// Open creates a snapshot store based on configuration.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	var (
		bucket *blob.Bucket
		err    error
	)
	switch cfg.Backend {
	case "", "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "odps_metadata"
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("create output directory %s: %w", dir, err)
		}
		// No sidecar .attrs files; the output directory holds artifacts only.
		bucket, err = fileblob.OpenBucket(dir, &fileblob.Options{Metadata: fileblob.MetadataDontWrite})
		if err != nil {
			return nil, fmt.Errorf("open local bucket %s: %w", dir, err)
		}
	case "s3":
		if cfg.S3Bucket == "" {
			return nil, fmt.Errorf("s3 bucket required for s3 backend")
		}
		bucketURL := fmt.Sprintf("s3://%s", cfg.S3Bucket)
		params := url.Values{}
		if cfg.S3Region != "" {
			params.Set("region", cfg.S3Region)
		}
		if cfg.S3Endpoint != "" {
			params.Set("endpoint", cfg.S3Endpoint)
			params.Set("s3ForcePathStyle", "true")
		}
		if len(params) > 0 {
			bucketURL = bucketURL + "?" + params.Encode()
		}
		bucket, err = blob.OpenBucket(ctx, bucketURL)
		if err != nil {
			return nil, fmt.Errorf("open S3 bucket %s: %w", cfg.S3Bucket, err)
		}
	case "gcs":
		if cfg.GCSBucket == "" {
			return nil, fmt.Errorf("gcs bucket required for gcs backend")
		}
		bucket, err = blob.OpenBucket(ctx, fmt.Sprintf("gs://%s", cfg.GCSBucket))
		if err != nil {
			return nil, fmt.Errorf("open GCS bucket %s: %w", cfg.GCSBucket, err)
		}
	default:
		return nil, fmt.Errorf("unknown storage backend: %s", cfg.Backend)
	}

	if cfg.Prefix != "" {
		bucket = blob.PrefixedBucket(bucket, cfg.Prefix)
	}

	return &Store{
		bucket:   bucket,
		compress: cfg.Compress,
		parquet:  cfg.Parquet,
	}, nil
}

// Artifacts names every object one finalize produced.
type Artifacts struct {
	Metadata       string
	Columns        string
	ColumnsParquet string // empty unless parquet output is enabled
	Summary        string
	MetadataLatest string
	ColumnsLatest  string
}

func (s *Store) metadataKey(ts string) string {
	if s.compress {
		return fmt.Sprintf("metadata_%s.json.zst", ts)
	}
	return fmt.Sprintf("metadata_%s.json", ts)
}

// Finalize publishes the snapshot and its derived views. The timestamped
// objects land first; only after all of them are durable do the _latest
// aliases get refreshed, so a reader of _latest never sees a half-published
// crawl. Any failure is a FinalizeError.
func (s *Store) Finalize(ctx context.Context, snap *snapshot.Snapshot) (*Artifacts, error) {
	ts := snap.CrawlTime
	art := &Artifacts{
		Metadata:       s.metadataKey(ts),
		Columns:        fmt.Sprintf("columns_%s.csv", ts),
		Summary:        fmt.Sprintf("summary_%s.json", ts),
		MetadataLatest: s.metadataKey("latest"),
		ColumnsLatest:  "columns_latest.csv",
	}

	metaBytes, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return nil, &FinalizeError{Key: art.Metadata, Err: err}
	}
	if s.compress {
		if metaBytes, err = compress(metaBytes); err != nil {
			return nil, &FinalizeError{Key: art.Metadata, Err: err}
		}
	}
	if err := s.bucket.WriteAll(ctx, art.Metadata, metaBytes, nil); err != nil {
		return nil, &FinalizeError{Key: art.Metadata, Err: err}
	}

	rows := snapshot.Flatten(snap)
	var csvBuf bytes.Buffer
	if err := snapshot.WriteCSV(&csvBuf, rows); err != nil {
		return nil, &FinalizeError{Key: art.Columns, Err: err}
	}
	if err := s.bucket.WriteAll(ctx, art.Columns, csvBuf.Bytes(), nil); err != nil {
		return nil, &FinalizeError{Key: art.Columns, Err: err}
	}

	if s.parquet {
		art.ColumnsParquet = fmt.Sprintf("columns_%s.parquet", ts)
		var pqBuf bytes.Buffer
		if err := snapshot.WriteParquet(&pqBuf, rows); err != nil {
			return nil, &FinalizeError{Key: art.ColumnsParquet, Err: err}
		}
		if err := s.bucket.WriteAll(ctx, art.ColumnsParquet, pqBuf.Bytes(), nil); err != nil {
			return nil, &FinalizeError{Key: art.ColumnsParquet, Err: err}
		}
	}

	sumBytes, err := json.MarshalIndent(snapshot.Summarize(snap), "", "  ")
	if err != nil {
		return nil, &FinalizeError{Key: art.Summary, Err: err}
	}
	if err := s.bucket.WriteAll(ctx, art.Summary, sumBytes, nil); err != nil {
		return nil, &FinalizeError{Key: art.Summary, Err: err}
	}

	// Every timestamped artifact is durable; now refresh the aliases.
	if err := s.bucket.Copy(ctx, art.MetadataLatest, art.Metadata, nil); err != nil {
		return nil, &FinalizeError{Key: art.MetadataLatest, Err: err}
	}
	if err := s.bucket.Copy(ctx, art.ColumnsLatest, art.Columns, nil); err != nil {
		return nil, &FinalizeError{Key: art.ColumnsLatest, Err: err}
	}

	return art, nil
}

// ReadLatest loads the previous snapshot via the metadata_latest alias. Both
// the plain and zstd-compressed forms are tried, so toggling compression
// between runs does not lose the prior state.
func (s *Store) ReadLatest(ctx context.Context) (*snapshot.Snapshot, error) {
	for _, key := range []string{"metadata_latest.json", "metadata_latest.json.zst"} {
		data, err := s.bucket.ReadAll(ctx, key)
		if err != nil {
			if gcerrors.Code(err) == gcerrors.NotFound {
				continue
			}
			return nil, fmt.Errorf("read %s: %w", key, err)
		}
		if key == "metadata_latest.json.zst" {
			if data, err = decompress(data); err != nil {
				return nil, fmt.Errorf("decompress %s: %w", key, err)
			}
		}
		var snap snapshot.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			return nil, fmt.Errorf("parse %s: %w", key, err)
		}
		return &snap, nil
	}
	return nil, ErrNoSnapshot
}

// List returns the stored object keys, newest first by modification time.
func (s *Store) List(ctx context.Context) ([]string, error) {
	type entry struct {
		key string
		mod time.Time
	}
	var entries []entry
	iter := s.bucket.List(nil)
	for {
		obj, err := iter.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("list objects: %w", err)
		}
		if obj.IsDir {
			continue
		}
		entries = append(entries, entry{key: obj.Key, mod: obj.ModTime})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].mod.After(entries[j].mod) })
	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.key)
	}
	return keys, nil
}

// Close releases the bucket connection.
func (s *Store) Close() error {
	if s.bucket != nil {
		return s.bucket.Close()
	}
	return nil
}

func compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	enc, err := zstd.NewWriter(&buf)
	if err != nil {
		return nil, err
	}
	if _, err := enc.Write(data); err != nil {
		enc.Close()
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, err
	}
	defer dec.Close()
	return dec.DecodeAll(data, nil)
}
