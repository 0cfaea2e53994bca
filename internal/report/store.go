// Package report persists analysis reports to the local filesystem and,
// optionally, to an S3-compatible bucket.
package report

import (
	"context"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/Iron-Ham/monosplit/internal/config"
	"github.com/Iron-Ham/monosplit/internal/errors"
)

// Store persists one report document and returns where it was written.
type Store interface {
	Put(ctx context.Context, runID string, data []byte) (location string, err error)
}

// FileStore writes the report to a fixed path, replacing any previous run.
type FileStore struct {
	fs   afero.Fs
	path string
}

// NewFileStore creates a FileStore writing to path on fsys.
func NewFileStore(fsys afero.Fs, path string) *FileStore {
	return &FileStore{fs: fsys, path: path}
}

// Put writes data to a temporary file and renames it into place.
func (s *FileStore) Put(ctx context.Context, _ string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if dir := filepath.Dir(s.path); dir != "." {
		if err := s.fs.MkdirAll(dir, 0o755); err != nil {
			return "", errors.Wrapf(err, "create report directory %s", dir)
		}
	}

	tmp := s.path + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return "", errors.Wrapf(err, "write report %s", tmp)
	}
	if err := s.fs.Rename(tmp, s.path); err != nil {
		_ = s.fs.Remove(tmp)
		return "", errors.Wrapf(err, "move report into place at %s", s.path)
	}
	return s.path, nil
}

// MultiStore writes to every store in order and stops at the first failure.
type MultiStore []Store

// Put writes data to each store and returns the first location.
func (m MultiStore) Put(ctx context.Context, runID string, data []byte) (string, error) {
	first := ""
	for _, s := range m {
		loc, err := s.Put(ctx, runID, data)
		if err != nil {
			return first, err
		}
		if first == "" {
			first = loc
		}
	}
	return first, nil
}

// Locations writes data to each store and returns every location.
func (m MultiStore) Locations(ctx context.Context, runID string, data []byte) ([]string, error) {
	locations := make([]string, 0, len(m))
	for _, s := range m {
		loc, err := s.Put(ctx, runID, data)
		if err != nil {
			return locations, err
		}
		locations = append(locations, loc)
	}
	return locations, nil
}

// NewFromConfig builds the configured stores: always the local file, plus
// the S3 store when enabled. A relative path is resolved against the
// working directory.
func NewFromConfig(cfg config.ReportConfig) (MultiStore, error) {
	path := cfg.Path
	if path == "" {
		path = "monorepo_analysis.json"
	}
	if !filepath.IsAbs(path) {
		wd, err := os.Getwd()
		if err != nil {
			return nil, errors.Wrap(err, "resolve report path")
		}
		path = filepath.Join(wd, path)
	}

	stores := MultiStore{NewFileStore(afero.NewOsFs(), path)}
	if cfg.S3.Enabled {
		s3, err := NewS3Store(S3Config{
			Endpoint:  cfg.S3.Endpoint,
			Region:    cfg.S3.Region,
			AccessKey: cfg.S3.AccessKey,
			SecretKey: cfg.S3.SecretKey,
			Bucket:    cfg.S3.Bucket,
			UseSSL:    cfg.S3.UseSSL,
			Prefix:    cfg.S3.Prefix,
		})
		if err != nil {
			return nil, err
		}
		stores = append(stores, s3)
	}
	return stores, nil
}
