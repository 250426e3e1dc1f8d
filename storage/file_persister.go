package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/afero"
)

// FilePersister will persist files. It abstracts away the where and how of
// writing files to the source destination.
type FilePersister interface {
	Persist(ctx context.Context, path string, data io.Reader) error
}

var _ FilePersister = &LocalFilePersister{}

// LocalFilePersister will persist files under BaseDir on Fs.
type LocalFilePersister struct {
	Fs      afero.Fs
	BaseDir string
}

// NewLocalFilePersister returns a persister writing to baseDir on the local
// disk.
func NewLocalFilePersister(baseDir string) *LocalFilePersister {
	return &LocalFilePersister{
		Fs:      afero.NewOsFs(),
		BaseDir: baseDir,
	}
}

// Persist will write the contents of data to path, relative to BaseDir.
// Paths leaving BaseDir are rejected.
func (l *LocalFilePersister) Persist(ctx context.Context, path string, data io.Reader) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	cp, err := l.resolve(path)
	if err != nil {
		return err
	}

	dir := filepath.Dir(cp)
	if err = l.Fs.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating a local directory %q: %w", dir, err)
	}

	f, err := l.Fs.OpenFile(cp, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("creating a local file %q: %w", cp, err)
	}
	defer func() {
		tempErr := f.Close()
		// Only return the close error if there isn't already an existing error.
		if tempErr != nil && err == nil {
			err = fmt.Errorf("closing the local file %q: %w", cp, tempErr)
		}
	}()

	if _, err = io.Copy(f, data); err != nil {
		return fmt.Errorf("writing the local file %q: %w", cp, err)
	}

	return nil
}

// PersistJSON writes v as indented JSON to path.
func (l *LocalFilePersister) PersistJSON(ctx context.Context, path string, v interface{}) error {
	buf, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling %q: %w", path, err)
	}

	return l.Persist(ctx, path, strings.NewReader(string(buf)+"\n"))
}

func (l *LocalFilePersister) resolve(path string) (string, error) {
	if l.BaseDir == "" {
		return filepath.Clean(path), nil
	}

	rel := filepath.Clean(path)
	if filepath.IsAbs(rel) || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path %q is outside of %q", path, l.BaseDir)
	}

	return filepath.Join(l.BaseDir, rel), nil
}
