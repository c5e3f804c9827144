// Package filestore keeps uploaded documents on the local disk.
package filestore

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

var ErrInvalidName = errors.New("invalid stored file name")

// LocalStore saves files under `root`, one folder per learner.
type LocalStore struct {
	root string
}

func NewLocalStore(root string) (*LocalStore, error) {
	if err := os.MkdirAll(root, 0o750); err != nil {
		return nil, errors.Wrap(err, "creating uploads dir")
	}
	return &LocalStore{root: root}, nil
}

// path resolves a stored name, refusing names escaping the root.
func (s *LocalStore) path(storedName string) (string, error) {
	clean := filepath.Clean(filepath.FromSlash(storedName))
	if storedName == "" || filepath.IsAbs(clean) || clean == ".." || strings.HasPrefix(clean, ".."+string(filepath.Separator)) {
		return "", ErrInvalidName
	}
	return filepath.Join(s.root, clean), nil
}

// Save writes `r` to a new uuid-named file in the learner's folder and returns its stored name.
// A partially written file is removed.
func (s *LocalStore) Save(ctx context.Context, learnerID, ext string, r io.Reader) (string, error) {
	if learnerID == "" || strings.ContainsAny(learnerID, `/\.`) {
		return "", ErrInvalidName
	}
	name := uuid.New().String()
	if ext != "" {
		name += "." + strings.TrimPrefix(ext, ".")
	}
	storedName := learnerID + "/" + name

	fp, err := s.path(storedName)
	if err != nil {
		return "", err
	}
	if err = os.MkdirAll(filepath.Dir(fp), 0o750); err != nil {
		return "", errors.Wrap(err, "creating learner dir")
	}

	f, err := os.OpenFile(fp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o640)
	if err != nil {
		return "", errors.Wrap(err, "creating file")
	}
	if _, err = io.Copy(f, &ctxReader{ctx: ctx, r: r}); err != nil {
		_ = f.Close()
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "writing file")
	}
	if err = f.Close(); err != nil {
		_ = os.Remove(fp)
		return "", errors.Wrap(err, "closing file")
	}
	return storedName, nil
}

func (s *LocalStore) Open(ctx context.Context, storedName string) (io.ReadCloser, error) {
	fp, err := s.path(storedName)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(fp)
	if err != nil {
		return nil, errors.Wrap(err, "opening file")
	}
	return f, nil
}

// Remove deletes a stored file; removing a missing file is not an error.
func (s *LocalStore) Remove(ctx context.Context, storedName string) error {
	fp, err := s.path(storedName)
	if err != nil {
		return err
	}
	if err = os.Remove(fp); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, "removing file")
	}
	return nil
}

// ctxReader stops reading once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}
