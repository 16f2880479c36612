package io

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"
)

// WriteFileAtomic writes through write into a temporary file next to path and
// renames it into place. On any failure path is left untouched.
func WriteFileAtomic(path string, write func(w io.Writer) error) (err error) {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return errors.Wrapf(err, "unable to create temporary file in %s", dir)
	}
	tmpName := tmp.Name()
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if err = write(tmp); err != nil {
		return err
	}
	if err = tmp.Sync(); err != nil {
		return errors.Wrap(err, "unable to flush pipeline file")
	}
	if err = tmp.Close(); err != nil {
		return errors.Wrap(err, "unable to close pipeline file")
	}
	if err = os.Rename(tmpName, path); err != nil {
		return errors.Wrapf(err, "unable to move pipeline file to %s", path)
	}
	return nil
}

// ReadFile opens path and hands the reader to read.
func ReadFile(path string, read func(r io.Reader) error) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "unable to open %s", path)
	}
	defer f.Close()
	return read(f)
}
