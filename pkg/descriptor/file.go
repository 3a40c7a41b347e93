package descriptor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/matzehuels/atlaspack/pkg/errors"
)

// WriteFile encodes d to path atomically: it writes a temporary file in the
// same directory and renames it over path, so readers never observe a
// partially written descriptor.
func WriteFile(fs afero.Fs, path string, d *Descriptor) error {
	if err := validate(d); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path), "."+filepath.Base(path)+"."+uuid.NewString()+".tmp")
	f, err := fs.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return errors.Wrap(errors.ErrCodeEncode, err, "create %s", path)
	}

	if err := Encode(f, d); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return err
	}
	if err := f.Sync(); err != nil {
		f.Close()
		_ = fs.Remove(tmp)
		return errors.Wrap(errors.ErrCodeEncode, err, "sync %s", path)
	}
	if err := f.Close(); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrap(errors.ErrCodeEncode, err, "close %s", path)
	}
	if err := fs.Rename(tmp, path); err != nil {
		_ = fs.Remove(tmp)
		return errors.Wrap(errors.ErrCodeEncode, err, "commit %s", path)
	}
	return nil
}

// ReadFile opens path and decodes it. A missing file is NOT_FOUND so
// callers can tell "never built" apart from "corrupt".
func ReadFile(fs afero.Fs, path string) (*Descriptor, error) {
	f, err := fs.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.Wrap(errors.ErrCodeNotFound, err, "descriptor %s", path)
		}
		return nil, errors.Wrap(errors.ErrCodeInvalidFormat, err, "open descriptor %s", path)
	}
	defer f.Close()

	d, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}
