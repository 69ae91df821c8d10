package persistence

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const defaultFileMode os.FileMode = 0o644

// ErrCorruptDocument is returned when the backing file exists but cannot be decoded.
var ErrCorruptDocument = errors.New("document is not valid JSON")

// JSONFile reads and writes one JSON document as a whole. It does no locking of
// its own; callers serialize access.
type JSONFile struct {
	path string
}

// NewJSONFile returns a handle for path. When the file does not exist it is
// created with the encoding of empty.
func NewJSONFile(path string, empty any) (*JSONFile, error) {
	f := &JSONFile{path: path}
	if _, err := os.Stat(path); err == nil {
		return f, nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating directory for %s: %w", path, err)
		}
	}
	if err := f.Write(empty); err != nil {
		return nil, err
	}
	return f, nil
}

// Path returns the backing file path.
func (f *JSONFile) Path() string {
	return f.path
}

// Read decodes the document into dst. A missing file yields os.ErrNotExist
// and a malformed one ErrCorruptDocument.
func (f *JSONFile) Read(dst any) error {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return fmt.Errorf("reading %s: %w", f.path, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorruptDocument, f.path, err)
	}
	return nil
}

// Write encodes doc in memory, writes it to a temp file in the same directory
// and renames it over the original. On failure the previous file is untouched.
// The replacement keeps the original's permissions, or 0644 for a new file,
// and the directory is synced so the rename itself survives a crash.
func (f *JSONFile) Write(doc any) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding %s: %w", f.path, err)
	}

	tmpFile, err := os.CreateTemp(filepath.Dir(f.path), filepath.Base(f.path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file for %s: %w", f.path, err)
	}
	tmpPath := tmpFile.Name()
	dir := filepath.Dir(f.path)

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("writing %s: %w", tmpPath, err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("syncing %s: %w", tmpPath, err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("closing %s: %w", tmpPath, err)
	}
	if err := os.Chmod(tmpPath, f.targetMode()); err != nil {
		return fmt.Errorf("setting mode on %s: %w", tmpPath, err)
	}
	if err := os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("renaming %s to %s: %w", tmpPath, f.path, err)
	}
	success = true

	if err := syncDir(dir); err != nil {
		return fmt.Errorf("syncing directory of %s: %w", f.path, err)
	}
	return nil
}

func (f *JSONFile) targetMode() os.FileMode {
	info, err := os.Stat(f.path)
	if err != nil {
		return defaultFileMode
	}
	return info.Mode().Perm()
}

func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return err
	}
	return d.Close()
}
