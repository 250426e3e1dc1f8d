package storage

import (
	"fmt"
	"os"
)

const dirPattern = "devtools-scenarios-data-*"

// Dir manages a browser user data directory.
type Dir struct {
	Dir string

	// remove is set when the directory was created by Make and must be
	// deleted on Cleanup.
	remove bool
}

// Make uses dir as the data directory, or creates a new one under tmpDir
// (the OS default when empty) if dir is not set.
func (d *Dir) Make(tmpDir, dir string) error {
	if dir != "" {
		d.Dir = dir
		return nil
	}

	var err error
	if d.Dir, err = os.MkdirTemp(tmpDir, dirPattern); err != nil {
		return fmt.Errorf("creating a temporary user data directory: %w", err)
	}
	d.remove = true

	return nil
}

// Cleanup removes the directory if Make created it.
func (d *Dir) Cleanup() error {
	if !d.remove {
		return nil
	}
	if err := os.RemoveAll(d.Dir); err != nil {
		return fmt.Errorf("removing user data directory %q: %w", d.Dir, err)
	}

	return nil
}
