// Package filex provides destination-directory checks and the staged
// part-file writer transfer workers stream into.
package filex

import (
	"fmt"
	"os"
	"path/filepath"
)

// EnsureDir creates dir and any missing parents.
func EnsureDir(dir string) (string, error) {
	if err := os.MkdirAll(dir, 0o770); err != nil {
		return "", fmt.Errorf("mkdir %s: %w", dir, err)
	}
	return dir, nil
}

// CheckWritableDir verifies that dir exists, is a directory and that the
// process can create files in it.
func CheckWritableDir(dir string) error {
	fi, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("stat %s: %w", dir, err)
	}
	if !fi.IsDir() {
		return fmt.Errorf("%s: not a directory", dir)
	}

	probe, err := os.CreateTemp(dir, ".writable-*")
	if err != nil {
		return fmt.Errorf("%s: not writable: %w", dir, err)
	}
	name := probe.Name()
	probe.Close()
	return os.Remove(name)
}

// PartFile stages a download next to its destination and promotes it only
// on Commit. Abort, or an error exit with a deferred Abort, removes the
// staged bytes so a failed transfer leaves nothing behind.
type PartFile struct {
	f    *os.File
	dest string
	done bool
}

// CreatePart opens the staging file for dest, truncating a leftover one
// from an earlier interrupted run.
func CreatePart(dest string) (*PartFile, error) {
	f, err := os.OpenFile(partName(dest), os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o660)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", partName(dest), err)
	}
	return &PartFile{f: f, dest: dest}, nil
}

func partName(dest string) string {
	return dest + ".part"
}

func (p *PartFile) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// Commit closes the staging file and moves it into place.
func (p *PartFile) Commit() error {
	if p.done {
		return nil
	}
	p.done = true

	if err := p.f.Close(); err != nil {
		os.Remove(p.f.Name())
		return fmt.Errorf("close %s: %w", p.f.Name(), err)
	}
	if err := os.Rename(p.f.Name(), p.dest); err != nil {
		os.Remove(p.f.Name())
		return fmt.Errorf("rename %s: %w", p.f.Name(), err)
	}
	return nil
}

// Abort discards the staged file. Calling it after Commit is a no-op, so
// it is safe to defer.
func (p *PartFile) Abort() {
	if p.done {
		return
	}
	p.done = true
	p.f.Close()
	os.Remove(p.f.Name())
}

// Dest returns the final path the part file will be promoted to.
func (p *PartFile) Dest() string {
	return p.dest
}

// Path returns the staging path holding the bytes before Commit. Verification
// reads it so a file that fails its checks never reaches the destination.
func (p *PartFile) Path() string {
	return p.f.Name()
}

// SubPath joins dir with the given relative elements, skipping empties.
func SubPath(dir string, elems ...string) string {
	parts := []string{dir}
	for _, e := range elems {
		if e != "" {
			parts = append(parts, e)
		}
	}
	return filepath.Join(parts...)
}
