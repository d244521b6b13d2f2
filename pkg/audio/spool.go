package audio

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Spool hands out scoped temporary files for captured audio. Every file
// obtained from [Spool.Write] must be released with [SpoolFile.Release],
// which is safe to call more than once.
type Spool struct {
	dir string
}

// NewSpool returns a Spool rooted at dir. An empty dir uses [os.TempDir].
// The directory is created if missing.
func NewSpool(dir string) (*Spool, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("audio: create spool dir: %w", err)
	}
	return &Spool{dir: dir}, nil
}

// Dir returns the spool's root directory.
func (s *Spool) Dir() string { return s.dir }

// Write stores the capture in a fresh temporary file. The file name carries
// the capture's extension so downstream services can sniff the container.
func (s *Spool) Write(c Capture) (*SpoolFile, error) {
	f, err := os.CreateTemp(s.dir, "capture-*"+c.Ext())
	if err != nil {
		return nil, fmt.Errorf("audio: create spool file: %w", err)
	}
	path := f.Name()
	if _, err := f.Write(c.Data); err != nil {
		f.Close()
		os.Remove(path)
		return nil, fmt.Errorf("audio: write spool file: %w", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("audio: close spool file: %w", err)
	}
	return &SpoolFile{path: path}, nil
}

// SpoolFile is one spooled capture.
type SpoolFile struct {
	path string
	once sync.Once
	err  error
}

// Path returns the absolute file path.
func (f *SpoolFile) Path() string { return f.path }

// Name returns the file's base name, e.g. "capture-123.wav".
func (f *SpoolFile) Name() string { return filepath.Base(f.path) }

// ReadAll reads the spooled bytes back.
func (f *SpoolFile) ReadAll() ([]byte, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("audio: read spool file: %w", err)
	}
	return data, nil
}

// Release removes the file. A file that is already gone is not an error.
func (f *SpoolFile) Release() error {
	f.once.Do(func() {
		if err := os.Remove(f.path); err != nil && !os.IsNotExist(err) {
			f.err = fmt.Errorf("audio: release spool file: %w", err)
		}
	})
	return f.err
}
