package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// rollingFile appends to one log file and, when it grows past maxSize,
// renames it to "<path>.old" and starts fresh. One generation of
// history is enough for a tool whose logs exist for postmortems, not
// auditing, and it keeps disk usage bounded at 2x maxSize without a
// numbered-rotation scheme.
type rollingFile struct {
	mu      sync.Mutex
	path    string
	maxSize int64
	file    *os.File
	size    int64
}

func newRollingFile(path string, maxSize int64) (*rollingFile, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("logging: create log dir: %w", err)
	}
	w := &rollingFile{path: path, maxSize: maxSize}
	if err := w.open(); err != nil {
		return nil, err
	}
	return w, nil
}

func (w *rollingFile) open() error {
	f, err := os.OpenFile(w.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("logging: open log file: %w", err)
	}
	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return fmt.Errorf("logging: stat log file: %w", err)
	}
	w.file = f
	w.size = info.Size()
	return nil
}

func (w *rollingFile) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.size+int64(len(p)) > w.maxSize {
		// Best effort: a failed rename keeps appending to the oversized
		// file rather than dropping the record.
		if err := w.roll(); err != nil {
			w.size = 0
		}
	}
	if w.file == nil {
		return 0, fmt.Errorf("logging: log file unavailable after failed roll")
	}

	n, err := w.file.Write(p)
	w.size += int64(n)
	return n, err
}

// roll closes the current file, moves it aside, and reopens fresh. The
// previous ".old" generation, if any, is overwritten by the rename. On
// a failed rename the original file is reopened so writes continue.
func (w *rollingFile) roll() error {
	if err := w.file.Close(); err != nil {
		return err
	}
	renameErr := os.Rename(w.path, w.path+".old")
	w.file = nil
	if err := w.open(); err != nil {
		return err
	}
	return renameErr
}

func (w *rollingFile) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.file.Close()
}
