package share

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"
)

// File appends shared readings, one timestamped line each, to a local file.
type File struct {
	mu   sync.Mutex
	path string
}

func NewFile(path string) (*File, error) {
	if path == "" {
		return nil, fmt.Errorf("share: file path is required")
	}
	// Probe writability now so misconfiguration surfaces at startup.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("share: open %s: %w", path, err)
	}
	_ = f.Close()
	return &File{path: path}, nil
}

func (f *File) Name() string { return "file" }

func (f *File) Share(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()

	out, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer out.Close()

	line := fmt.Sprintf("%s %s\n", time.Now().UTC().Format(time.RFC3339), text)
	if _, err := out.WriteString(line); err != nil {
		return err
	}
	return out.Sync()
}
