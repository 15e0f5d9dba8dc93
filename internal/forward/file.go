package forward

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"starkcron/internal/model"
)

// FileForwarder appends each batch as one JSON line instead of posting it.
type FileForwarder struct {
	path string
	mu   sync.Mutex
}

func NewFileForwarder(path string) *FileForwarder {
	return &FileForwarder{path: path}
}

// Send appends {"items": [...]} followed by a newline.
func (f *FileForwarder) Send(_ context.Context, events []model.Event) error {
	if len(events) == 0 {
		return fmt.Errorf("empty batch")
	}

	dir := filepath.Dir(f.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create output dir: %w", err)
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open output file: %w", err)
	}
	defer file.Close()

	line, err := json.Marshal(model.Batch{Items: events})
	if err != nil {
		return fmt.Errorf("marshal batch: %w", err)
	}

	writer := bufio.NewWriter(file)
	if _, err := writer.Write(line); err != nil {
		return fmt.Errorf("write batch: %w", err)
	}
	if err := writer.WriteByte('\n'); err != nil {
		return fmt.Errorf("write newline: %w", err)
	}
	if err := writer.Flush(); err != nil {
		return fmt.Errorf("flush output: %w", err)
	}
	return nil
}
