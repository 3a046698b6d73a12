package codec

import (
	"fmt"
	"os"
	"path/filepath"
)

// WriteFile encodes the bundle and writes it atomically: tmp file → fsync →
// rename. A crash mid-export never leaves a truncated bundle at path.
func WriteFile(path string, b *ExportBundle) error {
	data, err := Encode(b)
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("codec: mkdir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".memories-tmp-*")
	if err != nil {
		return fmt.Errorf("codec: create temp: %w", err)
	}
	tmpName := tmp.Name()

	// Clean up on any failure path.
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("codec: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("codec: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("codec: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("codec: rename: %w", err)
	}
	success = true
	return nil
}

// ReadFile reads and decodes a bundle document from disk.
func ReadFile(path string) (*ExportBundle, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("codec: read bundle file: %w", err)
	}
	return Decode(data)
}
