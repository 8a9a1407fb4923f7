package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Export is the on-disk format produced by external OS-level scanners.
type Export struct {
	Platform Platform `json:"platform"`
	Items    []Item   `json:"items"`
}

// FileCollector reads items from a JSON export. It satisfies both Collector
// and PlatformCollector.
type FileCollector struct {
	path string
}

// NewFileCollector returns a collector backed by the JSON file at path.
func NewFileCollector(path string) *FileCollector {
	return &FileCollector{path: path}
}

func (f *FileCollector) Name() string {
	return "file:" + strings.TrimSuffix(filepath.Base(f.path), filepath.Ext(f.path))
}

func (f *FileCollector) Collect(ctx context.Context) ([]Item, error) {
	exp, err := f.read()
	if err != nil {
		return nil, err
	}
	return exp.Items, nil
}

func (f *FileCollector) CollectPlatform(ctx context.Context) (Platform, error) {
	exp, err := f.read()
	if err != nil {
		return Platform{}, err
	}
	return exp.Platform, nil
}

func (f *FileCollector) read() (*Export, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return nil, err
	}
	var exp Export
	// A bare array of items is accepted as well.
	if trimmed := strings.TrimSpace(string(data)); strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal(data, &exp.Items); err != nil {
			return nil, fmt.Errorf("parse %s: %w", f.path, err)
		}
		return &exp, nil
	}
	if err := json.Unmarshal(data, &exp); err != nil {
		return nil, fmt.Errorf("parse %s: %w", f.path, err)
	}
	return &exp, nil
}
