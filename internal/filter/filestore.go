package filter

import (
	"context"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// FileStore reads filters and preferences from a YAML file. It stands in for
// the filter CRUD service in single-user CLI runs; the file is re-read on
// every snapshot so edits take effect on the next request.
type FileStore struct {
	path string
}

// NewFileStore creates a store backed by the given YAML file.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

type filterFile struct {
	Mode    string `yaml:"mode"`
	Filters []struct {
		ID          int            `yaml:"id"`
		Text        string         `yaml:"text"`
		Intensity   int            `yaml:"intensity"`
		ContentType string         `yaml:"content_type"`
		Metadata    map[string]any `yaml:"metadata"`
		ExpiresAt   *time.Time     `yaml:"expires_at"`
	} `yaml:"filters"`
}

func (s *FileStore) load() (*filterFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, fmt.Errorf("reading filter file %s: %w", s.path, err)
	}
	var file filterFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("parsing filter file %s: %w", s.path, err)
	}
	return &file, nil
}

// ActiveFilters returns the unexpired filters in file order.
func (s *FileStore) ActiveFilters(ctx context.Context, userID string) ([]Filter, error) {
	file, err := s.load()
	if err != nil {
		return nil, err
	}

	now := time.Now()
	filters := make([]Filter, 0, len(file.Filters))
	for _, f := range file.Filters {
		if f.ExpiresAt != nil && f.ExpiresAt.Before(now) {
			continue
		}
		contentType := f.ContentType
		if contentType == "" {
			contentType = "all"
		}
		filters = append(filters, Filter{
			ID:          f.ID,
			Text:        f.Text,
			Intensity:   f.Intensity,
			ContentType: contentType,
			Metadata:    f.Metadata,
			ExpiresAt:   f.ExpiresAt,
		})
	}
	return filters, nil
}

// Preferences returns the processing mode named in the file.
func (s *FileStore) Preferences(ctx context.Context, userID string) (Prefs, error) {
	file, err := s.load()
	if err != nil {
		return Prefs{}, err
	}
	return Prefs{Mode: file.Mode}, nil
}
