package preferences

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"sync"

	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/oshokin/panic-button/internal/config"
)

// Keys shared with the tracking task.
const (
	// KeyServerURL is the tracking server base URL.
	KeyServerURL = "url"
	// KeyDeviceID is the identifier reported to the tracking server.
	KeyDeviceID = "device_id"
	// KeyTrackingActive is the tracking-active flag.
	KeyTrackingActive = "tracking_active"
)

// FileStore persists preferences to a JSON file on disk.
// Reads are served from memory; writes go through to the file.
type FileStore struct {
	// path is the filesystem location of the preferences file.
	path string

	// mu protects values and serializes file writes.
	mu     sync.RWMutex
	values map[string]any
}

// Open creates a store and loads the file; a missing file yields an empty store.
func Open(ctx context.Context, path string) (*FileStore, error) {
	s := &FileStore{
		path:   filepath.Clean(path),
		values: make(map[string]any),
	}

	if err := s.Load(ctx); err != nil {
		return nil, err
	}

	return s, nil
}

// Path returns the file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load re-reads the file, replacing the in-memory values. The read and the
// swap happen under the write lock so a reload never undoes a concurrent Set.
func (s *FileStore) Load(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	contents, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}

		return fmt.Errorf("read preferences file: %w", err)
	}

	var values structpb.Struct
	if err = protojson.Unmarshal(contents, &values); err != nil {
		return fmt.Errorf("decode preferences file: %w", err)
	}

	s.values = values.AsMap()

	return nil
}

// Set stores a value and writes the file.
func (s *FileStore) Set(_ context.Context, key string, value any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := maps.Clone(s.values)
	next[key] = value

	if err := s.write(next); err != nil {
		return err
	}

	s.values = next

	return nil
}

// String returns a string value or empty when missing.
func (s *FileStore) String(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, _ := s.values[key].(string)

	return v
}

// Bool returns a boolean value or false when missing.
func (s *FileStore) Bool(key string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, _ := s.values[key].(bool)

	return v
}

// ServerURL returns the tracking server base URL.
func (s *FileStore) ServerURL() string {
	return s.String(KeyServerURL)
}

// DeviceID returns the stored device identifier.
func (s *FileStore) DeviceID() string {
	return s.String(KeyDeviceID)
}

// TrackingActive returns the tracking-active flag.
func (s *FileStore) TrackingActive() bool {
	return s.Bool(KeyTrackingActive)
}

// SetTrackingActive persists the tracking-active flag.
func (s *FileStore) SetTrackingActive(ctx context.Context, active bool) error {
	return s.Set(ctx, KeyTrackingActive, active)
}

// write replaces the file atomically so readers never see a partial document.
func (s *FileStore) write(values map[string]any) error {
	encoded, err := structpb.NewStruct(values)
	if err != nil {
		return fmt.Errorf("encode preferences: %w", err)
	}

	marshalOptions := protojson.MarshalOptions{
		Multiline: true,
		Indent:    "  ",
	}

	data, err := marshalOptions.Marshal(encoded)
	if err != nil {
		return fmt.Errorf("marshal preferences: %w", err)
	}

	tmp := s.path + ".tmp"
	if err = os.WriteFile(tmp, data, config.DefaultFilePermissions); err != nil {
		return fmt.Errorf("write preferences file: %w", err)
	}

	if err = os.Rename(tmp, s.path); err != nil {
		_ = os.Remove(tmp)

		return fmt.Errorf("replace preferences file: %w", err)
	}

	return nil
}
