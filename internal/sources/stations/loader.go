package stations

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"gopkg.in/yaml.v3"

	"github.com/MrSnakeDoc/radio-scheduler/internal/domain"
)

// Store loads, validates and persists the station registry document.
type Store struct {
	filePath string

	mu   sync.Mutex
	rev  uint64
	last fileStamp
}

// fileStamp is the cheap identity of the file used for change detection.
type fileStamp struct {
	exists  bool
	size    int64
	modTime time.Time
}

// NewStore creates a store for the document at filePath.
func NewStore(filePath string) *Store {
	return &Store{filePath: filePath}
}

// Path returns the document location.
func (s *Store) Path() string { return s.filePath }

// Load reads and validates the document. A missing file yields an empty
// registry; an invalid one yields a *domain.ConfigError.
func (s *Store) Load() (*domain.Registry, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return &domain.Registry{}, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	reg, err := Parse(data)
	if err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Path = s.filePath
		}
		return nil, err
	}
	return reg, nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*domain.Registry, error) {
	doc, err := decode(data)
	if err != nil {
		return nil, err
	}
	return ToRegistry(doc)
}

func decode(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &domain.ConfigError{Err: fmt.Errorf("failed to parse config yaml: %w", err)}
	}
	return &doc, nil
}

// Marshal renders a registry as YAML.
func Marshal(reg *domain.Registry) ([]byte, error) {
	doc, err := FromRegistry(reg)
	if err != nil {
		return nil, fmt.Errorf("failed to encode config yaml: %w", err)
	}
	return encode(doc)
}

func encode(doc *Document) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return nil, fmt.Errorf("failed to encode config yaml: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("failed to encode config yaml: %w", err)
	}
	return buf.Bytes(), nil
}

// Save validates reg and atomically replaces the document.
// Writers are serialized through a lock file next to the document.
func (s *Store) Save(reg *domain.Registry) error {
	if err := reg.Validate(); err != nil {
		var ce *domain.ConfigError
		if errors.As(err, &ce) {
			ce.Path = s.filePath
		}
		return err
	}
	data, err := Marshal(reg)
	if err != nil {
		return err
	}
	return s.write(data)
}

func (s *Store) write(data []byte) error {
	dir := filepath.Dir(s.filePath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	lock := flock.New(s.filePath + ".lock")
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("failed to lock config file: %w", err)
	}
	defer func() { _ = lock.Unlock() }()

	mode := fs.FileMode(0o644)
	if fi, err := os.Stat(s.filePath); err == nil {
		mode = fi.Mode().Perm()
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(s.filePath)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary config file: %w", err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to write temporary config file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to sync temporary config file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to close temporary config file: %w", err)
	}
	if err := os.Chmod(tempPath, mode); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to set config file mode: %w", err)
	}

	// Atomic rename
	if err := os.Rename(tempPath, s.filePath); err != nil {
		_ = os.Remove(tempPath)
		return fmt.Errorf("failed to replace config file: %w", err)
	}

	s.Touch()
	return nil
}

// Revision returns a marker that increases whenever the document changed
// since the previous call. It only stats the file.
func (s *Store) Revision() uint64 {
	st := s.stamp()
	s.mu.Lock()
	defer s.mu.Unlock()
	if st != s.last {
		s.last = st
		s.rev++
	}
	return s.rev
}

// Touch forces the next Revision call to report a change. The watcher
// calls it so that writes landing within the same mtime tick are not missed.
func (s *Store) Touch() {
	s.mu.Lock()
	s.rev++
	s.mu.Unlock()
}

func (s *Store) stamp() fileStamp {
	fi, err := os.Stat(s.filePath)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{exists: true, size: fi.Size(), modTime: fi.ModTime()}
}

// Backup copies the current document to "<path>.bak" and returns that path.
func (s *Store) Backup() (string, error) {
	data, err := os.ReadFile(s.filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read config for backup: %w", err)
	}
	bak := s.filePath + ".bak"
	if err := os.WriteFile(bak, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write config backup: %w", err)
	}
	return bak, nil
}
