package client

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// Credentials is what a session needs to survive between requests.
type Credentials struct {
	Access   string `yaml:"access"`
	Refresh  string `yaml:"refresh"`
	Username string `yaml:"username,omitempty"`
}

func (c Credentials) Empty() bool {
	return c.Access == "" && c.Refresh == ""
}

// CredentialStore persists the token pair. Load on an empty store returns
// zero Credentials and no error.
type CredentialStore interface {
	Load() (Credentials, error)
	Save(Credentials) error
	Clear() error
}

type MemoryStore struct {
	mu    sync.RWMutex
	creds Credentials
}

func NewMemoryStore(initial Credentials) *MemoryStore {
	return &MemoryStore{creds: initial}
}

func (s *MemoryStore) Load() (Credentials, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.creds, nil
}

func (s *MemoryStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.creds = c
	return nil
}

func (s *MemoryStore) Clear() error {
	return s.Save(Credentials{})
}

// FileStore keeps credentials in a YAML file readable only by the owner.
type FileStore struct {
	Path string
	mu   sync.Mutex
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (s *FileStore) Load() (Credentials, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var creds Credentials
	data, err := os.ReadFile(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return creds, nil
	}
	if err != nil {
		return creds, fmt.Errorf("failed to read credentials: %w", err)
	}
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return creds, fmt.Errorf("failed to parse credentials %s: %w", s.Path, err)
	}
	return creds, nil
}

func (s *FileStore) Save(c Credentials) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return fmt.Errorf("failed to create credentials dir: %w", err)
	}
	tmp := s.Path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("failed to write credentials: %w", err)
	}
	return os.Rename(tmp, s.Path)
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove credentials: %w", err)
	}
	return nil
}
