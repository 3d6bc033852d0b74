package storage

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/autoqliq/autoqliq/pkg/action"
	"github.com/autoqliq/autoqliq/pkg/errors"
)

// FileCredentialStore keeps credentials in one JSON file. Secrets stay on
// disk in the clear, matching the source system; the engine redacts them
// from every log and report it emits.
type FileCredentialStore struct {
	path string
	mu   sync.RWMutex
}

type credentialFile struct {
	Credentials []action.Credential `json:"credentials"`
}

// NewFileCredentialStore creates a store backed by the given file. The file
// is created on first write; a missing file reads as empty.
func NewFileCredentialStore(path string) *FileCredentialStore {
	return &FileCredentialStore{path: path}
}

// List returns every stored credential name, sorted.
func (s *FileCredentialStore) List(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, err := s.read()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(file.Credentials))
	for _, c := range file.Credentials {
		names = append(names, c.Name)
	}
	sort.Strings(names)
	return names, nil
}

// Get returns the named credential, or (nil, nil) when absent.
func (s *FileCredentialStore) Get(_ context.Context, name string) (*action.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	file, err := s.read()
	if err != nil {
		return nil, err
	}
	for i := range file.Credentials {
		if file.Credentials[i].Name == name {
			cred := file.Credentials[i]
			return &cred, nil
		}
	}
	return nil, nil
}

// Create stores a new credential. Duplicate names are rejected.
func (s *FileCredentialStore) Create(_ context.Context, cred action.Credential) error {
	if cred.Name == "" {
		return errors.NewRepository("credential name must not be empty", nil)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.read()
	if err != nil {
		return err
	}
	for _, existing := range file.Credentials {
		if existing.Name == cred.Name {
			return errors.NewRepository("credential "+cred.Name+" already exists", nil)
		}
	}
	file.Credentials = append(file.Credentials, cred)
	return s.write(file)
}

// Update replaces an existing credential.
func (s *FileCredentialStore) Update(_ context.Context, cred action.Credential) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.read()
	if err != nil {
		return err
	}
	for i := range file.Credentials {
		if file.Credentials[i].Name == cred.Name {
			file.Credentials[i] = cred
			return s.write(file)
		}
	}
	return errors.NewRepository("credential "+cred.Name+" not found", nil)
}

// Delete removes a credential. It reports whether anything was deleted.
func (s *FileCredentialStore) Delete(_ context.Context, name string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	file, err := s.read()
	if err != nil {
		return false, err
	}
	for i := range file.Credentials {
		if file.Credentials[i].Name == name {
			file.Credentials = append(file.Credentials[:i], file.Credentials[i+1:]...)
			return true, s.write(file)
		}
	}
	return false, nil
}

func (s *FileCredentialStore) read() (*credentialFile, error) {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		return &credentialFile{}, nil
	}
	if err != nil {
		return nil, errors.NewRepository("cannot read credential store", err)
	}
	var file credentialFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, errors.NewRepository("credential store is not valid JSON", err)
	}
	return &file, nil
}

func (s *FileCredentialStore) write(file *credentialFile) error {
	data, err := json.MarshalIndent(file, "", "  ")
	if err != nil {
		return errors.NewRepository("cannot encode credential store", err)
	}
	data = append(data, '\n')
	if dir := filepath.Dir(s.path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.NewRepository("cannot create credential directory", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return errors.NewRepository("cannot write credential store", err)
	}
	return nil
}

// compile-time interface check
var _ action.CredentialProvider = (*FileCredentialStore)(nil)
