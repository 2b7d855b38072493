package session

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CredentialStore persists opaque credential material between restarts.
// Deleting the stored material forces re-pairing on the next dial.
type CredentialStore interface {
	Load() (creds []byte, ok bool, err error)
	Save(creds []byte) error
	Delete() error
}

// FileCredentialStore keeps credential material in a single file under a
// fixed session identifier. When a passphrase is set the material is
// sealed at rest with scrypt-derived chacha20poly1305.
type FileCredentialStore struct {
	mu         sync.Mutex
	dir        string
	sessionID  string
	passphrase string
}

func NewFileCredentialStore(dir, sessionID, passphrase string) (*FileCredentialStore, error) {
	if dir == "" {
		return nil, errors.New("session: credential dir required")
	}
	if sessionID == "" {
		return nil, errors.New("session: session id required")
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("session: credential dir: %w", err)
	}
	return &FileCredentialStore{dir: dir, sessionID: sessionID, passphrase: passphrase}, nil
}

func (s *FileCredentialStore) path() string {
	return filepath.Join(s.dir, "creds-"+s.sessionID+".json")
}

func (s *FileCredentialStore) Load() ([]byte, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	blob, err := os.ReadFile(s.path())
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("session: credential load: %w", err)
	}
	if s.passphrase == "" {
		return blob, true, nil
	}
	raw, err := openEnvelope(s.passphrase, blob)
	if err != nil {
		return nil, false, err
	}
	return raw, true, nil
}

func (s *FileCredentialStore) Save(creds []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := creds
	if s.passphrase != "" {
		sealed, err := sealEnvelope(s.passphrase, creds)
		if err != nil {
			return err
		}
		out = sealed
	}
	return os.WriteFile(s.path(), out, 0o600)
}

func (s *FileCredentialStore) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path()); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("session: credential delete: %w", err)
	}
	return nil
}
