package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
)

// Store loads credentials from disk and serves the latest successfully
// loaded snapshot. It is safe for concurrent use: Current is a plain
// atomic read, and Reload performs a single visible swap.
type Store struct {
	clientPath string
	userPath   string

	// reloadMu serializes Reload calls; readers never take it.
	reloadMu sync.Mutex
	snapshot atomic.Pointer[Snapshot]

	logger Logger
}

// StoreOption is a functional option for configuring a Store.
type StoreOption func(*Store)

// WithLogger sets a custom logger for reload events.
// If not set, no logging will occur.
func WithLogger(logger Logger) StoreOption {
	return func(s *Store) {
		s.logger = logger
	}
}

// NewStore creates a Store reading the client and user credentials files
// from dir, and performs the initial load. A failing initial load is
// fatal by contract: the error is returned and no Store is created.
func NewStore(dir, clientFileName, userFileName string, opts ...StoreOption) (*Store, error) {
	if dir == "" {
		return nil, errors.New("credentials: directory is required")
	}
	if clientFileName == "" {
		return nil, errors.New("credentials: client credentials file name is required")
	}
	if userFileName == "" {
		return nil, errors.New("credentials: user credentials file name is required")
	}

	s := &Store{
		clientPath: filepath.Join(dir, clientFileName),
		userPath:   filepath.Join(dir, userFileName),
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := s.load()
	if err != nil {
		return nil, err
	}
	s.snapshot.Store(&snap)

	return s, nil
}

// Current returns the latest successfully loaded snapshot without I/O.
func (s *Store) Current() Snapshot {
	return *s.snapshot.Load()
}

// Reload re-reads both credentials files and atomically swaps the
// snapshot. If the read fails the previous snapshot remains in effect
// and the error is returned to the caller.
func (s *Store) Reload() error {
	s.reloadMu.Lock()
	defer s.reloadMu.Unlock()

	snap, err := s.load()
	if err != nil {
		if s.logger != nil {
			s.logger.Printf("credentials: reload failed, keeping previous snapshot: %v", err)
		}
		return err
	}

	s.snapshot.Store(&snap)

	if s.logger != nil {
		s.logger.Printf("credentials: reloaded client %q and user %q", snap.Client.ID, snap.User.Username)
	}

	return nil
}

func (s *Store) load() (Snapshot, error) {
	client, err := loadClientFile(s.clientPath)
	if err != nil {
		return Snapshot{}, err
	}

	user, err := loadUserFile(s.userPath)
	if err != nil {
		return Snapshot{}, err
	}

	return Snapshot{Client: client, User: user}, nil
}

type clientFile struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
}

type userFile struct {
	ApplicationUsername string `json:"application_username"`
	ApplicationPassword string `json:"application_password"`
}

func loadClientFile(path string) (ClientCredential, error) {
	raw, err := readFile(path)
	if err != nil {
		return ClientCredential{}, err
	}

	var parsed clientFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return ClientCredential{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if parsed.ClientID == "" || parsed.ClientSecret == "" {
		return ClientCredential{}, fmt.Errorf("%w: %s: client_id and client_secret are required", ErrMalformed, path)
	}

	return ClientCredential{ID: parsed.ClientID, Secret: parsed.ClientSecret}, nil
}

func loadUserFile(path string) (UserCredential, error) {
	raw, err := readFile(path)
	if err != nil {
		return UserCredential{}, err
	}

	var parsed userFile
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return UserCredential{}, fmt.Errorf("%w: %s: %v", ErrMalformed, path, err)
	}
	if parsed.ApplicationUsername == "" || parsed.ApplicationPassword == "" {
		return UserCredential{}, fmt.Errorf("%w: %s: application_username and application_password are required", ErrMalformed, path)
	}

	return UserCredential{Username: parsed.ApplicationUsername, Password: parsed.ApplicationPassword}, nil
}

func readFile(path string) ([]byte, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
		}
		return nil, fmt.Errorf("credentials: failed to read %s: %w", path, err)
	}
	return raw, nil
}
