package credstore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"iris/internal/logger"
)

// Credential is the pairing record issued by the TV during registration.
// ClientKey is the opaque token presented on every subsequent connection.
type Credential struct {
	ClientKey string    `json:"client_key"`
	MAC       string    `json:"mac,omitempty"`
	IssuedAt  time.Time `json:"issued_at"`
}

// Store persists pairing credentials keyed by device host. The backing file
// is a single JSON document; writes go through a temp file and os.Rename so
// a crash never leaves a partially written record behind.
type Store struct {
	path   string
	logger zerolog.Logger
}

// NewStore creates a credential store backed by the given file path.
// The file does not need to exist yet.
func NewStore(path string) *Store {
	return &Store{
		path:   path,
		logger: logger.New(),
	}
}

// Path returns the backing file path.
func (s *Store) Path() string {
	return s.path
}

// Load returns the credential for a device host. A missing file, unparseable
// file, or unknown host all report absent rather than an error: pairing
// simply restarts in those cases.
func (s *Store) Load(host string) (Credential, bool) {
	records, err := s.read()
	if err != nil {
		s.logger.Warn().
			Err(err).
			Str("path", s.path).
			Msg("Credential store unreadable, treating as empty")
		return Credential{}, false
	}

	cred, ok := records[host]
	if !ok || cred.ClientKey == "" {
		return Credential{}, false
	}
	return cred, true
}

// Save stores the credential for a device host, replacing any previous one.
func (s *Store) Save(host string, cred Credential) error {
	records, err := s.read()
	if err != nil {
		// Corrupt store is replaced wholesale rather than failing the pairing
		s.logger.Warn().
			Err(err).
			Str("path", s.path).
			Msg("Replacing unreadable credential store")
		records = map[string]Credential{}
	}

	records[host] = cred

	if err := s.write(records); err != nil {
		return fmt.Errorf("failed to save credential: %w", err)
	}

	s.logger.Info().
		Str("host", host).
		Str("path", s.path).
		Msg("Persisted pairing credential")

	return nil
}

// Delete removes the credential for a device host. Deleting an absent
// credential is not an error.
func (s *Store) Delete(host string) error {
	records, err := s.read()
	if err != nil {
		return nil
	}

	if _, ok := records[host]; !ok {
		return nil
	}
	delete(records, host)

	if err := s.write(records); err != nil {
		return fmt.Errorf("failed to delete credential: %w", err)
	}

	s.logger.Info().
		Str("host", host).
		Msg("Discarded pairing credential")

	return nil
}

// read loads the full record map from disk.
func (s *Store) read() (map[string]Credential, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Credential{}, nil
		}
		return nil, fmt.Errorf("failed to read credential store: %w", err)
	}

	if len(data) == 0 {
		return map[string]Credential{}, nil
	}

	var records map[string]Credential
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("failed to parse credential store: %w", err)
	}
	if records == nil {
		records = map[string]Credential{}
	}

	return records, nil
}

// write replaces the store file atomically. The temp file lives in the same
// directory so the rename cannot cross filesystems.
func (s *Store) write(records map[string]Credential) error {
	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal credentials: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to close temp file: %w", err)
	}

	if err := os.Chmod(tmpName, 0600); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to set store permissions: %w", err)
	}

	if err := os.Rename(tmpName, s.path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("failed to replace credential store: %w", err)
	}

	return nil
}
