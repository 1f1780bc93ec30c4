// Package localstore keeps client-side state (bookmark sets and the
// remembered username) in a small JSON key-value document.
package localstore

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"sync"

	json "github.com/goccy/go-json"

	"confprog/internal/bookmark"
	"confprog/internal/config"
)

const (
	keySessions = "saved_sessions"
	keyPosters  = "saved_posters"
	keyTalks    = "saved_talks"
	keyUser     = "user"
	keyToken    = "session_token"
)

// Store is a key-value document. With an empty path it lives in memory only.
type Store struct {
	mu     sync.Mutex
	path   string
	prefix string
	values map[string]json.RawMessage
}

// Open reads the state file at path, starting empty if it does not exist.
// Keys are namespaced with prefix (e.g. "dhd2026").
func Open(path, prefix string) (*Store, error) {
	s := &Store{
		path:   path,
		prefix: prefix,
		values: map[string]json.RawMessage{},
	}
	if path == "" {
		return s, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return s, nil
		}
		return nil, err
	}
	if len(data) == 0 {
		return s, nil
	}
	if err := json.Unmarshal(data, &s.values); err != nil {
		return nil, fmt.Errorf("decode state file: %w", err)
	}
	return s, nil
}

// NewMemory returns a Store that never touches disk.
func NewMemory() *Store {
	s, _ := Open("", "")
	return s
}

func (s *Store) key(k string) string {
	if s.prefix == "" {
		return k
	}
	return s.prefix + "_" + k
}

// flush writes the document; callers hold s.mu.
func (s *Store) flush() error {
	if s.path == "" {
		return nil
	}
	data, err := json.MarshalIndent(s.values, "", "  ")
	if err != nil {
		return err
	}
	return config.WriteFileAtomic(s.path, data, ".confprog-state-*.tmp")
}

func kindKey(kind bookmark.Kind) (string, error) {
	switch kind {
	case bookmark.KindSession:
		return keySessions, nil
	case bookmark.KindPoster:
		return keyPosters, nil
	case bookmark.KindTalk:
		return keyTalks, nil
	}
	return "", fmt.Errorf("unknown bookmark kind %q", kind)
}

// LoadIDs implements bookmark.Persistence. Missing or null entries load as empty.
func (s *Store) LoadIDs(kind bookmark.Kind) ([]string, error) {
	k, err := kindKey(kind)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[s.key(k)]
	if !ok {
		return []string{}, nil
	}
	var ids []string
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode %s: %w", k, err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// SaveIDs implements bookmark.Persistence. The write completes before it returns.
func (s *Store) SaveIDs(kind bookmark.Kind, ids []string) error {
	k, err := kindKey(kind)
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	raw, err := json.Marshal(ids)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[s.key(k)] = raw
	return s.flush()
}

// Username returns the remembered account name, or "" if none.
func (s *Store) Username() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[s.key(keyUser)]
	if !ok {
		return "", nil
	}
	var u string
	if err := json.Unmarshal(raw, &u); err != nil {
		return "", fmt.Errorf("decode %s: %w", keyUser, err)
	}
	return u, nil
}

func (s *Store) SetUsername(u string) error {
	raw, err := json.Marshal(u)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[s.key(keyUser)] = raw
	return s.flush()
}

func (s *Store) ClearUsername() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.values, s.key(keyUser))
	return s.flush()
}

// SessionToken returns the stored session cookie value, or "".
func (s *Store) SessionToken() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, ok := s.values[s.key(keyToken)]
	if !ok {
		return "", nil
	}
	var tok string
	if err := json.Unmarshal(raw, &tok); err != nil {
		return "", fmt.Errorf("decode %s: %w", keyToken, err)
	}
	return tok, nil
}

// SetSessionToken stores tok; an empty tok removes the entry.
func (s *Store) SetSessionToken(tok string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if tok == "" {
		delete(s.values, s.key(keyToken))
		return s.flush()
	}
	raw, err := json.Marshal(tok)
	if err != nil {
		return err
	}
	s.values[s.key(keyToken)] = raw
	return s.flush()
}
