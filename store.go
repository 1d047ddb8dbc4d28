package eventhive

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
)

// storedSession is the on-disk layout. The profile stays raw until load time
// so a corrupt profile never poisons the tokens stored next to it.
type storedSession struct {
	AccessToken  string          `json:"accessToken,omitempty"`
	RefreshToken string          `json:"refreshToken,omitempty"`
	User         json.RawMessage `json:"user,omitempty"`
}

// FileStore persists the session to a JSON file so a process restart resumes
// where it left off. Writes go through a temp file rename.
type FileStore struct {
	path   string
	mu     sync.Mutex
	logger Logger
}

var _ TokenStore = (*FileStore)(nil)

type FileStoreOption func(*FileStore)

// WithFileStoreLogger overrides the logger used for corruption diagnostics.
func WithFileStoreLogger(l Logger) FileStoreOption {
	return func(s *FileStore) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewFileStore creates a store rooted at path. The parent directory is
// created on first save.
func NewFileStore(path string, opts ...FileStoreOption) *FileStore {
	s := &FileStore{
		path:   path,
		logger: defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

func (s *FileStore) Save(tokens TokenPair, user *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry := storedSession{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}

	if user != nil {
		raw, err := json.Marshal(user)
		if err != nil {
			return err
		}
		entry.User = raw
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return err
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path)
}

func (s *FileStore) Load() (*TokenPair, *UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := os.ReadFile(s.path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			s.logger.Warn("session store read failed", "path", s.path, "error", err)
		}
		return nil, nil
	}

	var entry storedSession
	if err := json.Unmarshal(data, &entry); err != nil {
		// Corrupt entries count as signed out, never as a fatal condition.
		s.logger.Warn("session store is corrupt, treating as absent", "path", s.path, "error", err)
		return nil, nil
	}

	var tokens *TokenPair
	if entry.AccessToken != "" || entry.RefreshToken != "" {
		tokens = &TokenPair{
			AccessToken:  entry.AccessToken,
			RefreshToken: entry.RefreshToken,
		}
	}

	var user *UserProfile
	if len(entry.User) > 0 {
		user = &UserProfile{}
		if err := json.Unmarshal(entry.User, user); err != nil {
			s.logger.Warn("cached profile is corrupt, treating as absent", "error", err)
			user = nil
		}
	}

	return tokens, user
}

func (s *FileStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// MemoryStore keeps the session in process memory. Useful for tests and for
// callers that do not want credentials on disk.
type MemoryStore struct {
	mu     sync.Mutex
	tokens *TokenPair
	user   *UserProfile
}

var _ TokenStore = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Save(tokens TokenPair, user *UserProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = &TokenPair{
		AccessToken:  tokens.AccessToken,
		RefreshToken: tokens.RefreshToken,
	}
	s.user = user.Clone()
	return nil
}

func (s *MemoryStore) Load() (*TokenPair, *UserProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens *TokenPair
	if s.tokens != nil {
		pair := *s.tokens
		tokens = &pair
	}
	return tokens, s.user.Clone()
}

func (s *MemoryStore) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.tokens = nil
	s.user = nil
	return nil
}
