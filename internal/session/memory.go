package session

import "sync"

type MemoryStorage struct {
	mu      sync.RWMutex
	token   string
	id      Identity
	hasSess bool
	phones  map[int64]string
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		phones: make(map[int64]string),
	}
}

func (s *MemoryStorage) SaveSession(token string, id Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = token
	s.id = id
	s.hasSess = true
	return nil
}

func (s *MemoryStorage) LoadSession() (string, Identity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if !s.hasSess {
		return "", Identity{}, ErrNoSession
	}
	return s.token, s.id, nil
}

func (s *MemoryStorage) DeleteSession() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.token = ""
	s.id = Identity{}
	s.hasSess = false
	return nil
}

func (s *MemoryStorage) SavePhone(chatID int64, phone string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.phones[chatID] = phone
	return nil
}

func (s *MemoryStorage) LoadPhone(chatID int64) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.phones[chatID], nil
}

func (s *MemoryStorage) Close() error {
	// Nothing to close for in-memory storage
	return nil
}
