package credentials

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
)

const (
	EnvAccessToken  = "CASEDASH_ACCESS_TOKEN"
	EnvRefreshToken = "CASEDASH_REFRESH_TOKEN"
)

// EnvBackend seeds the session from environment variables. The environment
// cannot be written back, so later saves live in memory for the life of the
// process.
type EnvBackend struct {
	mu      sync.Mutex
	overlay *MemoryBackend
	cleared bool
}

func NewEnvBackend() *EnvBackend {
	return &EnvBackend{overlay: NewMemoryBackend()}
}

func (e *EnvBackend) Load(key string) ([]byte, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if data, err := e.overlay.Load(key); err == nil {
		return data, nil
	}
	if e.cleared || key != SessionKey {
		return nil, ErrNotFound
	}

	access := os.Getenv(EnvAccessToken)
	refresh := os.Getenv(EnvRefreshToken)
	if access == "" {
		return nil, ErrNotFound
	}
	data, err := json.Marshal(persisted{State: normalize(access, refresh)})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal env session: %w", err)
	}
	return data, nil
}

func (e *EnvBackend) Save(key string, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared = false
	return e.overlay.Save(key, data)
}

func (e *EnvBackend) Delete(key string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cleared = true
	return e.overlay.Delete(key)
}
