package credentials

import "errors"

// SessionKey is the storage key holding the serialized session.
const SessionKey = "auth-storage"

var (
	// ErrNotFound is returned by a Backend when the key has never been saved.
	ErrNotFound = errors.New("credentials: key not found")
	// ErrEmptyToken rejects a login or token update with a missing half of the pair.
	ErrEmptyToken = errors.New("credentials: access and refresh tokens must both be set")
)

// Credentials is a snapshot of the session held by a Store.
type Credentials struct {
	AccessToken     string `json:"accessToken"`
	RefreshToken    string `json:"refreshToken"`
	IsAuthenticated bool   `json:"isAuthenticated"`
}

// Backend persists opaque values under string keys.
type Backend interface {
	Load(key string) ([]byte, error)
	Save(key string, data []byte) error
	Delete(key string) error
}

// persisted is the on-disk envelope for SessionKey.
type persisted struct {
	State   Credentials `json:"state"`
	Version int         `json:"version"`
}
