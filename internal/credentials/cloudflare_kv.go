//go:build js && wasm

package credentials

import (
	"fmt"

	"github.com/syumai/workers/cloudflare/kv"
)

// KVNamespace is the Workers KV binding configured in wrangler.toml.
const KVNamespace = "casedash_kv"

// KVBackend stores values in a Cloudflare Workers KV namespace.
type KVBackend struct {
	kvStore *kv.Namespace
}

func NewKVBackend() (*KVBackend, error) {
	kvStore, err := kv.NewNamespace(KVNamespace)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize KV namespace: %w", err)
	}
	return &KVBackend{kvStore: kvStore}, nil
}

func (c *KVBackend) Load(key string) ([]byte, error) {
	value, err := c.kvStore.GetString(key, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s from KV: %w", key, err)
	}
	if value == "" {
		return nil, ErrNotFound
	}
	return []byte(value), nil
}

func (c *KVBackend) Save(key string, data []byte) error {
	if err := c.kvStore.PutString(key, string(data), nil); err != nil {
		return fmt.Errorf("failed to store %s in KV: %w", key, err)
	}
	return nil
}

func (c *KVBackend) Delete(key string) error {
	if err := c.kvStore.Delete(key); err != nil {
		return fmt.Errorf("failed to delete %s from KV: %w", key, err)
	}
	return nil
}
