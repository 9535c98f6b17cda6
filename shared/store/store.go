// Package store provides the key-value persistence used for saved
// connections and settings.
package store

// Store is an opaque key-value store. Set must be durable when it returns.
type Store interface {
	// Get returns the value stored under key and whether it exists.
	Get(key string) ([]byte, bool, error)
	// Set stores value under key, replacing any previous value.
	Set(key string, value []byte) error
}
