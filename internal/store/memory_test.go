package store

import "testing"

// TestMemoryStore runs the same suite as the PostgreSQL store so the two
// implementations cannot drift apart
func TestMemoryStore(t *testing.T) {
	RunStoreTests(t, func(t *testing.T) Store {
		return NewMemoryStore()
	})
}
