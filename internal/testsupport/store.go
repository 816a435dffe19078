package testsupport

import (
	"context"
	"testing"

	"catalogsync/internal/catalog"
	"catalogsync/internal/config"
	"catalogsync/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// SeedIDs imports bare TMDB IDs for kind.
func SeedIDs(t testing.TB, st *store.Store, kind catalog.Kind, ids ...int64) {
	t.Helper()

	if _, err := st.ImportIDs(context.Background(), kind, ids); err != nil {
		t.Fatalf("store.ImportIDs: %v", err)
	}
}
