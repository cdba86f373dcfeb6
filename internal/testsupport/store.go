package testsupport

import (
	"context"
	"testing"

	"spikecurate/internal/config"
	"spikecurate/internal/ledger"
)

// MustOpenStore opens a ledger.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config, opts ...ledger.Option) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// MustInsert inserts a curation and fails the test on error.
func MustInsert(t testing.TB, store *ledger.Store, in ledger.CurationInput) string {
	t.Helper()

	id, err := store.Insert(context.Background(), in)
	if err != nil {
		t.Fatalf("store.Insert: %v", err)
	}
	return id
}
