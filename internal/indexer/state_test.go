package indexer

import (
	"os"
	"path/filepath"
	"testing"
)

func TestStateStoreSaveLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data", "state.json")
	store := NewStateStore(path, true)

	if _, ok, err := store.Load(); err != nil || ok {
		t.Fatalf("expected no state yet: %v %v", ok, err)
	}

	if err := store.Save(CycleState{LastCycleID: "c1", Pages: 2, NewEvents: 3, Forwarded: true, LastBlockNumber: 99}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := store.Save(CycleState{LastCycleID: "c2", Pages: 1}); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil || !ok {
		t.Fatalf("load: %v %v", ok, err)
	}
	if got.LastCycleID != "c2" || got.Pages != 1 || got.NewEvents != 0 || got.Forwarded {
		t.Fatalf("state mismatch: %+v", got)
	}
	if got.LastBlockNumber != 99 {
		t.Fatalf("last block = %d, want 99 carried over", got.LastBlockNumber)
	}
	if got.UpdatedAt == "" {
		t.Fatalf("updated_at not set")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Fatalf("tmp file left behind: %v", err)
	}
}

func TestStateStoreDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	store := NewStateStore(path, false)
	if err := store.Save(CycleState{LastCycleID: "c1"}); err != nil {
		t.Fatalf("save: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("disabled store wrote a file")
	}
}

func TestStateStoreDirectory(t *testing.T) {
	store := NewStateStore(t.TempDir(), true)
	if _, _, err := store.Load(); err == nil {
		t.Fatalf("expected error for directory path")
	}
}
