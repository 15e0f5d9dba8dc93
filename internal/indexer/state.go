package indexer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// CycleState summarizes the last completed cycle.
type CycleState struct {
	LastCycleID     string `json:"last_cycle_id"`
	Pages           int    `json:"pages"`
	NewEvents       int    `json:"new_events"`
	Forwarded       bool   `json:"forwarded"`
	LastBlockNumber uint64 `json:"last_block_number"`
	UpdatedAt       string `json:"updated_at"`
}

// StateStore persists cycle summaries to disk.
type StateStore struct {
	path    string
	enabled bool
}

func NewStateStore(path string, enabled bool) *StateStore {
	return &StateStore{path: path, enabled: enabled && path != ""}
}

func (s *StateStore) Load() (CycleState, bool, error) {
	if s == nil || !s.enabled {
		return CycleState{}, false, nil
	}

	stat, err := os.Stat(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CycleState{}, false, nil
		}
		return CycleState{}, false, fmt.Errorf("stat state: %w", err)
	}
	if stat.IsDir() {
		return CycleState{}, false, fmt.Errorf("state path is a directory")
	}

	data, err := os.ReadFile(s.path)
	if err != nil {
		return CycleState{}, false, fmt.Errorf("read state: %w", err)
	}

	var st CycleState
	if err := json.Unmarshal(data, &st); err != nil {
		return CycleState{}, false, fmt.Errorf("parse state: %w", err)
	}

	return st, true, nil
}

// Save writes st atomically. LastBlockNumber is kept from the previous state
// when the cycle forwarded nothing.
func (s *StateStore) Save(st CycleState) error {
	if s == nil || !s.enabled {
		return nil
	}

	if st.LastBlockNumber == 0 {
		prev, ok, err := s.Load()
		if err == nil && ok {
			st.LastBlockNumber = prev.LastBlockNumber
		}
	}

	dir := filepath.Dir(s.path)
	if dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create state dir: %w", err)
		}
	}

	st.UpdatedAt = time.Now().UTC().Format(time.RFC3339Nano)
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}

	tmpPath := s.path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0o644); err != nil {
		return fmt.Errorf("write state tmp: %w", err)
	}
	if err := os.Rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("rename state: %w", err)
	}

	return nil
}
