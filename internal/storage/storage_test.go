package storage

import (
	"errors"
	"math"
	"testing"

	"starkcron/internal/model"
)

func TestBlockNumber(t *testing.T) {
	got, err := BlockNumber(model.Event{EventID: "e", BlockNumber: math.MaxInt64})
	if err != nil || got != math.MaxInt64 {
		t.Fatalf("max int64 block = %d %v", got, err)
	}

	_, err = BlockNumber(model.Event{EventID: "e", BlockNumber: math.MaxInt64 + 1})
	if !errors.Is(err, ErrBlockRange) {
		t.Fatalf("error = %v, want ErrBlockRange", err)
	}
}
