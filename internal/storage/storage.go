package storage

import (
	"context"
	"errors"
	"fmt"
	"math"

	"starkcron/internal/model"
)

// ErrBlockRange is returned for block numbers the stores cannot index.
var ErrBlockRange = errors.New("block number out of range")

// Arrival orders events that share a block. Cycle grows with every poll
// cycle; Position is the event's index in feed order within that cycle,
// so a higher Position within one cycle means an older event.
type Arrival struct {
	Cycle    int64
	Position int
}

// EventStore is the durable record of every event seen on the feed.
type EventStore interface {
	// Exists reports whether an event with id has been stored.
	Exists(ctx context.Context, id string) (bool, error)
	// Put stores the event, replacing any row with the same id.
	Put(ctx context.Context, event model.Event, at Arrival) error
	// Get loads a stored event by id.
	Get(ctx context.Context, id string) (model.Event, bool, error)
	// MarkForwarded records successful delivery of the given ids.
	MarkForwarded(ctx context.Context, ids []string) error
	// Pending returns stored events without a delivery record in
	// chronological order: block ascending, then Cycle ascending, then
	// Position descending.
	Pending(ctx context.Context) ([]model.Event, error)
	// Count returns the number of stored events.
	Count(ctx context.Context) (int64, error)
	Close() error
}

// BlockNumber returns the event's block as a signed column value.
func BlockNumber(event model.Event) (int64, error) {
	if event.BlockNumber > math.MaxInt64 {
		return 0, fmt.Errorf("event %s: %w: %d", event.EventID, ErrBlockRange, event.BlockNumber)
	}
	return int64(event.BlockNumber), nil
}
