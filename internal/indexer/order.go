package indexer

import (
	"cmp"
	"slices"

	"go.uber.org/zap"

	"starkcron/internal/model"
)

// The feed lists newest events first and page 1 is the newest page, so the
// collected sequence of a cycle is newest first. Reversing it yields
// ascending chronological order for the indexing API.

// FirstDescent returns the index of the first event whose block number is
// lower than the one before it, or -1 when the sequence is non-decreasing.
func FirstDescent(events []model.Event) int {
	for i := 1; i < len(events); i++ {
		if events[i].BlockNumber < events[i-1].BlockNumber {
			return i
		}
	}
	return -1
}

// orderForDelivery reverses events in place. If the result is still not
// ascending by block number the feed broke its ordering, and a stable sort
// restores it.
func orderForDelivery(events []model.Event, logger *zap.Logger) []model.Event {
	slices.Reverse(events)

	if i := FirstDescent(events); i >= 0 {
		logger.Warn("feed order not newest-first, sorting by block number",
			zap.Int("index", i),
			zap.String("event_id", events[i].EventID),
			zap.Uint64("block_number", events[i].BlockNumber),
			zap.Uint64("previous_block_number", events[i-1].BlockNumber),
		)
		slices.SortStableFunc(events, func(a, b model.Event) int {
			return cmp.Compare(a.BlockNumber, b.BlockNumber)
		})
	}
	return events
}
