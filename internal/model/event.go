package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Event is one contract event as reported by the explorer feed.
type Event struct {
	EventID         string `json:"eventId"`
	BlockNumber     uint64 `json:"blockNumber"`
	TransactionHash string `json:"transactionHash"`
	Name            string `json:"name"`
	Timestamp       int64  `json:"timestamp"`

	// Extra holds every other member of the upstream object, in order.
	Extra Fields `json:"-"`
}

var coreKeys = map[string]struct{}{
	"eventId":         {},
	"blockNumber":     {},
	"transactionHash": {},
	"name":            {},
	"timestamp":       {},
}

// MarshalJSON writes the core fields followed by the extra fields.
func (e Event) MarshalJSON() ([]byte, error) {
	type core Event
	head, err := json.Marshal(core(e))
	if err != nil {
		return nil, err
	}
	if e.Extra.Len() == 0 {
		return head, nil
	}

	var buf bytes.Buffer
	buf.Write(head[:len(head)-1])
	e.Extra.writeMembers(&buf, true)
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON splits an upstream object into core and extra fields.
func (e *Event) UnmarshalJSON(data []byte) error {
	type core Event
	var c core
	if err := json.Unmarshal(data, &c); err != nil {
		return err
	}

	var extra Fields
	err := decodeObject(data, func(key string, value json.RawMessage) error {
		if _, ok := coreKeys[key]; ok {
			return nil
		}
		return extra.Set(key, value)
	})
	if err != nil {
		return err
	}

	*e = Event(c)
	e.Extra = extra
	return nil
}

// Validate reports whether the event carries an identity.
func (e Event) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("event id is empty")
	}
	return nil
}

// Page is one page of the upstream feed.
type Page struct {
	Items    []Event `json:"items"`
	LastPage int     `json:"lastPage"`
}

// Batch is the body sent to the indexing endpoint.
type Batch struct {
	Items []Event `json:"items"`
}

// IDs returns the event ids in order.
func IDs(events []Event) []string {
	ids := make([]string, 0, len(events))
	for _, e := range events {
		ids = append(ids, e.EventID)
	}
	return ids
}
