package event

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var (
	ErrInvalidEvent = errors.New("invalid event")
	ErrInvalidQuery = errors.New("invalid query")
	ErrEncode       = errors.New("event encode failed")
	ErrDecode       = errors.New("event decode failed")
)

// Event is an immutable usage fact. Timestamp doubles as the sort score in
// the bucket index; the persisted JSON form is the sole durable truth.
type Event struct {
	Timestamp  int64  `json:"timestamp"`
	UUID       string `json:"uuid,omitempty"`
	Name       string `json:"name,omitempty"`
	Source     string `json:"source,omitempty"`
	Host       string `json:"host,omitempty"`
	User       string `json:"user,omitempty"`
	Action     string `json:"action,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
}

func (e Event) Validate() error {
	if e.Timestamp <= 0 {
		return fmt.Errorf("%w: timestamp must be positive, got %d", ErrInvalidEvent, e.Timestamp)
	}
	return nil
}

// Query bounds a read to [From, To] inclusive, both in milliseconds.
// Limit <= 0 means the store's global result ceiling.
type Query struct {
	From  int64
	To    int64
	Limit int
}

func (q Query) Validate() error {
	if q.From < 0 {
		return fmt.Errorf("%w: negative from %d", ErrInvalidQuery, q.From)
	}
	if q.From > q.To {
		return fmt.Errorf("%w: from %d after to %d", ErrInvalidQuery, q.From, q.To)
	}
	return nil
}

// Codec translates events to and from their durable JSON form. The zero
// value decodes leniently, ignoring unknown fields so older readers keep
// working against newer payloads; set Strict to reject them instead.
type Codec struct {
	Strict bool
}

func (c Codec) Encode(e Event) ([]byte, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEncode, err)
	}
	return data, nil
}

func (c Codec) Decode(data []byte) (Event, error) {
	var e Event
	if c.Strict {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&e); err != nil {
			return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return e, nil
	}
	if err := json.Unmarshal(data, &e); err != nil {
		return Event{}, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	return e, nil
}
