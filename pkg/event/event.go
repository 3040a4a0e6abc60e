// Package event streams per-query request/response records to a batched
// sink. Producers never block beyond a channel enqueue; delivery is
// at-most-once.
package event

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net"
	"time"

	"github.com/google/uuid"
)

// ID is a time-ordered 128-bit event identifier (UUIDv7). IDs created later
// sort after IDs created earlier, which keeps flushed records sortable. The
// JSON form is unhyphenated hex.
type ID uuid.UUID

// NewID returns a fresh time-ordered ID.
func NewID() ID {
	id, err := uuid.NewV7()
	if err != nil {
		// NewV7 only fails when the random source does; fall back to v4
		// rather than emit a zero ID.
		return ID(uuid.New())
	}
	return ID(id)
}

// IsZero reports whether the ID is the all-zeros ID (the null sink's answer).
func (id ID) IsZero() bool {
	return id == ID{}
}

func (id ID) String() string {
	return hex.EncodeToString(id[:])
}

// MarshalJSON encodes the ID as 32 hex digits.
func (id ID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

// UnmarshalJSON decodes the 32-hex-digit form.
func (id *ID) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	raw, err := hex.DecodeString(s)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", s, err)
	}
	if len(raw) != len(id) {
		return fmt.Errorf("invalid event id %q: want %d bytes", s, len(id))
	}
	copy(id[:], raw)
	return nil
}

// Outcome classifies how a query was answered.
type Outcome string

const (
	OutcomeBlocked   Outcome = "blocked"
	OutcomeForwarded Outcome = "forwarded"
	OutcomeError     Outcome = "error"
)

// Request is emitted once per query, before dispatch.
type Request struct {
	ID     ID        `json:"id"`
	Time   time.Time `json:"ts"`
	Client string    `json:"client"`
	Name   string    `json:"name"`
	Class  uint16    `json:"class"`
	Type   uint16    `json:"type"`
}

// Response is emitted once per query, after the response is built and before
// it is sent to the client.
type Response struct {
	ID        ID        `json:"id"`
	RequestID ID        `json:"request_id"`
	Time      time.Time `json:"ts"`
	Outcome   Outcome   `json:"outcome"`
	Rcode     uint8     `json:"rcode"`
	Answers   uint16    `json:"answer_count"`
}

// Sink receives the event trace. Request returns the new event's ID so the
// matching Response can reference it. Close drains queued events, flushes
// outstanding batches and releases backend resources.
type Sink interface {
	Request(client net.Addr, name string, qclass, qtype uint16) ID
	Response(requestID ID, outcome Outcome, rcode int, answers int)
	Close(ctx context.Context) error
}

// NullSink drops all events.
type NullSink struct{}

func (NullSink) Request(net.Addr, string, uint16, uint16) ID {
	return ID{}
}

func (NullSink) Response(ID, Outcome, int, int) {}

func (NullSink) Close(context.Context) error { return nil }
