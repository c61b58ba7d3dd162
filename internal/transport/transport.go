// SPDX-License-Identifier: MIT

// Package transport publishes signal frames and beat events to external
// consumers and accepts control input (taps, parameter changes) from them.
package transport

import (
	"lumen/internal/params"
	"lumen/internal/signals"
)

// Transport defines a generic interface for sending frames or events.
// Implementations must be safe for concurrent use and must not block.
type Transport interface {
	Send(data any) error
	Close() error
}

// Message types on the wire.
const (
	TypeFrame  = "frame"
	TypeEvent  = "event"
	TypeSchema = "schema"
	TypeTap    = "tap"
	TypeSet    = "set"
	TypeError  = "error"
)

// EventBeat is emitted once per beat boundary.
const EventBeat = "beat"

// FrameMessage carries one signals.Frame.
type FrameMessage struct {
	Type string `json:"type"`
	signals.Frame
}

// NewFrameMessage wraps f.
func NewFrameMessage(f signals.Frame) FrameMessage {
	return FrameMessage{Type: TypeFrame, Frame: f}
}

// Event is a discrete notification such as a beat.
type Event struct {
	Type      string `json:"type"`
	Name      string `json:"name"`
	Timestamp int64  `json:"ts"`
	Count     uint64 `json:"count,omitempty"`
}

// NewBeatEvent returns the event for beat number count.
func NewBeatEvent(ts int64, count uint64) Event {
	return Event{Type: TypeEvent, Name: EventBeat, Timestamp: ts, Count: count}
}

// SchemaMessage describes the controllable parameters. Clients receive it
// once on connect.
type SchemaMessage struct {
	Type     string         `json:"type"`
	Params   []params.Value `json:"params"`
	Triggers []string       `json:"triggers"`
}

// NewSchemaMessage snapshots the store.
func NewSchemaMessage(store *params.Store) SchemaMessage {
	return SchemaMessage{Type: TypeSchema, Params: store.Schema(), Triggers: store.Triggers()}
}

// ControlMessage is inbound client input.
//
//	{"type":"tap"}
//	{"type":"set","name":"bpm","value":128}
//	{"type":"set","values":{"db_range":12,"db_baseline":0.4}}
type ControlMessage struct {
	Type   string             `json:"type"`
	Name   string             `json:"name,omitempty"`
	Value  *float64           `json:"value,omitempty"`
	Values map[string]float64 `json:"values,omitempty"`
}
