// Package events publishes allocation history as an outbound audit feed.
// Nothing in the service reads events back.
package events

import (
	"context"
	"strconv"
	"time"
)

type Op string

const (
	OpApply Op = "apply"
	OpUndo  Op = "undo"
	OpRedo  Op = "redo"
)

// Seq is assigned under the lot lock and orders events that were published
// concurrently.
type Event struct {
	Seq    uint64
	Op     Op
	Kind   string
	SlotNo *int
	Plate  string
	At     time.Time
}

// Fields flattens the event into stream fields.
func (e Event) Fields() map[string]any {
	slot := ""
	if e.SlotNo != nil {
		slot = strconv.Itoa(*e.SlotNo)
	}
	at := e.At
	if at.IsZero() {
		at = time.Now()
	}
	return map[string]any{
		"seq":     strconv.FormatUint(e.Seq, 10),
		"op":      string(e.Op),
		"kind":    e.Kind,
		"slot_no": slot,
		"plate":   e.Plate,
		"at":      at.UTC().Format(time.RFC3339Nano),
	}
}

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
	Close() error
}

type Nop struct{}

func (Nop) Publish(context.Context, Event) error { return nil }
func (Nop) Close() error                         { return nil }
