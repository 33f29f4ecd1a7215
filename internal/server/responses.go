package server

import (
	"context"
	"encoding/json"
	"net/http"

	"parking-lot/internal/parking"

	"go.opentelemetry.io/otel/trace"
)

type Meta struct {
	TraceID   string `json:"trace_id,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Msg     string `json:"msg,omitempty"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type MessageResponse struct {
	Msg string `json:"msg"`
}

type HealthResponse struct {
	Status  string `json:"status"`
	Service string `json:"service"`
	Meta    *Meta  `json:"meta,omitempty"`
}

type ParkRequest struct {
	Plate string `json:"plate"`
}

type ParkResponse struct {
	AllocatedSlot *int   `json:"allocated_slot"`
	QueueLen      int    `json:"queue_len"`
	Plate         string `json:"plate"`
}

type RemoveResponse struct {
	Freed        int     `json:"freed"`
	Plate        string  `json:"plate"`
	DurationMin  int     `json:"duration_min"`
	Fee          float64 `json:"fee"`
	AssignedNext *int    `json:"assigned_next"`
	NextPlate    string  `json:"next_plate,omitempty"`
}

type HistoryResponse struct {
	Undone string `json:"undone,omitempty"`
	Redone string `json:"redone,omitempty"`
	Slot   *int   `json:"slot,omitempty"`
	Plate  string `json:"plate,omitempty"`
}

type SlotStatus struct {
	Slot     int    `json:"slot"`
	Occupied bool   `json:"occupied"`
	Plate    string `json:"plate"`
}

type StatusResponse struct {
	Capacity      int              `json:"capacity"`
	Occupied      int              `json:"occupied"`
	Available     int              `json:"available"`
	RatePerMinute float64          `json:"rate_per_minute"`
	Slots         []SlotStatus     `json:"slots"`
	Queue         []string         `json:"queue"`
	Undo          []parking.Action `json:"undo"`
	Redo          []parking.Action `json:"redo"`
}

type FindResponse struct {
	Plate         string `json:"plate"`
	Slot          *int   `json:"slot"`
	QueuePosition int    `json:"queue_position,omitempty"`
}

type ChatRequest struct {
	Q string `json:"q"`
}

type ChatResponse struct {
	Reply string `json:"reply"`
}

func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func extractMeta(ctx context.Context) *Meta {
	meta := &Meta{}

	span := trace.SpanFromContext(ctx)
	if span.SpanContext().HasTraceID() {
		meta.TraceID = span.SpanContext().TraceID().String()
	}

	if reqID, ok := ctx.Value(RequestIDKey).(string); ok {
		meta.RequestID = reqID
	}

	return meta
}

// WriteError sends a tagged error body. tag is the machine-readable kind,
// message is for people.
func WriteError(ctx context.Context, w http.ResponseWriter, status int, tag, message string) {
	WriteJSON(w, status, ErrorResponse{
		Error:   tag,
		Message: message,
		Meta:    extractMeta(ctx),
	})
}
