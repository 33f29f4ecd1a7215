package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"parking-lot/internal/parking"
	"parking-lot/internal/weather"

	"github.com/go-chi/chi/v5"
)

type ChatResponder interface {
	Reply(ctx context.Context, question string) string
}

type WeatherReporter interface {
	Current(ctx context.Context) weather.Report
}

type Handler struct {
	parkingLot  *parking.InstrumentedParkingLot
	assistant   ChatResponder
	weather     WeatherReporter
	serviceName string
}

func NewHandler(lot *parking.InstrumentedParkingLot, assistant ChatResponder, weather WeatherReporter, serviceName string) *Handler {
	return &Handler{
		parkingLot:  lot,
		assistant:   assistant,
		weather:     weather,
		serviceName: serviceName,
	}
}

func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, HealthResponse{
		Status:  "healthy",
		Service: h.serviceName,
		Meta:    extractMeta(r.Context()),
	})
}

func (h *Handler) Park(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req ParkRequest
	if err := decodeBody(r, &req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	plate := strings.TrimSpace(req.Plate)
	if plate == "" {
		plate = h.parkingLot.DefaultPlate()
	}

	res, err := h.parkingLot.Park(ctx, plate)
	if err != nil {
		if errors.Is(err, parking.ErrDuplicate) {
			WriteError(ctx, w, http.StatusBadRequest, parking.ErrorTag(err),
				"Vehicle "+plate+" is already in the system")
			return
		}
		writeLotError(ctx, w, err)
		return
	}

	WriteJSON(w, http.StatusOK, ParkResponse{
		AllocatedSlot: res.Slot,
		QueueLen:      res.QueueLen,
		Plate:         res.Plate,
	})
}

func (h *Handler) Remove(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req struct {
		SlotNo json.RawMessage `json:"slot_no"`
	}
	if err := decodeBody(r, &req); err != nil {
		WriteError(ctx, w, http.StatusBadRequest, "invalid_request", "Invalid request body")
		return
	}

	raw := strings.TrimSpace(string(req.SlotNo))
	if raw == "" || raw == "null" {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "slot_no required", Meta: extractMeta(ctx)})
		return
	}

	var slotNo int
	if err := json.Unmarshal(req.SlotNo, &slotNo); err != nil || slotNo <= 0 {
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{Error: "invalid slot_no", Meta: extractMeta(ctx)})
		return
	}

	res, err := h.parkingLot.Free(ctx, slotNo)
	if err != nil {
		writeLotError(ctx, w, err)
		return
	}

	WriteJSON(w, http.StatusOK, RemoveResponse{
		Freed:        res.Freed,
		Plate:        res.Plate,
		DurationMin:  res.DurationMin,
		Fee:          res.Fee,
		AssignedNext: res.AssignedNext,
		NextPlate:    res.NextPlate,
	})
}

func (h *Handler) Undo(w http.ResponseWriter, r *http.Request) {
	action, err := h.parkingLot.Undo(r.Context())
	writeHistory(r.Context(), w, action, err, "undo")
}

func (h *Handler) Redo(w http.ResponseWriter, r *http.Request) {
	action, err := h.parkingLot.Redo(r.Context())
	writeHistory(r.Context(), w, action, err, "redo")
}

func (h *Handler) GetStatus(w http.ResponseWriter, r *http.Request) {
	status := h.parkingLot.GetStatus(r.Context())

	slots := make([]SlotStatus, 0, len(status.Slots))
	for _, s := range status.Slots {
		slots = append(slots, SlotStatus{
			Slot:     s.Number,
			Occupied: s.IsOccupied,
			Plate:    s.Plate,
		})
	}

	WriteJSON(w, http.StatusOK, StatusResponse{
		Capacity:      status.Capacity,
		Occupied:      status.Occupied,
		Available:     status.Capacity - status.Occupied,
		RatePerMinute: status.RatePerMinute,
		Slots:         slots,
		Queue:         status.Queue,
		Undo:          status.Undo,
		Redo:          status.Redo,
	})
}

func (h *Handler) FindByPlate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	plate := strings.TrimSpace(chi.URLParam(r, "plate"))
	if plate == "" {
		WriteError(ctx, w, http.StatusBadRequest, "invalid_plate", "Plate is required")
		return
	}

	slot, pos, err := h.parkingLot.Locate(ctx, plate)
	if err != nil {
		WriteError(ctx, w, http.StatusNotFound, parking.ErrorTag(err), "Vehicle not found")
		return
	}

	resp := FindResponse{Plate: plate, QueuePosition: pos}
	if slot > 0 {
		resp.Slot = &slot
	}
	WriteJSON(w, http.StatusOK, resp)
}

func (h *Handler) Chat(w http.ResponseWriter, r *http.Request) {
	var req ChatRequest
	if err := decodeBody(r, &req); err != nil {
		req = ChatRequest{}
	}

	WriteJSON(w, http.StatusOK, ChatResponse{
		Reply: h.assistant.Reply(r.Context(), req.Q),
	})
}

func (h *Handler) Weather(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.weather.Current(r.Context()))
}

// decodeBody treats an empty body as an empty JSON object.
func decodeBody(r *http.Request, v any) error {
	if r.Body == nil {
		return nil
	}
	err := json.NewDecoder(r.Body).Decode(v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func writeLotError(ctx context.Context, w http.ResponseWriter, err error) {
	tag := parking.ErrorTag(err)
	status := http.StatusBadRequest
	if tag == "internal" {
		status = http.StatusInternalServerError
	}

	message := err.Error()
	if errors.Is(err, parking.ErrNotFound) {
		message = parking.ErrNotFound.Error()
	}
	WriteError(ctx, w, status, tag, message)
}

func writeHistory(ctx context.Context, w http.ResponseWriter, action parking.Action, err error, op string) {
	switch {
	case parking.IsEmptyLog(err):
		WriteJSON(w, http.StatusOK, MessageResponse{Msg: "Nothing to " + op})
		return
	case err != nil:
		WriteJSON(w, http.StatusBadRequest, ErrorResponse{
			Error: parking.ErrorTag(err),
			Msg:   "Could not " + op + " action",
			Meta:  extractMeta(ctx),
		})
		return
	}

	resp := HistoryResponse{Slot: action.SlotNo}
	if action.SlotNo == nil {
		resp.Plate = action.Plate
	}
	if op == "undo" {
		resp.Undone = string(action.Kind)
	} else {
		resp.Redone = string(action.Kind)
	}
	WriteJSON(w, http.StatusOK, resp)
}
