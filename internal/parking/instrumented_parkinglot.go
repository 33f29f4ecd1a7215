package parking

import (
	"context"
	"time"

	"parking-lot/internal/events"
	"parking-lot/internal/logging"
	"parking-lot/internal/telemetry"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type InstrumentedParkingLot struct {
	*ParkingLot
	telemetry *telemetry.Provider
	publisher events.Publisher

	// Metrics
	parkingOperations metric.Int64Counter
	historyOperations metric.Int64Counter
	feesCollected     metric.Float64Counter
	operationDuration metric.Float64Histogram
	totalSlotsGauge   metric.Int64UpDownCounter
}

func NewInstrumentedParkingLot(pl *ParkingLot, tp *telemetry.Provider, publisher events.Publisher) (*InstrumentedParkingLot, error) {
	if publisher == nil {
		publisher = events.Nop{}
	}

	meter := tp.Meter()

	parkingOperations, err := meter.Int64Counter("parking_operations_total",
		metric.WithDescription("Total number of park and remove operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	historyOperations, err := meter.Int64Counter("history_operations_total",
		metric.WithDescription("Total number of undo and redo operations"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	feesCollected, err := meter.Float64Counter("parking_fees_total",
		metric.WithDescription("Fees charged for freed slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	operationDuration, err := meter.Float64Histogram("operation_duration_seconds",
		metric.WithDescription("Duration of parking lot operations"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	totalSlotsGauge, err := meter.Int64UpDownCounter("parking_lot_total_slots",
		metric.WithDescription("Total number of parking slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	occupancyGauge, err := meter.Int64ObservableGauge("parking_lot_occupancy",
		metric.WithDescription("Current number of occupied parking slots"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	queueGauge, err := meter.Int64ObservableGauge("parking_wait_queue_length",
		metric.WithDescription("Plates waiting for a free slot"),
		metric.WithUnit("1"))
	if err != nil {
		return nil, err
	}

	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		occupied, queued := pl.counts()
		o.ObserveInt64(occupancyGauge, int64(occupied))
		o.ObserveInt64(queueGauge, int64(queued))
		return nil
	}, occupancyGauge, queueGauge)
	if err != nil {
		return nil, err
	}

	ipl := &InstrumentedParkingLot{
		ParkingLot:        pl,
		telemetry:         tp,
		publisher:         publisher,
		parkingOperations: parkingOperations,
		historyOperations: historyOperations,
		feesCollected:     feesCollected,
		operationDuration: operationDuration,
		totalSlotsGauge:   totalSlotsGauge,
	}

	totalSlotsGauge.Add(context.Background(), int64(pl.Capacity()))

	return ipl, nil
}

func (ipl *InstrumentedParkingLot) Park(ctx context.Context, plate string) (ParkResult, error) {
	ctx, span := ipl.telemetry.Tracer().Start(ctx, "parking_lot.park",
		trace.WithAttributes(attribute.String("vehicle.plate", plate)))
	defer span.End()

	start := time.Now()
	span.AddEvent("finding_available_slot")

	res, err := ipl.ParkingLot.Park(plate)

	labels := []attribute.KeyValue{attribute.String("operation", "park")}

	if err != nil {
		recordFailure(span, err)
		labels = append(labels, attribute.String("status", ErrorTag(err)))
	} else if res.Slot != nil {
		labels = append(labels, attribute.String("status", "allocated"))
		span.SetAttributes(attribute.Int("allocated_slot_number", *res.Slot))
		span.AddEvent("slot_allocated", trace.WithAttributes(attribute.Int("slot_number", *res.Slot)))
		ipl.publish(ctx, events.OpApply, Action{Kind: ActionPark, SlotNo: res.Slot, Plate: res.Plate, Seq: res.Seq})
	} else {
		labels = append(labels, attribute.String("status", "queued"))
		span.SetAttributes(attribute.Int("queue_length", res.QueueLen))
		span.AddEvent("plate_queued")
		ipl.publish(ctx, events.OpApply, Action{Kind: ActionEnqueue, Plate: res.Plate, Seq: res.Seq})
	}

	ipl.parkingOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ipl.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return res, err
}

func (ipl *InstrumentedParkingLot) Free(ctx context.Context, slotNumber int) (FreeResult, error) {
	ctx, span := ipl.telemetry.Tracer().Start(ctx, "parking_lot.free",
		trace.WithAttributes(attribute.Int("slot_number", slotNumber)))
	defer span.End()

	start := time.Now()
	span.AddEvent("releasing_slot")

	res, err := ipl.ParkingLot.Free(slotNumber)

	labels := []attribute.KeyValue{attribute.String("operation", "remove")}

	if err != nil {
		recordFailure(span, err)
		labels = append(labels, attribute.String("status", ErrorTag(err)))
	} else {
		labels = append(labels, attribute.String("status", "success"))
		span.SetAttributes(
			attribute.String("vehicle.plate", res.Plate),
			attribute.Int("duration_min", res.DurationMin),
			attribute.Float64("fee", res.Fee),
		)
		span.AddEvent("slot_released")
		ipl.feesCollected.Add(ctx, res.Fee)
		ipl.publish(ctx, events.OpApply, Action{Kind: ActionRemove, SlotNo: &res.Freed, Plate: res.Plate, Seq: res.Seq})

		if res.AssignedNext != nil {
			span.AddEvent("slot_reassigned", trace.WithAttributes(
				attribute.String("vehicle.plate", res.NextPlate),
			))
			ipl.publish(ctx, events.OpApply, Action{Kind: ActionPark, SlotNo: res.AssignedNext, Plate: res.NextPlate, Seq: res.NextSeq})
		}
	}

	ipl.parkingOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ipl.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return res, err
}

func (ipl *InstrumentedParkingLot) Undo(ctx context.Context) (Action, error) {
	return ipl.history(ctx, events.OpUndo, ipl.ParkingLot.Undo)
}

func (ipl *InstrumentedParkingLot) Redo(ctx context.Context) (Action, error) {
	return ipl.history(ctx, events.OpRedo, ipl.ParkingLot.Redo)
}

func (ipl *InstrumentedParkingLot) history(ctx context.Context, op events.Op, fn func() (Action, error)) (Action, error) {
	ctx, span := ipl.telemetry.Tracer().Start(ctx, "parking_lot."+string(op))
	defer span.End()

	start := time.Now()

	action, err := fn()

	labels := []attribute.KeyValue{attribute.String("operation", string(op))}

	switch {
	case IsEmptyLog(err):
		span.AddEvent("history_empty")
		labels = append(labels, attribute.String("status", "empty"))
	case err != nil:
		recordFailure(span, err)
		labels = append(labels,
			attribute.String("status", ErrorTag(err)),
			attribute.String("action.kind", string(action.Kind)),
		)
	default:
		span.SetAttributes(
			attribute.String("action.kind", string(action.Kind)),
			attribute.String("vehicle.plate", action.Plate),
		)
		labels = append(labels,
			attribute.String("status", "success"),
			attribute.String("action.kind", string(action.Kind)),
		)
		ipl.publish(ctx, op, action)
	}

	ipl.historyOperations.Add(ctx, 1, metric.WithAttributes(labels...))
	ipl.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(labels...))

	return action, err
}

func (ipl *InstrumentedParkingLot) GetStatus(ctx context.Context) Status {
	ctx, span := ipl.telemetry.Tracer().Start(ctx, "parking_lot.get_status")
	defer span.End()

	start := time.Now()

	status := ipl.ParkingLot.GetStatus()

	span.SetAttributes(
		attribute.Int("occupied_slots_count", status.Occupied),
		attribute.Int("queue_length", len(status.Queue)),
		attribute.Int("total_capacity", status.Capacity),
	)

	ipl.operationDuration.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(
		attribute.String("operation", "get_status"),
		attribute.String("status", "success"),
	))

	return status
}

func (ipl *InstrumentedParkingLot) Locate(ctx context.Context, plate string) (int, int, error) {
	_, span := ipl.telemetry.Tracer().Start(ctx, "parking_lot.locate",
		trace.WithAttributes(attribute.String("vehicle.plate", plate)))
	defer span.End()

	slot, pos, err := ipl.ParkingLot.Locate(plate)
	if err != nil {
		span.AddEvent("vehicle_not_found")
	} else {
		span.SetAttributes(
			attribute.Int("slot_number", slot),
			attribute.Int("queue_position", pos),
		)
	}
	return slot, pos, err
}

// publish runs outside the lot lock, so concurrent events can reach the
// stream out of order. Consumers order them by Seq.
func (ipl *InstrumentedParkingLot) publish(ctx context.Context, op events.Op, a Action) {
	err := ipl.publisher.Publish(ctx, events.Event{
		Seq:    a.Seq,
		Op:     op,
		Kind:   string(a.Kind),
		SlotNo: a.SlotNo,
		Plate:  a.Plate,
		At:     time.Now(),
	})
	if err != nil {
		logging.WithContext(ctx).WithError(err).Warn("failed to publish allocation event")
		return
	}
	logging.Debugf(ctx, "published %s %s event for %s, seq %d", op, a.Kind, a.Plate, a.Seq)
}

func recordFailure(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
