package parking

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

type InstrumentedShell struct {
	lot     *InstrumentedParkingLot
	scanner *bufio.Scanner
	out     io.Writer
	tracer  trace.Tracer
}

func NewInstrumentedShell(lot *InstrumentedParkingLot, in io.Reader, out io.Writer) *InstrumentedShell {
	return &InstrumentedShell{
		lot:     lot,
		scanner: bufio.NewScanner(in),
		out:     out,
		tracer:  lot.telemetry.Tracer(),
	}
}

// Run reads commands until input ends, "exit" is typed or ctx is cancelled.
func (s *InstrumentedShell) Run(ctx context.Context) {
	ctx, span := s.tracer.Start(ctx, "shell.run")
	defer span.End()

	span.AddEvent("shell_started")

	for s.scanner.Scan() {
		if ctx.Err() != nil {
			break
		}

		input := strings.TrimSpace(s.scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		cmdCtx, cmdSpan := s.tracer.Start(ctx, "shell.process_command",
			trace.WithAttributes(attribute.String("command.input", input)))
		s.processCommand(cmdCtx, input)
		cmdSpan.End()
	}

	span.AddEvent("shell_ended")
}

func (s *InstrumentedShell) processCommand(ctx context.Context, input string) {
	parts := strings.Fields(input)
	command := parts[0]
	trace.SpanFromContext(ctx).SetAttributes(attribute.String("command.name", command))

	switch command {
	case "park":
		s.handlePark(ctx, parts)
	case "remove", "leave":
		s.handleRemove(ctx, parts)
	case "undo":
		s.handleHistory(ctx, "undo", "Undone", s.lot.Undo)
	case "redo":
		s.handleHistory(ctx, "redo", "Redone", s.lot.Redo)
	case "status":
		s.handleStatus(ctx)
	case "find":
		s.handleFind(ctx, parts)
	case "help":
		s.printf("Commands: park [plate], remove <slot>, undo, redo, status, find <plate>, exit\n")
	default:
		trace.SpanFromContext(ctx).AddEvent("unknown_command")
		s.printf("Unknown command: %s\n", command)
	}
}

func (s *InstrumentedShell) handlePark(ctx context.Context, parts []string) {
	if len(parts) > 2 {
		s.printf("Usage: park [plate]\n")
		return
	}

	plate := s.lot.DefaultPlate()
	if len(parts) == 2 {
		plate = parts[1]
	}

	res, err := s.lot.Park(ctx, plate)
	if err != nil {
		s.printf("Error: %s\n", err.Error())
		return
	}

	if res.Slot == nil {
		s.printf("Lot full, %s queued (queue length %d)\n", res.Plate, res.QueueLen)
		return
	}
	s.printf("Allocated slot number: %d to %s\n", *res.Slot, res.Plate)
}

func (s *InstrumentedShell) handleRemove(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: remove <slot_number>\n")
		return
	}

	slotNumber, err := strconv.Atoi(parts[1])
	if err != nil || slotNumber <= 0 {
		s.printf("Invalid slot number\n")
		return
	}

	res, err := s.lot.Free(ctx, slotNumber)
	if err != nil {
		s.printf("Error: %s\n", err.Error())
		return
	}

	s.printf("Slot number %d is free, %s stayed %d min, fee %.2f\n", res.Freed, res.Plate, res.DurationMin, res.Fee)
	if res.AssignedNext != nil {
		s.printf("Slot number %d assigned to %s\n", *res.AssignedNext, res.NextPlate)
	}
}

func (s *InstrumentedShell) handleHistory(ctx context.Context, verb, done string, fn func(context.Context) (Action, error)) {
	action, err := fn(ctx)
	switch {
	case IsEmptyLog(err):
		s.printf("Nothing to %s\n", verb)
	case err != nil:
		s.printf("Could not %s action: %s\n", verb, err.Error())
	default:
		s.printf("%s %s\n", done, describe(action))
	}
}

func (s *InstrumentedShell) handleStatus(ctx context.Context) {
	status := s.lot.GetStatus(ctx)

	s.printf("Slot No.\tPlate\n")
	for _, slot := range status.Slots {
		plate := "-"
		if slot.IsOccupied {
			plate = slot.Plate
		}
		s.printf("%d\t\t%s\n", slot.Number, plate)
	}
	s.printf("Queue: %s\n", strings.Join(status.Queue, ", "))
	s.printf("Undo: %d, Redo: %d\n", len(status.Undo), len(status.Redo))
}

func (s *InstrumentedShell) handleFind(ctx context.Context, parts []string) {
	if len(parts) != 2 {
		s.printf("Usage: find <plate>\n")
		return
	}

	slot, pos, err := s.lot.Locate(ctx, parts[1])
	switch {
	case err != nil:
		s.printf("Not found\n")
	case slot > 0:
		s.printf("%d\n", slot)
	default:
		s.printf("Waiting, position %d\n", pos)
	}
}

func (s *InstrumentedShell) printf(format string, args ...any) {
	fmt.Fprintf(s.out, format, args...)
}

func describe(a Action) string {
	if a.SlotNo == nil {
		return fmt.Sprintf("%s of %s", a.Kind, a.Plate)
	}
	return fmt.Sprintf("%s of %s in slot %d", a.Kind, a.Plate, *a.SlotNo)
}
