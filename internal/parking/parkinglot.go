package parking

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"
)

// ParkingLot allocates slots lowest-number-first, queues overflow arrivals
// and keeps an undo/redo history of every allocation change. All methods are
// safe for concurrent use; mutations are serialized behind one lock.
type ParkingLot struct {
	mu            sync.RWMutex
	capacity      int
	ratePerMinute float64
	slots         *Directory
	queue         *WaitQueue
	log           *ActionLog
	now           func() time.Time
	seq           uint64
}

type Option func(*ParkingLot)

// WithClock replaces time.Now, mostly for tests.
func WithClock(now func() time.Time) Option {
	return func(pl *ParkingLot) {
		pl.now = now
	}
}

// Seq fields number every applied change in lock order, starting at 1.
type ParkResult struct {
	Plate    string
	Slot     *int
	QueueLen int
	Seq      uint64
}

type FreeResult struct {
	Freed        int
	Plate        string
	DurationMin  int
	Fee          float64
	AssignedNext *int
	NextPlate    string
	Seq          uint64
	NextSeq      uint64
}

type Status struct {
	Capacity      int
	Occupied      int
	RatePerMinute float64
	Slots         []Slot
	Queue         []string
	Undo          []Action
	Redo          []Action
}

func NewParkingLot(capacity int, ratePerMinute float64, opts ...Option) (*ParkingLot, error) {
	if capacity <= 0 {
		return nil, fmt.Errorf("capacity must be greater than 0, got %d", capacity)
	}
	if ratePerMinute < 0 {
		return nil, fmt.Errorf("rate per minute must not be negative, got %v", ratePerMinute)
	}

	slots := NewDirectory()
	for i := 1; i <= capacity; i++ {
		if err := slots.Insert(i); err != nil {
			return nil, err
		}
	}

	pl := &ParkingLot{
		capacity:      capacity,
		ratePerMinute: ratePerMinute,
		slots:         slots,
		queue:         NewWaitQueue(),
		log:           NewActionLog(),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(pl)
	}
	return pl, nil
}

func (pl *ParkingLot) Capacity() int {
	return pl.capacity
}

// DefaultPlate builds the placeholder plate used when a caller parks without one.
func (pl *ParkingLot) DefaultPlate() string {
	return fmt.Sprintf("CAR%d", pl.now().Unix()%10000)
}

// Park gives plate the lowest free slot, or queues it when the lot is full.
// The returned Slot is nil when the plate was queued.
func (pl *ParkingLot) Park(plate string) (ParkResult, error) {
	plate = strings.TrimSpace(plate)
	if plate == "" {
		return ParkResult{}, ErrEmptyPlate
	}

	pl.mu.Lock()
	defer pl.mu.Unlock()

	if pl.tracked(plate) {
		return ParkResult{}, fmt.Errorf("%w: %s", ErrDuplicate, plate)
	}

	slot, seq := pl.allocate(plate)
	return ParkResult{
		Plate:    plate,
		Slot:     slot,
		QueueLen: pl.queue.Len(),
		Seq:      seq,
	}, nil
}

// Free releases an occupied slot, bills the stay and hands the slot to the
// longest-waiting plate if there is one.
func (pl *ParkingLot) Free(slotNumber int) (FreeResult, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	slot := pl.slots.Search(slotNumber)
	if slot == nil || !slot.IsOccupied {
		return FreeResult{}, fmt.Errorf("%w: slot %d", ErrNotFound, slotNumber)
	}

	now := pl.now()
	parkedAt := slot.ParkedAt
	duration := billableMinutes(now.Sub(parkedAt))
	plate := pl.slots.Release(slot)
	result := FreeResult{
		Freed:       slotNumber,
		Plate:       plate,
		DurationMin: duration,
		Fee:         float64(duration) * pl.ratePerMinute,
		Seq:         pl.nextSeq(),
	}
	pl.log.RecordAndClearRedo(Action{
		Kind:     ActionRemove,
		SlotNo:   intPtr(slotNumber),
		Plate:    plate,
		ParkedAt: parkedAt,
		Seq:      result.Seq,
	})

	if next, ok := pl.queue.Dequeue(); ok {
		pl.slots.Occupy(slot, next, now)
		result.AssignedNext = intPtr(slotNumber)
		result.NextPlate = next
		result.NextSeq = pl.nextSeq()
		pl.log.RecordAndClearRedo(Action{
			Kind:     ActionPark,
			SlotNo:   intPtr(slotNumber),
			Plate:    next,
			ParkedAt: now,
			Seq:      result.NextSeq,
		})
	}

	return result, nil
}

// Undo reverses the most recent action. A reversal that no longer applies
// drops the action and returns ErrNotFound or ErrDuplicate.
func (pl *ParkingLot) Undo() (Action, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	action, ok := pl.log.Undo()
	if !ok {
		return Action{}, ErrNothingToUndo
	}

	if err := pl.revert(&action); err != nil {
		return action, err
	}
	action.Seq = pl.nextSeq()
	pl.log.PushRedo(action)
	return action, nil
}

// Redo reapplies the most recently undone action.
func (pl *ParkingLot) Redo() (Action, error) {
	pl.mu.Lock()
	defer pl.mu.Unlock()

	action, ok := pl.log.Redo()
	if !ok {
		return Action{}, ErrNothingToRedo
	}

	if err := pl.reapply(&action); err != nil {
		return action, err
	}
	action.Seq = pl.nextSeq()
	pl.log.PushUndo(action)
	return action, nil
}

func (pl *ParkingLot) GetStatus() Status {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	return Status{
		Capacity:      pl.capacity,
		Occupied:      pl.slots.Occupied(),
		RatePerMinute: pl.ratePerMinute,
		Slots:         pl.slots.AllSlotsInOrder(),
		Queue:         pl.queue.Snapshot(),
		Undo:          pl.log.UndoEntries(),
		Redo:          pl.log.RedoEntries(),
	}
}

// Locate reports where plate currently is: its slot, or its 1-based position
// in the wait queue.
func (pl *ParkingLot) Locate(plate string) (slot int, queuePos int, err error) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()

	if n, ok := pl.slots.SlotOf(plate); ok {
		return n, 0, nil
	}
	for i, p := range pl.queue.Snapshot() {
		if p == plate {
			return 0, i + 1, nil
		}
	}
	return 0, 0, fmt.Errorf("%w: plate %s", ErrNotFound, plate)
}

func (pl *ParkingLot) counts() (occupied, queued int) {
	pl.mu.RLock()
	defer pl.mu.RUnlock()
	return pl.slots.Occupied(), pl.queue.Len()
}

func (pl *ParkingLot) tracked(plate string) bool {
	if _, ok := pl.slots.SlotOf(plate); ok {
		return true
	}
	return pl.queue.Contains(plate)
}

func (pl *ParkingLot) allocate(plate string) (*int, uint64) {
	seq := pl.nextSeq()
	if slot := pl.slots.FindNearestFree(); slot != nil {
		at := pl.now()
		pl.slots.Occupy(slot, plate, at)
		pl.log.RecordAndClearRedo(Action{
			Kind:     ActionPark,
			SlotNo:   intPtr(slot.Number),
			Plate:    plate,
			ParkedAt: at,
			Seq:      seq,
		})
		return intPtr(slot.Number), seq
	}

	pl.queue.Enqueue(plate)
	pl.log.RecordAndClearRedo(Action{Kind: ActionEnqueue, Plate: plate, Seq: seq})
	return nil, seq
}

// nextSeq must be called with the write lock held.
func (pl *ParkingLot) nextSeq() uint64 {
	pl.seq++
	return pl.seq
}

func (pl *ParkingLot) revert(a *Action) error {
	switch a.Kind {
	case ActionPark:
		slot := pl.slotOf(a)
		if slot == nil || !slot.IsOccupied || slot.Plate != a.Plate {
			return fmt.Errorf("%w: %s is not parked in slot %s", ErrNotFound, a.Plate, slotLabel(a))
		}
		pl.slots.Release(slot)
	case ActionEnqueue:
		if !pl.queue.Remove(a.Plate) {
			return fmt.Errorf("%w: %s is not waiting", ErrNotFound, a.Plate)
		}
	case ActionRemove:
		slot := pl.slotOf(a)
		if slot == nil || slot.IsOccupied {
			return fmt.Errorf("%w: slot %s is not free", ErrNotFound, slotLabel(a))
		}
		if pl.tracked(a.Plate) {
			return fmt.Errorf("%w: %s", ErrDuplicate, a.Plate)
		}
		parkedAt := a.ParkedAt
		if parkedAt.IsZero() {
			parkedAt = pl.now()
		}
		pl.slots.Occupy(slot, a.Plate, parkedAt)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

func (pl *ParkingLot) reapply(a *Action) error {
	switch a.Kind {
	case ActionPark:
		slot := pl.slotOf(a)
		if slot == nil || slot.IsOccupied {
			return fmt.Errorf("%w: slot %s is not free", ErrNotFound, slotLabel(a))
		}
		if pl.tracked(a.Plate) {
			return fmt.Errorf("%w: %s", ErrDuplicate, a.Plate)
		}
		a.ParkedAt = pl.now()
		pl.slots.Occupy(slot, a.Plate, a.ParkedAt)
	case ActionEnqueue:
		if pl.tracked(a.Plate) {
			return fmt.Errorf("%w: %s", ErrDuplicate, a.Plate)
		}
		pl.queue.Enqueue(a.Plate)
	case ActionRemove:
		slot := pl.slotOf(a)
		if slot == nil || !slot.IsOccupied || slot.Plate != a.Plate {
			return fmt.Errorf("%w: %s is not parked in slot %s", ErrNotFound, a.Plate, slotLabel(a))
		}
		a.ParkedAt = slot.ParkedAt
		pl.slots.Release(slot)
	default:
		return fmt.Errorf("unknown action kind %q", a.Kind)
	}
	return nil
}

func (pl *ParkingLot) slotOf(a *Action) *Slot {
	if a.SlotNo == nil {
		return nil
	}
	return pl.slots.Search(*a.SlotNo)
}

// billableMinutes rounds any stay up to whole minutes, with a one minute floor.
func billableMinutes(elapsed time.Duration) int {
	minutes := int(math.Ceil(elapsed.Minutes()))
	if minutes < 1 {
		return 1
	}
	return minutes
}

func slotLabel(a *Action) string {
	if a.SlotNo == nil {
		return "<none>"
	}
	return fmt.Sprint(*a.SlotNo)
}

func intPtr(n int) *int {
	return &n
}
