package parking

import (
	"fmt"
	"time"

	"github.com/google/btree"
)

const directoryDegree = 8

// Directory is the ordered set of slots keyed by slot number, with a plate
// index so membership checks never walk the tree.
type Directory struct {
	tree     *btree.BTreeG[*Slot]
	byPlate  map[string]int
	occupied int
}

func NewDirectory() *Directory {
	return &Directory{
		tree: btree.NewG(directoryDegree, func(a, b *Slot) bool {
			return a.Number < b.Number
		}),
		byPlate: make(map[string]int),
	}
}

func (d *Directory) Insert(slotNumber int) error {
	if slotNumber <= 0 {
		return fmt.Errorf("%w: %d", ErrInvalidSlot, slotNumber)
	}
	if _, ok := d.tree.Get(&Slot{Number: slotNumber}); ok {
		return fmt.Errorf("%w: %d", ErrDuplicateSlot, slotNumber)
	}
	d.tree.ReplaceOrInsert(NewSlot(slotNumber))
	return nil
}

// FindNearestFree returns the lowest-numbered unoccupied slot, or nil when
// every slot is taken.
func (d *Directory) FindNearestFree() *Slot {
	var found *Slot
	d.tree.Ascend(func(s *Slot) bool {
		if !s.IsOccupied {
			found = s
			return false
		}
		return true
	})
	return found
}

func (d *Directory) Search(slotNumber int) *Slot {
	s, ok := d.tree.Get(&Slot{Number: slotNumber})
	if !ok {
		return nil
	}
	return s
}

// AllSlotsInOrder returns copies of every slot in ascending order.
func (d *Directory) AllSlotsInOrder() []Slot {
	out := make([]Slot, 0, d.tree.Len())
	d.tree.Ascend(func(s *Slot) bool {
		out = append(out, *s)
		return true
	})
	return out
}

func (d *Directory) Occupy(s *Slot, plate string, at time.Time) {
	s.Park(plate, at)
	d.byPlate[plate] = s.Number
	d.occupied++
}

func (d *Directory) Release(s *Slot) string {
	plate := s.Leave()
	delete(d.byPlate, plate)
	d.occupied--
	return plate
}

// SlotOf returns the slot currently holding plate.
func (d *Directory) SlotOf(plate string) (int, bool) {
	n, ok := d.byPlate[plate]
	return n, ok
}

func (d *Directory) Len() int {
	return d.tree.Len()
}

func (d *Directory) Occupied() int {
	return d.occupied
}
