package parking

import "time"

type Slot struct {
	Number     int
	IsOccupied bool
	Plate      string
	ParkedAt   time.Time
}

func NewSlot(number int) *Slot {
	return &Slot{
		Number:     number,
		IsOccupied: false,
	}
}

func (s *Slot) Park(plate string, at time.Time) {
	s.Plate = plate
	s.ParkedAt = at
	s.IsOccupied = true
}

// Leave empties the slot and returns the plate that occupied it.
func (s *Slot) Leave() string {
	plate := s.Plate
	s.Plate = ""
	s.ParkedAt = time.Time{}
	s.IsOccupied = false
	return plate
}
