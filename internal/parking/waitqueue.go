package parking

// WaitQueue holds plates that arrived while every slot was taken.
type WaitQueue struct {
	plates  []string
	members map[string]struct{}
}

func NewWaitQueue() *WaitQueue {
	return &WaitQueue{members: make(map[string]struct{})}
}

func (q *WaitQueue) Enqueue(plate string) {
	q.plates = append(q.plates, plate)
	q.members[plate] = struct{}{}
}

func (q *WaitQueue) Dequeue() (string, bool) {
	if len(q.plates) == 0 {
		return "", false
	}
	plate := q.plates[0]
	q.plates[0] = ""
	q.plates = q.plates[1:]
	delete(q.members, plate)
	return plate, true
}

func (q *WaitQueue) Contains(plate string) bool {
	_, ok := q.members[plate]
	return ok
}

// Remove drops plate from wherever it sits in the queue. Only undo uses it.
func (q *WaitQueue) Remove(plate string) bool {
	if !q.Contains(plate) {
		return false
	}
	for i, p := range q.plates {
		if p == plate {
			q.plates = append(q.plates[:i], q.plates[i+1:]...)
			break
		}
	}
	delete(q.members, plate)
	return true
}

func (q *WaitQueue) Snapshot() []string {
	out := make([]string, len(q.plates))
	copy(out, q.plates)
	return out
}

func (q *WaitQueue) Len() int {
	return len(q.plates)
}
