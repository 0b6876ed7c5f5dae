package seating

import "sort"

type openRoom struct {
	id        string
	count     int // local copy of CurrentCount
	available int
}

// NewPlan seats the applicants first-fit across the rooms.
//
// Applicants are queued by the sort key (stable, byte-wise), rooms by (Building, RoomNumber).
// A cursor walks the rooms once: each applicant takes the next seat (CurrentCount+1) of the room
// under the cursor, and the cursor only moves forward when that room is full. Once the rooms run
// out, the rest of the queue is left unassigned.
//
// applicants must all be eligible. An empty queue is not an error; a queue with no room
// to go to is ErrNoRoomCapacity.
func NewPlan(applicants []Applicant, rooms []Room, key SortKey) (Plan, error) {
	keyOf, ok := key.accessor()
	if !ok {
		return Plan{}, errInvalidSortKey
	}

	plan := Plan{
		Assignments: make([]Assignment, 0, len(applicants)),
		Unassigned:  make([]string, 0),
		Total:       len(applicants),
	}
	if len(applicants) == 0 {
		return plan, nil
	}

	open := openRooms(rooms)
	if len(open) == 0 {
		return Plan{}, ErrNoRoomCapacity
	}

	queue := make([]Applicant, len(applicants))
	copy(queue, applicants)
	sort.SliceStable(queue, func(i, j int) bool { return keyOf(queue[i]) < keyOf(queue[j]) })

	cursor := 0
	for i, app := range queue {
		for cursor < len(open) && open[cursor].available <= 0 {
			cursor++
		}
		if cursor == len(open) {
			for _, rest := range queue[i:] {
				plan.Unassigned = append(plan.Unassigned, rest.ID)
			}
			break
		}

		room := &open[cursor]
		room.count++
		room.available--
		plan.Assignments = append(plan.Assignments, Assignment{
			ApplicantID: app.ID,
			RoomID:      room.id,
			SeatNumber:  room.count,
		})
	}
	return plan, nil
}

// openRooms returns the active rooms with free seats, in assignment order.
func openRooms(rooms []Room) []openRoom {
	sorted := make([]Room, 0, len(rooms))
	for _, r := range rooms {
		if r.IsActive && r.AvailableSeats() > 0 {
			sorted = append(sorted, r)
		}
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	open := make([]openRoom, 0, len(sorted))
	for _, r := range sorted {
		open = append(open, openRoom{id: r.ID, count: r.CurrentCount, available: r.AvailableSeats()})
	}
	return open
}
