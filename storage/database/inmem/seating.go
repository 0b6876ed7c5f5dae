package inmemdb

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/admissions/core/seating"
)

var (
	errSeatTaken  = errors.New("seat already taken")
	errRoomExists = errors.New("an exam room with this building & room number already exists")
)

type seatingRepository struct {
	db *seatingTables
}

var _ seating.Repository = (*seatingRepository)(nil) // interface compliance check

func NewSeatingRepository(db *DB) *seatingRepository {
	return &seatingRepository{db: db.seating}
}

// query returns the applicants matching filter, in insertion order. Callers hold the lock.
func (repo *seatingRepository) query(filter seating.ApplicantFilter) []seating.Applicant {
	apps := make([]seating.Applicant, 0)
	for _, id := range repo.db.applicantOrder {
		if app := repo.db.applicants[id]; matches(*app, filter) {
			apps = append(apps, *app)
		}
	}
	return apps
}

func matches(app seating.Applicant, filter seating.ApplicantFilter) bool {
	if !filter.Scope.Contains(app) {
		return false
	}
	if filter.Status != "" && app.Status != filter.Status {
		return false
	}
	if filter.Seated != nil && app.IsSeated() != *filter.Seated {
		return false
	}
	if filter.NationalID != "" && app.NationalID != filter.NationalID {
		return false
	}
	if !filter.BirthDate.IsZero() && !sameDay(app.BirthDate, filter.BirthDate) {
		return false
	}
	return true
}

func sameDay(a, b time.Time) bool {
	y1, m1, d1 := a.UTC().Date()
	y2, m2, d2 := b.UTC().Date()
	return y1 == y2 && m1 == m2 && d1 == d2
}

func (repo *seatingRepository) QueryEligibleApplicants(_ context.Context, scope seating.Scope, key seating.SortKey) ([]seating.Applicant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	seated := false
	apps := repo.query(seating.ApplicantFilter{Scope: scope, Status: seating.StatusApproved, Seated: &seated})
	sort.SliceStable(apps, func(i, j int) bool {
		ki, kj := sortValue(apps[i], key), sortValue(apps[j], key)
		if ki != kj {
			return ki < kj
		}
		return apps[i].CreatedAt.Before(apps[j].CreatedAt)
	})
	return apps, nil
}

func sortValue(app seating.Applicant, key seating.SortKey) string {
	if key == seating.SortByApplicationNumber {
		return app.ApplicationNumber
	}
	return app.NationalID
}

func (repo *seatingRepository) QueryApplicants(_ context.Context, filter seating.ApplicantFilter) ([]seating.Applicant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := repo.query(filter)
	sort.SliceStable(apps, func(i, j int) bool {
		if apps[i].ExamRoomID != apps[j].ExamRoomID {
			return apps[i].ExamRoomID < apps[j].ExamRoomID
		}
		return apps[i].SeatNumber < apps[j].SeatNumber
	})
	return apps, nil
}

func (repo *seatingRepository) CountApplicants(_ context.Context, filter seating.ApplicantFilter) (int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()
	return len(repo.query(filter)), nil
}

func (repo *seatingRepository) GetApplicant(_ context.Context, filter seating.ApplicantFilter) (seating.Applicant, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	apps := repo.query(filter)
	if len(apps) == 0 {
		return seating.Applicant{}, seating.ErrNotFound
	}
	return apps[0], nil
}

func (repo *seatingRepository) CreateApplicant(_ context.Context, app seating.Applicant) (seating.Applicant, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	app.ID = uuid.New().String()
	repo.db.applicants[app.ID] = &app
	repo.db.applicantOrder = append(repo.db.applicantOrder, app.ID)
	return app, nil
}

func (repo *seatingRepository) SetApplicantSeat(_ context.Context, applicantID, roomID string, seatNumber int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	app, ok := repo.db.applicants[applicantID]
	if !ok || app.IsSeated() {
		return seating.ErrNotEligible
	}
	if _, ok = repo.db.rooms[roomID]; !ok {
		return seating.ErrRoomNotFound
	}
	for _, other := range repo.db.applicants {
		if other.ExamRoomID == roomID && other.SeatNumber == seatNumber {
			return errSeatTaken
		}
	}
	app.ExamRoomID = roomID
	app.SeatNumber = seatNumber
	return nil
}

func (repo *seatingRepository) ClearSeats(_ context.Context, scope seating.Scope) (int, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	var cleared int
	for _, app := range repo.db.applicants {
		if app.IsSeated() && scope.Contains(*app) {
			app.ExamRoomID = ""
			app.SeatNumber = 0
			cleared++
		}
	}
	return cleared, nil
}

func (repo *seatingRepository) CountSeatedByRoom(_ context.Context) (map[string]int, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	counts := make(map[string]int)
	for _, app := range repo.db.applicants {
		if app.IsSeated() {
			counts[app.ExamRoomID]++
		}
	}
	return counts, nil
}

func (repo *seatingRepository) QueryRooms(_ context.Context, filter *seating.RoomFilter) ([]seating.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	rooms := make([]seating.Room, 0, len(repo.db.rooms))
	for _, r := range repo.db.rooms {
		if filter != nil && filter.IsActive != nil && r.IsActive != *filter.IsActive {
			continue
		}
		rooms = append(rooms, *r)
	}
	sort.Slice(rooms, func(i, j int) bool { return rooms[i].Before(rooms[j]) })
	return rooms, nil
}

func (repo *seatingRepository) GetRoom(_ context.Context, id string) (seating.Room, error) {
	repo.db.RLock()
	defer repo.db.RUnlock()

	if r, ok := repo.db.rooms[id]; ok {
		return *r, nil
	}
	return seating.Room{}, seating.ErrRoomNotFound
}

func (repo *seatingRepository) CreateRoom(_ context.Context, room seating.Room) (seating.Room, error) {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, r := range repo.db.rooms {
		if r.Building == room.Building && r.RoomNumber == room.RoomNumber {
			return seating.Room{}, errRoomExists
		}
	}
	room.ID = uuid.New().String()
	room.IsFull = room.CurrentCount >= room.Capacity
	repo.db.rooms[room.ID] = &room
	return room, nil
}

func (repo *seatingRepository) IncrementRoomCount(_ context.Context, roomID string, n int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.rooms[roomID]
	if !ok {
		return seating.ErrRoomNotFound
	}
	r.CurrentCount += n
	r.IsFull = r.CurrentCount >= r.Capacity
	return nil
}

func (repo *seatingRepository) ZeroRoomCounts(_ context.Context) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	for _, r := range repo.db.rooms {
		r.CurrentCount = 0
		r.IsFull = false
	}
	return nil
}

func (repo *seatingRepository) SetRoomCount(_ context.Context, roomID string, n int) error {
	repo.db.Lock()
	defer repo.db.Unlock()

	r, ok := repo.db.rooms[roomID]
	if !ok {
		return seating.ErrRoomNotFound
	}
	r.CurrentCount = n
	r.IsFull = n >= r.Capacity
	return nil
}
