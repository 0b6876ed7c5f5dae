package seating_test

import (
	"context"
	stderrors "errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/seating"
	emailsvc "github.com/trezcool/admissions/services/email"
	logsvc "github.com/trezcool/admissions/services/logger"
	inmemdb "github.com/trezcool/admissions/storage/database/inmem"
	"github.com/trezcool/admissions/tests"
)

var (
	ctx     = context.Background()
	courseA = "0a8f7a5e-1c2b-4d3e-8f9a-000000000001"
	courseB = "0a8f7a5e-1c2b-4d3e-8f9a-000000000002"

	errDiskFull = stderrors.New("disk full")
)

// flakyRepository fails SetApplicantSeat after `seatsLeft` successful writes.
type flakyRepository struct {
	seating.Repository
	seatsLeft int
}

func (repo *flakyRepository) SetApplicantSeat(ctx context.Context, applicantID, roomID string, seatNumber int) error {
	if repo.seatsLeft == 0 {
		return errDiskFull
	}
	repo.seatsLeft--
	return repo.Repository.SetApplicantSeat(ctx, applicantID, roomID, seatNumber)
}

func setup(t *testing.T) (*seating.Service, seating.Repository, *emailsvc.ConsoleServiceMock) {
	conf := testutil.NewConfig()
	logger := logsvc.NewNopLogger()
	repo := inmemdb.NewSeatingRepository(inmemdb.Open())
	mailSvc := emailsvc.NewConsoleServiceMock(logger, conf)
	return seating.NewService(repo, mailSvc, logger, conf), repo, mailSvc
}

func createApplicants(t *testing.T, repo seating.Repository, course string, nationalIDs ...string) []seating.Applicant {
	created := make([]seating.Applicant, 0, len(nationalIDs))
	for _, nid := range nationalIDs {
		created = append(created, testutil.CreateApplicant(t, repo, seating.Applicant{
			ApplicationNumber: course[len(course)-1:] + "-" + nid,
			NationalID:        nid,
			CourseID:          course,
		}))
	}
	return created
}

func rooms(t *testing.T, repo seating.Repository) map[string]seating.Room {
	rs, err := repo.QueryRooms(ctx, nil)
	require.NoError(t, err)
	byID := make(map[string]seating.Room, len(rs))
	for _, r := range rs {
		byID[r.ID] = r
	}
	return byID
}

// checkConsistency asserts that every room counter matches its occupants & capacity.
func checkConsistency(t *testing.T, repo seating.Repository) {
	t.Helper()
	counts, err := repo.CountSeatedByRoom(ctx)
	require.NoError(t, err)
	for id, r := range rooms(t, repo) {
		assert.Equal(t, counts[id], r.CurrentCount, "room %s %s count", r.Building, r.RoomNumber)
		assert.LessOrEqual(t, r.CurrentCount, r.Capacity, "room %s %s capacity", r.Building, r.RoomNumber)
		assert.Equal(t, r.CurrentCount >= r.Capacity, r.IsFull, "room %s %s is full", r.Building, r.RoomNumber)
	}

	seated := true
	apps, err := repo.QueryApplicants(ctx, seating.ApplicantFilter{Seated: &seated})
	require.NoError(t, err)
	seats := make(map[seating.Assignment]string)
	for _, app := range apps {
		key := seating.Assignment{RoomID: app.ExamRoomID, SeatNumber: app.SeatNumber}
		if other, ok := seats[key]; ok {
			t.Errorf("seat %d of room %s given to %s & %s", app.SeatNumber, app.ExamRoomID, other, app.ID)
		}
		seats[key] = app.ID
	}
}

func TestService_Assign(t *testing.T) {
	t.Run("nobody eligible", func(t *testing.T) {
		svc, _, _ := setup(t)
		res, err := svc.Assign(ctx, seating.ScopeAll, seating.DefaultSortKey)
		require.NoError(t, err)
		assert.Equal(t, seating.AssignResult{}, res)
	})

	t.Run("invalid sort key", func(t *testing.T) {
		svc, _, _ := setup(t)
		_, err := svc.Assign(ctx, seating.ScopeAll, "lastName")
		var vErr *core.ValidationError
		assert.True(t, stderrors.As(err, &vErr), "got %v", err)
	})

	t.Run("no capacity", func(t *testing.T) {
		svc, repo, _ := setup(t)
		createApplicants(t, repo, courseA, "1")
		testutil.CreateRoom(t, repo, "A", "1", 1, false)
		full := testutil.CreateRoom(t, repo, "A", "2", 1, true)
		require.NoError(t, repo.SetRoomCount(ctx, full.ID, 1))

		_, err := svc.Assign(ctx, seating.ScopeAll, seating.DefaultSortKey)
		assert.True(t, core.IsConfigurationError(err), "got %v", err)

		seated := true
		n, err := repo.CountApplicants(ctx, seating.ApplicantFilter{Seated: &seated})
		require.NoError(t, err)
		assert.Zero(t, n, "no partial state")
	})

	t.Run("scoped run & recovery after adding capacity", func(t *testing.T) {
		svc, repo, _ := setup(t)
		createApplicants(t, repo, courseA, "a3", "a1", "a2", "a4")
		createApplicants(t, repo, courseB, "b1")
		testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "x", NationalID: "a0", CourseID: courseA, Status: seating.StatusRejected})
		r1 := testutil.CreateRoom(t, repo, "A", "1", 2, true)

		res, err := svc.Assign(ctx, seating.Scope{CourseID: courseA}, seating.SortByNationalID)
		require.NoError(t, err)
		assert.Equal(t, seating.AssignResult{Assigned: 2, NotAssigned: 2, Total: 4}, res)
		checkConsistency(t, repo)

		a1, err := repo.GetApplicant(ctx, seating.ApplicantFilter{NationalID: "a1"})
		require.NoError(t, err)
		assert.Equal(t, r1.ID, a1.ExamRoomID)
		assert.Equal(t, 1, a1.SeatNumber)

		// more capacity: the unassigned are picked up, the seated are not moved
		r2 := testutil.CreateRoom(t, repo, "B", "1", 5, true)
		res, err = svc.Assign(ctx, seating.Scope{CourseID: courseA}, seating.SortByNationalID)
		require.NoError(t, err)
		assert.Equal(t, seating.AssignResult{Assigned: 2, NotAssigned: 0, Total: 2}, res)
		checkConsistency(t, repo)

		a3, err := repo.GetApplicant(ctx, seating.ApplicantFilter{NationalID: "a3"})
		require.NoError(t, err)
		assert.Equal(t, r2.ID, a3.ExamRoomID)
		assert.Equal(t, 1, a3.SeatNumber)

		// then course B continues after the occupants of r2
		res, err = svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
		require.NoError(t, err)
		assert.Equal(t, seating.AssignResult{Assigned: 1, NotAssigned: 0, Total: 1}, res)
		b1, err := repo.GetApplicant(ctx, seating.ApplicantFilter{NationalID: "b1"})
		require.NoError(t, err)
		assert.Equal(t, r2.ID, b1.ExamRoomID)
		assert.Equal(t, 3, b1.SeatNumber)
		checkConsistency(t, repo)
	})

	t.Run("seat notifications", func(t *testing.T) {
		svc, repo, mailSvc := setup(t)
		testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "A-1", NationalID: "1", FirstName: "Ada", Email: "ada@test.cd"})
		testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "A-2", NationalID: "2"})
		testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "A-3", NationalID: "3", Email: "late@test.cd"})
		testutil.CreateRoom(t, repo, "Main", "12", 2, true)

		_, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
		require.NoError(t, err)

		sent := mailSvc.SentMessages()
		require.Len(t, sent, 1) // A-2 has no email, A-3 has no seat
		assert.Equal(t, "ada@test.cd", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "Main")
		assert.Contains(t, sent[0].TextContent, "A-1")
	})
}

func TestService_Assign_partialFailure(t *testing.T) {
	conf := testutil.NewConfig()
	repo := inmemdb.NewSeatingRepository(inmemdb.Open())
	flaky := &flakyRepository{Repository: repo, seatsLeft: 3}
	svc := seating.NewService(flaky, nil, logsvc.NewNopLogger(), conf)

	createApplicants(t, repo, courseA, "1", "2", "3", "4", "5")
	r1 := testutil.CreateRoom(t, repo, "A", "1", 2, true)
	r2 := testutil.CreateRoom(t, repo, "A", "2", 5, true)

	_, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
	require.Error(t, err)
	assert.True(t, core.IsPersistenceError(err), "got %v", err)
	assert.True(t, stderrors.Is(err, errDiskFull))

	// the written seats are counted
	checkConsistency(t, repo)
	rs := rooms(t, repo)
	assert.Equal(t, 2, rs[r1.ID].CurrentCount)
	assert.Equal(t, 1, rs[r2.ID].CurrentCount)

	// retrying picks up the rest
	flaky.seatsLeft = -1
	res, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
	require.NoError(t, err)
	assert.Equal(t, seating.AssignResult{Assigned: 2, NotAssigned: 0, Total: 2}, res)
	checkConsistency(t, repo)
	assert.Equal(t, 3, rooms(t, repo)[r2.ID].CurrentCount)
}

func TestService_Reset(t *testing.T) {
	t.Run("idempotent", func(t *testing.T) {
		svc, repo, _ := setup(t)
		res, err := svc.Reset(ctx, seating.ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResetCount, "empty reset")

		createApplicants(t, repo, courseA, "1", "2", "3")
		testutil.CreateRoom(t, repo, "A", "1", 2, true)
		testutil.CreateRoom(t, repo, "A", "2", 2, true)
		_, err = svc.Assign(ctx, seating.ScopeAll, seating.DefaultSortKey)
		require.NoError(t, err)

		res, err = svc.Reset(ctx, seating.ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, 3, res.ResetCount)
		res, err = svc.Reset(ctx, seating.ScopeAll)
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResetCount)
		for _, r := range rooms(t, repo) {
			assert.Zero(t, r.CurrentCount)
			assert.False(t, r.IsFull)
		}
	})

	t.Run("scoped", func(t *testing.T) {
		svc, repo, _ := setup(t)
		createApplicants(t, repo, courseA, "a1", "a2")
		createApplicants(t, repo, courseB, "b1", "b2", "b3")
		r1 := testutil.CreateRoom(t, repo, "A", "1", 3, true)
		r2 := testutil.CreateRoom(t, repo, "A", "2", 3, true)
		_, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
		require.NoError(t, err)

		res, err := svc.Reset(ctx, seating.Scope{CourseID: courseB})
		require.NoError(t, err)
		assert.Equal(t, 3, res.ResetCount)
		checkConsistency(t, repo)
		rs := rooms(t, repo)
		assert.Equal(t, 2, rs[r1.ID].CurrentCount) // a1, a2
		assert.Equal(t, 0, rs[r2.ID].CurrentCount)
	})

	t.Run("self-healing", func(t *testing.T) {
		svc, repo, _ := setup(t)
		createApplicants(t, repo, courseA, "a1", "a2", "a3")
		r1 := testutil.CreateRoom(t, repo, "A", "1", 2, true)
		r2 := testutil.CreateRoom(t, repo, "A", "2", 2, true)
		_, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
		require.NoError(t, err)

		// corrupt the counters
		require.NoError(t, repo.SetRoomCount(ctx, r1.ID, 0))
		require.NoError(t, repo.SetRoomCount(ctx, r2.ID, 2))

		res, err := svc.Reset(ctx, seating.Scope{CourseID: courseB}) // unrelated scope
		require.NoError(t, err)
		assert.Equal(t, 0, res.ResetCount)
		checkConsistency(t, repo)
		rs := rooms(t, repo)
		assert.Equal(t, 2, rs[r1.ID].CurrentCount)
		assert.True(t, rs[r1.ID].IsFull)
		assert.Equal(t, 1, rs[r2.ID].CurrentCount)
	})
}

func TestService_Summary(t *testing.T) {
	svc, repo, _ := setup(t)
	createApplicants(t, repo, courseA, "a2", "a1", "a3")
	createApplicants(t, repo, courseB, "b1")
	testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "S-1", NationalID: "s1", CourseID: courseA, Status: seating.StatusSubmitted})
	r1 := testutil.CreateRoom(t, repo, "A", "1", 2, true)
	r2 := testutil.CreateRoom(t, repo, "A", "2", 3, true)
	r3 := testutil.CreateRoom(t, repo, "Z", "1", 3, false)

	_, err := svc.Assign(ctx, seating.ScopeAll, seating.SortByNationalID)
	require.NoError(t, err)

	sum, err := svc.Summary(ctx, seating.ScopeAll)
	require.NoError(t, err)
	assert.Equal(t, seating.Totals{TotalApproved: 4, TotalAssigned: 4, TotalUnassigned: 0}, sum.Totals)
	require.Len(t, sum.Rooms, 2)
	assert.Equal(t, r1.ID, sum.Rooms[0].RoomID)
	assert.Equal(t, 0, sum.Rooms[0].AvailableSeats)
	assert.Equal(t, []int{1, 2}, rosterSeats(sum.Rooms[0]))
	assert.Equal(t, r2.ID, sum.Rooms[1].RoomID)
	assert.Equal(t, []int{1, 2}, rosterSeats(sum.Rooms[1]))
	assert.Equal(t, 1, sum.Rooms[1].AvailableSeats)

	// consistency between totals and counters
	var counted int
	for _, r := range sum.Rooms {
		assert.Equal(t, len(r.Roster), r.CurrentCount)
		counted += r.CurrentCount
	}
	assert.Equal(t, sum.Totals.TotalAssigned, counted)

	// an inactive room still holding applicants is listed
	late := testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "B-9", NationalID: "b9", CourseID: courseB})
	require.NoError(t, repo.SetApplicantSeat(ctx, late.ID, r3.ID, 1))
	require.NoError(t, svc.RebuildRoomCounts(ctx))

	sumB, err := svc.Summary(ctx, seating.Scope{CourseID: courseB})
	require.NoError(t, err)
	assert.Equal(t, seating.Totals{TotalApproved: 2, TotalAssigned: 2, TotalUnassigned: 0}, sumB.Totals)
	require.Len(t, sumB.Rooms, 3)
	assert.Empty(t, sumB.Rooms[0].Roster)
	assert.Equal(t, 2, sumB.Rooms[0].CurrentCount) // counters are not scoped
	assert.Equal(t, []int{2}, rosterSeats(sumB.Rooms[1]))
	assert.Equal(t, r3.ID, sumB.Rooms[2].RoomID)
	assert.False(t, sumB.Rooms[2].IsActive)
	assert.Equal(t, 1, sumB.Rooms[2].CurrentCount)
	require.Len(t, sumB.Rooms[2].Roster, 1)
	assert.Equal(t, "B-9", sumB.Rooms[2].Roster[0].ApplicationNumber)
}

func rosterSeats(r seating.RoomSummary) []int {
	seats := make([]int, 0, len(r.Roster))
	for _, e := range r.Roster {
		seats = append(seats, e.SeatNumber)
	}
	return seats
}

func TestService_Lookup(t *testing.T) {
	svc, repo, _ := setup(t)
	birthDate := time.Date(2003, time.December, 31, 0, 0, 0, 0, time.UTC)
	app := testutil.CreateApplicant(t, repo, seating.Applicant{ApplicationNumber: "A-1", NationalID: "123", BirthDate: birthDate})
	testutil.CreateRoom(t, repo, "Main", "7", 10, true)

	tests := []struct {
		name           string
		nationalID     string
		birthDate      time.Time
		wantErr        error
		wantValidation bool
	}{
		{name: "incomplete", nationalID: " ", birthDate: birthDate, wantValidation: true},
		{name: "no birth date", nationalID: "123", wantValidation: true},
		{name: "unknown", nationalID: "999", birthDate: birthDate, wantErr: seating.ErrNotFound},
		{name: "wrong birth date", nationalID: "123", birthDate: birthDate.AddDate(0, 0, 1), wantErr: seating.ErrNotFound},
		{name: "found", nationalID: "123", birthDate: birthDate.Add(15 * time.Hour)},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			info, err := svc.Lookup(ctx, tt.nationalID, tt.birthDate)
			if tt.wantValidation {
				var vErr *core.ValidationError
				assert.True(t, stderrors.As(err, &vErr), "got %v", err)
				return
			}
			if err != tt.wantErr {
				t.Fatalf("Lookup() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err == nil {
				assert.Equal(t, app.ApplicationNumber, info.ApplicationNumber)
				assert.Zero(t, info.SeatNumber)
			}
		})
	}

	_, err := svc.Assign(ctx, seating.ScopeAll, seating.DefaultSortKey)
	require.NoError(t, err)
	info, err := svc.Lookup(ctx, "123", birthDate)
	require.NoError(t, err)
	assert.Equal(t, "Main", info.Building)
	assert.Equal(t, "7", info.RoomNumber)
	assert.Equal(t, 1, info.SeatNumber)
}
