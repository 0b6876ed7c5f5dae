package seating

import (
	"context"
	"fmt"
	"net/mail"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/admissions/core"
)

var (
	// errors
	ErrNotFound       = errors.New("applicant not found")
	ErrRoomNotFound   = errors.New("exam room not found")
	ErrNotEligible    = errors.New("applicant not found or already seated")
	ErrNoRoomCapacity = core.NewConfigurationError("no active rooms with capacity")

	errInvalidScope = core.NewValidationError(
		errors.New("invalid course scope"),
		core.FieldError{Field: "course_id", Error: `must be "all" or a course ID`},
	)
	errInvalidSortKey = core.NewValidationError(
		errors.New("invalid sort key"),
		core.FieldError{Field: "sort_by", Error: fmt.Sprintf("must be one of %s, %s", SortByNationalID, SortByApplicationNumber)},
	)
	errLookupIncomplete = core.NewValidationError(errors.New("national ID and birth date are required"))
)

var (
	seated = true
	active = true
)

type (
	// Repository is the persisted Applicant & Room state.
	// Nothing outside this package should write exam rooms, seats or room counters.
	Repository interface {
		// QueryEligibleApplicants returns the approved applicants without a seat in the scope,
		// ordered by key, then by creation time.
		QueryEligibleApplicants(ctx context.Context, scope Scope, key SortKey) ([]Applicant, error)
		// QueryApplicants returns the applicants matching filter, ordered by exam room & seat number.
		QueryApplicants(ctx context.Context, filter ApplicantFilter) ([]Applicant, error)
		CountApplicants(ctx context.Context, filter ApplicantFilter) (int, error)
		GetApplicant(ctx context.Context, filter ApplicantFilter) (Applicant, error)
		CreateApplicant(ctx context.Context, app Applicant) (Applicant, error)
		// SetApplicantSeat seats an eligible applicant; it fails with ErrNotEligible otherwise.
		SetApplicantSeat(ctx context.Context, applicantID, roomID string, seatNumber int) error
		// ClearSeats un-seats every seated applicant in the scope and returns how many were cleared.
		ClearSeats(ctx context.Context, scope Scope) (int, error)
		// CountSeatedByRoom counts every seated applicant per exam room ID.
		CountSeatedByRoom(ctx context.Context) (map[string]int, error)

		// QueryRooms returns the rooms matching filter (if any), ordered by building & room number.
		QueryRooms(ctx context.Context, filter *RoomFilter) ([]Room, error)
		GetRoom(ctx context.Context, id string) (Room, error)
		CreateRoom(ctx context.Context, room Room) (Room, error)
		// IncrementRoomCount adds n to the room's CurrentCount.
		IncrementRoomCount(ctx context.Context, roomID string, n int) error
		// ZeroRoomCounts sets every room's CurrentCount to 0 and clears IsFull.
		ZeroRoomCounts(ctx context.Context) error
		// SetRoomCount overwrites the room's CurrentCount.
		SetRoomCount(ctx context.Context, roomID string, n int) error
	}

	Service struct {
		repo    Repository
		mailSvc core.EmailService // optional; seat notifications are off if nil
		logger  core.Logger
		appName string
	}
)

// NewService returns the seating service. Pass a nil mailSvc to disable seat notifications.
func NewService(repo Repository, mailSvc core.EmailService, logger core.Logger, conf *core.Config) *Service {
	return &Service{
		repo:    repo,
		mailSvc: mailSvc,
		logger:  logger,
		appName: conf.AppName,
	}
}

// Assign seats the eligible applicants of the scope in the active rooms.
// Applicants left without a seat are reported, they remain eligible for the next run.
func (svc *Service) Assign(ctx context.Context, scope Scope, key SortKey) (AssignResult, error) {
	if !key.IsValid() {
		return AssignResult{}, errInvalidSortKey
	}

	applicants, err := svc.repo.QueryEligibleApplicants(ctx, scope, key)
	if err != nil {
		return AssignResult{}, core.NewPersistenceError(err, "querying eligible applicants")
	}
	if len(applicants) == 0 {
		return AssignResult{}, nil
	}

	rooms, err := svc.repo.QueryRooms(ctx, &RoomFilter{IsActive: &active})
	if err != nil {
		return AssignResult{}, core.NewPersistenceError(err, "querying active rooms")
	}

	plan, err := NewPlan(applicants, rooms, key)
	if err != nil {
		return AssignResult{}, err
	}

	applied, err := svc.apply(ctx, plan)
	if err != nil {
		svc.logger.Error(
			fmt.Sprintf("seat assignment interrupted after %d of %d seats: %v", len(applied), plan.AssignedCount(), err),
			err,
			map[string]interface{}{"scope": scope.String(), "sort_by": string(key)},
		)
		return AssignResult{}, err
	}

	res := AssignResult{
		Assigned:    plan.AssignedCount(),
		NotAssigned: plan.NotAssignedCount(),
		Total:       plan.Total,
	}
	svc.logger.Info(fmt.Sprintf("seats assigned: %d/%d (scope: %s, sort_by: %s)", res.Assigned, res.Total, scope, key))
	if res.NotAssigned > 0 {
		svc.logger.Warn(fmt.Sprintf("%d applicants left without a seat: rooms are full", res.NotAssigned))
	}
	svc.notify(applied, applicants, rooms)
	return res, nil
}

// apply persists the plan: applicant seats first, then one counter increment per room.
// When a seat write fails, rooms are still incremented for the seats already written,
// so that counters match the applicants as closely as possible.
func (svc *Service) apply(ctx context.Context, plan Plan) ([]Assignment, error) {
	var applyErr error
	applied := make([]Assignment, 0, len(plan.Assignments))
	for _, a := range plan.Assignments {
		if err := svc.repo.SetApplicantSeat(ctx, a.ApplicantID, a.RoomID, a.SeatNumber); err != nil {
			applyErr = core.NewPersistenceError(err, "seating applicant "+a.ApplicantID)
			break
		}
		applied = append(applied, a)
	}

	for _, b := range batchesOf(applied) {
		if err := svc.repo.IncrementRoomCount(ctx, b.RoomID, b.Count); err != nil {
			return applied, core.NewPersistenceError(err, "incrementing room "+b.RoomID)
		}
	}
	return applied, applyErr
}

// Reset un-seats the applicants of the scope, then rebuilds every room counter
// from the applicants still seated, whatever their scope.
func (svc *Service) Reset(ctx context.Context, scope Scope) (ResetResult, error) {
	cleared, err := svc.repo.ClearSeats(ctx, scope)
	if err != nil {
		return ResetResult{}, core.NewPersistenceError(err, "clearing seats")
	}
	if err = svc.RebuildRoomCounts(ctx); err != nil {
		return ResetResult{}, err
	}

	svc.logger.Info(fmt.Sprintf("seats reset: %d (scope: %s)", cleared, scope))
	return ResetResult{ResetCount: cleared}, nil
}

// RebuildRoomCounts recomputes every room's CurrentCount from the seated applicants.
func (svc *Service) RebuildRoomCounts(ctx context.Context) error {
	if err := svc.repo.ZeroRoomCounts(ctx); err != nil {
		return core.NewPersistenceError(err, "zeroing room counts")
	}
	counts, err := svc.repo.CountSeatedByRoom(ctx)
	if err != nil {
		return core.NewPersistenceError(err, "counting seated applicants")
	}
	for roomID, n := range counts {
		if err = svc.repo.SetRoomCount(ctx, roomID, n); err != nil {
			return core.NewPersistenceError(err, "setting room count "+roomID)
		}
	}
	return nil
}

// Summary returns the seating totals of the scope and the occupancy of each room in use:
// active rooms, plus inactive ones still holding applicants.
// Room counters are reported as stored; rosters only list applicants of the scope.
func (svc *Service) Summary(ctx context.Context, scope Scope) (Summary, error) {
	var totals Totals
	var err error

	approved := ApplicantFilter{Scope: scope, Status: StatusApproved}
	if totals.TotalApproved, err = svc.repo.CountApplicants(ctx, approved); err != nil {
		return Summary{}, core.NewPersistenceError(err, "counting approved applicants")
	}
	approved.Seated = &seated
	if totals.TotalAssigned, err = svc.repo.CountApplicants(ctx, approved); err != nil {
		return Summary{}, core.NewPersistenceError(err, "counting assigned applicants")
	}
	totals.TotalUnassigned = totals.TotalApproved - totals.TotalAssigned

	rooms, err := svc.repo.QueryRooms(ctx, nil)
	if err != nil {
		return Summary{}, core.NewPersistenceError(err, "querying rooms")
	}
	occupants, err := svc.repo.QueryApplicants(ctx, ApplicantFilter{Scope: scope, Seated: &seated})
	if err != nil {
		return Summary{}, core.NewPersistenceError(err, "querying seated applicants")
	}

	rosters := make(map[string][]RosterEntry, len(rooms))
	for _, app := range occupants {
		rosters[app.ExamRoomID] = append(rosters[app.ExamRoomID], RosterEntry{
			ApplicantID:       app.ID,
			ApplicationNumber: app.ApplicationNumber,
			DisplayName:       app.DisplayName(),
			SeatNumber:        app.SeatNumber,
		})
	}

	summaries := make([]RoomSummary, 0, len(rooms))
	for _, r := range rooms {
		roster := rosters[r.ID]
		if !r.IsActive && r.CurrentCount == 0 && len(roster) == 0 {
			continue
		}
		if roster == nil {
			roster = make([]RosterEntry, 0)
		}
		summaries = append(summaries, RoomSummary{
			RoomID:         r.ID,
			Building:       r.Building,
			RoomNumber:     r.RoomNumber,
			Floor:          r.Floor,
			IsActive:       r.IsActive,
			Capacity:       r.Capacity,
			CurrentCount:   r.CurrentCount,
			AvailableSeats: r.AvailableSeats(),
			Roster:         roster,
		})
	}
	return Summary{Totals: totals, Rooms: summaries}, nil
}

// Lookup finds an applicant's seat by national ID & birth date.
func (svc *Service) Lookup(ctx context.Context, nationalID string, birthDate time.Time) (SeatInfo, error) {
	nationalID = core.CleanString(nationalID)
	if nationalID == "" || birthDate.IsZero() {
		return SeatInfo{}, errLookupIncomplete
	}

	app, err := svc.repo.GetApplicant(ctx, ApplicantFilter{NationalID: nationalID, BirthDate: birthDate})
	if err != nil {
		if errors.Cause(err) == ErrNotFound {
			return SeatInfo{}, ErrNotFound
		}
		return SeatInfo{}, core.NewPersistenceError(err, "getting applicant")
	}

	info := SeatInfo{
		ApplicationNumber: app.ApplicationNumber,
		Prefix:            app.Prefix,
		FirstName:         app.FirstName,
		LastName:          app.LastName,
		Status:            app.Status,
		CourseID:          app.CourseID,
	}
	if app.IsSeated() {
		room, err := svc.repo.GetRoom(ctx, app.ExamRoomID)
		if err != nil {
			return SeatInfo{}, core.NewPersistenceError(err, "getting exam room")
		}
		info.Building = room.Building
		info.RoomNumber = room.RoomNumber
		info.Floor = room.Floor
		info.SeatNumber = app.SeatNumber
	}
	return info, nil
}

type seatMailData struct {
	Name              string
	ApplicationNumber string
	Building          string
	RoomNumber        string
	Floor             string
	SeatNumber        int
}

// notify emails the newly seated applicants who have an email address.
func (svc *Service) notify(assignments []Assignment, applicants []Applicant, rooms []Room) {
	if svc.mailSvc == nil || len(assignments) == 0 {
		return
	}

	apps := make(map[string]Applicant, len(applicants))
	for _, a := range applicants {
		apps[a.ID] = a
	}
	roomsByID := make(map[string]Room, len(rooms))
	for _, r := range rooms {
		roomsByID[r.ID] = r
	}

	messages := make([]*core.EmailMessage, 0, len(assignments))
	for _, a := range assignments {
		app := apps[a.ApplicantID]
		if app.Email == "" {
			continue
		}
		room := roomsByID[a.RoomID]
		messages = append(messages, &core.EmailMessage{
			To:           []mail.Address{{Name: app.DisplayName(), Address: app.Email}},
			Subject:      "Your exam seat",
			TemplateName: "seat_assigned",
			AppName:      svc.appName,
			TemplateData: seatMailData{
				Name:              app.DisplayName(),
				ApplicationNumber: app.ApplicationNumber,
				Building:          room.Building,
				RoomNumber:        room.RoomNumber,
				Floor:             room.Floor,
				SeatNumber:        a.SeatNumber,
			},
		})
	}
	if len(messages) > 0 {
		svc.mailSvc.SendMessages(messages...)
	}
}
