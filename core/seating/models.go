package seating

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/admissions/core"
)

type Status string

// Application statuses
const (
	StatusSubmitted      Status = "SUBMITTED"
	StatusDocumentReview Status = "DOCUMENT_REVIEW"
	StatusApproved       Status = "APPROVED"
	StatusRejected       Status = "REJECTED"
	StatusExamPassed     Status = "EXAM_PASSED"
	StatusExamFailed     Status = "EXAM_FAILED"
	StatusEnrolled       Status = "ENROLLED"
)

// Applicant is an admission record.
// ExamRoomID and SeatNumber are either both set or both zero.
type Applicant struct {
	ID                string    `json:"id"`
	ApplicationNumber string    `json:"application_number"`
	NationalID        string    `json:"national_id"`
	Prefix            string    `json:"prefix"`
	FirstName         string    `json:"first_name"`
	LastName          string    `json:"last_name"`
	Email             string    `json:"email,omitempty"`
	BirthDate         time.Time `json:"birth_date"`
	Status            Status    `json:"status"`
	CourseID          string    `json:"course_id,omitempty"`
	ExamRoomID        string    `json:"exam_room_id,omitempty"`
	SeatNumber        int       `json:"seat_number,omitempty"`
	CreatedAt         time.Time `json:"created_at"` // UTC
}

func (a Applicant) IsSeated() bool {
	return a.ExamRoomID != ""
}

// IsEligible reports whether the applicant is waiting for a seat.
func (a Applicant) IsEligible() bool {
	return a.Status == StatusApproved && !a.IsSeated()
}

func (a Applicant) DisplayName() string {
	return strings.TrimSpace(strings.Join([]string{a.Prefix, a.FirstName, a.LastName}, " "))
}

// Room is an exam room.
// CurrentCount & IsFull are caches of the number of applicants seated in the room;
// only assignment runs (increment) and resets (rebuild) write them.
type Room struct {
	ID           string `json:"id"`
	Building     string `json:"building"`
	RoomNumber   string `json:"room_number"`
	Floor        string `json:"floor"`
	Capacity     int    `json:"capacity"`
	CurrentCount int    `json:"current_count"`
	IsFull       bool   `json:"is_full"`
	IsActive     bool   `json:"is_active"`
}

func (r Room) AvailableSeats() int {
	return r.Capacity - r.CurrentCount
}

// Before orders rooms by (Building, RoomNumber).
func (r Room) Before(o Room) bool {
	if r.Building != o.Building {
		return r.Building < o.Building
	}
	return r.RoomNumber < o.RoomNumber
}

// SortKey selects the applicant field that orders the assignment queue.
type SortKey string

const (
	SortByNationalID        SortKey = "nationalId"
	SortByApplicationNumber SortKey = "applicationNumber"

	DefaultSortKey = SortByNationalID
)

var sortKeyAccessors = map[SortKey]func(Applicant) string{
	SortByNationalID:        func(a Applicant) string { return a.NationalID },
	SortByApplicationNumber: func(a Applicant) string { return a.ApplicationNumber },
}

func (k SortKey) accessor() (func(Applicant) string, bool) {
	fn, ok := sortKeyAccessors[k]
	return fn, ok
}

func (k SortKey) IsValid() bool {
	_, ok := k.accessor()
	return ok
}

// ParseSortKey parses a sort key; "" yields DefaultSortKey.
func ParseSortKey(s string) (SortKey, error) {
	s = core.CleanString(s)
	if s == "" {
		return DefaultSortKey, nil
	}
	if k := SortKey(s); k.IsValid() {
		return k, nil
	}
	return "", errInvalidSortKey
}

const scopeAll = "all"

// Scope restricts an operation to all applicants or to one course.
type Scope struct {
	CourseID string
}

var ScopeAll = Scope{}

func (s Scope) IsAll() bool {
	return s.CourseID == ""
}

func (s Scope) String() string {
	if s.IsAll() {
		return scopeAll
	}
	return s.CourseID
}

// Contains reports whether the applicant falls in the scope.
func (s Scope) Contains(a Applicant) bool {
	return s.IsAll() || a.CourseID == s.CourseID
}

// ParseScope parses "all" (or "") and course IDs.
func ParseScope(s string) (Scope, error) {
	s = core.CleanString(s)
	if s == "" || strings.EqualFold(s, scopeAll) {
		return ScopeAll, nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return Scope{}, errInvalidScope
	}
	return Scope{CourseID: id.String()}, nil
}

// Assignment places one applicant on one seat.
type Assignment struct {
	ApplicantID string `json:"applicant_id"`
	RoomID      string `json:"room_id"`
	SeatNumber  int    `json:"seat_number"`
}

// Plan is the outcome of a seat assignment run, before it gets persisted.
type Plan struct {
	Assignments []Assignment
	Unassigned  []string // applicant IDs, in queue order
	Total       int
}

func (p Plan) AssignedCount() int    { return len(p.Assignments) }
func (p Plan) NotAssignedCount() int { return len(p.Unassigned) }

type RoomBatch struct {
	RoomID string
	Count  int
}

// batchesOf groups assignments per room, in order of first appearance.
func batchesOf(assignments []Assignment) []RoomBatch {
	idx := make(map[string]int)
	batches := make([]RoomBatch, 0)
	for _, a := range assignments {
		i, ok := idx[a.RoomID]
		if !ok {
			i = len(batches)
			idx[a.RoomID] = i
			batches = append(batches, RoomBatch{RoomID: a.RoomID})
		}
		batches[i].Count++
	}
	return batches
}

type AssignResult struct {
	Assigned    int `json:"assigned"`
	NotAssigned int `json:"not_assigned"`
	Total       int `json:"total_applicants"`
}

type ResetResult struct {
	ResetCount int `json:"reset_count"`
}

type Totals struct {
	TotalApproved   int `json:"total_approved"`
	TotalAssigned   int `json:"total_assigned"`
	TotalUnassigned int `json:"total_unassigned"`
}

type RosterEntry struct {
	ApplicantID       string `json:"applicant_id"`
	ApplicationNumber string `json:"application_number"`
	DisplayName       string `json:"display_name"`
	SeatNumber        int    `json:"seat_number"`
}

type RoomSummary struct {
	RoomID         string        `json:"room_id"`
	Building       string        `json:"building"`
	RoomNumber     string        `json:"room_number"`
	Floor          string        `json:"floor"`
	IsActive       bool          `json:"is_active"`
	Capacity       int           `json:"capacity"`
	CurrentCount   int           `json:"current_count"`
	AvailableSeats int           `json:"available_seats"`
	Roster         []RosterEntry `json:"roster"`
}

type Summary struct {
	Totals Totals        `json:"summary"`
	Rooms  []RoomSummary `json:"rooms"`
}

// SeatInfo is what applicants see when looking up their exam seat.
type SeatInfo struct {
	ApplicationNumber string `json:"application_number"`
	Prefix            string `json:"prefix"`
	FirstName         string `json:"first_name"`
	LastName          string `json:"last_name"`
	Status            Status `json:"status"`
	CourseID          string `json:"course_id,omitempty"`
	Building          string `json:"building,omitempty"`
	RoomNumber        string `json:"room_number,omitempty"`
	Floor             string `json:"floor,omitempty"`
	SeatNumber        int    `json:"seat_number,omitempty"`
}

// ApplicantFilter applies AND operation on the set fields.
type ApplicantFilter struct {
	Scope      Scope
	Status     Status
	Seated     *bool
	NationalID string
	BirthDate  time.Time // matched by calendar day
}

type RoomFilter struct {
	IsActive *bool
}
