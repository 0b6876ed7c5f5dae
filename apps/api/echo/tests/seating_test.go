package tests

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	. "github.com/trezcool/admissions/apps/api/echo"
	"github.com/trezcool/admissions/core/seating"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/tests"
)

var (
	courseA = "2b0f6b8e-8d1e-4a7c-b1f5-5c1a9b2f0e01"
	courseB = "9d4c2a61-3f8b-4c3e-a0d2-7e6b5f4a3c02"
)

func createApplicants(t *testing.T) []seating.Applicant {
	return []seating.Applicant{
		testutil.CreateApplicant(t, seatingRepo, seating.Applicant{ApplicationNumber: "A-03", NationalID: "1003", CourseID: courseA, Email: "a3@test.cd"}),
		testutil.CreateApplicant(t, seatingRepo, seating.Applicant{ApplicationNumber: "A-01", NationalID: "1001", CourseID: courseA}),
		testutil.CreateApplicant(t, seatingRepo, seating.Applicant{ApplicationNumber: "A-02", NationalID: "1002", CourseID: courseA, Email: "a2@test.cd"}),
		testutil.CreateApplicant(t, seatingRepo, seating.Applicant{ApplicationNumber: "B-01", NationalID: "2001", CourseID: courseB}),
		testutil.CreateApplicant(t, seatingRepo, seating.Applicant{ApplicationNumber: "R-01", NationalID: "3001", CourseID: courseA, Status: seating.StatusRejected}),
	}
}

func Test_seatingApi_auth(t *testing.T) {
	app := setup(t)

	applicant := testutil.CreateUser(t, usrRepo, "Applicant", "applicant@test.cd", "", user.RoleApplicant, true)
	token := getToken(t, applicant)

	tests := []httpTest{
		{name: "assign: no token", method: http.MethodPost, path: "/v1/exam-assignment", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "summary: no token", method: http.MethodGet, path: "/v1/exam-assignment", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "reset: no token", method: http.MethodPost, path: "/v1/exam-assignment/reset", wantCode: http.StatusUnauthorized, wantData: marchallObj(t, errMissingToken)},
		{name: "assign: not admin", method: http.MethodPost, path: "/v1/exam-assignment", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "summary: not admin", method: http.MethodGet, path: "/v1/exam-assignment", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
		{name: "reset: not admin", method: http.MethodPost, path: "/v1/exam-assignment/reset", token: token, wantCode: http.StatusForbidden, wantData: marchallObj(t, errForbidden)},
	}
	runHTTPTests(t, app, tests)
}

func Test_seatingApi_assign(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	token := getToken(t, admin)
	path := "/v1/exam-assignment"

	t.Run("validation", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "bad course", method: http.MethodPost, path: path, token: token,
				body:     marchallObj(t, seating.AssignRequest{CourseID: "lol"}),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"course_id": `course_id must be "all" or a course ID`}),
			},
			{
				name: "bad sort key", method: http.MethodPost, path: path, token: token,
				body:     marchallObj(t, seating.AssignRequest{SortBy: "lastName"}),
				wantCode: http.StatusBadRequest,
				wantData: marchallObj(t, map[string]string{"sort_by": "sort_by must be one of nationalId, applicationNumber"}),
			},
		}
		runHTTPTests(t, app, tests)
	})

	t.Run("nobody to seat", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{{
			name: "empty", method: http.MethodPost, path: path, token: token,
			wantCode: http.StatusOK,
			wantData: marchallObj(t, seating.AssignResult{}),
		}})
	})

	apps := createApplicants(t)

	t.Run("no room capacity", func(t *testing.T) {
		testutil.CreateRoom(t, seatingRepo, "Z", "999", 10, false)
		runHTTPTests(t, app, []httpTest{{
			name: "inactive rooms only", method: http.MethodPost, path: path, token: token,
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "no active rooms with capacity"}),
		}})
	})

	room := testutil.CreateRoom(t, seatingRepo, "A", "101", 2, true)

	t.Run("course scope", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{{
			name: "seats course A", method: http.MethodPost, path: path, token: token,
			body:     marchallObj(t, seating.AssignRequest{CourseID: courseA, SortBy: string(seating.SortByNationalID)}),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, seating.AssignResult{Assigned: 2, NotAssigned: 1, Total: 3}),
		}})

		// 1001 then 1002 (by national ID)
		first, err := seatingRepo.GetApplicant(context.Background(), seating.ApplicantFilter{NationalID: apps[1].NationalID})
		require.NoError(t, err)
		assert.Equal(t, room.ID, first.ExamRoomID)
		assert.Equal(t, 1, first.SeatNumber)
		second, err := seatingRepo.GetApplicant(context.Background(), seating.ApplicantFilter{NationalID: apps[2].NationalID})
		require.NoError(t, err)
		assert.Equal(t, 2, second.SeatNumber)

		// only 1002 has an email among the seated
		sent := mailSvc.SentMessages()
		require.Len(t, sent, 1)
		assert.Equal(t, "a2@test.cd", sent[0].To[0].Address)
		assert.Contains(t, sent[0].TextContent, "A-02")
	})

	t.Run("rooms full", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{{
			name: "all", method: http.MethodPost, path: path, token: token,
			body:     marchallObj(t, seating.AssignRequest{CourseID: "all"}),
			wantCode: http.StatusConflict,
			wantData: marchallObj(t, httpErr{Error: "no active rooms with capacity"}),
		}})
	})
}

func Test_seatingApi_summaryAndReset(t *testing.T) {
	app := setup(t)

	admin := testutil.CreateUser(t, usrRepo, "Admin", "admin@test.cd", "", user.RoleAdmin, true)
	token := getToken(t, admin)

	createApplicants(t)
	testutil.CreateRoom(t, seatingRepo, "A", "101", 3, true)
	testutil.CreateRoom(t, seatingRepo, "B", "101", 3, true)
	testutil.CreateRoom(t, seatingRepo, "C", "101", 3, false)

	summary := func(t *testing.T, query string) seating.Summary {
		req, rec := newAuthRequest(http.MethodGet, "/v1/exam-assignment"+query, token)
		app.ServeHTTP(rec, req)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		var sum seating.Summary
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sum))
		return sum
	}

	req, rec := newAuthRequest(http.MethodPost, "/v1/exam-assignment", token)
	app.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	t.Run("summary all", func(t *testing.T) {
		sum := summary(t, "")
		assert.Equal(t, seating.Totals{TotalApproved: 4, TotalAssigned: 4, TotalUnassigned: 0}, sum.Totals)
		require.Len(t, sum.Rooms, 2) // C is inactive & empty
		assert.Equal(t, 3, sum.Rooms[0].CurrentCount)
		assert.Equal(t, 0, sum.Rooms[0].AvailableSeats)
		assert.Len(t, sum.Rooms[0].Roster, 3)
		assert.Equal(t, 1, sum.Rooms[1].CurrentCount)
		assert.Len(t, sum.Rooms[1].Roster, 1)
	})

	t.Run("summary course B", func(t *testing.T) {
		sum := summary(t, "?course_id="+courseB)
		assert.Equal(t, seating.Totals{TotalApproved: 1, TotalAssigned: 1, TotalUnassigned: 0}, sum.Totals)
		require.Len(t, sum.Rooms, 2)
		assert.Empty(t, sum.Rooms[0].Roster)
		assert.Equal(t, 3, sum.Rooms[0].CurrentCount) // counters are not scoped
		require.Len(t, sum.Rooms[1].Roster, 1)
		assert.Equal(t, "B-01", sum.Rooms[1].Roster[0].ApplicationNumber)
	})

	t.Run("summary bad course", func(t *testing.T) {
		runHTTPTests(t, app, []httpTest{{
			name: "lol", method: http.MethodGet, path: "/v1/exam-assignment?course_id=lol", token: token,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"course_id": `course_id must be "all" or a course ID`}),
		}})
	})

	t.Run("reset", func(t *testing.T) {
		tests := []httpTest{
			{
				name: "course B", method: http.MethodPost, path: "/v1/exam-assignment/reset", token: token,
				body:     marchallObj(t, seating.ScopeRequest{CourseID: courseB}),
				wantCode: http.StatusOK,
				wantData: marchallObj(t, seating.ResetResult{ResetCount: 1}),
			},
			{
				name: "all", method: http.MethodPost, path: "/v1/exam-assignment/reset", token: token,
				wantCode: http.StatusOK,
				wantData: marchallObj(t, seating.ResetResult{ResetCount: 3}),
			},
			{
				name: "nothing left", method: http.MethodPost, path: "/v1/exam-assignment/reset", token: token,
				body:     marchallObj(t, seating.ScopeRequest{CourseID: "all"}),
				wantCode: http.StatusOK,
				wantData: marchallObj(t, seating.ResetResult{ResetCount: 0}),
			},
		}
		runHTTPTests(t, app, tests)

		sum := summary(t, "")
		assert.Equal(t, seating.Totals{TotalApproved: 4, TotalAssigned: 0, TotalUnassigned: 4}, sum.Totals)
		for _, r := range sum.Rooms {
			assert.Equal(t, 0, r.CurrentCount)
			assert.Empty(t, r.Roster)
		}
	})
}

func Test_seatingApi_checkResult(t *testing.T) {
	app := setup(t)

	birthDate := time.Date(2004, time.July, 1, 0, 0, 0, 0, time.UTC)
	app1 := testutil.CreateApplicant(t, seatingRepo, seating.Applicant{
		ApplicationNumber: "A-01", NationalID: "1001", Prefix: "Ms", FirstName: "Ada", LastName: "L", BirthDate: birthDate, CourseID: courseA,
	})
	app2 := testutil.CreateApplicant(t, seatingRepo, seating.Applicant{
		ApplicationNumber: "A-02", NationalID: "1002", FirstName: "Bob", LastName: "K", BirthDate: birthDate, Status: seating.StatusSubmitted,
	})
	room := testutil.CreateRoom(t, seatingRepo, "A", "101", 30, true)
	require.NoError(t, seatingRepo.SetApplicantSeat(context.Background(), app1.ID, room.ID, 7))

	path := "/v1/check-result"
	lookup := func(nid, bdate string) []byte {
		return marchallObj(t, seating.LookupRequest{NationalID: nid, BirthDate: bdate})
	}

	tests := []httpTest{
		{
			name: "no data", method: http.MethodPost, path: path,
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"national_id": "this field is required", "birth_date": "this field is required"}),
		},
		{
			name: "bad date", method: http.MethodPost, path: path, body: lookup("1001", "01/07/2004"),
			wantCode: http.StatusBadRequest,
			wantData: marchallObj(t, map[string]string{"birth_date": "invalid date format"}),
		},
		{
			name: "wrong birth date", method: http.MethodPost, path: path, body: lookup("1001", "2004-07-02"),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CheckResultResponse{Found: false}),
		},
		{
			name: "seated", method: http.MethodPost, path: path, body: lookup(" 1001 ", "2004-07-01"),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CheckResultResponse{Found: true, Applicant: &seating.SeatInfo{
				ApplicationNumber: app1.ApplicationNumber,
				Prefix:            "Ms",
				FirstName:         "Ada",
				LastName:          "L",
				Status:            seating.StatusApproved,
				CourseID:          courseA,
				Building:          "A",
				RoomNumber:        "101",
				Floor:             "1",
				SeatNumber:        7,
			}}),
		},
		{
			name: "not seated", method: http.MethodPost, path: path, body: lookup(app2.NationalID, "2004-07-01"),
			wantCode: http.StatusOK,
			wantData: marchallObj(t, CheckResultResponse{Found: true, Applicant: &seating.SeatInfo{
				ApplicationNumber: app2.ApplicationNumber,
				FirstName:         "Bob",
				LastName:          "K",
				Status:            seating.StatusSubmitted,
			}}),
		},
	}
	runHTTPTests(t, app, tests)
}
