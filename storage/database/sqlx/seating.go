package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/admissions/core/seating"
)

var (
	psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

	applicantsTable = "applicants"
	roomsTable      = "exam_rooms"

	applicantColumns = []string{
		"id", "application_number", "national_id", "prefix", "first_name", "last_name", "email",
		"birth_date", "status", "course_id", "exam_room_id", "seat_number", "created_at",
	}
	roomColumns = []string{
		"id", "building", "room_number", "floor", "capacity", "current_count", "is_full", "is_active",
	}

	// byte-wise ordering, whatever the database collation
	sortKeyColumns = map[seating.SortKey]string{
		seating.SortByNationalID:        `national_id COLLATE "C"`,
		seating.SortByApplicationNumber: `application_number COLLATE "C"`,
	}
	roomOrdering = []string{`building COLLATE "C" ASC`, `room_number COLLATE "C" ASC`}
)

type (
	applicantRow struct {
		ID                string      `db:"id"`
		ApplicationNumber string      `db:"application_number"`
		NationalID        string      `db:"national_id"`
		Prefix            string      `db:"prefix"`
		FirstName         string      `db:"first_name"`
		LastName          string      `db:"last_name"`
		Email             null.String `db:"email"`
		BirthDate         null.Time   `db:"birth_date"`
		Status            string      `db:"status"`
		CourseID          null.String `db:"course_id"`
		ExamRoomID        null.String `db:"exam_room_id"`
		SeatNumber        null.Int    `db:"seat_number"`
		CreatedAt         time.Time   `db:"created_at"`
	}

	roomRow struct {
		ID           string `db:"id"`
		Building     string `db:"building"`
		RoomNumber   string `db:"room_number"`
		Floor        string `db:"floor"`
		Capacity     int    `db:"capacity"`
		CurrentCount int    `db:"current_count"`
		IsFull       bool   `db:"is_full"`
		IsActive     bool   `db:"is_active"`
	}

	roomCountRow struct {
		ExamRoomID string `db:"exam_room_id"`
		Seated     int    `db:"seated"`
	}
)

func (row applicantRow) unboil() seating.Applicant {
	return seating.Applicant{
		ID:                row.ID,
		ApplicationNumber: row.ApplicationNumber,
		NationalID:        row.NationalID,
		Prefix:            row.Prefix,
		FirstName:         row.FirstName,
		LastName:          row.LastName,
		Email:             row.Email.String,
		BirthDate:         row.BirthDate.Time,
		Status:            seating.Status(row.Status),
		CourseID:          row.CourseID.String,
		ExamRoomID:        row.ExamRoomID.String,
		SeatNumber:        row.SeatNumber.Int,
		CreatedAt:         row.CreatedAt,
	}
}

func (row roomRow) unboil() seating.Room {
	return seating.Room(row)
}

type seatingRepository struct {
	db *sqlx.DB
}

var _ seating.Repository = (*seatingRepository)(nil) // interface compliance check

func NewSeatingRepository(db *sqlx.DB) *seatingRepository {
	return &seatingRepository{db: db}
}

// trapNoRowsErr maps psql "no rows" err to notFound
func trapNoRowsErr(err error, notFound error, msg string) error {
	if errors.Cause(err) == sql.ErrNoRows {
		return notFound
	}
	return errors.Wrap(err, msg)
}

// where translates filter into query conditions.
func where(q sq.SelectBuilder, filter seating.ApplicantFilter) sq.SelectBuilder {
	if !filter.Scope.IsAll() {
		q = q.Where(sq.Eq{"course_id": filter.Scope.CourseID})
	}
	if filter.Status != "" {
		q = q.Where(sq.Eq{"status": string(filter.Status)})
	}
	if filter.Seated != nil {
		if *filter.Seated {
			q = q.Where(sq.NotEq{"exam_room_id": nil})
		} else {
			q = q.Where(sq.Eq{"exam_room_id": nil})
		}
	}
	if filter.NationalID != "" {
		q = q.Where(sq.Eq{"national_id": filter.NationalID})
	}
	if !filter.BirthDate.IsZero() {
		q = q.Where(sq.Eq{"birth_date": filter.BirthDate.UTC().Format("2006-01-02")})
	}
	return q
}

func (repo seatingRepository) selectApplicants(ctx context.Context, q sq.SelectBuilder) ([]seating.Applicant, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building applicants query")
	}
	var rows []applicantRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying applicants")
	}
	apps := make([]seating.Applicant, 0, len(rows))
	for _, row := range rows {
		apps = append(apps, row.unboil())
	}
	return apps, nil
}

func (repo seatingRepository) exec(ctx context.Context, b sq.Sqlizer, msg string) (int, error) {
	query, args, err := b.ToSql()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	res, err := repo.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, errors.Wrap(err, msg)
	}
	return int(n), nil
}

func (repo seatingRepository) QueryEligibleApplicants(ctx context.Context, scope seating.Scope, key seating.SortKey) ([]seating.Applicant, error) {
	col, ok := sortKeyColumns[key]
	if !ok {
		return nil, errors.Errorf("unknown sort key %q", key)
	}
	seated := false
	q := where(
		psql.Select(applicantColumns...).From(applicantsTable),
		seating.ApplicantFilter{Scope: scope, Status: seating.StatusApproved, Seated: &seated},
	).OrderBy(col+" ASC", "created_at ASC", "id ASC")
	return repo.selectApplicants(ctx, q)
}

func (repo seatingRepository) QueryApplicants(ctx context.Context, filter seating.ApplicantFilter) ([]seating.Applicant, error) {
	q := where(psql.Select(applicantColumns...).From(applicantsTable), filter).
		OrderBy("exam_room_id ASC", "seat_number ASC", "created_at ASC")
	return repo.selectApplicants(ctx, q)
}

func (repo seatingRepository) CountApplicants(ctx context.Context, filter seating.ApplicantFilter) (int, error) {
	query, args, err := where(psql.Select("COUNT(*)").From(applicantsTable), filter).ToSql()
	if err != nil {
		return 0, errors.Wrap(err, "building count query")
	}
	var n int
	if err = sqlx.GetContext(ctx, repo.db, &n, query, args...); err != nil {
		return 0, errors.Wrap(err, "counting applicants")
	}
	return n, nil
}

func (repo seatingRepository) GetApplicant(ctx context.Context, filter seating.ApplicantFilter) (seating.Applicant, error) {
	query, args, err := where(psql.Select(applicantColumns...).From(applicantsTable), filter).
		OrderBy("created_at ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return seating.Applicant{}, errors.Wrap(err, "building applicant query")
	}
	var row applicantRow
	if err = sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return seating.Applicant{}, trapNoRowsErr(err, seating.ErrNotFound, "getting applicant")
	}
	return row.unboil(), nil
}

func (repo seatingRepository) CreateApplicant(ctx context.Context, app seating.Applicant) (seating.Applicant, error) {
	app.ID = uuid.New().String()
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC()
	}
	ins := psql.Insert(applicantsTable).Columns(applicantColumns...).Values(
		app.ID, app.ApplicationNumber, app.NationalID, app.Prefix, app.FirstName, app.LastName,
		null.NewString(app.Email, app.Email != ""),
		null.NewTime(app.BirthDate, !app.BirthDate.IsZero()),
		string(app.Status),
		null.NewString(app.CourseID, app.CourseID != ""),
		null.NewString(app.ExamRoomID, app.ExamRoomID != ""),
		null.NewInt(app.SeatNumber, app.ExamRoomID != ""),
		app.CreatedAt,
	)
	if _, err := repo.exec(ctx, ins, "inserting applicant"); err != nil {
		return seating.Applicant{}, err
	}
	return app, nil
}

func (repo seatingRepository) SetApplicantSeat(ctx context.Context, applicantID, roomID string, seatNumber int) error {
	upd := psql.Update(applicantsTable).
		Set("exam_room_id", roomID).
		Set("seat_number", seatNumber).
		Where(sq.Eq{"id": applicantID, "exam_room_id": nil})
	n, err := repo.exec(ctx, upd, "seating applicant")
	if err != nil {
		return err
	}
	if n == 0 {
		return seating.ErrNotEligible
	}
	return nil
}

func (repo seatingRepository) ClearSeats(ctx context.Context, scope seating.Scope) (int, error) {
	upd := psql.Update(applicantsTable).
		Set("exam_room_id", nil).
		Set("seat_number", nil).
		Where(sq.NotEq{"exam_room_id": nil})
	if !scope.IsAll() {
		upd = upd.Where(sq.Eq{"course_id": scope.CourseID})
	}
	return repo.exec(ctx, upd, "clearing seats")
}

func (repo seatingRepository) CountSeatedByRoom(ctx context.Context) (map[string]int, error) {
	query, args, err := psql.Select("exam_room_id", "COUNT(*) AS seated").
		From(applicantsTable).
		Where(sq.NotEq{"exam_room_id": nil}).
		GroupBy("exam_room_id").
		ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building room count query")
	}
	var rows []roomCountRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "counting seated applicants")
	}
	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.ExamRoomID] = row.Seated
	}
	return counts, nil
}

func (repo seatingRepository) QueryRooms(ctx context.Context, filter *seating.RoomFilter) ([]seating.Room, error) {
	q := psql.Select(roomColumns...).From(roomsTable).OrderBy(roomOrdering...)
	if filter != nil && filter.IsActive != nil {
		q = q.Where(sq.Eq{"is_active": *filter.IsActive})
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, errors.Wrap(err, "building rooms query")
	}
	var rows []roomRow
	if err = sqlx.SelectContext(ctx, repo.db, &rows, query, args...); err != nil {
		return nil, errors.Wrap(err, "querying rooms")
	}
	rooms := make([]seating.Room, 0, len(rows))
	for _, row := range rows {
		rooms = append(rooms, row.unboil())
	}
	return rooms, nil
}

func (repo seatingRepository) GetRoom(ctx context.Context, id string) (seating.Room, error) {
	if _, err := uuid.Parse(id); err != nil {
		return seating.Room{}, seating.ErrRoomNotFound
	}
	query, args, err := psql.Select(roomColumns...).From(roomsTable).Where(sq.Eq{"id": id}).ToSql()
	if err != nil {
		return seating.Room{}, errors.Wrap(err, "building room query")
	}
	var row roomRow
	if err = sqlx.GetContext(ctx, repo.db, &row, query, args...); err != nil {
		return seating.Room{}, trapNoRowsErr(err, seating.ErrRoomNotFound, "getting room")
	}
	return row.unboil(), nil
}

func (repo seatingRepository) CreateRoom(ctx context.Context, room seating.Room) (seating.Room, error) {
	room.ID = uuid.New().String()
	room.IsFull = room.CurrentCount >= room.Capacity
	ins := psql.Insert(roomsTable).Columns(roomColumns...).Values(
		room.ID, room.Building, room.RoomNumber, room.Floor, room.Capacity, room.CurrentCount, room.IsFull, room.IsActive,
	)
	if _, err := repo.exec(ctx, ins, "inserting room"); err != nil {
		return seating.Room{}, err
	}
	return room, nil
}

func (repo seatingRepository) IncrementRoomCount(ctx context.Context, roomID string, n int) error {
	upd := psql.Update(roomsTable).
		Set("current_count", sq.Expr("current_count + ?", n)).
		Set("is_full", sq.Expr("current_count + ? >= capacity", n)).
		Where(sq.Eq{"id": roomID})
	affected, err := repo.exec(ctx, upd, "incrementing room count")
	if err != nil {
		return err
	}
	if affected == 0 {
		return seating.ErrRoomNotFound
	}
	return nil
}

func (repo seatingRepository) ZeroRoomCounts(ctx context.Context) error {
	upd := psql.Update(roomsTable).Set("current_count", 0).Set("is_full", false)
	_, err := repo.exec(ctx, upd, "zeroing room counts")
	return err
}

func (repo seatingRepository) SetRoomCount(ctx context.Context, roomID string, n int) error {
	upd := psql.Update(roomsTable).
		Set("current_count", n).
		Set("is_full", sq.Expr("?::integer >= capacity", n)).
		Where(sq.Eq{"id": roomID})
	affected, err := repo.exec(ctx, upd, "setting room count")
	if err != nil {
		return err
	}
	if affected == 0 {
		return seating.ErrRoomNotFound
	}
	return nil
}
