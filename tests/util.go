package testutil

import (
	"context"
	"net/mail"
	"testing"
	"time"

	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/seating"
	"github.com/trezcool/admissions/core/user"
	"github.com/trezcool/admissions/storage/database"
)

// NewConfig returns a test configuration, independent of the environment.
func NewConfig() *core.Config {
	return &core.Config{
		Env:              "TEST",
		Build:            "test",
		AppName:          "Admissions",
		TestMode:         true,
		SecretKey:        "test-secret",
		DefaultFromEmail: mail.Address{Name: "Admissions", Address: "noreply@test.cd"},
		NotifySeats:      true,
		Server: core.ServerConfig{
			JWTExpirationDelta: time.Hour,
			ShutdownTimeout:    time.Second,
		},
	}
}

// NewValidator returns a validator & its translator with every app validator registered.
func NewValidator() (*validator.Validate, ut.Translator) {
	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	seating.InitValidators(validate, translator)
	return validate, translator
}

func CreateUser(
	t *testing.T,
	repo user.Repository,
	name, email, pwd, role string,
	isActive bool,
	createdAt ...time.Time,
) user.User {
	tstamp := time.Now().UTC()
	if len(createdAt) > 0 {
		tstamp = createdAt[0].UTC()
	}
	usr := user.User{
		Name:      name,
		Email:     email,
		Role:      role,
		IsActive:  isActive,
		CreatedAt: tstamp,
		UpdatedAt: tstamp,
	}
	if pwd != "" {
		if err := usr.SetPassword(pwd); err != nil {
			t.Fatalf("createUser() failed: %v", err)
		}
	}
	usr, err := repo.CreateUser(context.Background(), usr)
	if err != nil {
		t.Fatalf("createUser() failed: %v", err)
	}
	return usr
}

func CreateRoom(t *testing.T, repo seating.Repository, building, roomNumber string, capacity int, isActive bool) seating.Room {
	room, err := repo.CreateRoom(context.Background(), seating.Room{
		Building:   building,
		RoomNumber: roomNumber,
		Floor:      "1",
		Capacity:   capacity,
		IsActive:   isActive,
	})
	if err != nil {
		t.Fatalf("createRoom() failed: %v", err)
	}
	return room
}

// CreateApplicant creates app, defaulting its names, birth date, status & creation time.
func CreateApplicant(t *testing.T, repo seating.Repository, app seating.Applicant) seating.Applicant {
	if app.FirstName == "" {
		app.FirstName = "First " + app.ApplicationNumber
	}
	if app.LastName == "" {
		app.LastName = "Last " + app.NationalID
	}
	if app.BirthDate.IsZero() {
		app.BirthDate = time.Date(2005, time.March, 14, 0, 0, 0, 0, time.UTC)
	}
	if app.Status == "" {
		app.Status = seating.StatusApproved
	}
	if app.CreatedAt.IsZero() {
		app.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)
	}
	app, err := repo.CreateApplicant(context.Background(), app)
	if err != nil {
		t.Fatalf("createApplicant() failed: %v", err)
	}
	return app
}

// PrepareDB returns a migrated & emptied postgres database.
// Tests are skipped when the configured TEST database is not reachable.
func PrepareDB(t *testing.T) *sqlx.DB {
	t.Helper()

	conf := core.NewConfig()
	if conf.Database.InMemory() {
		t.Skip("in-memory database configured")
	}
	db, err := sqlx.Open("postgres", database.DataSourceName(conf))
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	if err = db.Ping(); err != nil {
		_ = db.Close()
		t.Skipf("database not reachable: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Migrate(db.DB); err != nil {
		t.Fatalf("migrating database: %v", err)
	}
	if _, err = db.Exec("TRUNCATE applicants, exam_rooms, users"); err != nil {
		t.Fatalf("emptying database: %v", err)
	}
	return db
}
