package inmemdb

import (
	"sync"

	"github.com/trezcool/admissions/core/seating"
	"github.com/trezcool/admissions/core/user"
)

type (
	DB struct {
		user    *userTable
		seating *seatingTables
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	// seatingTables share one lock: seating writes span applicants & rooms.
	seatingTables struct {
		sync.RWMutex
		applicants     map[string]*seating.Applicant
		applicantOrder []string // insertion order, breaks creation time ties
		rooms          map[string]*seating.Room
	}
)

func Open() *DB {
	return &DB{
		user: &userTable{table: make(map[string]*user.User)},
		seating: &seatingTables{
			applicants: make(map[string]*seating.Applicant),
			rooms:      make(map[string]*seating.Room),
		},
	}
}
