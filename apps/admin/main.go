package main

import (
	"fmt"
	"log"
	"os"

	"github.com/trezcool/admissions/core"
	"github.com/trezcool/admissions/core/seating"
	logsvc "github.com/trezcool/admissions/services/logger"
	"github.com/trezcool/admissions/storage/database"
	inmemdb "github.com/trezcool/admissions/storage/database/inmem"
	sqlxrepos "github.com/trezcool/admissions/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	sink, err := logsvc.NewSink(conf)
	if err != nil {
		log.Fatalf("setting up log sink: %v", err)
	}
	logger := logsvc.NewRollbarLogger(sink.Named("ADMIN"), conf)

	cli := commandLine{out: os.Stdout}
	var seatingRepo seating.Repository
	if conf.Database.InMemory() {
		db := inmemdb.Open()
		cli.usrRepo = inmemdb.NewUserRepository(db)
		seatingRepo = inmemdb.NewSeatingRepository(db)
	} else {
		db, err := database.Open(conf)
		if err != nil {
			logger.Fatal(fmt.Sprintf("opening database: %v", err), err)
		}
		defer func() { _ = db.Close() }()
		cli.db = db.DB
		cli.usrRepo = sqlxrepos.NewUserRepository(db)
		seatingRepo = sqlxrepos.NewSeatingRepository(db)
	}

	// seat notifications are sent asynchronously: only the API sends them
	cli.seatingSvc = seating.NewService(seatingRepo, nil, logger, conf)

	err = cli.run(os.Args)
	logger.Close()
	if err != nil {
		if err != errHelp {
			_, _ = fmt.Fprintf(os.Stderr, "\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}
