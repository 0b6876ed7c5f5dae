package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/trezcool/admissions/core/seating"
	"github.com/trezcool/admissions/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp  = errors.New("help provided")
	errNoSQL = errors.New("migrations need a postgres database")
)

type commandLine struct {
	db         *sql.DB // nil with the in-memory database
	usrRepo    user.Repository
	seatingSvc *seating.Service
	out        io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                     - run goose migration commands (up, down, status, ...)")
	_, _ = fmt.Fprintln(cli.out, "  adduser -email EMAIL [-name NAME] [-admin] - create or update a user; the password is prompted")
	_, _ = fmt.Fprintln(cli.out, "  resetpassword -email EMAIL                 - reset user's password")
	_, _ = fmt.Fprintln(cli.out, "  assign [-course all|ID] [-sort KEY]        - seat the approved applicants in the exam rooms")
	_, _ = fmt.Fprintln(cli.out, "  reset [-course all|ID]                     - clear exam seats & rebuild room counters")
	_, _ = fmt.Fprintln(cli.out, "  summary [-course all|ID]                   - print exam room occupancy")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	migrateCmd := cli.newFlagSet("migrate")

	addUserCmd := cli.newFlagSet("adduser")
	addUserEmail := addUserCmd.String("email", "", "The user's email. The password will be prompted next.")
	addUserName := addUserCmd.String("name", "", "The user's name.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Grant the admin role.")

	resetPasswordCmd := cli.newFlagSet("resetpassword")
	resetPasswordEmail := resetPasswordCmd.String("email", "", "The user's email. The password will be prompted next.")

	assignCmd := cli.newFlagSet("assign")
	assignCourse := assignCmd.String("course", "all", `"all" or a course ID.`)
	assignSort := assignCmd.String("sort", string(seating.DefaultSortKey), "nationalId or applicationNumber.")

	resetCmd := cli.newFlagSet("reset")
	resetCourse := resetCmd.String("course", "all", `"all" or a course ID.`)

	summaryCmd := cli.newFlagSet("summary")
	summaryCourse := summaryCmd.String("course", "all", `"all" or a course ID.`)

	switch args[1] {
	case "migrate":
		if err := migrateCmd.Parse(args[2:]); err != nil {
			return err
		}
		if migrateCmd.NArg() == 0 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(migrateCmd.Args())

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserName, *addUserEmail, pwd, *addUserAdmin)

	case "resetpassword":
		if err := resetPasswordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPasswordEmail == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		pwd, err := cli.readPassword()
		if err != nil {
			return err
		}
		if pwd == "" {
			resetPasswordCmd.Usage()
			return errHelp
		}
		return cli.resetPassword(*resetPasswordEmail, pwd)

	case "assign":
		if err := assignCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.assign(*assignCourse, *assignSort)

	case "reset":
		if err := resetCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.reset(*resetCourse)

	case "summary":
		if err := summaryCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.summary(*summaryCourse)

	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) readPassword() (string, error) {
	_, _ = fmt.Fprint(cli.out, "Enter password:")
	pwd, err := readPasswordFunc(int(os.Stdin.Fd()))
	_, _ = fmt.Fprintln(cli.out)
	if err != nil {
		return "", err
	}
	return string(pwd), nil
}
