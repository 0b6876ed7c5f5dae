package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/admissions/core/seating"
)

func (cli *commandLine) assign(course, sortBy string) error {
	scope, err := seating.ParseScope(course)
	if err != nil {
		return err
	}
	key, err := seating.ParseSortKey(sortBy)
	if err != nil {
		return err
	}
	res, err := cli.seatingSvc.Assign(context.Background(), scope, key)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "assigned: %d, not assigned: %d, total: %d\n", res.Assigned, res.NotAssigned, res.Total)
	return nil
}

func (cli *commandLine) reset(course string) error {
	scope, err := seating.ParseScope(course)
	if err != nil {
		return err
	}
	res, err := cli.seatingSvc.Reset(context.Background(), scope)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "reset: %d\n", res.ResetCount)
	return nil
}

func (cli *commandLine) summary(course string) error {
	scope, err := seating.ParseScope(course)
	if err != nil {
		return err
	}
	sum, err := cli.seatingSvc.Summary(context.Background(), scope)
	if err != nil {
		return err
	}

	_, _ = fmt.Fprintf(cli.out, "approved: %d, assigned: %d, unassigned: %d\n\n",
		sum.Totals.TotalApproved, sum.Totals.TotalAssigned, sum.Totals.TotalUnassigned)

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "BUILDING\tROOM\tFLOOR\tACTIVE\tCAPACITY\tCOUNT\tAVAILABLE\tROSTER")
	for _, r := range sum.Rooms {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%t\t%d\t%d\t%d\t%d\n",
			r.Building, r.RoomNumber, r.Floor, r.IsActive, r.Capacity, r.CurrentCount, r.AvailableSeats, len(r.Roster))
	}
	return w.Flush()
}
