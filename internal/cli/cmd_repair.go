package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func cmdRepair(a *app) *Command {
	flags := flag.NewFlagSet("repair", flag.ContinueOnError)
	dryRun := flags.BoolP("dry-run", "n", false, "Report orphans without removing them")

	return &Command{
		Flags: flags,
		Usage: "repair [flags]",
		Short: "Sweep orphaned record files",
		Long: "Remove record files that no index entry references.\n" +
			"Orphans appear when a record write succeeded but the index append failed.\n" +
			"Quarantined index entries are reported but kept for traceability.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			var (
				orphans []string
				err     error
			)

			if *dryRun {
				orphans, err = a.store.Orphans(ctx)
			} else {
				orphans, err = a.store.Repair(ctx)
			}

			if err != nil {
				return err
			}

			verb := "removed orphan:"
			if *dryRun {
				verb = "orphan:"
			}

			for _, name := range orphans {
				o.Println(verb, name)
			}

			entries, entriesErr := a.store.Entries(ctx)
			if entriesErr != nil {
				return entriesErr
			}

			for _, e := range entries {
				if !e.Valid {
					o.Println("quarantined:", e.ID)
				}
			}

			return nil
		},
	}
}
