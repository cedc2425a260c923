package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func cmdDone(a *app) *Command {
	flags := flag.NewFlagSet("done", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "done <id>",
		Short: "Toggle a task's completed flag",
		Long: "Flip the completed flag of a task.\n" +
			"Running it on a completed task marks it pending again.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return errIDRequired
			}

			id, resolveErr := resolveID(ctx, a, args[0])
			if resolveErr != nil {
				return resolveErr
			}

			toggleErr := a.repo.ToggleCompletion(ctx, id)
			if toggleErr != nil {
				return toggleErr
			}

			updated, getErr := a.repo.GetByID(ctx, id)
			if getErr != nil {
				return getErr
			}

			if updated != nil && updated.Completed {
				o.Println("completed:", id)
			} else {
				o.Println("pending:", id)
			}

			return nil
		},
	}
}
