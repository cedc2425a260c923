package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func cmdRm(a *app) *Command {
	flags := flag.NewFlagSet("rm", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "rm <id>",
		Short: "Delete a task",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return errIDRequired
			}

			id, resolveErr := resolveID(ctx, a, args[0])
			if resolveErr != nil {
				return resolveErr
			}

			deleteErr := a.repo.Delete(ctx, id)
			if deleteErr != nil {
				return deleteErr
			}

			o.Println("deleted:", id)

			return nil
		},
	}
}
