package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func cmdAdd(a *app) *Command {
	flags := flag.NewFlagSet("add", flag.ContinueOnError)
	description := flags.StringP("description", "d", "", "Description text")

	return &Command{
		Flags: flags,
		Usage: "add <title> [flags]",
		Short: "Create a task, prints its id",
		Long: "Create a new task with the given title.\n" +
			"Prints the generated task id on success.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return errTitleRequired
			}

			created, addErr := a.repo.Add(ctx, args[0], *description)
			if addErr != nil {
				return addErr
			}

			o.Println(created.ID)

			return nil
		},
	}
}
