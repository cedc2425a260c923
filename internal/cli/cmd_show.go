package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
)

func cmdShow(a *app) *Command {
	flags := flag.NewFlagSet("show", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "show <id>",
		Short: "Print one task",
		Long: "Print all fields of one task.\n" +
			"Accepts a full id or a unique id prefix.",
		Exec: func(ctx context.Context, o *IO, args []string) error {
			if len(args) == 0 || args[0] == "" {
				return errIDRequired
			}

			id := args[0]

			// A full UUID can be looked up directly without loading the
			// whole list; prefixes need the snapshot to resolve against.
			if _, parseErr := uuid.Parse(id); parseErr != nil {
				resolved, resolveErr := resolveID(ctx, a, id)
				if resolveErr != nil {
					return resolveErr
				}

				id = resolved
			}

			found, getErr := a.repo.GetByID(ctx, id)
			if getErr != nil {
				return getErr
			}

			if found == nil {
				return fmt.Errorf("%w %q", errTaskNotFound, id)
			}

			o.Println("id:         " + found.ID)
			o.Println("title:      " + found.Title)

			if found.Description != "" {
				o.Println("description: " + found.Description)
			}

			o.Printf("completed:  %t\n", found.Completed)
			o.Println("created:    " + found.Created().UTC().Format(time.RFC3339))

			return nil
		},
	}
}
