package cli

import (
	"context"

	flag "github.com/spf13/pflag"
)

func cmdWatch(a *app) *Command {
	flags := flag.NewFlagSet("watch", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "watch",
		Short: "Print the task list whenever it changes",
		Long: "Subscribe to the task list and reprint it on every change.\n" +
			"Runs until interrupted.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			updates, cancel := a.repo.Subscribe()
			defer cancel()

			loadErr := a.repo.Load(ctx)
			if loadErr != nil {
				return loadErr
			}

			for {
				select {
				case snapshot, ok := <-updates:
					if !ok {
						return nil
					}

					o.Printf("-- %d task(s)\n", len(snapshot))

					for _, t := range snapshot {
						o.Println(formatTaskRow(t))
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
