package cli

import (
	"context"
	"time"

	runewidth "github.com/mattn/go-runewidth"
	flag "github.com/spf13/pflag"

	"todostore/internal/task"
)

const (
	lsIDWidth    = 8
	lsTitleWidth = 48
)

func cmdLs(a *app) *Command {
	flags := flag.NewFlagSet("ls", flag.ContinueOnError)
	pending := flags.BoolP("pending", "p", false, "Only tasks not yet completed")
	completed := flags.Bool("completed", false, "Only completed tasks")

	return &Command{
		Flags: flags,
		Usage: "ls [flags]",
		Short: "List tasks",
		Long: "List all tasks in creation order.\n" +
			"Records that fail to load are quarantined and reported as warnings.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			quarantinedBefore, countErr := quarantinedCount(ctx, a)
			if countErr != nil {
				return countErr
			}

			loadErr := a.repo.Load(ctx)
			if loadErr != nil {
				return loadErr
			}

			quarantinedAfter, countErr := quarantinedCount(ctx, a)
			if countErr != nil {
				return countErr
			}

			if n := quarantinedAfter - quarantinedBefore; n > 0 {
				o.Warn("%d record(s) could not be read and were quarantined; see %s", n, a.cfg.DataDirAbs)
			}

			snapshot, _ := a.repo.Snapshot()

			for _, t := range snapshot {
				if *pending && t.Completed {
					continue
				}

				if *completed && !t.Completed {
					continue
				}

				o.Println(formatTaskRow(t))
			}

			return nil
		},
	}
}

// formatTaskRow renders one aligned list row: short id, done marker,
// creation date, title.
func formatTaskRow(t task.Task) string {
	marker := "[ ]"
	if t.Completed {
		marker = "[x]"
	}

	id := t.ID
	if len(id) > lsIDWidth {
		id = id[:lsIDWidth]
	}

	title := runewidth.Truncate(t.Title, lsTitleWidth, "…")
	title = runewidth.FillRight(title, lsTitleWidth)

	return id + "  " + marker + "  " + t.Created().UTC().Format(time.DateOnly) + "  " + title
}

// quarantinedCount counts invalid index entries by re-reading the index.
func quarantinedCount(ctx context.Context, a *app) (int, error) {
	entries, err := a.store.Entries(ctx)
	if err != nil {
		return 0, err
	}

	n := 0

	for _, e := range entries {
		if !e.Valid {
			n++
		}
	}

	return n, nil
}
