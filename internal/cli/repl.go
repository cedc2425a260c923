package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/peterh/liner"
	flag "github.com/spf13/pflag"

	"todostore/internal/task"
)

// replHistoryFile stores readline history inside the data directory.
const replHistoryFile = ".history"

var replCommands = []string{"add", "ls", "show", "done", "rm", "help", "quit"}

func cmdRepl(a *app) *Command {
	flags := flag.NewFlagSet("repl", flag.ContinueOnError)

	return &Command{
		Flags: flags,
		Usage: "repl",
		Short: "Interactive session",
		Long: "Start an interactive session with completion and history.\n" +
			"Commands: add <title>, ls, show <id>, done <id>, rm <id>, quit.",
		Exec: func(ctx context.Context, o *IO, _ []string) error {
			return runRepl(ctx, a, o)
		},
	}
}

func runRepl(ctx context.Context, a *app, o *IO) error {
	line := liner.NewLiner()
	defer func() { _ = line.Close() }()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(input string) []string {
		var completions []string

		for _, cmd := range replCommands {
			if strings.HasPrefix(cmd, strings.ToLower(input)) {
				completions = append(completions, cmd)
			}
		}

		return completions
	})

	historyPath := filepath.Join(a.store.Dir(), replHistoryFile)

	if f, openErr := os.Open(historyPath); openErr == nil {
		_, _ = line.ReadHistory(f)
		_ = f.Close()
	}

	defer func() {
		f, createErr := os.OpenFile(historyPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o600)
		if createErr != nil {
			return
		}

		_, _ = line.WriteHistory(f)
		_ = f.Close()
	}()

	updates, cancel := a.repo.Subscribe()
	defer cancel()

	loadErr := a.repo.Load(ctx)
	if loadErr != nil {
		return loadErr
	}

	// Consume the post-load emission so later reads see mutations only.
	<-updates

	for ctx.Err() == nil {
		input, promptErr := line.Prompt("td> ")
		if promptErr != nil {
			if errors.Is(promptErr, liner.ErrPromptAborted) || errors.Is(promptErr, io.EOF) {
				return nil
			}

			return fmt.Errorf("reading input: %w", promptErr)
		}

		input = strings.TrimSpace(input)
		if input == "" {
			continue
		}

		line.AppendHistory(input)

		if input == "quit" || input == "exit" {
			return nil
		}

		execErr := replDispatch(ctx, a, o, updates, input)
		if execErr != nil {
			o.ErrPrintln("error:", execErr)
		}
	}

	return nil
}

// replDispatch executes one interactive command line.
func replDispatch(ctx context.Context, a *app, o *IO, updates <-chan []task.Task, input string) error {
	name, rest, _ := strings.Cut(input, " ")
	rest = strings.TrimSpace(rest)

	switch name {
	case "help":
		o.Println("commands: add <title>, ls, show <id>, done <id>, rm <id>, quit")

		return nil
	case "ls":
		snapshot, _ := a.repo.Snapshot()

		for _, t := range snapshot {
			o.Println(formatTaskRow(t))
		}

		return nil
	case "add":
		if rest == "" {
			return errTitleRequired
		}

		created, addErr := a.repo.Add(ctx, rest, "")
		if addErr != nil {
			return addErr
		}

		o.Println(created.ID)
		confirmChange(o, updates)

		return nil
	case "show":
		return showOne(ctx, a, o, rest)
	case "done":
		id, resolveErr := resolveID(ctx, a, rest)
		if resolveErr != nil {
			return resolveErr
		}

		toggleErr := a.repo.ToggleCompletion(ctx, id)
		if toggleErr != nil {
			return toggleErr
		}

		confirmChange(o, updates)

		return nil
	case "rm":
		id, resolveErr := resolveID(ctx, a, rest)
		if resolveErr != nil {
			return resolveErr
		}

		deleteErr := a.repo.Delete(ctx, id)
		if deleteErr != nil {
			return deleteErr
		}

		confirmChange(o, updates)

		return nil
	default:
		return fmt.Errorf("%w: %s", errUnknownCommand, name)
	}
}

// confirmChange reads the broadcast triggered by a successful mutation and
// reports the new list size.
func confirmChange(o *IO, updates <-chan []task.Task) {
	select {
	case snapshot := <-updates:
		o.Printf("-- %d task(s)\n", len(snapshot))
	default:
	}
}

func showOne(ctx context.Context, a *app, o *IO, arg string) error {
	id, resolveErr := resolveID(ctx, a, arg)
	if resolveErr != nil {
		return resolveErr
	}

	found, getErr := a.repo.GetByID(ctx, id)
	if getErr != nil {
		return getErr
	}

	if found == nil {
		return fmt.Errorf("%w %q", errTaskNotFound, id)
	}

	o.Println(formatTaskRow(*found))

	return nil
}
