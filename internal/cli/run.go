package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"todostore/internal/config"
	"todostore/internal/repo"
	"todostore/internal/store"
)

// CLI errors.
var (
	errFlagRequiresArg = errors.New("flag requires an argument")
	errUnknownCommand  = errors.New("unknown command")
	errIDRequired      = errors.New("task id is required")
	errTitleRequired   = errors.New("title is required")
	errAmbiguousID     = errors.New("ambiguous id prefix")
	errTaskNotFound    = errors.New("no task matches")
)

// globalFlags holds flags that apply before the command name.
type globalFlags struct {
	workDir    string
	configPath string
	dataDir    string
	help       bool
	rest       []string
}

// parseGlobalFlags consumes leading global flags and returns the remainder.
func parseGlobalFlags(args []string) (globalFlags, error) {
	var flags globalFlags

	i := 0

	for i < len(args) {
		arg := args[i]

		switch {
		case arg == "-C" || arg == "--cwd":
			if i+1 >= len(args) {
				return flags, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.workDir = args[i+1]
			i += 2
		case arg == "-c" || arg == "--config":
			if i+1 >= len(args) {
				return flags, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.configPath = args[i+1]
			i += 2
		case arg == "--data-dir":
			if i+1 >= len(args) {
				return flags, fmt.Errorf("%w: %s", errFlagRequiresArg, arg)
			}

			flags.dataDir = args[i+1]
			i += 2
		case arg == "-h" || arg == "--help":
			flags.help = true
			i++
		case strings.HasPrefix(arg, "-"):
			return flags, fmt.Errorf("unknown flag: %s", arg)
		default:
			flags.rest = args[i:]

			return flags, nil
		}
	}

	return flags, nil
}

// app bundles the collaborators every command needs.
type app struct {
	cfg   config.Config
	store *store.Store
	repo  *repo.Repository
	in    io.Reader
}

// Run is the main entry point. Returns exit code.
func Run(in io.Reader, out, errOut io.Writer, args []string, env map[string]string, sig <-chan os.Signal) int {
	o := NewIO(out, errOut)

	if len(args) < 2 {
		printUsage(o)

		return 0
	}

	flags, flagsErr := parseGlobalFlags(args[1:])
	if flagsErr != nil {
		o.ErrPrintln("error:", flagsErr)

		return 1
	}

	if flags.help || len(flags.rest) == 0 {
		printUsage(o)

		return 0
	}

	cfg, cfgErr := config.Load(config.LoadInput{
		WorkDirOverride: flags.workDir,
		ConfigPath:      flags.configPath,
		DataDirOverride: flags.dataDir,
		Env:             env,
	})
	if cfgErr != nil {
		o.ErrPrintln("error:", cfgErr)

		return 1
	}

	st, openErr := store.Open(cfg.DataDirAbs)
	if openErr != nil {
		o.ErrPrintln("error:", openErr)

		return 1
	}

	defer func() { _ = st.Close() }()

	a := &app{
		cfg:   cfg,
		store: st,
		repo:  repo.New(st),
		in:    in,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		select {
		case <-sig:
			cancel()
		case <-ctx.Done():
		}
	}()

	name := flags.rest[0]
	cmdArgs := flags.rest[1:]

	for _, c := range commands(a) {
		if c.Name() == name {
			return c.Run(ctx, o, cmdArgs)
		}
	}

	o.ErrPrintln("error:", fmt.Errorf("%w: %s", errUnknownCommand, name))
	o.ErrPrintln()
	printUsage(o)

	return 1
}

// commands builds the command registry for one invocation.
func commands(a *app) []*Command {
	return []*Command{
		cmdAdd(a),
		cmdLs(a),
		cmdShow(a),
		cmdDone(a),
		cmdRm(a),
		cmdRepair(a),
		cmdWatch(a),
		cmdRepl(a),
	}
}

func printUsage(o *IO) {
	o.Println("td - minimal local task list")
	o.Println()
	o.Println("Usage: td [global flags] <command> [args]")
	o.Println()
	o.Println("Commands:")

	for _, c := range commands(nil) {
		o.Println(c.HelpLine())
	}

	o.Println()
	o.Println("Global flags:")
	o.Println("  -C, --cwd <dir>        Run as if started in <dir>")
	o.Println("  -c, --config <file>    Explicit config file")
	o.Println("      --data-dir <dir>   Override the data directory")
}

// resolveID loads the repository and matches arg against task ids, accepting
// a unique prefix. Exact matches win over prefix matches.
func resolveID(ctx context.Context, a *app, arg string) (string, error) {
	if arg == "" {
		return "", errIDRequired
	}

	loadErr := a.repo.Load(ctx)
	if loadErr != nil {
		return "", loadErr
	}

	snapshot, _ := a.repo.Snapshot()

	var matches []string

	for _, t := range snapshot {
		if t.ID == arg {
			return t.ID, nil
		}

		if strings.HasPrefix(t.ID, arg) {
			matches = append(matches, t.ID)
		}
	}

	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%w %q", errTaskNotFound, arg)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%w %q (%d candidates)", errAmbiguousID, arg, len(matches))
	}
}
