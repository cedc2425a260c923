package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	flag "github.com/spf13/pflag"
)

// usageColumn is the width of the usage column in the global help listing.
const usageColumn = 22

// Command is one subcommand of td. Usage doubles as identity: the first
// word is the command name, the rest documents arguments and flags.
type Command struct {
	// Flags holds the command's own flags. The FlagSet name is ignored.
	Flags *flag.FlagSet

	// Usage as shown after "td" in help, e.g. "done <id>" or "ls [flags]".
	Usage string

	// Short is the one-liner for the global help listing.
	Short string

	// Long replaces Short in per-command help when set.
	Long string

	// Exec runs after flag parsing with the remaining positional args.
	Exec func(ctx context.Context, o *IO, args []string) error
}

// Name returns the first word of Usage.
func (c *Command) Name() string {
	name, _, _ := strings.Cut(c.Usage, " ")
	return name
}

// HelpLine renders the command's row in the global help listing.
func (c *Command) HelpLine() string {
	return fmt.Sprintf("  %-*s %s", usageColumn, c.Usage, c.Short)
}

// PrintHelp writes the per-command help shown for "td <cmd> --help".
func (c *Command) PrintHelp(o *IO) {
	o.Println("Usage: td", c.Usage)
	o.Println()

	if c.Long != "" {
		o.Println(c.Long)
	} else {
		o.Println(c.Short)
	}

	if c.Flags == nil || !c.Flags.HasFlags() {
		return
	}

	o.Println()
	o.Println("Flags:")
	o.Printf("%s", c.flagDefaults())
}

func (c *Command) flagDefaults() string {
	var buf strings.Builder

	c.Flags.SetOutput(&buf)
	c.Flags.PrintDefaults()

	return buf.String()
}

// Run parses flags, executes the command, and maps the outcome to an exit
// code. Parse failures print the error followed by the command help;
// --help is not an error. Warnings collected on o surface through Finish.
func (c *Command) Run(ctx context.Context, o *IO, args []string) int {
	// pflag writes its own diagnostics on parse errors; keep output
	// ordering in our hands instead.
	c.Flags.SetOutput(io.Discard)

	if parseErr := c.Flags.Parse(args); parseErr != nil {
		if errors.Is(parseErr, flag.ErrHelp) {
			c.PrintHelp(o)
			return 0
		}

		o.ErrPrintln("error:", parseErr)
		o.ErrPrintln()
		c.PrintHelp(o)

		return 1
	}

	if execErr := c.Exec(ctx, o, c.Flags.Args()); execErr != nil {
		o.ErrPrintln("error:", execErr)
		return 1
	}

	return o.Finish()
}
