package approval

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

type Result struct {
	Approved   bool
	UserAction string
}

// Prompt describes what the user is asked to approve.
type Prompt struct {
	Title   string
	Subject string
	Details []string
	// Warning is printed above the options when set.
	Warning string
}

func IsInteractive() bool {
	return term.IsTerminal(int(os.Stdin.Fd()))
}

// Asker reads a decision from In and writes the prompt to Out.
// Interactive reports whether a person is at the other end; when it
// returns false the prompt is denied without reading.
type Asker struct {
	In          io.Reader
	Out         io.Writer
	Interactive func() bool
}

// Terminal asks on stdin/stderr.
func Terminal() *Asker {
	return &Asker{In: os.Stdin, Out: os.Stderr, Interactive: IsInteractive}
}

func Ask(p Prompt) Result {
	return Terminal().Ask(p)
}

func (a *Asker) Ask(p Prompt) Result {
	if a.Interactive != nil && !a.Interactive() {
		return Result{
			Approved:   false,
			UserAction: "auto_deny_non_interactive",
		}
	}

	out := a.Out
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "╔══════════════════════════════════════════════════════════════╗")
	fmt.Fprintf(out, "║ %-60s ║\n", strings.ToUpper(p.Title))
	fmt.Fprintln(out, "╚══════════════════════════════════════════════════════════════╝")
	fmt.Fprintln(out, "")
	fmt.Fprintln(out, p.Subject)
	fmt.Fprintln(out, "")

	for _, d := range p.Details {
		fmt.Fprintf(out, "  • %s\n", d)
	}
	if p.Warning != "" {
		fmt.Fprintln(out, "")
		fmt.Fprintf(out, "⚠️  %s\n", p.Warning)
	}

	fmt.Fprintln(out, "")
	fmt.Fprintln(out, "Options:")
	fmt.Fprintln(out, "  [a] Approve")
	fmt.Fprintln(out, "  [d] Deny")
	fmt.Fprintln(out, "")

	reader := bufio.NewReader(a.In)

	for {
		fmt.Fprint(out, "Your choice [a/d]: ")
		input, err := reader.ReadString('\n')
		if err != nil && input == "" {
			return Result{
				Approved:   false,
				UserAction: "error_reading_input",
			}
		}

		input = strings.TrimSpace(strings.ToLower(input))

		switch input {
		case "a", "approve", "yes", "y":
			return Result{
				Approved:   true,
				UserAction: "approve",
			}
		case "d", "deny", "no", "n":
			return Result{
				Approved:   false,
				UserAction: "deny",
			}
		default:
			if err != nil {
				return Result{Approved: false, UserAction: "error_reading_input"}
			}
			fmt.Fprintln(out, "Invalid input. Please enter 'a' to approve or 'd' to deny.")
		}
	}
}
