package execution

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gzhole/migclean/internal/inventory"
)

// Result is what a handler reports back to the engine.
type Result struct {
	Success bool
	Command string
	Output  string
	Error   string
}

// Handler performs one action type. In dry-run mode it must describe the
// command it would run without running anything.
type Handler interface {
	Type() ActionType
	Execute(ctx context.Context, a *Action, mode Mode) Result
}

// Registry maps action types to handlers. It is built once at startup.
type Registry map[ActionType]Handler

func NewRegistry(handlers ...Handler) Registry {
	r := make(Registry, len(handlers))
	for _, h := range handlers {
		r[h.Type()] = h
	}
	return r
}

// DefaultRegistry wires the four system handlers to runner.
func DefaultRegistry(runner Runner) Registry {
	return NewRegistry(
		&RestorePointHandler{Runner: runner},
		&DriverHandler{Runner: runner},
		&ServiceHandler{Runner: runner},
		&ProgramHandler{Runner: runner},
	)
}

func fromRun(command string, res RunResult, err error) Result {
	if err != nil {
		return Result{Command: command, Output: res.Stdout, Error: err.Error()}
	}
	if res.ExitCode != 0 {
		msg := res.Stderr
		if msg == "" {
			msg = fmt.Sprintf("exit code %d", res.ExitCode)
		}
		return Result{Command: command, Output: res.Stdout, Error: msg}
	}
	return Result{Success: true, Command: command, Output: res.Stdout}
}

const restorePointScript = "Checkpoint-Computer -Description 'MigClean Pre-Cleanup' -RestorePointType MODIFY_SETTINGS"

// RestorePointHandler creates a system restore point through PowerShell.
type RestorePointHandler struct {
	Runner Runner
}

func (h *RestorePointHandler) Type() ActionType { return ActionCreateRestorePoint }

func (h *RestorePointHandler) Execute(ctx context.Context, _ *Action, mode Mode) Result {
	command := fmt.Sprintf("powershell.exe -NoProfile -Command \"%s\"", restorePointScript)
	if mode == ModeDryRun {
		return Result{Success: true, Command: command, Output: "[DRY RUN] Would create system restore point."}
	}
	res, err := h.Runner.Run(ctx, "powershell.exe", "-NoProfile", "-Command", restorePointScript)
	return fromRun(command, res, err)
}

// DriverHandler removes a driver package from the driver store. The
// published name is the target id suffix ("drv:oem42.inf" → "oem42.inf").
type DriverHandler struct {
	Runner Runner
}

func (h *DriverHandler) Type() ActionType { return ActionUninstallDriverPackage }

func (h *DriverHandler) Execute(ctx context.Context, a *Action, mode Mode) Result {
	name := inventory.IDSuffix(a.TargetID)
	if name == "" {
		return Result{Error: fmt.Sprintf("Cannot extract driver published name from target '%s'.", a.TargetID)}
	}
	command := fmt.Sprintf("pnputil /delete-driver %s /force", name)
	if mode == ModeDryRun {
		return Result{Success: true, Command: command, Output: "[DRY RUN] Would execute: " + command}
	}
	res, err := h.Runner.Run(ctx, "pnputil", "/delete-driver", name, "/force")
	return fromRun(command, res, err)
}

// ServiceHandler stops a service and sets its start type to disabled.
// A failed stop is tolerated; the disable step decides the outcome.
type ServiceHandler struct {
	Runner Runner
}

func (h *ServiceHandler) Type() ActionType { return ActionDisableService }

func (h *ServiceHandler) Execute(ctx context.Context, a *Action, mode Mode) Result {
	name := inventory.IDSuffix(a.TargetID)
	if name == "" {
		return Result{Error: fmt.Sprintf("Cannot extract service name from target '%s'.", a.TargetID)}
	}
	stop := fmt.Sprintf("sc.exe stop %q", name)
	disable := fmt.Sprintf("sc.exe config %q start=disabled", name)
	command := stop + " && " + disable
	if mode == ModeDryRun {
		return Result{Success: true, Command: command,
			Output: fmt.Sprintf("[DRY RUN] Would execute:\n  1. %s\n  2. %s", stop, disable)}
	}

	stopRes, stopErr := h.Runner.Run(ctx, "sc.exe", "stop", name)
	disRes, disErr := h.Runner.Run(ctx, "sc.exe", "config", name, "start=disabled")
	output := fmt.Sprintf("[STOP] Exit=%d: %s\n[DISABLE] Exit=%d: %s",
		stopRes.ExitCode, runOutput(stopRes, stopErr), disRes.ExitCode, runOutput(disRes, disErr))

	r := fromRun(command, disRes, disErr)
	r.Output = output
	return r
}

func runOutput(res RunResult, err error) string {
	if err != nil {
		return err.Error()
	}
	return res.Stdout
}

// DefaultUninstallTimeout bounds a program uninstall.
const DefaultUninstallTimeout = 120 * time.Second

// ProgramHandler runs the stored uninstall command line of an app: item.
// The run is bounded by Timeout; expiry kills the process and is reported
// separately from cancellation of ctx.
type ProgramHandler struct {
	Runner  Runner
	Timeout time.Duration
}

func (h *ProgramHandler) Type() ActionType { return ActionUninstallProgram }

func (h *ProgramHandler) Execute(ctx context.Context, a *Action, mode Mode) Result {
	command := strings.TrimSpace(a.Command)
	if command == "" {
		return Result{Error: fmt.Sprintf("No uninstall command available for '%s'.", a.TargetID)}
	}
	if mode == ModeDryRun {
		return Result{Success: true, Command: command, Output: "[DRY RUN] Would execute: " + command}
	}

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = DefaultUninstallTimeout
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	exe, args := ParseCommand(command)
	res, err := h.Runner.Run(runCtx, exe, SplitArgs(args)...)
	if err != nil && ctx.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return Result{Command: command, Output: res.Stdout,
			Error: fmt.Sprintf("Uninstall timed out after %s.", formatSeconds(timeout))}
	}
	if err != nil && ctx.Err() != nil {
		return Result{Command: command, Output: res.Stdout, Error: "Uninstall cancelled."}
	}
	return fromRun(command, res, err)
}

func formatSeconds(d time.Duration) string {
	if d%time.Second == 0 {
		return fmt.Sprintf("%ds", int(d/time.Second))
	}
	return d.String()
}

// ParseCommand splits a command line into the executable and the argument
// string. A leading quote delimits the executable path; otherwise the
// first space does.
func ParseCommand(commandLine string) (exe, args string) {
	commandLine = strings.TrimSpace(commandLine)
	if strings.HasPrefix(commandLine, `"`) {
		if end := strings.IndexByte(commandLine[1:], '"'); end >= 0 {
			end++
			return commandLine[1:end], strings.TrimSpace(commandLine[end+1:])
		}
	}
	if i := strings.IndexByte(commandLine, ' '); i > 0 {
		return commandLine[:i], strings.TrimSpace(commandLine[i+1:])
	}
	return commandLine, ""
}

// SplitArgs tokenises an argument string on whitespace, keeping quoted
// runs together and dropping the quotes.
func SplitArgs(args string) []string {
	var out []string
	var cur strings.Builder
	inQuote, have := false, false
	for _, r := range args {
		switch {
		case r == '"':
			inQuote = !inQuote
			have = true
		case (r == ' ' || r == '\t') && !inQuote:
			if have {
				out = append(out, cur.String())
				cur.Reset()
				have = false
			}
		default:
			cur.WriteRune(r)
			have = true
		}
	}
	if have {
		out = append(out, cur.String())
	}
	return out
}
