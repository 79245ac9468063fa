// Package doctor provides diagnostic checks for a cmdq installation.
//
// The default checks cover:
//   - the config file parses
//   - the configured shell is runnable
//   - the command prefix executable is in PATH
//   - the history directory is writable
//   - the CLI version against the latest release
package doctor

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/musher-dev/cmdq/internal/buildinfo"
	"github.com/musher-dev/cmdq/internal/config"
	"github.com/musher-dev/cmdq/internal/update"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

func (s Status) String() string {
	switch s {
	case StatusPass:
		return "pass"
	case StatusWarn:
		return "warn"
	case StatusFail:
		return "fail"
	default:
		return "unknown"
	}
}

// Result holds the outcome of a single check.
type Result struct {
	Name    string `json:"name"`
	Status  Status `json:"-"`
	State   string `json:"status"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Options supplies the environment the default checks inspect.
type Options struct {
	Config *config.Config
	// LookPath resolves executables; exec.LookPath when nil.
	LookPath func(string) (string, error)
	// CheckUpdates queries GitHub for the latest release.
	CheckUpdates bool
}

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// New creates a runner with the default checks registered.
func New(opts Options) *Runner {
	if opts.Config == nil {
		opts.Config = config.Load()
	}

	if opts.LookPath == nil {
		opts.LookPath = exec.LookPath
	}

	r := &Runner{}
	r.AddCheck("Config", func(context.Context) Result { return checkConfig(opts.Config) })
	r.AddCheck("Shell", func(context.Context) Result { return checkShell(opts.Config, opts.LookPath) })
	r.AddCheck("Command Prefix", func(context.Context) Result { return checkPrefix(opts.Config, opts.LookPath) })
	r.AddCheck("History", func(context.Context) Result { return checkHistory(opts.Config) })
	r.AddCheck("CLI Version", func(ctx context.Context) Result { return checkCLIVersion(ctx, opts.CheckUpdates) })

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks in order.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		result.State = result.Status.String()
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

func checkConfig(cfg *config.Config) Result {
	if err := cfg.ReadErr(); err != nil {
		return Result{Status: StatusFail, Message: cfg.Path(), Detail: err.Error()}
	}

	if _, err := os.Stat(cfg.Path()); err != nil {
		return Result{Status: StatusPass, Message: "defaults (no config file)"}
	}

	return Result{Status: StatusPass, Message: cfg.Path()}
}

func checkShell(cfg *config.Config, lookPath func(string) (string, error)) Result {
	shell := cfg.Shell()
	if len(shell) == 0 {
		return Result{Status: StatusPass, Message: "none (commands run directly)"}
	}

	path, err := lookPath(shell[0])
	if err != nil {
		return Result{
			Status:  StatusFail,
			Message: fmt.Sprintf("%s not found in PATH", shell[0]),
			Detail:  "Set runner.shell to an installed shell, or to \"\" to run commands directly",
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", strings.Join(shell, " "), path)}
}

func checkPrefix(cfg *config.Config, lookPath func(string) (string, error)) Result {
	fields := strings.Fields(cfg.Prefix())
	if len(fields) == 0 {
		return Result{
			Status:  StatusWarn,
			Message: "No command prefix configured",
			Detail:  "Run 'cmdq config set runner.prefix \"<command>\"'",
		}
	}

	path, err := lookPath(fields[0])
	if err != nil {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("%s not found in PATH", fields[0]),
			Detail:  "Tasks using the default prefix will fail to start",
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("%s (%s)", fields[0], path)}
}

func checkHistory(cfg *config.Config) Result {
	if !cfg.HistoryEnabled() {
		return Result{Status: StatusPass, Message: "disabled"}
	}

	dir := cfg.HistoryDir()
	if dir == "" {
		return Result{Status: StatusFail, Message: "history directory unavailable"}
	}

	if err := os.MkdirAll(dir, 0o700); err != nil {
		return Result{Status: StatusFail, Message: dir, Detail: err.Error()}
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Status: StatusFail, Message: fmt.Sprintf("%s is not writable", dir), Detail: err.Error()}
	}

	_ = probe.Close()
	_ = os.Remove(probe.Name())

	return Result{Status: StatusPass, Message: dir}
}

func checkCLIVersion(ctx context.Context, checkUpdates bool) Result {
	current := buildinfo.Version

	if buildinfo.IsDev() {
		return Result{Status: StatusWarn, Message: "Development build (version check skipped)"}
	}

	if !checkUpdates || update.IsDisabled() {
		return Result{Status: StatusPass, Message: fmt.Sprintf("v%s (update check skipped)", current)}
	}

	checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	updater, err := update.NewUpdater(update.Options{})
	if err != nil {
		return Result{Status: StatusWarn, Message: fmt.Sprintf("v%s (could not check for updates)", current), Detail: err.Error()}
	}

	info, err := updater.CheckLatest(checkCtx, current)
	if err != nil {
		return Result{Status: StatusWarn, Message: fmt.Sprintf("v%s (could not check for updates)", current), Detail: err.Error()}
	}

	if info.UpdateAvailable {
		return Result{
			Status:  StatusWarn,
			Message: fmt.Sprintf("v%s (v%s available)", current, info.LatestVersion),
			Detail:  "Run 'cmdq update' to update",
		}
	}

	return Result{Status: StatusPass, Message: fmt.Sprintf("v%s (latest)", current)}
}

// RenderResults writes aligned check results through the given printers.
func RenderResults(results []Result, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	width := 0
	for _, r := range results {
		width = max(width, len(r.Name))
	}

	for _, r := range results {
		printFn := failureFn

		switch r.Status {
		case StatusPass:
			printFn = successFn
		case StatusWarn:
			printFn = warningFn
		}

		printFn("%-*s%s", width+4, r.Name, r.Message)

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}
