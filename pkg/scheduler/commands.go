package scheduler

import (
	"fmt"
	"strings"
)

// queueFormat selects the squeue columns ParseQueue expects:
// job id, name, state, elapsed, node count, reason.
const queueFormat = "%i %j %T %M %D %R"

// QueueCommand builds the squeue invocation for one job id.
// The -h flag suppresses the header so every output line is a data row.
func QueueCommand(jobID string) string {
	return fmt.Sprintf("squeue -h -j %s -o '%s'", shellQuote(jobID), queueFormat)
}

// QueueCommandForUser builds the squeue invocation listing all of a
// user's jobs; callers narrow the result with a NameFilter.
func QueueCommandForUser(user string) string {
	return fmt.Sprintf("squeue -h -u %s -o '%s'", shellQuote(user), queueFormat)
}

// SubmitOptions carries the optional parts of an sbatch invocation.
type SubmitOptions struct {
	// JobName becomes the scheduler's --job-name when set.
	JobName string

	// LogTemplate becomes the scheduler's --output target when set,
	// e.g. "slurm-%j.out".
	LogTemplate string

	// SubmitArgs are extra sbatch arguments placed before the script,
	// e.g. "--partition=gpu".
	SubmitArgs []string

	// ScriptArgs are positional arguments passed to the script itself.
	ScriptArgs []string
}

// SubmitCommand builds the sbatch invocation for a remote script.
// logTemplate, when non-empty, becomes the scheduler's --output target.
func SubmitCommand(scriptPath, logTemplate string, args []string) string {
	return SubmitCommandWith(scriptPath, SubmitOptions{LogTemplate: logTemplate, ScriptArgs: args})
}

// SubmitCommandWith builds the sbatch invocation with full options.
func SubmitCommandWith(scriptPath string, opts SubmitOptions) string {
	var b strings.Builder
	b.WriteString("sbatch")
	if opts.JobName != "" {
		b.WriteString(" --job-name=")
		b.WriteString(shellQuote(opts.JobName))
	}
	if opts.LogTemplate != "" {
		b.WriteString(" --output=")
		b.WriteString(shellQuote(opts.LogTemplate))
	}
	for _, a := range opts.SubmitArgs {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	b.WriteString(" ")
	b.WriteString(shellQuote(scriptPath))
	for _, a := range opts.ScriptArgs {
		b.WriteString(" ")
		b.WriteString(shellQuote(a))
	}
	return b.String()
}

// CancelCommand builds the scancel invocation for one job id.
func CancelCommand(jobID string) string {
	return "scancel " + shellQuote(jobID)
}

// shellQuote makes a token safe for the remote shell. Plain tokens pass
// through untouched to keep commands readable in logs.
func shellQuote(s string) string {
	if s == "" {
		return "''"
	}
	safe := true
	for _, r := range s {
		if !(r == '.' || r == '/' || r == '-' || r == '_' || r == '=' || r == '%' || r == ':' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')) {
			safe = false
			break
		}
	}
	if safe {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
