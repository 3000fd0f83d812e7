package main

import (
	"bytes"
	"fmt"
	"regexp"
	"strings"

	"github.com/loomworks/loom/internal/ui"
	"github.com/spf13/cobra"
)

// Patterns used to colorize Cobra's default help output.
var (
	// Command rows: two-space indent, name, two-or-more spaces, description.
	reCommandRow = regexp.MustCompile(`^(  )(\S+)(  +)(.*)$`)

	// Flag value types, e.g. "--http-url string".
	reFlagType = regexp.MustCompile(`(--?[\w-]+\s+)(string|int|duration)\b`)

	// Default annotations, e.g. (default "http://localhost:8080").
	reDefault = regexp.MustCompile(`\(default [^)]*\)`)
)

// colorizedHelpFunc returns a Cobra help function that post-processes
// the default help text line by line, adding ANSI colors when the
// terminal supports them.
func colorizedHelpFunc() func(*cobra.Command, []string) {
	return func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		if !ui.ShouldUseColor() {
			cmd.SetOut(out)
			_ = cmd.Usage()
			return
		}

		var buf bytes.Buffer
		cmd.SetOut(&buf)
		_ = cmd.Usage()
		cmd.SetOut(out)

		for _, line := range strings.SplitAfter(buf.String(), "\n") {
			fmt.Fprint(out, colorizeHelpLine(line))
		}
	}
}

// colorizeHelpLine styles one line of Cobra help text: section headers
// in the accent color, command names highlighted, flag types and
// defaults muted. "Usage:" stays plain.
func colorizeHelpLine(line string) string {
	trimmed := strings.TrimRight(line, "\n")
	suffix := line[len(trimmed):]

	// Section header: unindented, ends with ":".
	if strings.HasSuffix(trimmed, ":") && !strings.HasPrefix(trimmed, " ") && trimmed != "Usage:" {
		return ui.RenderAccent(trimmed) + suffix
	}

	if m := reCommandRow.FindStringSubmatch(trimmed); m != nil {
		return m[1] + ui.RenderCommand(m[2]) + m[3] + m[4] + suffix
	}

	trimmed = reFlagType.ReplaceAllString(trimmed, "$1"+ui.RenderMuted("$2"))
	trimmed = reDefault.ReplaceAllStringFunc(trimmed, ui.RenderMuted)
	return trimmed + suffix
}
