package main

import (
	"fmt"
	"regexp"
	"strings"
	"testing"
	"unicode"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// maxShortLen keeps one-line help within a narrow terminal.
const maxShortLen = 60

var kebabCase = regexp.MustCompile(`^[a-z][a-z0-9]*(-[a-z0-9]+)*$`)

// commandRule checks one help or flag convention on a single command and
// returns a description of every violation.
type commandRule struct {
	name  string
	fix   string
	check func(cmd *cobra.Command) []string
}

var commandRules = []commandRule{
	{
		name: "runnable commands have an Example",
		fix:  "Add Example: `  cmdq <cmd> ...` to each command.",
		check: func(cmd *cobra.Command) []string {
			if cmd.Runnable() && strings.TrimSpace(cmd.Example) == "" {
				return []string{cmd.CommandPath()}
			}

			return nil
		},
	},
	{
		name: "runnable commands have a Long description",
		fix:  "Add a Long field with 1-2 sentences explaining the command.",
		check: func(cmd *cobra.Command) []string {
			if cmd.Runnable() && strings.TrimSpace(cmd.Long) == "" {
				return []string{cmd.CommandPath()}
			}

			return nil
		},
	},
	{
		name: "Long descriptions carry no examples",
		fix:  "Move examples to the Example field.",
		check: func(cmd *cobra.Command) []string {
			if strings.Contains(cmd.Long, "Example:") || strings.Contains(cmd.Long, "```") {
				return []string{cmd.CommandPath()}
			}

			return nil
		},
	},
	{
		name: "Short descriptions are concise",
		fix:  "Keep Short fields concise; use Long for details.",
		check: func(cmd *cobra.Command) []string {
			if len(cmd.Short) > maxShortLen {
				return []string{fmt.Sprintf("%s (%d chars): %q", cmd.CommandPath(), len(cmd.Short), cmd.Short)}
			}

			return nil
		},
	},
	{
		name: "Short descriptions are capitalized without a trailing period",
		fix:  "Short must start uppercase and not end with a period.",
		check: func(cmd *cobra.Command) []string {
			if cmd.Short == "" {
				return nil
			}

			var v []string

			if !unicode.IsUpper([]rune(cmd.Short)[0]) {
				v = append(v, fmt.Sprintf("%s: starts lowercase: %q", cmd.CommandPath(), cmd.Short))
			}

			if strings.HasSuffix(cmd.Short, ".") {
				v = append(v, fmt.Sprintf("%s: ends with period: %q", cmd.CommandPath(), cmd.Short))
			}

			return v
		},
	},
	{
		name: "--force has the -f shorthand",
		fix:  `Use BoolVarP with "f" shorthand.`,
		check: func(cmd *cobra.Command) []string {
			if f := cmd.Flags().Lookup("force"); f != nil && f.Shorthand != "f" {
				return []string{cmd.CommandPath()}
			}

			return nil
		},
	},
	{
		name: "flag names are kebab-case",
		fix:  "Use --kebab-case for all flag names.",
		check: func(cmd *cobra.Command) []string {
			var v []string

			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if !kebabCase.MatchString(f.Name) {
					v = append(v, fmt.Sprintf("%s: --%s", cmd.CommandPath(), f.Name))
				}
			})

			return v
		},
	},
	{
		name: "shorthands are unique per command",
		fix:  "Pick a different shorthand or drop one.",
		check: func(cmd *cobra.Command) []string {
			var v []string

			seen := map[string]string{}

			cmd.Flags().VisitAll(func(f *pflag.Flag) {
				if f.Shorthand == "" {
					return
				}

				if existing, ok := seen[f.Shorthand]; ok {
					v = append(v, fmt.Sprintf("%s: -%s claimed by both --%s and --%s",
						cmd.CommandPath(), f.Shorthand, existing, f.Name))
				}

				seen[f.Shorthand] = f.Name
			})

			return v
		},
	},
}

// TestCommandConventions applies every commandRule to the whole command tree.
func TestCommandConventions(t *testing.T) {
	commands := collectAllCommands(newRootCmd())

	for _, rule := range commandRules {
		t.Run(rule.name, func(t *testing.T) {
			var violations []string

			for _, cmd := range commands {
				violations = append(violations, rule.check(cmd)...)
			}

			if len(violations) > 0 {
				t.Errorf("violations:\n  %s\n\n%s", strings.Join(violations, "\n  "), rule.fix)
			}
		})
	}
}

// TestDataCommandsSupportJSON maintains a registry of data-producing commands
// and their --json support status. Any new data command must be explicitly
// registered in either jsonSupported or jsonDeferred, forcing a conscious
// decision about machine-readable output.
func TestDataCommandsSupportJSON(t *testing.T) {
	// Commands that currently support --json output.
	jsonSupported := map[string]bool{
		"cmdq config list":  true,
		"cmdq config get":   true,
		"cmdq history list": true,
		"cmdq history view": true,
	}

	// Commands where --json support is intentionally deferred.
	jsonDeferred := map[string]bool{}

	// Data verbs that produce output suitable for machine consumption.
	dataVerbs := map[string]bool{
		"list":   true,
		"info":   true,
		"status": true,
		"view":   true,
		"get":    true,
	}

	root := newRootCmd()

	var unregistered []string

	for _, cmd := range collectAllCommands(root) {
		if !cmd.Runnable() {
			continue
		}

		// Extract the verb (last segment of the command path).
		parts := strings.Fields(cmd.CommandPath())
		verb := parts[len(parts)-1]

		if !dataVerbs[verb] {
			continue
		}

		path := cmd.CommandPath()

		if jsonSupported[path] || jsonDeferred[path] {
			continue
		}

		unregistered = append(unregistered, path)
	}

	if len(unregistered) > 0 {
		t.Errorf("data commands not registered for --json support:\n  %s\n\nAdd each command to jsonSupported or jsonDeferred in this test.",
			strings.Join(unregistered, "\n  "))
	}
}

// TestRunCommandsAcceptPrefixFlag checks that every command that starts a
// runner lets the caller override the configured prefix.
func TestRunCommandsAcceptPrefixFlag(t *testing.T) {
	root := newRootCmd()

	for _, name := range []string{"start", "run"} {
		cmd, _, err := root.Find([]string{name})
		if err != nil {
			t.Fatalf("find %s: %v", name, err)
		}

		if cmd.Flags().Lookup("prefix") == nil {
			t.Errorf("cmdq %s has no --prefix flag", name)
		}
	}
}
