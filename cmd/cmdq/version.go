package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/output"
)

// VersionInfo represents version information for JSON output.
type VersionInfo struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
	Date    string `json:"date"`
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   "Show version information",
		Long:    `Display the cmdq binary version, git commit, and build date.`,
		Example: `  cmdq version`,
		Args:    noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := VersionInfo{Version: version, Commit: commit, Date: date}
			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("cmdq %s\n", info.Version)
			out.Print("  commit: %s\n", info.Commit)
			out.Print("  built:  %s\n", info.Date)

			return nil
		},
	}
}
