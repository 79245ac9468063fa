package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/config"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/paths"
)

// PathsInfo holds all resolved paths for JSON output.
type PathsInfo struct {
	ConfigRoot  string `json:"config_root"`
	StateRoot   string `json:"state_root"`
	ConfigFile  string `json:"config_file"`
	LogFile     string `json:"log_file"`
	HistoryDir  string `json:"history_dir"`
	UpdateState string `json:"update_state"`
}

func newPathsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "paths",
		Short: "Show where cmdq stores files",
		Long: `Display the file and directory paths used by cmdq.

Useful for debugging and scripting: where the config file, logs, history
sessions, and update state live on this system.`,
		Example: `  cmdq paths
  cmdq paths --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			info := resolvePathsInfo(config.Load())

			if out.JSON {
				return out.PrintJSON(info)
			}

			out.Print("Config root:    %s\n", info.ConfigRoot)
			out.Print("State root:     %s\n", info.StateRoot)
			out.Print("\n")
			out.Print("Config file:    %s\n", info.ConfigFile)
			out.Print("Log file:       %s\n", info.LogFile)
			out.Print("History dir:    %s\n", info.HistoryDir)
			out.Print("Update state:   %s\n", info.UpdateState)

			return nil
		},
	}
}

func resolvePathsInfo(cfg *config.Config) PathsInfo {
	return PathsInfo{
		ConfigRoot:  resolveOrError(paths.ConfigRoot),
		StateRoot:   resolveOrError(paths.StateRoot),
		ConfigFile:  resolveOrError(paths.ConfigFile),
		LogFile:     resolveOrError(paths.DefaultLogFile),
		HistoryDir:  cfg.HistoryDir(),
		UpdateState: resolveOrError(paths.UpdateStateFile),
	}
}

func resolveOrError(fn func() (string, error)) string {
	val, err := fn()
	if err != nil {
		return fmt.Sprintf("<error: %v>", err)
	}

	return val
}
