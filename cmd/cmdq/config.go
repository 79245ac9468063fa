package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/config"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/output"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long:  `View and modify cmdq configuration settings.`,
	}

	cmd.AddCommand(newConfigListCmd())
	cmd.AddCommand(newConfigGetCmd())
	cmd.AddCommand(newConfigSetCmd())

	return cmd
}

func newConfigListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List all configuration settings",
		Long:  `Display every configuration key with its effective value (defaults, config file, and CMDQ_* environment combined).`,
		Example: `  cmdq config list
  cmdq config list --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			cfg := config.Load()

			settings := make(map[string]any, len(config.Keys()))
			rows := make([][]string, 0, len(config.Keys()))

			for _, key := range config.Keys() {
				value := displayValue(cfg.Get(key))
				settings[key] = value
				rows = append(rows, []string{key, fmt.Sprint(value)})
			}

			if out.JSON {
				return out.PrintJSON(settings)
			}

			out.Table([]string{"KEY", "VALUE"}, rows)

			if path := cfg.Path(); path != "" {
				out.Println()
				out.Muted("Config file: %s", path)
			}

			return nil
		},
	}
}

func newConfigGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "get <key>",
		Short:   "Get a configuration value",
		Long:    `Retrieve and display the current value of a single configuration key.`,
		Example: `  cmdq config get runner.prefix`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key := args[0]

			if !config.IsKnown(key) {
				return unknownKeyError(key)
			}

			value := displayValue(config.Load().Get(key))

			if out.JSON {
				return out.PrintJSON(map[string]any{key: value})
			}

			if value == nil {
				out.Muted("%s is not set", key)
				return nil
			}

			out.Print("%s = %v\n", key, value)

			return nil
		},
	}
}

func newConfigSetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "set <key> <value>",
		Short: "Set a configuration value",
		Long:  `Set a configuration key to the given value. The value is persisted to the config file.`,
		Example: `  cmdq config set runner.prefix "yt-dlp -f 140"
  cmdq config set queue.capacity 250`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			key, value := args[0], args[1]

			if !config.IsKnown(key) {
				return unknownKeyError(key)
			}

			if err := config.Load().Set(key, value); err != nil {
				return clierrors.ConfigFailed("set "+key, err)
			}

			out.Success("Set %s = %s", key, value)

			return nil
		},
	}
}

func unknownKeyError(key string) error {
	return clierrors.ConfigValueInvalid(key, fmt.Errorf("unknown config key %q", key)).
		WithHint("Run 'cmdq config list' to see available keys")
}

// displayValue renders durations the way they are written in config.yaml.
func displayValue(v any) any {
	if d, ok := v.(time.Duration); ok {
		return d.String()
	}

	return v
}
