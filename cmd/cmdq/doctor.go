package main

import (
	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/buildinfo"
	"github.com/musher-dev/cmdq/internal/config"
	"github.com/musher-dev/cmdq/internal/doctor"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/update"
)

// DoctorReport is the JSON form of a doctor run.
type DoctorReport struct {
	Results  []doctor.Result `json:"results"`
	Passed   int             `json:"passed"`
	Failed   int             `json:"failed"`
	Warnings int             `json:"warnings"`
}

func newDoctorCmd() *cobra.Command {
	var offline bool

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose common issues",
		Long: `Run diagnostic checks to find problems before a run fails.

Checks performed:
  - Config file readable
  - Shell (runner.shell) available
  - Command prefix executable found in PATH
  - History directory writable
  - CLI version, and whether a newer release exists`,
		Example: `  cmdq doctor
  cmdq doctor --offline --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())

			runner := doctor.New(doctor.Options{
				Config:       config.Load(),
				LookPath:     lookPath,
				CheckUpdates: !offline && !update.IsDisabled() && !buildinfo.IsDev(),
			})
			results := runner.Run(cmd.Context())

			if out.JSON {
				passed, failed, warnings := doctor.Summary(results)

				return out.PrintJSON(DoctorReport{
					Results:  results,
					Passed:   passed,
					Failed:   failed,
					Warnings: warnings,
				})
			}

			renderDoctorReport(out, results)

			return nil
		},
	}

	cmd.Flags().BoolVar(&offline, "offline", false, "Skip the latest-release check")

	return cmd
}

func renderDoctorReport(out *output.Writer, results []doctor.Result) {
	out.Println("cmdq doctor")
	out.Println("===========")
	out.Println()

	doctor.RenderResults(results, out.Success, out.Warning, out.Failure, out.Muted)

	passed, failed, warnings := doctor.Summary(results)

	out.Println()
	out.Print("%d passed", passed)

	if failed > 0 {
		out.Print(", %d failed", failed)
	}

	if warnings > 0 {
		out.Print(", %d warning(s)", warnings)
	}

	out.Println()
}
