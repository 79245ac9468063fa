package main

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	selfupdate "github.com/creativeprojects/go-selfupdate"
	"github.com/spf13/cobra"

	"github.com/musher-dev/cmdq/internal/buildinfo"
	clierrors "github.com/musher-dev/cmdq/internal/errors"
	"github.com/musher-dev/cmdq/internal/output"
	"github.com/musher-dev/cmdq/internal/update"
)

const releasesURL = "https://github.com/" + update.DefaultSlug + "/releases"

func newUpdateCmd() *cobra.Command {
	var (
		targetVersion string
		force         bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update cmdq to the latest version",
		Long: `Update cmdq to the latest version from GitHub Releases.

Downloads the new binary, verifies its checksum, and replaces the current
executable. If the binary is not writable, sudo is requested automatically.

Set CMDQ_UPDATE_DISABLED=1 to disable update checks.`,
		Example: `  cmdq update
  cmdq update --version 1.2.3
  cmdq update --json`,
		Args: noArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := output.FromContext(cmd.Context())
			return runUpdate(cmd.Context(), out, targetVersion, force)
		},
	}

	cmd.Flags().StringVar(&targetVersion, "version", "", "Install a specific version (e.g. 1.2.3)")
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Force update even if already up to date")

	return cmd
}

func runUpdate(ctx context.Context, out *output.Writer, targetVersion string, force bool) error {
	if update.IsDisabled() {
		out.Warning("Updates are disabled (CMDQ_UPDATE_DISABLED is set)")
		return nil
	}

	if buildinfo.IsDev() && targetVersion == "" {
		out.Warning("Development build, cannot determine current version")
		out.Info("Install a release build: %s", releasesURL)

		return nil
	}

	updater, err := update.NewUpdater(update.Options{})
	if err != nil {
		return clierrors.UpdateFailed("initialize updater", err)
	}

	if targetVersion != "" {
		return installVersion(ctx, out, updater, strings.TrimPrefix(targetVersion, "v"))
	}

	info, err := checkLatest(ctx, out, updater)
	if err != nil {
		return err
	}

	if out.JSON {
		return out.PrintJSON(info)
	}

	current := buildinfo.Version

	switch {
	case !info.UpdateAvailable && !force:
		out.Success("Already up to date (v%s)", current)
		return nil
	case info.Release == nil:
		return clierrors.UpdateFailed("find a release for this platform", nil)
	case info.UpdateAvailable:
		out.Info("Update available: v%s → v%s", current, info.LatestVersion)
	default:
		out.Info("Reinstalling v%s", info.LatestVersion)
	}

	if elevated, err := reExecIfNeeded(); elevated || err != nil {
		return err
	}

	spin := out.Spinner(fmt.Sprintf("Downloading v%s", info.LatestVersion))
	spin.Start()

	if err := updater.Apply(ctx, info.Release); err != nil {
		spin.StopWithFailure(fmt.Sprintf("Update failed: %v", err))
		return clierrors.UpdateFailed("install the update", err)
	}

	spin.StopWithSuccess(fmt.Sprintf("Updated to v%s", info.LatestVersion))

	if info.ReleaseURL != "" {
		out.Muted("Release notes: %s", info.ReleaseURL)
	}

	return nil
}

// checkLatest queries the release feed and caches the result for the
// background notice.
func checkLatest(ctx context.Context, out *output.Writer, updater *update.Updater) (*update.Info, error) {
	// No spinner in JSON mode; it would corrupt stdout.
	var spin *output.Spinner
	if !out.JSON {
		spin = out.Spinner("Checking for updates")
		spin.Start()
	}

	info, err := updater.CheckLatest(ctx, buildinfo.Version)
	if err != nil {
		if spin != nil {
			spin.StopWithFailure(fmt.Sprintf("Failed to check for updates: %v", err))
		}

		if strings.Contains(err.Error(), "403") {
			out.Info("Set GITHUB_TOKEN to avoid rate limits")
		}

		return nil, clierrors.UpdateFailed("check for updates", err)
	}

	if spin != nil {
		spin.StopWithSuccess("")
	}

	recordCheck(info, time.Now())

	return info, nil
}

// reExecIfNeeded re-runs the command under sudo when the binary is not
// writable. elevated reports that the sudo child did the work.
func reExecIfNeeded() (elevated bool, err error) {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil || !update.NeedsElevation(execPath) {
		return false, nil
	}

	if err := update.ReExecWithSudo(); err != nil {
		return true, clierrors.UpdateFailed("re-run the update with sudo", err)
	}

	return true, nil
}

func installVersion(ctx context.Context, out *output.Writer, updater *update.Updater, version string) error {
	if elevated, err := reExecIfNeeded(); elevated || err != nil {
		return err
	}

	var spin *output.Spinner
	if !out.JSON {
		spin = out.Spinner(fmt.Sprintf("Installing v%s", version))
		spin.Start()
	}

	release, err := updater.ApplyVersion(ctx, version)
	if err != nil {
		if spin != nil {
			spin.StopWithFailure(fmt.Sprintf("Failed to install v%s: %v", version, err))
		}

		if strings.Contains(err.Error(), "not found") {
			out.Info("Check available versions at %s", releasesURL)
		}

		return clierrors.UpdateFailed("install v"+version, err)
	}

	if spin != nil {
		spin.StopWithSuccess(fmt.Sprintf("Installed v%s", release.Version()))
	}

	return nil
}

func recordCheck(info *update.Info, now time.Time) {
	state, err := update.LoadState()
	if err != nil {
		state = &update.State{}
	}

	state.Record(info, now)
	_ = update.SaveState(state)
}

// updateCheckTimeout bounds the background release query.
const updateCheckTimeout = 5 * time.Second

// skipUpdateCommands never trigger background checks or update notices.
var skipUpdateCommands = map[string]bool{
	"update":     true,
	"version":    true,
	"completion": true,
	"doctor":     true,
	"start":      true,
}

// updateNotifier refreshes the cached release state in the background while
// a command runs and prints a notice once it finishes.
type updateNotifier struct {
	version string
	wg      sync.WaitGroup
}

func (n *updateNotifier) enabled(cmd *cobra.Command, out *output.Writer) bool {
	if n.version == "dev" || out.Quiet || out.JSON || update.IsDisabled() {
		return false
	}

	return !skipUpdateCommands[cmd.Name()]
}

func (n *updateNotifier) start(cmd *cobra.Command, out *output.Writer) {
	if !n.enabled(cmd, out) {
		return
	}

	n.wg.Go(n.refresh)
}

// refresh checks for a release at most once per update.CheckInterval.
func (n *updateNotifier) refresh() {
	state, err := update.LoadState()
	if err != nil || !state.ShouldCheck() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), updateCheckTimeout)
	defer cancel()

	updater, err := update.NewUpdater(update.Options{})
	if err != nil {
		return
	}

	info, err := updater.CheckLatest(ctx, n.version)
	if err != nil {
		return
	}

	state.Record(info, time.Now())
	_ = update.SaveState(state)
}

// finish waits for the refresh and prints a notice when a newer release is
// cached.
func (n *updateNotifier) finish(cmd *cobra.Command, out *output.Writer) {
	n.wg.Wait()

	if !n.enabled(cmd, out) {
		return
	}

	state, err := update.LoadState()
	if err != nil || !state.HasUpdate(n.version) {
		return
	}

	out.Print("\n")
	out.Info("A new version of cmdq is available: v%s → v%s", n.version, state.LatestVersion)
	out.Muted("  Run 'cmdq update' to update")
}
