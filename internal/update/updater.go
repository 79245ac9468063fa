// Package update checks GitHub Releases for newer cmdq builds and replaces
// the running binary, verifying the release checksum file.
package update

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"strings"

	"github.com/Masterminds/semver/v3"
	selfupdate "github.com/creativeprojects/go-selfupdate"
)

// DefaultSlug is the GitHub repository releases are fetched from.
const DefaultSlug = "musher-dev/cmdq"

// IsDisabled reports whether CMDQ_UPDATE_DISABLED turns update checks off.
func IsDisabled() bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv("CMDQ_UPDATE_DISABLED"))) {
	case "1", "true", "yes":
		return true
	default:
		return false
	}
}

// Info holds the result of a version check.
type Info struct {
	CurrentVersion  string `json:"currentVersion"`
	LatestVersion   string `json:"latestVersion"`
	UpdateAvailable bool   `json:"updateAvailable"`
	ReleaseURL      string `json:"releaseURL,omitempty"`

	Release *selfupdate.Release `json:"-"`
}

// Options configures the release source.
type Options struct {
	// Slug is owner/repo; DefaultSlug when empty.
	Slug string
	// APIToken raises the GitHub rate limit. GITHUB_TOKEN when empty.
	APIToken string
	// BaseURL points at a GitHub Enterprise API.
	BaseURL string
	// SkipChecksum accepts releases without a checksums.txt asset.
	SkipChecksum bool
}

// Updater checks for and applies releases.
type Updater struct {
	updater *selfupdate.Updater
	slug    selfupdate.RepositorySlug
}

// NewUpdater creates an Updater backed by GitHub Releases.
func NewUpdater(opts Options) (*Updater, error) {
	token := opts.APIToken
	if token == "" {
		token = os.Getenv("GITHUB_TOKEN")
	}

	source, err := selfupdate.NewGitHubSource(selfupdate.GitHubConfig{
		APIToken:          token,
		EnterpriseBaseURL: opts.BaseURL,
	})
	if err != nil {
		return nil, fmt.Errorf("create github source: %w", err)
	}

	cfg := selfupdate.Config{
		Source: source,
		OS:     runtime.GOOS,
		Arch:   runtime.GOARCH,
	}

	if !opts.SkipChecksum {
		cfg.Validator = &selfupdate.ChecksumValidator{UniqueFilename: "checksums.txt"}
	}

	updater, err := selfupdate.NewUpdater(cfg)
	if err != nil {
		return nil, fmt.Errorf("create updater: %w", err)
	}

	slug := opts.Slug
	if slug == "" {
		slug = DefaultSlug
	}

	return &Updater{updater: updater, slug: selfupdate.ParseSlug(slug)}, nil
}

// CheckLatest reports whether a newer release than currentVersion exists.
// A current version that is not semver (a dev build) is always outdated.
func (u *Updater) CheckLatest(ctx context.Context, currentVersion string) (*Info, error) {
	latest, found, err := u.updater.DetectLatest(ctx, u.slug)
	if err != nil {
		return nil, fmt.Errorf("detect latest release: %w", err)
	}

	info := &Info{CurrentVersion: currentVersion, LatestVersion: currentVersion}
	if !found {
		return info, nil
	}

	info.LatestVersion = latest.Version()
	info.ReleaseURL = latest.URL
	info.Release = latest

	if _, parseErr := semver.NewVersion(currentVersion); parseErr != nil {
		info.UpdateAvailable = true
		return info, nil
	}

	info.UpdateAvailable = IsNewer(latest.Version(), currentVersion)

	return info, nil
}

// IsNewer reports whether candidate is a strictly greater semver than current.
// Unparseable versions are never newer.
func IsNewer(candidate, current string) bool {
	if candidate == "" || current == "" {
		return false
	}

	c, err := semver.NewVersion(current)
	if err != nil {
		return false
	}

	v, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}

	return v.GreaterThan(c)
}

// Apply installs release over the running executable.
func (u *Updater) Apply(ctx context.Context, release *selfupdate.Release) error {
	execPath, err := selfupdate.ExecutablePath()
	if err != nil {
		return fmt.Errorf("find executable path: %w", err)
	}

	if err := u.updater.UpdateTo(ctx, release, execPath); err != nil {
		return fmt.Errorf("apply update: %w", err)
	}

	return nil
}

// ApplyVersion installs a specific release version.
func (u *Updater) ApplyVersion(ctx context.Context, version string) (*selfupdate.Release, error) {
	release, found, err := u.updater.DetectVersion(ctx, u.slug, version)
	if err != nil {
		return nil, fmt.Errorf("detect version %s: %w", version, err)
	}

	if !found {
		return nil, fmt.Errorf("version %s not found", version)
	}

	if err := u.Apply(ctx, release); err != nil {
		return nil, err
	}

	return release, nil
}
