package update

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/musher-dev/cmdq/internal/paths"
)

// CheckInterval is the minimum time between background update checks.
const CheckInterval = 24 * time.Hour

// State caches the last update check.
type State struct {
	LastCheckedAt  time.Time `json:"lastCheckedAt"`
	LatestVersion  string    `json:"latestVersion,omitempty"`
	CurrentVersion string    `json:"currentVersion,omitempty"`
	ReleaseURL     string    `json:"releaseURL,omitempty"`
}

// LoadState reads the cached state. A missing or corrupt file yields an
// empty State.
func LoadState() (*State, error) {
	path, err := paths.UpdateStateFile()
	if err != nil {
		return &State{}, nil //nolint:nilerr // no state dir means nothing cached
	}

	data, err := os.ReadFile(path) //nolint:gosec // G304: path under the cmdq state dir
	if err != nil {
		if os.IsNotExist(err) {
			return &State{}, nil
		}

		return nil, fmt.Errorf("read update state file: %w", err)
	}

	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return &State{}, nil //nolint:nilerr // corrupt cache is rebuilt on next check
	}

	return &state, nil
}

// SaveState writes the state through a temp file and rename.
func SaveState(state *State) error {
	path, err := paths.UpdateStateFile()
	if err != nil {
		return fmt.Errorf("resolve update state path: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create update state directory: %w", err)
	}

	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal update state: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp update state file: %w", err)
	}

	tmp := tmpFile.Name()

	_, writeErr := tmpFile.Write(data)
	closeErr := tmpFile.Close()

	if writeErr != nil || closeErr != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write temp update state: %w", firstErr(writeErr, closeErr))
	}

	if err := os.Rename(tmp, path); err != nil {
		// Windows refuses to rename over an existing file.
		if removeErr := os.Remove(path); removeErr != nil && !os.IsNotExist(removeErr) {
			_ = os.Remove(tmp)
			return fmt.Errorf("remove existing update state file: %w", removeErr)
		}

		if retryErr := os.Rename(tmp, path); retryErr != nil {
			_ = os.Remove(tmp)
			return fmt.Errorf("replace update state file: %w", retryErr)
		}
	}

	return nil
}

func firstErr(errs ...error) error {
	for _, err := range errs {
		if err != nil {
			return err
		}
	}

	return nil
}

// ShouldCheck reports whether CheckInterval has passed since the last check.
func (s *State) ShouldCheck() bool {
	return s.LastCheckedAt.IsZero() || time.Since(s.LastCheckedAt) >= CheckInterval
}

// HasUpdate reports whether the cached latest version is newer than current.
func (s *State) HasUpdate(currentVersion string) bool {
	return IsNewer(s.LatestVersion, currentVersion)
}

// Record stores the outcome of a completed check.
func (s *State) Record(info *Info, now time.Time) {
	s.LastCheckedAt = now
	s.CurrentVersion = info.CurrentVersion
	s.LatestVersion = info.LatestVersion
	s.ReleaseURL = info.ReleaseURL
}
