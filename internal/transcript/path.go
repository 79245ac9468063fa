package transcript

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/musher-dev/cmdq/internal/paths"
)

// DefaultDir returns the default history directory.
func DefaultDir() (string, error) {
	dir, err := paths.HistoryDir()
	if err != nil {
		return "", fmt.Errorf("resolve history directory: %w", err)
	}

	return dir, nil
}

// NewSessionID returns a sortable session id: the start time followed by a
// short random suffix.
func NewSessionID(now time.Time) string {
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	return now.UTC().Format("20060102-150405") + "-" + suffix
}

func resolveDir(rootDir string) (string, error) {
	if rootDir != "" {
		return rootDir, nil
	}

	return DefaultDir()
}
