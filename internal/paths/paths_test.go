package paths

import (
	"path/filepath"
	"testing"
)

func TestRoots_UseXDG(t *testing.T) {
	cfg := t.TempDir()
	state := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", cfg)
	t.Setenv("XDG_STATE_HOME", state)

	tests := []struct {
		name string
		fn   func() (string, error)
		want string
	}{
		{"ConfigRoot", ConfigRoot, filepath.Join(cfg, "cmdq")},
		{"ConfigFile", ConfigFile, filepath.Join(cfg, "cmdq", "config.yaml")},
		{"StateRoot", StateRoot, filepath.Join(state, "cmdq")},
		{"LogsDir", LogsDir, filepath.Join(state, "cmdq", "logs")},
		{"DefaultLogFile", DefaultLogFile, filepath.Join(state, "cmdq", "logs", "cmdq.log")},
		{"UpdateStateFile", UpdateStateFile, filepath.Join(state, "cmdq", "update-check.json")},
		{"HistoryDir", HistoryDir, filepath.Join(state, "cmdq", "history")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.fn()
			if err != nil {
				t.Fatalf("%s() error = %v", tt.name, err)
			}

			if got != tt.want {
				t.Errorf("%s() = %q, want %q", tt.name, got, tt.want)
			}
		})
	}
}

func TestStateRoot_RelativeXDGFallsBackToHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("XDG_STATE_HOME", "relative/state")

	got, err := StateRoot()
	if err != nil {
		t.Fatalf("StateRoot() error = %v", err)
	}

	want := filepath.Join(home, ".local", "state", "cmdq")
	if got != want {
		t.Errorf("StateRoot() = %q, want %q", got, want)
	}
}
