// Package testutil holds golden-file helpers shared by cmdq tests.
package testutil

import (
	"flag"
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/x/ansi"
)

// Run "go test ./... -update" to rewrite golden files from current output.
var update = flag.Bool("update", false, "update golden files")

// TB is the subset of testing.TB the helpers need.
type TB interface {
	Helper()
	Fatalf(format string, args ...any)
	Errorf(format string, args ...any)
	Logf(format string, args ...any)
}

// GoldenPath returns the path of a golden file under testdata.
func GoldenPath(filename string) string {
	return filepath.Join("testdata", filename)
}

// AssertGolden compares got against testdata/<goldenFile>, or rewrites the
// file when -update is set.
func AssertGolden(t TB, got, goldenFile string) {
	t.Helper()

	goldenPath := GoldenPath(goldenFile)

	if *update {
		if err := os.MkdirAll(filepath.Dir(goldenPath), 0o755); err != nil {
			t.Fatalf("create testdata directory: %v", err)
			return
		}

		if err := os.WriteFile(goldenPath, []byte(got), 0o644); err != nil { //nolint:gosec // test fixtures
			t.Fatalf("update golden file %s: %v", goldenPath, err)
			return
		}

		t.Logf("updated golden file: %s", goldenPath)

		return
	}

	want, err := os.ReadFile(goldenPath) //nolint:gosec // test fixtures
	if err != nil {
		if os.IsNotExist(err) {
			t.Fatalf("golden file %s does not exist; run with -update to create it", goldenPath)
			return
		}

		t.Fatalf("read golden file %s: %v", goldenPath, err)

		return
	}

	if got != string(want) {
		t.Errorf("output mismatch for %s\n\ngot:\n%s\n\nwant:\n%s\n\nrun with -update to refresh golden files", goldenPath, got, string(want))
	}
}

// AssertGoldenScreen compares terminal output after Screen normalization.
func AssertGoldenScreen(t TB, got, goldenFile string) {
	t.Helper()
	AssertGolden(t, Screen(got), goldenFile)
}

// Screen strips escape sequences, drops trailing spaces, and normalizes line
// endings so rendered views compare stably.
func Screen(s string) string {
	s = strings.ReplaceAll(ansi.Strip(s), "\r\n", "\n")

	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " ")
	}

	return strings.Join(lines, "\n")
}

// ReadGolden returns a golden file's contents, or "" if it does not exist.
func ReadGolden(t TB, goldenFile string) string {
	t.Helper()

	data, err := os.ReadFile(GoldenPath(goldenFile)) //nolint:gosec // test fixtures
	if err != nil {
		if !os.IsNotExist(err) {
			t.Fatalf("read golden file %s: %v", goldenFile, err)
		}

		return ""
	}

	return string(data)
}
