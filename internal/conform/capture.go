package conform

import (
	"fmt"
	"os"
)

// CompareFiles is the file-based entry point the cmd/pi-exthost "conform"
// subcommand drives: read two JSONL trace files, normalize and group both,
// and report the per-group diffs.
func CompareFiles(cwd, expectedPath, actualPath string) (Result, error) {
	expected, err := os.ReadFile(expectedPath)
	if err != nil {
		return Result{}, fmt.Errorf("conform: read expected trace %s: %w", expectedPath, err)
	}
	actual, err := os.ReadFile(actualPath)
	if err != nil {
		return Result{}, fmt.Errorf("conform: read actual trace %s: %w", actualPath, err)
	}
	return Compare(Normalizer{CWD: cwd}, expected, actual)
}
