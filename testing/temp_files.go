package testing

import (
	"os"
	"testing"
)

// TempDir creates a temporary directory and returns its path along with a
// cleanup function to call via defer.
func TempDir(t *testing.T) (string, func()) {
	tmpDir, err := os.MkdirTemp("", "")
	Ok(t, err)
	return tmpDir, func() {
		os.RemoveAll(tmpDir) // nolint: errcheck
	}
}
