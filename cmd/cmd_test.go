package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTargets(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "targets.txt")
	require.NoError(t, os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := newRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestInspectCountsTargets(t *testing.T) {
	path := writeTargets(t, "https://example.com", "example.org", "", "10.0.0.1", "10.0.0.2:8443")

	out, err := execute(t, "inspect", "-f", path)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 4 targets")
	for _, kind := range []string{"URL", "Domain", "IP", "IP:Port"} {
		assert.Contains(t, out, kind)
	}
}

func TestInspectRequiresFile(t *testing.T) {
	_, err := execute(t, "inspect")
	require.Error(t, err)

	_, err = execute(t, "inspect", "-f", filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCaptureWithPlaceholderBackend(t *testing.T) {
	path := writeTargets(t, "example.com", "10.0.0.1:8080")
	outDir := filepath.Join(t.TempDir(), "shots")
	t.Setenv("WEBSHOT_LOGGING_LEVEL", "error")

	out, err := execute(t, "capture",
		"-f", path,
		"-o", outDir,
		"--backend", "placeholder",
		"--bar=false",
		"-c", "2",
	)
	require.NoError(t, err)
	assert.Contains(t, out, "Found 2 targets")
	assert.Contains(t, out, "Completed! succeeded: 2, failed: 0")

	entries, err := os.ReadDir(outDir)
	require.NoError(t, err)
	var pngs int
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".png") {
			pngs++
		}
	}
	assert.Equal(t, 2, pngs)
	assert.FileExists(t, filepath.Join(outDir, "screenshot_log.csv"))
	assert.FileExists(t, filepath.Join(outDir, "screenshot_log.txt"))
}

func TestCaptureRejectsInvalidConfig(t *testing.T) {
	path := writeTargets(t, "example.com")

	_, err := execute(t, "capture", "-f", path, "--backend", "selenium")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "capture.backend")

	_, err = execute(t, "capture")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "targets.file")
}
