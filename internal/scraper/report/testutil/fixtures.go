// Package testutil loads the HTML fixtures captured from each portal.
package testutil

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

// fixturePath resolves <report>/<portal>/testdata/fixtures/<name>.html
// relative to this file.
func fixturePath(portal, name string) string {
	_, filename, _, _ := runtime.Caller(0)
	baseDir := filepath.Dir(filepath.Dir(filename)) // up to report/

	return filepath.Join(baseDir, portal, "testdata", "fixtures", name+".html")
}

// LoadFixture reads an HTML fixture of the given portal package.
func LoadFixture(t *testing.T, portal, name string) string {
	t.Helper()

	data, err := os.ReadFile(fixturePath(portal, name))
	if err != nil {
		t.Fatalf("Failed to load fixture %s/%s: %v", portal, name, err)
	}

	return string(data)
}
