package download

import (
	"fmt"
	"os"
	"path/filepath"
)

// Promote moves src into dir under name with a single rename, so readers of
// dir never observe a partially written file. An existing file with that name
// is replaced. The new path is returned.
func Promote(src, dir, name string) (string, error) {
	if name == "" {
		name = filepath.Base(src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create %s: %w", dir, err)
	}
	dst := filepath.Join(dir, name)
	if filepath.Clean(src) == filepath.Clean(dst) {
		return dst, nil
	}
	if err := os.Rename(src, dst); err != nil {
		return "", fmt.Errorf("rename %s to %s: %w", src, dst, err)
	}
	return dst, nil
}

// UniqueName returns name, or name with a numeric suffix before the extension
// when dir already holds a file of that name.
func UniqueName(dir, name string) string {
	if _, err := os.Stat(filepath.Join(dir, name)); os.IsNotExist(err) {
		return name
	}
	ext := filepath.Ext(name)
	stem := name[:len(name)-len(ext)]
	for i := 1; ; i++ {
		candidate := fmt.Sprintf("%s_%d%s", stem, i, ext)
		if _, err := os.Stat(filepath.Join(dir, candidate)); os.IsNotExist(err) {
			return candidate
		}
	}
}
