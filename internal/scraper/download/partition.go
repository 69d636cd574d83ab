package download

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// PartitionPrefix marks per-session download directories under the shared
// download root. Snapshots skip dot-prefixed names, so partitions are never
// mistaken for downloads.
const PartitionPrefix = ".partition-"

// Partition is a private download directory for one browser session.
type Partition struct {
	Root string
	Dir  string
}

// NewPartition creates <root>/.partition-<uuid>.
func NewPartition(root string) (*Partition, error) {
	dir := filepath.Join(root, PartitionPrefix+uuid.NewString())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create download partition: %w", err)
	}
	return &Partition{Root: root, Dir: dir}, nil
}

// PromoteTo moves a completed download into dir. An empty name keeps the
// browser's file name, with a suffix when dir already holds one.
func (p *Partition) PromoteTo(res Result, dir, name string) (Result, error) {
	if name == "" {
		name = UniqueName(dir, filepath.Base(res.Path))
	}
	path, err := Promote(res.Path, dir, name)
	if err != nil {
		return res, err
	}
	res.Path = path
	return res, nil
}

// Remove deletes the partition if it is empty. Leftovers (for example
// abandoned transfer markers) are kept for inspection.
func (p *Partition) Remove() error {
	err := os.Remove(p.Dir)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove download partition: %w", err)
	}
	return nil
}
