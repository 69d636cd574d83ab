package download

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPromote(t *testing.T) {
	src := filepath.Join(t.TempDir(), "export.csv")
	writeFile(t, src, "data")
	dst := t.TempDir()

	path, err := Promote(src, dst, "SIT_LZ_CALLDETAIL.csv")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dst, "SIT_LZ_CALLDETAIL.csv"), path)
	_, err = os.Stat(src)
	assert.True(t, os.IsNotExist(err))
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "data", string(got))
}

func TestPromote_ReplacesExisting(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "new.csv")
	writeFile(t, src, "new")
	writeFile(t, filepath.Join(dir, "out.csv"), "old")

	path, err := Promote(src, dir, "out.csv")

	require.NoError(t, err)
	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
}

func TestPromote_MissingSource(t *testing.T) {
	_, err := Promote(filepath.Join(t.TempDir(), "gone.csv"), t.TempDir(), "x.csv")
	assert.Error(t, err)
}

func TestUniqueName(t *testing.T) {
	dir := t.TempDir()
	assert.Equal(t, "a.csv", UniqueName(dir, "a.csv"))

	writeFile(t, filepath.Join(dir, "a.csv"), "1")
	writeFile(t, filepath.Join(dir, "a_1.csv"), "1")
	assert.Equal(t, "a_2.csv", UniqueName(dir, "a.csv"))
}

func TestPartition(t *testing.T) {
	root := t.TempDir()

	p, err := NewPartition(root)
	require.NoError(t, err)
	assert.Equal(t, root, filepath.Dir(p.Dir))
	assert.Contains(t, filepath.Base(p.Dir), PartitionPrefix)

	other, err := NewPartition(root)
	require.NoError(t, err)
	assert.NotEqual(t, p.Dir, other.Dir)

	src := filepath.Join(p.Dir, "campaign.csv")
	writeFile(t, src, "x")
	writeFile(t, filepath.Join(root, "campaign.csv"), "taken")

	res, err := p.PromoteTo(Result{Path: src, Size: 1}, root, "")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "campaign_1.csv"), res.Path)

	require.NoError(t, p.Remove())
	_, err = os.Stat(p.Dir)
	assert.True(t, os.IsNotExist(err))

	writeFile(t, filepath.Join(other.Dir, "left.csv"+MarkerSuffix), "")
	assert.Error(t, other.Remove())
}

func TestPartition_PromoteTo(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	p, err := NewPartition(root)
	require.NoError(t, err)

	src := filepath.Join(p.Dir, "Generali_Alt.csv")
	writeFile(t, src, "x")

	res, err := p.PromoteTo(Result{Path: src, Size: 1}, out, "")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "Generali_Alt.csv"), res.Path)
	assert.Equal(t, int64(1), res.Size)
	assert.NoFileExists(t, src)
}

func TestPartition_PromoteTo_NamedReplacesExisting(t *testing.T) {
	root, out := t.TempDir(), t.TempDir()
	p, err := NewPartition(root)
	require.NoError(t, err)

	src := filepath.Join(p.Dir, "calls_detail_123.csv")
	writeFile(t, src, "new")
	writeFile(t, filepath.Join(out, "SIT_LZ_CALLDETAIL.csv"), "old")

	res, err := p.PromoteTo(Result{Path: src, Size: 3}, out, "SIT_LZ_CALLDETAIL.csv")

	require.NoError(t, err)
	assert.Equal(t, filepath.Join(out, "SIT_LZ_CALLDETAIL.csv"), res.Path)
	data, err := os.ReadFile(res.Path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}
