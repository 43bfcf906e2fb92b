package sample

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func mkSamples(t *testing.T, root string, names ...string) {
	t.Helper()
	for _, n := range names {
		assert.NoError(t, os.MkdirAll(filepath.Join(root, n), 0777))
	}
}

func TestResolvePattern(t *testing.T) {
	root := t.TempDir()
	mkSamples(t, root, "sample01", "sample02", "notasample")
	dirs, err := Resolve(nil, "", []string{root})
	assert.NoError(t, err)
	assert.EQ(t, len(dirs), 2)
	expect.EQ(t, dirs[0].Name, "sample01")
	expect.EQ(t, dirs[1].Name, "sample02")
}

func TestResolveExplicitDirs(t *testing.T) {
	root := t.TempDir()
	mkSamples(t, root, "sample01", "sample02")
	// An explicit list wins over the pattern, keeps order by path, and
	// deduplicates.
	s2 := filepath.Join(root, "sample02")
	dirs, err := Resolve([]string{s2, s2}, "", []string{root})
	assert.NoError(t, err)
	assert.EQ(t, len(dirs), 1)
	expect.EQ(t, dirs[0].Name, "sample02")

	_, err = Resolve([]string{filepath.Join(root, "sample99")}, "", nil)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestResolveNothing(t *testing.T) {
	_, err := Resolve(nil, "", []string{t.TempDir()})
	expect.True(t, err != nil)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestGlobOne(t *testing.T) {
	root := t.TempDir()
	mkSamples(t, root, "sample03")
	d := Dir{Name: "sample03", Path: filepath.Join(root, "sample03")}

	_, err := d.GlobOne("seg/*.nii.gz")
	expect.True(t, errors.Is(errors.NotExist, err))

	assert.NoError(t, os.MkdirAll(d.Join("seg"), 0777))
	assert.NoError(t, os.WriteFile(d.Join("seg", "a.nii.gz"), nil, 0666))
	got, err := d.GlobOne("seg/*.nii.gz")
	assert.NoError(t, err)
	expect.EQ(t, got, d.Join("seg", "a.nii.gz"))

	assert.NoError(t, os.WriteFile(d.Join("seg", "b.nii.gz"), nil, 0666))
	_, err = d.GlobOne("seg/*.nii.gz")
	expect.True(t, err != nil)
	expect.False(t, errors.Is(errors.NotExist, err))
}

func TestMetadataRoundTrip(t *testing.T) {
	md := Metadata{Width: 10184, Height: 15456, Depth: 900, XYVoxelUM: 0.579, ZVoxelUM: 4.0}
	path := filepath.Join(t.TempDir(), "parameters", "metadata.txt")
	assert.NoError(t, md.Write(path))
	got, err := ReadMetadata(path)
	assert.NoError(t, err)
	expect.EQ(t, got, md)
}

func TestMetadataMissing(t *testing.T) {
	_, err := ReadMetadata(filepath.Join(t.TempDir(), "parameters", "metadata.txt"))
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestMetadataMalformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metadata.txt")
	assert.NoError(t, os.WriteFile(path, []byte("Width: 100 um (10)\n"), 0666))
	_, err := ReadMetadata(path)
	expect.True(t, err != nil)
	expect.False(t, errors.Is(errors.NotExist, err))
}
