package nii

import (
	"path/filepath"
	"testing"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/b-heifets/unravel/voxel"
)

func TestSnapToLabel(t *testing.T) {
	expect.EQ(t, SnapToLabel(2.4, false), int32(2))
	expect.EQ(t, SnapToLabel(2.5, false), int32(3))
	expect.EQ(t, SnapToLabel(0.0, false), int32(0))
	expect.EQ(t, SnapToLabel(-0.4, false), int32(0))
	expect.EQ(t, SnapToLabel(-0.6, false), int32(-1))
	// Unsigned targets clamp interpolation overshoot to background.
	expect.EQ(t, SnapToLabel(-0.6, true), int32(0))
	expect.EQ(t, SnapToLabel(-3.2, true), int32(0))
}

func TestReadMissing(t *testing.T) {
	_, err := Read(filepath.Join(t.TempDir(), "nope.nii.gz"))
	expect.True(t, err != nil)
	expect.True(t, errors.Is(errors.NotExist, err))
}

func TestWriteReadRoundTrip(t *testing.T) {
	v := voxel.New(6, 5, 4)
	v.VoxelUM = [3]float64{25, 25, 25}
	v.Set(1, 2, 3, 42)
	v.Set(5, 4, 0, 7)

	path := filepath.Join(t.TempDir(), "labels.nii")
	assert.NoError(t, Write(path, v, ""))

	got, err := Read(path)
	assert.NoError(t, err)
	expect.EQ(t, got.Nx, 6)
	expect.EQ(t, got.Ny, 5)
	expect.EQ(t, got.Nz, 4)
	expect.EQ(t, got.At(1, 2, 3), int32(42))
	expect.EQ(t, got.At(5, 4, 0), int32(7))
	expect.EQ(t, got.CountNonzero(), 2)
}

func TestWriteReadGzip(t *testing.T) {
	v := voxel.New(3, 3, 3)
	v.VoxelUM = [3]float64{500, 500, 500}
	v.Set(1, 1, 1, 11)
	path := filepath.Join(t.TempDir(), "labels.nii.gz")
	assert.NoError(t, Write(path, v, ""))
	got, err := Read(path)
	assert.NoError(t, err)
	expect.EQ(t, got.At(1, 1, 1), int32(11))
	expect.EQ(t, got.VoxelUM, [3]float64{500, 500, 500})
}

func TestWriteHeaderTemplateKeepsGeometry(t *testing.T) {
	dir := t.TempDir()
	// Template with different dims and voxel size than the data.
	tpl := voxel.New(4, 4, 4)
	tpl.VoxelUM = [3]float64{250, 250, 250}
	tplPath := filepath.Join(dir, "template.nii")
	assert.NoError(t, Write(tplPath, tpl, ""))

	v := voxel.New(6, 5, 4)
	v.VoxelUM = [3]float64{500, 500, 500}
	v.Set(2, 3, 1, 9)
	path := filepath.Join(dir, "labels.nii.gz")
	assert.NoError(t, Write(path, v, tplPath))

	got, err := Read(path)
	assert.NoError(t, err)
	expect.EQ(t, got.Nx, 6)
	expect.EQ(t, got.Ny, 5)
	expect.EQ(t, got.Nz, 4)
	expect.EQ(t, got.VoxelUM, [3]float64{500, 500, 500})
	expect.EQ(t, got.At(2, 3, 1), int32(9))
}

func TestReadSubvolume(t *testing.T) {
	v := voxel.New(8, 8, 8)
	v.Set(3, 3, 3, 5)
	path := filepath.Join(t.TempDir(), "sub.nii")
	assert.NoError(t, Write(path, v, ""))

	box := voxel.Box{X0: 2, X1: 5, Y0: 2, Y1: 5, Z0: 2, Z1: 5}
	got, err := ReadSubvolume(path, box)
	assert.NoError(t, err)
	expect.EQ(t, got.Nx, 3)
	expect.EQ(t, got.At(1, 1, 1), int32(5))

	_, err = ReadSubvolume(path, voxel.Box{X1: 99, Y1: 1, Z1: 1})
	expect.True(t, err != nil)
}
