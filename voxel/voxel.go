// Package voxel provides the 3-D labeled-volume type shared by the
// cluster-validation pipeline, plus bounding-box geometry for moving between
// cropped and uncropped coordinate frames.
//
// A Volume stores int32 labels in x-fastest order.  Label 0 is background;
// positive labels identify clusters (in a cluster index) or segmented objects
// (in a segmentation).  Voxel size is carried in microns per axis so that
// physical volumes can be reported in mm^3 without consulting the NIfTI
// header again.
package voxel

import (
	"github.com/grailbio/base/errors"
)

// Volume is a 3-D integer-labeled image.  Data is laid out x-fastest:
// Data[x + Nx*(y + Ny*z)].
type Volume struct {
	Data       []int32
	Nx, Ny, Nz int
	// VoxelUM is the voxel edge length in microns, per axis (x, y, z).
	VoxelUM [3]float64
}

// New returns a zero-filled volume with the given dimensions and a 1 um
// isotropic voxel size.
func New(nx, ny, nz int) *Volume {
	return &Volume{
		Data:    make([]int32, nx*ny*nz),
		Nx:      nx,
		Ny:      ny,
		Nz:      nz,
		VoxelUM: [3]float64{1, 1, 1},
	}
}

// Index returns the flat index of voxel (x, y, z).
func (v *Volume) Index(x, y, z int) int { return x + v.Nx*(y+v.Ny*z) }

// At returns the label at (x, y, z).
func (v *Volume) At(x, y, z int) int32 { return v.Data[v.Index(x, y, z)] }

// Set assigns the label at (x, y, z).
func (v *Volume) Set(x, y, z int, val int32) { v.Data[v.Index(x, y, z)] = val }

// NumVoxels returns Nx*Ny*Nz.
func (v *Volume) NumVoxels() int { return v.Nx * v.Ny * v.Nz }

// SameShape reports whether o has the same dimensions as v.
func (v *Volume) SameShape(o *Volume) bool {
	return v.Nx == o.Nx && v.Ny == o.Ny && v.Nz == o.Nz
}

// VoxelVolumeMM3 returns the physical volume of one voxel in mm^3.
func (v *Volume) VoxelVolumeMM3() float64 {
	const umPerMM = 1000.0
	return (v.VoxelUM[0] / umPerMM) * (v.VoxelUM[1] / umPerMM) * (v.VoxelUM[2] / umPerMM)
}

// CountNonzero returns the number of voxels with a nonzero label.
func (v *Volume) CountNonzero() int {
	n := 0
	for _, d := range v.Data {
		if d != 0 {
			n++
		}
	}
	return n
}

// Count returns the number of voxels equal to label.
func (v *Volume) Count(label int32) int {
	n := 0
	for _, d := range v.Data {
		if d == label {
			n++
		}
	}
	return n
}

// Crop returns a copy of the sub-volume covered by b.  b must lie within the
// volume bounds.  The voxel size is inherited.
func (v *Volume) Crop(b Box) *Volume {
	out := New(b.Dx(), b.Dy(), b.Dz())
	out.VoxelUM = v.VoxelUM
	for z := b.Z0; z < b.Z1; z++ {
		for y := b.Y0; y < b.Y1; y++ {
			srcRow := v.Index(b.X0, y, z)
			dstRow := out.Index(0, y-b.Y0, z-b.Z0)
			copy(out.Data[dstRow:dstRow+b.Dx()], v.Data[srcRow:srcRow+b.Dx()])
		}
	}
	return out
}

// MaskOutside zeroes every voxel of v whose corresponding voxel in mask does
// not equal label.  The two volumes must share a shape.
func (v *Volume) MaskOutside(mask *Volume, label int32) error {
	if !v.SameShape(mask) {
		return errors.E(errors.Invalid, "mask shape mismatch")
	}
	for i, m := range mask.Data {
		if m != label {
			v.Data[i] = 0
		}
	}
	return nil
}

// Labels returns the sorted distinct positive labels present in v.
func (v *Volume) Labels() []int32 {
	seen := map[int32]bool{}
	for _, d := range v.Data {
		if d > 0 {
			seen[d] = true
		}
	}
	out := make([]int32, 0, len(seen))
	for l := range seen {
		out = append(out, l)
	}
	// Insertion sort; label counts are small.
	for i := 1; i < len(out); i++ {
		for j := i; j > 0 && out[j] < out[j-1]; j-- {
			out[j], out[j-1] = out[j-1], out[j]
		}
	}
	return out
}
