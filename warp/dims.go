package warp

import (
	"math"

	"github.com/grailbio/base/errors"

	"github.com/b-heifets/unravel/sample"
	"github.com/b-heifets/unravel/voxel"
)

// Dims is a voxel-grid extent along x, y, z.
type Dims struct {
	X, Y, Z int
}

// PadPlan records what the registration prep did to a full-resolution
// volume: resample to the registration resolution, then pad each axis by a
// fraction of its resampled extent on both sides.  Keeping the plan around
// is what lets ToNative undo the chain exactly instead of guessing from the
// padded image alone.
type PadPlan struct {
	Resampled Dims
	Pad       Dims
	Padded    Dims
}

// DefaultPadFraction is the 15% symmetric pad applied during registration
// prep.
const DefaultPadFraction = 0.15

func round(f float64) int { return int(math.Round(f)) }

// ResamplePad computes the registration-prep geometry for a full-resolution
// volume: orig voxel counts at xyUM/zUM microns, resampled to an isotropic
// targetUM grid, padded by padFrac per side.
//
// Padded - 2*Pad recovers Resampled with no residual; that identity is what
// the unpad crop in ToNative relies on.
func ResamplePad(orig Dims, xyUM, zUM, targetUM, padFrac float64) PadPlan {
	var p PadPlan
	p.Resampled = Dims{
		X: round(float64(orig.X) * xyUM / targetUM),
		Y: round(float64(orig.Y) * xyUM / targetUM),
		Z: round(float64(orig.Z) * zUM / targetUM),
	}
	p.Pad = Dims{
		X: round(float64(p.Resampled.X) * padFrac),
		Y: round(float64(p.Resampled.Y) * padFrac),
		Z: round(float64(p.Resampled.Z) * padFrac),
	}
	p.Padded = Dims{
		X: p.Resampled.X + 2*p.Pad.X,
		Y: p.Resampled.Y + 2*p.Pad.Y,
		Z: p.Resampled.Z + 2*p.Pad.Z,
	}
	return p
}

// PlanFromMetadata builds the prep plan for a sample's recorded
// full-resolution geometry.
func PlanFromMetadata(md sample.Metadata, targetUM, padFrac float64) PadPlan {
	return ResamplePad(Dims{X: md.Width, Y: md.Height, Z: md.Depth},
		md.XYVoxelUM, md.ZVoxelUM, targetUM, padFrac)
}

// UnpadBox returns the box, in the padded frame, covering the resampled
// region.
func (p PadPlan) UnpadBox() voxel.Box {
	return voxel.Box{
		X0: p.Pad.X, X1: p.Pad.X + p.Resampled.X,
		Y0: p.Pad.Y, Y1: p.Pad.Y + p.Resampled.Y,
		Z0: p.Pad.Z, Z1: p.Pad.Z + p.Resampled.Z,
	}
}

// Reorient applies the axis convention of MIRACL-prepared registration
// inputs: x and z are swapped, then the new z axis is mirrored.
func Reorient(v *voxel.Volume) *voxel.Volume {
	out := voxel.New(v.Nz, v.Ny, v.Nx)
	out.VoxelUM = [3]float64{v.VoxelUM[2], v.VoxelUM[1], v.VoxelUM[0]}
	for z := 0; z < out.Nz; z++ {
		for y := 0; y < out.Ny; y++ {
			for x := 0; x < out.Nx; x++ {
				out.Set(x, y, z, v.At(out.Nz-1-z, y, x))
			}
		}
	}
	return out
}

// UnReorient is the exact inverse of Reorient.
func UnReorient(v *voxel.Volume) *voxel.Volume {
	out := voxel.New(v.Nz, v.Ny, v.Nx)
	out.VoxelUM = [3]float64{v.VoxelUM[2], v.VoxelUM[1], v.VoxelUM[0]}
	for z := 0; z < v.Nz; z++ {
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				out.Set(out.Nx-1-z, y, x, v.At(x, y, z))
			}
		}
	}
	return out
}

// RescaleNearest resamples v onto a dims grid by nearest-neighbor index
// mapping.  Labels pass through unchanged, which is the only safe choice
// for cluster indices.
func RescaleNearest(v *voxel.Volume, dims Dims, voxelUM [3]float64) *voxel.Volume {
	out := voxel.New(dims.X, dims.Y, dims.Z)
	out.VoxelUM = voxelUM
	for z := 0; z < dims.Z; z++ {
		sz := z * v.Nz / dims.Z
		for y := 0; y < dims.Y; y++ {
			sy := y * v.Ny / dims.Y
			for x := 0; x < dims.X; x++ {
				sx := x * v.Nx / dims.X
				out.Set(x, y, z, v.At(sx, sy, sz))
			}
		}
	}
	return out
}

// ToNative reverses the registration prep chain on a volume that
// antsApplyTransforms has already pulled back to the padded
// registration-resolution grid: unpad, optionally undo the MIRACL
// reorientation, then rescale to the full-resolution grid recorded in the
// sample metadata.
func ToNative(v *voxel.Volume, plan PadPlan, md sample.Metadata, miracl bool) (*voxel.Volume, error) {
	if miracl {
		// The pad is symmetric per axis, so undoing the reorientation before
		// the unpad crop is equivalent to cropping in registration space.
		v = UnReorient(v)
	}
	if v.Nx != plan.Padded.X || v.Ny != plan.Padded.Y || v.Nz != plan.Padded.Z {
		return nil, errors.E(errors.Invalid,
			"warped volume does not match the padded registration grid")
	}
	out := v.Crop(plan.UnpadBox())
	native := RescaleNearest(out, Dims{X: md.Width, Y: md.Height, Z: md.Depth},
		[3]float64{md.XYVoxelUM, md.XYVoxelUM, md.ZVoxelUM})
	return native, nil
}
