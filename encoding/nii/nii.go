// Package nii reads and writes NIfTI-1 label volumes as voxel.Volumes.
//
// The heavy lifting is done by github.com/KyungWonPark/nifti; this package
// adds the conventions the pipeline relies on: label data is int32, voxel
// sizes are carried in microns (NIfTI pixdim is millimeters), and
// floating-point data read from disk is snapped to integer labels the same
// way warped cluster indices are.
package nii

import (
	"os"
	"strings"

	"github.com/KyungWonPark/nifti"
	"github.com/grailbio/base/errors"

	"github.com/b-heifets/unravel/voxel"
)

const umPerMM = 1000.0

// SnapToLabel converts an interpolated floating-point voxel value to an
// integer label: round to nearest (half away from zero), and clamp negatives
// to zero when the destination is unsigned.  Spline interpolation can
// produce small negative overshoots next to label boundaries; for unsigned
// label images those are noise, not data.
func SnapToLabel(f float64, unsigned bool) int32 {
	var v int32
	if f >= 0 {
		v = int32(f + 0.5)
	} else {
		v = int32(f - 0.5)
	}
	if unsigned && v < 0 {
		return 0
	}
	return v
}

// Read loads a .nii or .nii.gz label volume.  Floating-point voxel data is
// snapped with SnapToLabel (signed semantics).  A missing file is reported
// as errors.NotExist so samples can be skipped rather than aborting a batch.
func Read(path string) (*voxel.Volume, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, errors.E(errors.NotExist, "nifti volume:", path)
		}
		return nil, errors.E(err, "nifti volume:", path)
	}
	var img nifti.Nifti1Image
	img.LoadImage(path, true)

	hdr := img.GetHeader()
	nx, ny, nz := int(hdr.Dim[1]), int(hdr.Dim[2]), int(hdr.Dim[3])
	if nx <= 0 || ny <= 0 || nz <= 0 {
		return nil, errors.E(errors.Invalid, "bad nifti dimensions:", path)
	}
	v := voxel.New(nx, ny, nz)
	for i := 0; i < 3; i++ {
		v.VoxelUM[i] = float64(hdr.Pixdim[i+1]) * umPerMM
	}
	for z := 0; z < nz; z++ {
		for y := 0; y < ny; y++ {
			for x := 0; x < nx; x++ {
				f := img.GetAt(uint32(x), uint32(y), uint32(z), 0)
				v.Set(x, y, z, SnapToLabel(float64(f), false))
			}
		}
	}
	return v, nil
}

// ReadSubvolume loads path and returns only the region covered by box.
//
// The original pipeline used a partial on-disk read here; we load the whole
// volume and crop.  The crop still bounds the memory held for the rest of
// the per-cluster work.
func ReadSubvolume(path string, box voxel.Box) (*voxel.Volume, error) {
	v, err := Read(path)
	if err != nil {
		return nil, err
	}
	if box.X1 > v.Nx || box.Y1 > v.Ny || box.Z1 > v.Nz || box.X0 < 0 || box.Y0 < 0 || box.Z0 < 0 {
		return nil, errors.E(errors.Invalid, "subvolume box exceeds image bounds:", path)
	}
	return v.Crop(box), nil
}

// Write saves v to path (.nii or .nii.gz by extension).  When headerTemplate
// is nonempty its NIfTI header is copied before the dimensions are reset;
// this preserves the affine so atlas-space outputs stay registered.  Voxel
// sizes in v are microns and land in the header as millimeters.
func Write(path string, v *voxel.Volume, headerTemplate string) error {
	img := nifti.NewImg(v.Nx, v.Ny, v.Nz, 1)
	hdr := img.GetHeader()
	if headerTemplate != "" {
		if _, err := os.Stat(headerTemplate); err != nil {
			return errors.E(errors.NotExist, "nifti header template:", headerTemplate)
		}
		// Keep the template's affine but not its geometry: the dims and
		// bitpix from NewImg describe the data we are about to write.
		fresh := hdr
		hdr.LoadHeader(headerTemplate)
		hdr.Dim = fresh.Dim
		hdr.Bitpix = fresh.Bitpix
	}
	for i := 0; i < 3; i++ {
		hdr.Pixdim[i+1] = float32(v.VoxelUM[i] / umPerMM)
	}
	img.SetNewHeader(hdr)
	for z := 0; z < v.Nz; z++ {
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				img.SetAt(uint32(x), uint32(y), uint32(z), 0, float32(v.At(x, y, z)))
			}
		}
	}
	// Save always gzip-compresses to its argument plus ".gz".
	if isGz(path) {
		img.Save(strings.TrimSuffix(path, ".gz"))
		return nil
	}
	img.Save(path)
	return gunzipFile(path+".gz", path)
}
