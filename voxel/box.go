package voxel

import (
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
)

// Box is an axis-aligned bounding box in voxel-index space, half-open on the
// max side of each axis.
type Box struct {
	X0, X1, Y0, Y1, Z0, Z1 int
}

// Dx returns the box extent along x.
func (b Box) Dx() int { return b.X1 - b.X0 }

// Dy returns the box extent along y.
func (b Box) Dy() int { return b.Y1 - b.Y0 }

// Dz returns the box extent along z.
func (b Box) Dz() int { return b.Z1 - b.Z0 }

// NumVoxels returns the number of voxels covered by the box.
func (b Box) NumVoxels() int { return b.Dx() * b.Dy() * b.Dz() }

// Empty reports whether the box covers no voxels.  BoundingBox returns the
// zero Box when nothing matches, so callers that care about "no match" must
// check this before using the box.
func (b Box) Empty() bool { return b.Dx() <= 0 || b.Dy() <= 0 || b.Dz() <= 0 }

// Shift translates b (expressed in the local coordinates of a crop) back into
// the frame the crop was taken from: both ends of every axis get the outer
// crop's start added.
//
// Precondition: outer is the exact box that was cropped before b was
// computed, with the same x,y,z axis order.  Nothing here can detect a
// mismatched crop history; a wrong outer yields a plausible-looking but
// incorrect result.
func (b Box) Shift(outer Box) Box {
	return Box{
		X0: outer.X0 + b.X0, X1: outer.X0 + b.X1,
		Y0: outer.Y0 + b.Y0, Y1: outer.Y0 + b.Y1,
		Z0: outer.Z0 + b.Z0, Z1: outer.Z0 + b.Z1,
	}
}

// String formats the box in the sidecar-file syntax:
// "{x0}:{x1}, {y0}:{y1}, {z0}:{z1}".
func (b Box) String() string {
	return fmt.Sprintf("%d:%d, %d:%d, %d:%d", b.X0, b.X1, b.Y0, b.Y1, b.Z0, b.Z1)
}

// ParseBox parses the String format.
func ParseBox(s string) (Box, error) {
	var b Box
	parts := strings.Split(strings.TrimSpace(s), ",")
	if len(parts) != 3 {
		return b, errors.E(errors.Invalid, "malformed bounding box:", s)
	}
	dst := [3][2]*int{{&b.X0, &b.X1}, {&b.Y0, &b.Y1}, {&b.Z0, &b.Z1}}
	for i, p := range parts {
		if _, err := fmt.Sscanf(strings.TrimSpace(p), "%d:%d", dst[i][0], dst[i][1]); err != nil {
			return Box{}, errors.E(errors.Invalid, err, "malformed bounding box:", s)
		}
	}
	return b, nil
}

// WriteBoxFile persists b to path in the String format, with a trailing
// newline.
func WriteBoxFile(path string, b Box) error {
	if err := os.WriteFile(path, []byte(b.String()+"\n"), 0666); err != nil {
		return errors.E(err, "writing bounding box file:", path)
	}
	return nil
}

// ReadBoxFile reads a box previously written by WriteBoxFile.
func ReadBoxFile(path string) (Box, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Box{}, errors.E(errors.NotExist, err, "bounding box file:", path)
		}
		return Box{}, errors.E(err, "reading bounding box file:", path)
	}
	return ParseBox(string(data))
}

// FullBox returns the box covering all of v.
func FullBox(v *Volume) Box {
	return Box{X1: v.Nx, Y1: v.Ny, Z1: v.Nz}
}

// BoundingBox computes the minimal box enclosing the voxels of v equal to
// label, or any nonzero voxel when label is 0.
//
// Implementation: one pass fills a boolean projection per axis (an "any"
// reduction over the other two axes), then the first and last true entries of
// each projection give the box.  When nothing matches, the zero Box is
// returned; callers must treat Empty() explicitly rather than expect an
// error.
func BoundingBox(v *Volume, label int32) Box {
	px := make([]bool, v.Nx)
	py := make([]bool, v.Ny)
	pz := make([]bool, v.Nz)
	any := false
	i := 0
	for z := 0; z < v.Nz; z++ {
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				d := v.Data[i]
				i++
				if d == 0 || (label != 0 && d != label) {
					continue
				}
				px[x], py[y], pz[z] = true, true, true
				any = true
			}
		}
	}
	if !any {
		return Box{}
	}
	first := func(p []bool) int {
		for i, t := range p {
			if t {
				return i
			}
		}
		return 0
	}
	last := func(p []bool) int {
		for i := len(p) - 1; i >= 0; i-- {
			if p[i] {
				return i + 1
			}
		}
		return 0
	}
	return Box{
		X0: first(px), X1: last(px),
		Y0: first(py), Y1: last(py),
		Z0: first(pz), Z1: last(pz),
	}
}
