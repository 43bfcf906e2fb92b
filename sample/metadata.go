package sample

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/grailbio/base/errors"
)

// Metadata holds the full-resolution image geometry recorded by the
// acquisition-side tooling in parameters/metadata.txt.  Every script that
// needs to map registration-resolution results back onto the raw voxel grid
// reads this file; it is the only durable record of the original dimensions.
type Metadata struct {
	// Width, Height, Depth are the full-resolution voxel counts along x, y, z.
	Width, Height, Depth int
	// XYVoxelUM and ZVoxelUM are the voxel sizes in microns.  Lateral (x/y)
	// size is isotropic by convention.
	XYVoxelUM float64
	ZVoxelUM  float64
}

// The sidecar is plaintext with a fixed line shape, e.g.
//
//	Width: 5896.16 um (10184)
//	Height: 8949.84 um (15456)
//	Depth: 3600.00 um (900)
//	Voxel size: 0.579x0.579x4.0 micron^3
//
// Physical extents before the parenthesized voxel counts are informational;
// only the counts and the voxel-size line are parsed.
var (
	widthRe  = regexp.MustCompile(`(?m)^Width:.*\((\d+)\)`)
	heightRe = regexp.MustCompile(`(?m)^Height:.*\((\d+)\)`)
	depthRe  = regexp.MustCompile(`(?m)^Depth:.*\((\d+)\)`)
	voxelRe  = regexp.MustCompile(`Voxel size: ([0-9.]+)x([0-9.]+)x([0-9.]+) micron\^3`)
)

// ReadMetadata parses a metadata sidecar.  A missing file is errors.NotExist;
// commands decide whether that skips the sample or aborts (it never
// terminates the process from inside this package).
func ReadMetadata(path string) (Metadata, error) {
	var md Metadata
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return md, errors.E(errors.NotExist, "metadata sidecar:", path)
		}
		return md, errors.E(err, "reading metadata sidecar:", path)
	}
	text := string(data)
	dims := []struct {
		re   *regexp.Regexp
		dst  *int
		name string
	}{
		{widthRe, &md.Width, "Width"},
		{heightRe, &md.Height, "Height"},
		{depthRe, &md.Depth, "Depth"},
	}
	for _, d := range dims {
		m := d.re.FindStringSubmatch(text)
		if m == nil {
			return md, errors.E(errors.Invalid, d.name, "line missing in", path)
		}
		*d.dst, _ = strconv.Atoi(m[1])
	}
	m := voxelRe.FindStringSubmatch(text)
	if m == nil {
		return md, errors.E(errors.Invalid, "Voxel size line missing in", path)
	}
	x, _ := strconv.ParseFloat(m[1], 64)
	y, _ := strconv.ParseFloat(m[2], 64)
	z, _ := strconv.ParseFloat(m[3], 64)
	if x != y {
		return md, errors.E(errors.Invalid, "anisotropic x/y voxel size in", path)
	}
	md.XYVoxelUM = x
	md.ZVoxelUM = z
	return md, nil
}

// Write emits the sidecar in the exact line format ReadMetadata parses.
func (md Metadata) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0777); err != nil {
		return errors.E(err, "creating metadata dir for:", path)
	}
	body := fmt.Sprintf(
		"Width: %.2f um (%d)\nHeight: %.2f um (%d)\nDepth: %.2f um (%d)\nVoxel size: %gx%gx%g micron^3\n",
		float64(md.Width)*md.XYVoxelUM, md.Width,
		float64(md.Height)*md.XYVoxelUM, md.Height,
		float64(md.Depth)*md.ZVoxelUM, md.Depth,
		md.XYVoxelUM, md.XYVoxelUM, md.ZVoxelUM)
	if err := os.WriteFile(path, []byte(body), 0666); err != nil {
		return errors.E(err, "writing metadata sidecar:", path)
	}
	return nil
}
