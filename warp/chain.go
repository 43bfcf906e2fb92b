// Package warp moves images between atlas space and native tissue space.
//
// Registration itself is external: ANTs has already produced a 3-stage
// transform chain (initial affine alignment, learned affine, deformation
// field) under a reg_outputs directory with conventional file names.  This
// package assembles the correct transform list for a direction and shells
// out to antsApplyTransforms for the resampling; the pure-Go part is the
// arithmetic that reverses the resample/pad/reorient prep chain (dims.go).
package warp

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
)

// Direction selects which way through the transform chain an image moves.
type Direction int

const (
	// ToAtlas maps native tissue space into the atlas grid.
	ToAtlas Direction = iota
	// ToNativeDir maps atlas space back onto the (registration-resolution,
	// padded) tissue grid; reversing the prep chain afterwards is ToNative's
	// job.
	ToNativeDir
)

// Transform is one stage of an ANTs transform chain.
type Transform struct {
	Path   string
	Invert bool
}

// Conventional reg_outputs file names, relative to the registration prefix.
const (
	warpSuffix    = "1Warp.nii.gz"
	invWarpSuffix = "1InverseWarp.nii.gz"
	affineSuffix  = "0GenericAffine.mat"
	initSuffix    = "init_tform.mat"
)

// Chain assembles the transform list for the given direction from a
// reg_outputs directory and prefix.
//
// Forward (to atlas): warp field, learned affine, init affine, none
// inverted.  Inverse (to native): init affine and learned affine inverted,
// then the inverse warp field, matching ANTs' inversion semantics (a
// deformation field is never flag-inverted; its precomputed inverse is a
// separate file).
func Chain(regDir, prefix string, dir Direction) ([]Transform, error) {
	p := func(suffix string) string { return filepath.Join(regDir, prefix+suffix) }
	if _, err := os.Stat(p(warpSuffix)); err != nil {
		return nil, errors.E(errors.NotExist, "deformation field missing:", p(warpSuffix))
	}
	switch dir {
	case ToAtlas:
		return []Transform{
			{Path: p(warpSuffix)},
			{Path: p(affineSuffix)},
			{Path: p(initSuffix)},
		}, nil
	case ToNativeDir:
		if _, err := os.Stat(p(invWarpSuffix)); err != nil {
			return nil, errors.E(errors.NotExist, "inverse deformation field missing:", p(invWarpSuffix))
		}
		return []Transform{
			{Path: p(initSuffix), Invert: true},
			{Path: p(affineSuffix), Invert: true},
			{Path: p(invWarpSuffix)},
		}, nil
	}
	return nil, errors.E(errors.Invalid, "unknown warp direction")
}

// Interpolation names accepted by antsApplyTransforms.  NearestNeighbor is
// the default for label images; anything else corrupts cluster IDs.
const (
	InterpNearest = "NearestNeighbor"
	InterpLinear  = "Linear"
	InterpBSpline = "BSpline"
)

// Apply runs antsApplyTransforms over the chain.  moving is resampled onto
// fixed's grid and written to out.  A zero timeout means no timeout; on
// timeout the returned error has kind errors.Timeout and the caller treats
// the warp as having produced no result.
func Apply(ctx context.Context, chain []Transform, moving, fixed, out, interp string, timeout time.Duration) error {
	if interp == "" {
		interp = InterpNearest
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	args := []string{
		"-d", "3",
		"-i", moving,
		"-r", fixed,
		"-o", out,
		"-n", interp,
	}
	for _, t := range chain {
		if t.Invert {
			args = append(args, "-t", fmt.Sprintf("[%s,1]", t.Path))
		} else {
			args = append(args, "-t", t.Path)
		}
	}
	log.Printf("warp: antsApplyTransforms %s", strings.Join(args, " "))
	cmd := exec.CommandContext(ctx, "antsApplyTransforms", args...)
	cmd.Stdout = os.Stderr
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return errors.E(errors.Timeout, "antsApplyTransforms timed out after", timeout.String())
		}
		return errors.E(err, "antsApplyTransforms failed for", moving)
	}
	return nil
}
