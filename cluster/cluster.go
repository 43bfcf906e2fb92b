// Package cluster implements the cluster-validation pipeline: warp an
// atlas-space cluster index into each sample's native tissue space, crop to
// the occupied region, and measure per-cluster cell counts or label volume
// against an independent segmentation, normalized by cluster volume.
//
// Problem:
// FDR-thresholded statistical maps live in atlas space, but the evidence that
// could validate a cluster (cell segmentation) lives on each sample's raw
// voxel grid, behind a resample/pad/reorient registration prep chain.  The
// pipeline has to move one cluster index per sample across that chain and
// then do per-cluster arithmetic on volumes that are far too large to touch
// more than once.
//
// Implementation strategy:
// Samples are processed sequentially; within a sample the per-cluster work
// (bounding boxes, then densities) is embarrassingly parallel and runs under
// traverse.Each.  Every derived artifact (native index, outer bounds, the
// density table) is checked for existence before it is recomputed, so an
// interrupted batch resumes where it stopped; staleness is managed by
// deleting outputs, not by fingerprinting.  Per-cluster failures never abort
// a sample: each Measurement carries its own error and the caller decides
// whether partial results are acceptable.
package cluster

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/traverse"

	"github.com/b-heifets/unravel/encoding/nii"
	"github.com/b-heifets/unravel/sample"
	"github.com/b-heifets/unravel/voxel"
	"github.com/b-heifets/unravel/warp"
)

// DensityMode selects what is measured inside each cluster.
type DensityMode string

const (
	// CellDensity counts discrete connected components (cells) per mm^3 of
	// cluster.
	CellDensity DensityMode = "cell"
	// LabelDensity measures segmented voxels as a percentage of the cluster
	// volume.
	LabelDensity DensityMode = "label"
)

// Opts configures a validation run.  Relative paths are resolved per sample
// directory.
type Opts struct {
	// MovingImg is the atlas-space cluster index (.nii.gz).
	MovingImg string
	// FixedImg is the registration-resolution reference image for
	// antsApplyTransforms, relative to RegDirRel unless absolute.
	FixedImg string
	// RegDirRel is the reg_outputs directory inside each sample.
	RegDirRel string
	// RegPrefix prefixes the conventional transform file names.
	RegPrefix string
	// SegPattern locates the full-resolution segmentation, as a glob
	// relative to the sample directory.
	SegPattern string
	// Clusters limits validation to these IDs; empty means every label
	// present in the native index.
	Clusters []int32
	// NativeIdxRel caches the warped native-space index inside the sample
	// directory; empty disables the cache.
	NativeIdxRel string
	// OutDirRel receives outer_bounds.txt, per-cluster bounding boxes, and
	// the density table.
	OutDirRel string
	Mode      DensityMode
	// Connectivity for cell counting: 6, 18, or 26.
	Connectivity int
	// Parallelism bounds the per-cluster worker count; 0 means
	// min(GOMAXPROCS, number of clusters).
	Parallelism int
	// TargetResUM is the registration resolution in microns.
	TargetResUM float64
	// PadFrac is the per-side pad fraction applied during registration prep.
	PadFrac float64
	// Miracl indicates the registration inputs used the MIRACL axis
	// convention.
	Miracl bool
	// WarpTimeout bounds each antsApplyTransforms invocation; 0 means none.
	WarpTimeout time.Duration
}

// DefaultOpts holds the values the command-line flags default to.
var DefaultOpts = Opts{
	RegDirRel:    "reg_outputs",
	RegPrefix:    "reg_",
	SegPattern:   "seg_ilastik/*seg*.nii.gz",
	NativeIdxRel: "clusters/native_cluster_index.nii.gz",
	OutDirRel:    "clusters/validation",
	Mode:         CellDensity,
	Connectivity: 6,
	TargetResUM:  50,
	PadFrac:      warp.DefaultPadFraction,
}

// Measurement is the per-(sample, cluster) outcome.  Err is set when this
// cluster's work failed; the rest of the fields are then meaningless.
type Measurement struct {
	Sample  string
	Cluster int32
	// Count is the connected-component count in cell mode and the segmented
	// voxel count in label mode.
	Count            int
	ClusterVolumeMM3 float64
	Density          float64
	// Box is the cluster's bounding box in the uncropped native frame.
	Box voxel.Box
	Err error
}

// SampleResult aggregates one sample's outcome.
type SampleResult struct {
	Sample string
	// Skipped is set when the sample was left untouched (already processed,
	// or a recoverable missing input); Reason says why.
	Skipped bool
	Reason  string

	Measurements []Measurement
	CSVPath      string
}

// Failed returns the cluster IDs whose measurement carries an error.
func (r SampleResult) Failed() []int32 {
	var ids []int32
	for _, m := range r.Measurements {
		if m.Err != nil {
			ids = append(ids, m.Cluster)
		}
	}
	return ids
}

// Validate runs the pipeline over the given sample directories.  Recoverable
// per-sample problems (missing segmentation, missing metadata) skip the
// sample; structural problems (shape mismatches, unreadable volumes) abort
// the batch with an error.
func Validate(ctx context.Context, opts Opts, dirs []sample.Dir) ([]SampleResult, error) {
	if opts.Mode != CellDensity && opts.Mode != LabelDensity {
		return nil, errors.E(errors.Invalid, "unknown density mode:", string(opts.Mode))
	}
	results := make([]SampleResult, 0, len(dirs))
	for i, d := range dirs {
		log.Printf("cluster: sample %s (%d/%d)", d.Name, i+1, len(dirs))
		res, err := validateSample(ctx, opts, d)
		if err != nil {
			return results, err
		}
		if res.Skipped {
			log.Printf("cluster: %s skipped: %s", d.Name, res.Reason)
		}
		results = append(results, res)
	}
	return results, nil
}

func validateSample(ctx context.Context, opts Opts, d sample.Dir) (SampleResult, error) {
	res := SampleResult{Sample: d.Name}
	outDir := d.Join(opts.OutDirRel)
	res.CSVPath = filepath.Join(outDir, d.Name+"_cluster_densities.csv")
	if _, err := os.Stat(res.CSVPath); err == nil {
		res.Skipped = true
		res.Reason = "density table already exists"
		return res, nil
	}
	if err := os.MkdirAll(outDir, 0777); err != nil {
		return res, errors.E(err, "creating output dir:", outDir)
	}

	native, err := nativeIndex(ctx, opts, d)
	if err != nil {
		if errors.Is(errors.NotExist, err) || errors.Is(errors.Timeout, err) {
			res.Skipped = true
			res.Reason = err.Error()
			log.Error.Printf("cluster: %s: %v", d.Name, err)
			return res, nil
		}
		return res, err
	}
	log.Printf("cluster: %s: native index %dx%dx%d, %s labeled voxels",
		d.Name, native.Nx, native.Ny, native.Nz,
		humanize.Comma(int64(native.CountNonzero())))

	// Outer crop: drop the empty space shared by all clusters before any
	// per-cluster work.
	outerPath := filepath.Join(outDir, "outer_bounds.txt")
	outer, err := voxel.ReadBoxFile(outerPath)
	if err != nil {
		if !errors.Is(errors.NotExist, err) {
			return res, err
		}
		outer = voxel.BoundingBox(native, 0)
		if outer.Empty() {
			res.Skipped = true
			res.Reason = "native cluster index has no labeled voxels"
			log.Error.Printf("cluster: %s: %s", d.Name, res.Reason)
			return res, nil
		}
		if err := voxel.WriteBoxFile(outerPath, outer); err != nil {
			return res, err
		}
	}
	cropped := native.Crop(outer)

	ids := opts.Clusters
	if len(ids) == 0 {
		ids = cropped.Labels()
	}
	parallelism := opts.Parallelism
	if parallelism <= 0 {
		parallelism = runtime.GOMAXPROCS(0)
	}
	if parallelism > len(ids) {
		parallelism = len(ids)
	}

	// Phase 1: per-cluster bounding boxes within the outer crop.
	boxes := make([]voxel.Box, len(ids))
	_ = traverse.Limit(parallelism).Each(len(ids), func(i int) error {
		boxes[i] = voxel.BoundingBox(cropped, ids[i])
		return nil
	})
	for i, id := range ids {
		bboxPath := filepath.Join(outDir,
			"bounding_box_"+d.Name+"_cluster_"+itoa(id)+".txt")
		if _, err := os.Stat(bboxPath); os.IsNotExist(err) && !boxes[i].Empty() {
			if err := voxel.WriteBoxFile(bboxPath, boxes[i].Shift(outer)); err != nil {
				return res, err
			}
		}
	}

	// The segmentation is only needed inside the outer box.
	segPath, err := d.GlobOne(opts.SegPattern)
	if err != nil {
		if errors.Is(errors.NotExist, err) {
			res.Skipped = true
			res.Reason = "no segmentation matches " + opts.SegPattern
			log.Error.Printf("cluster: %s: %s", d.Name, res.Reason)
			return res, nil
		}
		return res, err
	}
	seg, err := loadSegmentation(segPath, native, outer)
	if err != nil {
		return res, err
	}

	// Phase 2: per-cluster densities.  Failures stay per-cluster.
	res.Measurements = make([]Measurement, len(ids))
	_ = traverse.Limit(parallelism).Each(len(ids), func(i int) error {
		res.Measurements[i] = measure(d.Name, opts, cropped, seg, outer, ids[i], boxes[i])
		return nil
	})
	for _, id := range res.Failed() {
		log.Error.Printf("cluster: %s: cluster %d failed", d.Name, id)
	}

	if err := writeDensityCSV(ctx, res.CSVPath, opts.Mode, res.Measurements); err != nil {
		return res, err
	}
	log.Printf("cluster: %s: wrote %s (%d clusters, %d failed)",
		d.Name, res.CSVPath, len(ids), len(res.Failed()))
	return res, nil
}

// loadSegmentation reads the segmentation restricted to the outer box after
// checking that its full grid matches the native index grid.  A mismatch is
// a hard error: densities computed off misaligned grids look plausible and
// are worthless.
func loadSegmentation(path string, native *voxel.Volume, outer voxel.Box) (*voxel.Volume, error) {
	seg, err := nii.Read(path)
	if err != nil {
		return nil, err
	}
	if !seg.SameShape(native) {
		return nil, errors.E(errors.Invalid,
			"segmentation shape does not match native cluster index:", path)
	}
	return seg.Crop(outer), nil
}

// nativeIndex returns the cluster index on the sample's native grid, from
// the cache when present, otherwise by warping the atlas-space index through
// the inverse transform chain and reversing the registration prep.
func nativeIndex(ctx context.Context, opts Opts, d sample.Dir) (*voxel.Volume, error) {
	cache := ""
	if opts.NativeIdxRel != "" {
		cache = d.Join(opts.NativeIdxRel)
		if _, err := os.Stat(cache); err == nil {
			return nii.Read(cache)
		}
	}

	md, err := sample.ReadMetadata(d.MetadataPath())
	if err != nil {
		return nil, err
	}
	regDir := d.Join(opts.RegDirRel)
	chain, err := warp.Chain(regDir, opts.RegPrefix, warp.ToNativeDir)
	if err != nil {
		return nil, err
	}
	fixed := opts.FixedImg
	if fixed != "" && !filepath.IsAbs(fixed) {
		fixed = filepath.Join(regDir, fixed)
	}
	tmp := filepath.Join(d.Join(opts.OutDirRel), "warped_padded_index.nii.gz")
	if _, err := os.Stat(tmp); err != nil {
		if err := warp.Apply(ctx, chain, opts.MovingImg, fixed, tmp,
			warp.InterpNearest, opts.WarpTimeout); err != nil {
			return nil, err
		}
	}
	padded, err := nii.Read(tmp)
	if err != nil {
		return nil, err
	}
	plan := warp.PlanFromMetadata(md, opts.TargetResUM, opts.PadFrac)
	native, err := warp.ToNative(padded, plan, md, opts.Miracl)
	if err != nil {
		return nil, err
	}
	if cache != "" {
		if err := os.MkdirAll(filepath.Dir(cache), 0777); err != nil {
			return nil, errors.E(err, "creating native index dir")
		}
		if err := nii.Write(cache, native, ""); err != nil {
			return nil, err
		}
	}
	return native, nil
}
