package cluster

import (
	"strconv"

	"github.com/grailbio/base/errors"

	"github.com/b-heifets/unravel/ccl"
	"github.com/b-heifets/unravel/voxel"
)

func itoa(id int32) string { return strconv.FormatInt(int64(id), 10) }

// measure computes one cluster's density record.  cropped and seg are both
// in the outer-crop frame; the reported bounding box is shifted back to the
// uncropped native frame.
func measure(sampleName string, opts Opts, cropped, seg *voxel.Volume, outer voxel.Box, id int32, box voxel.Box) Measurement {
	m := Measurement{Sample: sampleName, Cluster: id}
	if box.Empty() {
		m.Err = errors.E(errors.NotExist, "cluster", itoa(id), "has no voxels in the native index")
		return m
	}
	m.Box = box.Shift(outer)

	clusterCrop := cropped.Crop(box)
	segCrop := seg.Crop(box)
	if err := segCrop.MaskOutside(clusterCrop, id); err != nil {
		m.Err = err
		return m
	}

	clusterVoxels := clusterCrop.Count(id)
	m.ClusterVolumeMM3 = float64(clusterVoxels) * cropped.VoxelVolumeMM3()
	if clusterVoxels == 0 || m.ClusterVolumeMM3 <= 0 {
		m.Err = errors.E(errors.Invalid, "cluster", itoa(id), "has zero volume")
		return m
	}

	switch opts.Mode {
	case CellDensity:
		n, err := ccl.Count(segCrop, opts.Connectivity)
		if err != nil {
			m.Err = err
			return m
		}
		m.Count = n
		m.Density = float64(n) / m.ClusterVolumeMM3
	case LabelDensity:
		nz := segCrop.CountNonzero()
		m.Count = nz
		m.Density = 100 * float64(nz) / float64(clusterVoxels)
	}
	return m
}
