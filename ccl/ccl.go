// Package ccl labels and counts connected components in 3-D volumes.  The
// cluster-validation pipeline uses it to count discrete cells inside a
// cluster's bounding box after the segmentation has been masked to the
// cluster.
//
// Any nonzero voxel is foreground; component identity ignores the voxel's
// label value.  Connectivity 6 (faces), 18 (faces+edges) and 26
// (faces+edges+corners) are supported; the cell-counting pipeline defaults
// to 6.
package ccl

import (
	"github.com/grailbio/base/errors"

	"github.com/b-heifets/unravel/voxel"
)

// neighbors returns the offsets of the already-visited half of the given
// connectivity's neighborhood.  Scanning is x-fastest, so "already visited"
// means dz < 0, or dz == 0 && dy < 0, or dz == 0 && dy == 0 && dx < 0.
func neighbors(connectivity int) ([][3]int, error) {
	var offs [][3]int
	for dz := -1; dz <= 0; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				if dz == 0 && (dy > 0 || (dy == 0 && dx >= 0)) {
					continue
				}
				n := 0
				if dx != 0 {
					n++
				}
				if dy != 0 {
					n++
				}
				if dz != 0 {
					n++
				}
				switch connectivity {
				case 6:
					if n != 1 {
						continue
					}
				case 18:
					if n > 2 {
						continue
					}
				case 26:
				default:
					return nil, errors.E(errors.Invalid, "connectivity must be 6, 18, or 26")
				}
				offs = append(offs, [3]int{dx, dy, dz})
			}
		}
	}
	return offs, nil
}

// union-find with path halving.
type forest struct {
	parent []int32
}

func (f *forest) add() int32 {
	id := int32(len(f.parent))
	f.parent = append(f.parent, id)
	return id
}

func (f *forest) find(x int32) int32 {
	for f.parent[x] != x {
		f.parent[x] = f.parent[f.parent[x]]
		x = f.parent[x]
	}
	return x
}

func (f *forest) union(a, b int32) {
	ra, rb := f.find(a), f.find(b)
	if ra != rb {
		f.parent[rb] = ra
	}
}

// Count returns the number of connected foreground components in v.
func Count(v *voxel.Volume, connectivity int) (int, error) {
	_, n, err := label(v, connectivity)
	return n, err
}

// Label assigns a distinct positive component ID to every foreground voxel
// of v, returning the labeled volume and the component count.  Background
// stays 0.  IDs are dense in [1, n] in scan order of first appearance.
func Label(v *voxel.Volume, connectivity int) (*voxel.Volume, int, error) {
	return label(v, connectivity)
}

func label(v *voxel.Volume, connectivity int) (*voxel.Volume, int, error) {
	offs, err := neighbors(connectivity)
	if err != nil {
		return nil, 0, err
	}
	out := voxel.New(v.Nx, v.Ny, v.Nz)
	out.VoxelUM = v.VoxelUM

	// Pass 1: provisional labels, merging across earlier neighbors.
	var uf forest
	uf.add() // slot 0 = background
	prov := make([]int32, len(v.Data))
	i := 0
	for z := 0; z < v.Nz; z++ {
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				if v.Data[i] == 0 {
					i++
					continue
				}
				var cur int32
				for _, o := range offs {
					nx, ny, nz := x+o[0], y+o[1], z+o[2]
					if nx < 0 || ny < 0 || nz < 0 || nx >= v.Nx || ny >= v.Ny {
						continue
					}
					p := prov[v.Index(nx, ny, nz)]
					if p == 0 {
						continue
					}
					if cur == 0 {
						cur = p
					} else {
						uf.union(cur, p)
					}
				}
				if cur == 0 {
					cur = uf.add()
				}
				prov[i] = cur
				i++
			}
		}
	}

	// Pass 2: relabel roots densely.
	dense := make(map[int32]int32)
	for i, p := range prov {
		if p == 0 {
			continue
		}
		root := uf.find(p)
		d, ok := dense[root]
		if !ok {
			d = int32(len(dense) + 1)
			dense[root] = d
		}
		out.Data[i] = d
	}
	return out, len(dense), nil
}
