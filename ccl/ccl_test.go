package ccl

import (
	"math/rand"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"

	"github.com/b-heifets/unravel/voxel"
)

func TestCountSingleVoxels(t *testing.T) {
	v := voxel.New(5, 5, 5)
	v.Set(0, 0, 0, 1)
	v.Set(2, 2, 2, 1)
	v.Set(4, 4, 4, 1)
	for _, conn := range []int{6, 18, 26} {
		n, err := Count(v, conn)
		assert.NoError(t, err)
		expect.EQ(t, n, 3, "connectivity %d", conn)
	}
}

func TestConnectivityDistinguishesDiagonals(t *testing.T) {
	// Two voxels sharing only an edge: one component at 18/26, two at 6.
	v := voxel.New(3, 3, 3)
	v.Set(0, 0, 0, 1)
	v.Set(1, 1, 0, 1)
	n6, err := Count(v, 6)
	assert.NoError(t, err)
	expect.EQ(t, n6, 2)
	n18, err := Count(v, 18)
	assert.NoError(t, err)
	expect.EQ(t, n18, 1)

	// Two voxels sharing only a corner: one component only at 26.
	w := voxel.New(3, 3, 3)
	w.Set(0, 0, 0, 1)
	w.Set(1, 1, 1, 1)
	n18, err = Count(w, 18)
	assert.NoError(t, err)
	expect.EQ(t, n18, 2)
	n26, err := Count(w, 26)
	assert.NoError(t, err)
	expect.EQ(t, n26, 1)
}

func TestCountMergesUShape(t *testing.T) {
	// A U-shaped object forces the two arms to carry different provisional
	// labels until the bottom row merges them.
	v := voxel.New(3, 3, 1)
	v.Set(0, 0, 0, 1)
	v.Set(2, 0, 0, 1)
	v.Set(0, 1, 0, 1)
	v.Set(2, 1, 0, 1)
	v.Set(0, 2, 0, 1)
	v.Set(1, 2, 0, 1)
	v.Set(2, 2, 0, 1)
	n, err := Count(v, 6)
	assert.NoError(t, err)
	expect.EQ(t, n, 1)
}

func TestLabelDense(t *testing.T) {
	v := voxel.New(4, 1, 1)
	v.Set(0, 0, 0, 7)
	v.Set(2, 0, 0, 9)
	labels, n, err := Label(v, 6)
	assert.NoError(t, err)
	expect.EQ(t, n, 2)
	expect.EQ(t, labels.At(0, 0, 0), int32(1))
	expect.EQ(t, labels.At(1, 0, 0), int32(0))
	expect.EQ(t, labels.At(2, 0, 0), int32(2))
}

func TestLabelValueInvariance(t *testing.T) {
	// Component structure depends only on the foreground mask, not on label
	// values.
	r := rand.New(rand.NewSource(3))
	v := voxel.New(8, 8, 8)
	w := voxel.New(8, 8, 8)
	for i := range v.Data {
		if r.Float64() < 0.3 {
			v.Data[i] = 1
			w.Data[i] = 1 + r.Int31n(100)
		}
	}
	for _, conn := range []int{6, 18, 26} {
		nv, err := Count(v, conn)
		assert.NoError(t, err)
		nw, err := Count(w, conn)
		assert.NoError(t, err)
		expect.EQ(t, nv, nw, "connectivity %d", conn)
	}
}

func TestBadConnectivity(t *testing.T) {
	v := voxel.New(2, 2, 2)
	_, err := Count(v, 7)
	expect.True(t, err != nil)
}

func TestEmptyVolume(t *testing.T) {
	n, err := Count(voxel.New(4, 4, 4), 6)
	assert.NoError(t, err)
	expect.EQ(t, n, 0)
}
