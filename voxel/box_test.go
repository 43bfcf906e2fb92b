package voxel

import (
	"math/rand"
	"path/filepath"
	"testing"

	"github.com/grailbio/testutil/assert"
	"github.com/grailbio/testutil/expect"
)

func randomVolume(r *rand.Rand, nx, ny, nz int, nLabels int32, fill float64) *Volume {
	v := New(nx, ny, nz)
	for i := range v.Data {
		if r.Float64() < fill {
			v.Data[i] = 1 + r.Int31n(nLabels)
		}
	}
	return v
}

// Every matching voxel must fall inside the box, and every face of the box
// must touch at least one matching voxel.
func checkTight(t *testing.T, v *Volume, label int32, b Box) {
	t.Helper()
	faceHit := [6]bool{}
	for z := 0; z < v.Nz; z++ {
		for y := 0; y < v.Ny; y++ {
			for x := 0; x < v.Nx; x++ {
				d := v.At(x, y, z)
				if d == 0 || (label != 0 && d != label) {
					continue
				}
				expect.True(t, x >= b.X0 && x < b.X1, "x=%d outside %v", x, b)
				expect.True(t, y >= b.Y0 && y < b.Y1, "y=%d outside %v", y, b)
				expect.True(t, z >= b.Z0 && z < b.Z1, "z=%d outside %v", z, b)
				if x == b.X0 {
					faceHit[0] = true
				}
				if x == b.X1-1 {
					faceHit[1] = true
				}
				if y == b.Y0 {
					faceHit[2] = true
				}
				if y == b.Y1-1 {
					faceHit[3] = true
				}
				if z == b.Z0 {
					faceHit[4] = true
				}
				if z == b.Z1-1 {
					faceHit[5] = true
				}
			}
		}
	}
	for i, hit := range faceHit {
		expect.True(t, hit, "face %d of %v touches no voxel", i, b)
	}
}

func TestBoundingBoxTightness(t *testing.T) {
	r := rand.New(rand.NewSource(0))
	for iter := 0; iter < 50; iter++ {
		v := randomVolume(r, 3+r.Intn(12), 3+r.Intn(12), 3+r.Intn(12), 3, 0.1)
		if v.CountNonzero() == 0 {
			continue
		}
		checkTight(t, v, 0, BoundingBox(v, 0))
		for _, label := range v.Labels() {
			checkTight(t, v, label, BoundingBox(v, label))
		}
	}
}

func TestBoundingBoxConcrete(t *testing.T) {
	// 10x10x10 volume, label 5 occupying [2:4, 3:6, 1:2].
	v := New(10, 10, 10)
	for x := 2; x < 4; x++ {
		for y := 3; y < 6; y++ {
			v.Set(x, y, 1, 5)
		}
	}
	want := Box{X0: 2, X1: 4, Y0: 3, Y1: 6, Z0: 1, Z1: 2}
	expect.EQ(t, BoundingBox(v, 5), want)

	// Crop to an outer box, recompute the inner box within the crop, and
	// compose back: must land on the same native-frame coordinates.
	outer := Box{X0: 1, X1: 9, Y0: 1, Y1: 9, Z0: 0, Z1: 9}
	inner := BoundingBox(v.Crop(outer), 5)
	expect.EQ(t, inner.Shift(outer), want)
}

func TestCropCompositionLaw(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	for iter := 0; iter < 50; iter++ {
		v := randomVolume(r, 4+r.Intn(10), 4+r.Intn(10), 4+r.Intn(10), 4, 0.15)
		outer := BoundingBox(v, 0)
		if outer.Empty() {
			continue
		}
		cropped := v.Crop(outer)
		for _, label := range v.Labels() {
			direct := BoundingBox(v, label)
			composed := BoundingBox(cropped, label).Shift(outer)
			expect.EQ(t, composed, direct, "label %d", label)
		}
	}
}

func TestCropIdempotence(t *testing.T) {
	r := rand.New(rand.NewSource(2))
	v := randomVolume(r, 8, 9, 7, 2, 0.2)
	b := BoundingBox(v, 0)
	once := v.Crop(b)
	twice := once.Crop(FullBox(once))
	expect.EQ(t, twice.Data, once.Data)
	expect.EQ(t, twice.Nx, once.Nx)
	expect.EQ(t, twice.Ny, once.Ny)
	expect.EQ(t, twice.Nz, once.Nz)
}

func TestBoundingBoxEmpty(t *testing.T) {
	v := New(5, 5, 5)
	// All-zero volume: the documented contract is the exact zero box, not an
	// error.
	expect.EQ(t, BoundingBox(v, 0), Box{})
	v.Set(1, 1, 1, 3)
	// Label with no matching voxels behaves the same way.
	expect.EQ(t, BoundingBox(v, 7), Box{})
	expect.True(t, BoundingBox(v, 7).Empty())
	expect.False(t, BoundingBox(v, 3).Empty())
}

func TestBoxStringRoundTrip(t *testing.T) {
	b := Box{X0: 2, X1: 4, Y0: 3, Y1: 6, Z0: 1, Z1: 2}
	expect.EQ(t, b.String(), "2:4, 3:6, 1:2")
	got, err := ParseBox(b.String())
	assert.NoError(t, err)
	expect.EQ(t, got, b)

	_, err = ParseBox("2:4, 3:6")
	expect.True(t, err != nil)
	_, err = ParseBox("a:b, c:d, e:f")
	expect.True(t, err != nil)
}

func TestBoxFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "outer_bounds.txt")
	b := Box{X0: 10, X1: 110, Y0: 20, Y1: 220, Z0: 0, Z1: 77}
	assert.NoError(t, WriteBoxFile(path, b))
	got, err := ReadBoxFile(path)
	assert.NoError(t, err)
	expect.EQ(t, got, b)

	_, err = ReadBoxFile(filepath.Join(t.TempDir(), "missing.txt"))
	expect.True(t, err != nil)
}

func TestShift(t *testing.T) {
	inner := Box{X0: 1, X1: 3, Y0: 2, Y1: 5, Z0: 1, Z1: 2}
	outer := Box{X0: 1, X1: 9, Y0: 1, Y1: 9, Z0: 0, Z1: 9}
	expect.EQ(t, inner.Shift(outer), Box{X0: 2, X1: 4, Y0: 3, Y1: 6, Z0: 1, Z1: 2})
}
