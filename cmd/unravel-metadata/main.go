package main

/*
unravel-metadata records or inspects a sample's full-resolution image
geometry sidecar (parameters/metadata.txt).  With no dimension flags it
derives the geometry from a reference image; with -width/-height/-depth and
-xy-res/-z-res it writes the given values directly.  Existing sidecars are
printed and left untouched unless -force is set.
*/

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"

	"github.com/b-heifets/unravel/encoding/nii"
	"github.com/b-heifets/unravel/sample"
)

var (
	sampleDir = flag.String("sample", ".", "Sample directory")
	refImg    = flag.String("ref", "", "Full-resolution image to derive geometry from")
	width     = flag.Int("width", 0, "Voxel count along x")
	height    = flag.Int("height", 0, "Voxel count along y")
	depth     = flag.Int("depth", 0, "Voxel count along z")
	xyRes     = flag.Float64("xy-res", 0, "Lateral voxel size in microns")
	zRes      = flag.Float64("z-res", 0, "Axial voxel size in microns")
	force     = flag.Bool("force", false, "Overwrite an existing sidecar")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\nOptions:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	d := sample.Dir{Name: filepath.Base(*sampleDir), Path: *sampleDir}
	path := d.MetadataPath()

	if md, err := sample.ReadMetadata(path); err == nil {
		if !*force {
			fmt.Printf("%s: %dx%dx%d voxels, %gx%gx%g um\n",
				path, md.Width, md.Height, md.Depth, md.XYVoxelUM, md.XYVoxelUM, md.ZVoxelUM)
			return
		}
	} else if !errors.Is(errors.NotExist, err) {
		log.Fatalf("%v", err)
	}

	var md sample.Metadata
	switch {
	case *refImg != "":
		v, err := nii.Read(*refImg)
		if err != nil {
			log.Fatalf("%v", err)
		}
		md = sample.Metadata{
			Width: v.Nx, Height: v.Ny, Depth: v.Nz,
			XYVoxelUM: v.VoxelUM[0],
			ZVoxelUM:  v.VoxelUM[2],
		}
		if v.VoxelUM[0] != v.VoxelUM[1] {
			log.Fatalf("%s: anisotropic x/y voxel size %gx%g um", *refImg, v.VoxelUM[0], v.VoxelUM[1])
		}
	case *width > 0 && *height > 0 && *depth > 0 && *xyRes > 0 && *zRes > 0:
		md = sample.Metadata{
			Width: *width, Height: *height, Depth: *depth,
			XYVoxelUM: *xyRes, ZVoxelUM: *zRes,
		}
	default:
		log.Fatalf("need either -ref or all of -width/-height/-depth/-xy-res/-z-res")
	}
	if err := md.Write(path); err != nil {
		log.Fatalf("%v", err)
	}
	log.Printf("metadata: wrote %s (%dx%dx%d voxels, %gx%gx%g um)",
		path, md.Width, md.Height, md.Depth, md.XYVoxelUM, md.XYVoxelUM, md.ZVoxelUM)
}
