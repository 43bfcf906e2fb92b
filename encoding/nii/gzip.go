package nii

import (
	"io"
	"os"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/klauspost/compress/gzip"
)

func isGz(path string) bool { return strings.HasSuffix(path, ".gz") }

// gunzipFile decompresses src into dst and removes src.  The nifti package
// reads either flavor but only ever writes gzipped output; this recovers a
// flat .nii when the caller asked for one.
func gunzipFile(src, dst string) (err error) {
	defer os.Remove(src)
	in, err := os.Open(src)
	if err != nil {
		return errors.E(err, "opening gzipped nifti:", src)
	}
	defer in.Close()
	zr, err := gzip.NewReader(in)
	if err != nil {
		return errors.E(errors.Invalid, err, "not gzip data:", src)
	}
	defer zr.Close()
	out, err := os.Create(dst)
	if err != nil {
		return errors.E(err, "creating nifti:", dst)
	}
	_, err = io.Copy(out, zr)
	if err2 := out.Close(); err == nil {
		err = err2
	}
	if err != nil {
		return errors.E(err, "decompressing nifti:", dst)
	}
	return nil
}
