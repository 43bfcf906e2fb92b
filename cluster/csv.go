package cluster

import (
	"context"
	"encoding/csv"
	"strconv"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"

	"github.com/b-heifets/unravel/voxel"
)

// Density tables are CSV because everything downstream of the pipeline
// (cross-sample stats, spreadsheets) consumes them that way.  Failed
// measurements are omitted from the table; the caller has them in
// SampleResult.
func writeDensityCSV(ctx context.Context, path string, mode DensityMode, ms []Measurement) (err error) {
	dst, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "creating density table:", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := csv.NewWriter(dst.Writer(ctx))
	countCol, densityCol := "cell_count", "cell_density"
	if mode == LabelDensity {
		countCol, densityCol = "label_voxels", "label_density"
	}
	if err = w.Write([]string{"sample", "cluster_ID", countCol, "cluster_volume_mm3", densityCol, "bbox"}); err != nil {
		return err
	}
	for _, m := range ms {
		if m.Err != nil {
			continue
		}
		row := []string{
			m.Sample,
			itoa(m.Cluster),
			strconv.Itoa(m.Count),
			strconv.FormatFloat(m.ClusterVolumeMM3, 'g', -1, 64),
			strconv.FormatFloat(m.Density, 'g', -1, 64),
			m.Box.String(),
		}
		if err = w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

// ReadDensityCSV loads a density table written by writeDensityCSV.  The
// count/density column names identify the mode; the second return value
// reports which one the file was.
func ReadDensityCSV(path string) ([]Measurement, DensityMode, error) {
	ctx := context.Background()
	src, err := file.Open(ctx, path)
	if err != nil {
		return nil, "", errors.E(errors.NotExist, "density table:", path)
	}
	defer func() { _ = src.Close(ctx) }()

	r := csv.NewReader(src.Reader(ctx))
	rows, err := r.ReadAll()
	if err != nil {
		return nil, "", errors.E(err, "reading density table:", path)
	}
	if len(rows) == 0 || len(rows[0]) != 6 {
		return nil, "", errors.E(errors.Invalid, "malformed density table:", path)
	}
	mode := CellDensity
	if rows[0][2] == "label_voxels" {
		mode = LabelDensity
	}
	var ms []Measurement
	for _, row := range rows[1:] {
		cluster, err1 := strconv.ParseInt(row[1], 10, 32)
		count, err2 := strconv.Atoi(row[2])
		vol, err3 := strconv.ParseFloat(row[3], 64)
		density, err4 := strconv.ParseFloat(row[4], 64)
		box, err5 := voxel.ParseBox(row[5])
		for _, e := range []error{err1, err2, err3, err4, err5} {
			if e != nil {
				return nil, "", errors.E(errors.Invalid, e, "malformed density row in", path)
			}
		}
		ms = append(ms, Measurement{
			Sample:           row[0],
			Cluster:          int32(cluster),
			Count:            count,
			ClusterVolumeMM3: vol,
			Density:          density,
			Box:              box,
		})
	}
	return ms, mode, nil
}
