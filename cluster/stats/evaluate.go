package stats

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/grailbio/base/errors"
	"github.com/grailbio/base/file"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/tsv"
)

// ClusterTest is the cross-sample outcome for one cluster.
type ClusterTest struct {
	Cluster int32
	// N per condition, in condition order.
	N []int
	// MeanDiff is mean(treatment) - mean(control) for the two-group case; in
	// the multi-group case it is the mean difference of the treatment with
	// the smallest Holm-adjusted pairwise p against the control.
	MeanDiff float64
	Stat     float64
	P        float64
	// Congruent reports whether MeanDiff's sign matches the expected
	// direction (always true for TwoSided).
	Congruent bool
	Valid     bool
}

// Evaluate tests every cluster present in recs.  conditions gives the group
// order; the first is the control.  Two conditions get a Welch t-test; more
// get a one-way ANOVA omnibus followed by Holm-corrected pairwise Welch
// tests against the control, and the cluster must clear both.  A cluster is
// valid when p < alpha and the effect is congruent with dir.
//
// Clusters missing from one of the conditions are skipped with a warning
// rather than failing the run: a sample batch where one group was never
// validated for a cluster has nothing to test.
func Evaluate(recs []Record, conditions []string, alpha float64, dir Direction) ([]ClusterTest, error) {
	if len(conditions) < 2 {
		return nil, errors.E(errors.Invalid, "need at least 2 conditions")
	}
	switch dir {
	case Increase, Decrease, TwoSided:
	default:
		return nil, errors.E(errors.Invalid, "unknown direction:", string(dir))
	}
	// cluster -> condition -> densities
	byCluster := map[int32]map[string][]float64{}
	for _, r := range recs {
		m := byCluster[r.Cluster]
		if m == nil {
			m = map[string][]float64{}
			byCluster[r.Cluster] = m
		}
		m[r.Condition] = append(m[r.Condition], r.Density)
	}
	ids := make([]int32, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(a, b int) bool { return ids[a] < ids[b] })

	var tests []ClusterTest
	for _, id := range ids {
		groups := make([][]float64, len(conditions))
		ok := true
		for i, c := range conditions {
			groups[i] = byCluster[id][c]
			if len(groups[i]) < 2 {
				log.Error.Printf("stats: cluster %d: fewer than 2 observations for condition %q, skipping", id, c)
				ok = false
			}
		}
		if !ok {
			continue
		}
		ct := ClusterTest{Cluster: id}
		for _, g := range groups {
			ct.N = append(ct.N, len(g))
		}
		ctrlMean := mean(groups[0])
		if len(conditions) == 2 {
			t, _, p, err := WelchT(groups[0], groups[1])
			if err != nil {
				return nil, err
			}
			ct.Stat, ct.P = t, p
			ct.MeanDiff = mean(groups[1]) - ctrlMean
		} else {
			f, p, err := AnovaF(groups)
			if err != nil {
				return nil, err
			}
			ct.Stat = f
			// Holm-corrected pairwise Welch against the control decides
			// which treatment drives the effect; the omnibus alone cannot.
			pw := make([]float64, len(groups)-1)
			diffs := make([]float64, len(groups)-1)
			for i, g := range groups[1:] {
				_, _, pp, err := WelchT(groups[0], g)
				if err != nil {
					return nil, err
				}
				pw[i] = pp
				diffs[i] = mean(g) - ctrlMean
			}
			adj := HolmBonferroni(pw)
			best := 0
			for i := range adj {
				if adj[i] < adj[best] {
					best = i
				}
			}
			ct.MeanDiff = diffs[best]
			// A cluster must clear both the omnibus and the strongest
			// corrected comparison; the binding p is reported.
			ct.P = p
			if adj[best] > ct.P {
				ct.P = adj[best]
			}
		}
		switch dir {
		case TwoSided:
			ct.Congruent = true
		case Increase:
			ct.Congruent = ct.MeanDiff > 0
		case Decrease:
			ct.Congruent = ct.MeanDiff < 0
		}
		ct.Valid = ct.P < alpha && ct.Congruent
		tests = append(tests, ct)
	}
	return tests, nil
}

func mean(xs []float64) float64 {
	s := 0.0
	for _, x := range xs {
		s += x
	}
	return s / float64(len(xs))
}

// ValidIDs returns the clusters that passed.
func ValidIDs(tests []ClusterTest) []int32 {
	var ids []int32
	for _, ct := range tests {
		if ct.Valid {
			ids = append(ids, ct.Cluster)
		}
	}
	return ids
}

// WriteTSV emits the per-cluster test table.
func WriteTSV(ctx context.Context, path string, tests []ClusterTest) (err error) {
	dst, err := file.Create(ctx, path)
	if err != nil {
		return errors.E(err, "creating stats table:", path)
	}
	defer file.CloseAndReport(ctx, dst, &err)

	w := tsv.NewWriter(dst.Writer(ctx))
	w.WriteString("cluster_ID\tn\tmean_diff\tstat\tp\tcongruent\tvalid")
	if err = w.EndLine(); err != nil {
		return err
	}
	for _, ct := range tests {
		ns := make([]string, len(ct.N))
		for i, n := range ct.N {
			ns[i] = fmt.Sprintf("%d", n)
		}
		w.WriteString(fmt.Sprintf("%d", ct.Cluster))
		w.WriteString(strings.Join(ns, ","))
		w.WriteFloat64(ct.MeanDiff, 'g', -1)
		w.WriteFloat64(ct.Stat, 'g', -1)
		w.WriteFloat64(ct.P, 'g', -1)
		w.WriteString(fmt.Sprintf("%t", ct.Congruent))
		w.WriteString(fmt.Sprintf("%t", ct.Valid))
		if err = w.EndLine(); err != nil {
			return err
		}
	}
	return w.Flush()
}

// WriteValidList writes the valid cluster IDs, space separated, the format
// downstream cropping scripts consume.
func WriteValidList(path string, tests []ClusterTest) error {
	ids := ValidIDs(tests)
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	if err := os.WriteFile(path, []byte(strings.Join(parts, " ")+"\n"), 0666); err != nil {
		return errors.E(err, "writing valid cluster list:", path)
	}
	return nil
}
