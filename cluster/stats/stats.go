// Package stats aggregates per-sample cluster density tables and decides
// which clusters are valid: a cluster survives when its density difference
// between conditions is significant and congruent with the expected effect
// direction.
package stats

import (
	"math"
	"sort"

	"github.com/grailbio/base/errors"
	"gonum.org/v1/gonum/stat"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/b-heifets/unravel/cluster"
)

// Record is one (condition, sample, cluster) density observation.
type Record struct {
	Condition string
	Sample    string
	Cluster   int32
	Density   float64
}

// Direction is the expected sign of the effect (second condition minus the
// control) derived from the statistical map the cluster index came from.
type Direction string

const (
	Increase Direction = "increase"
	Decrease Direction = "decrease"
	// TwoSided skips the congruence check.
	TwoSided Direction = "two-sided"
)

// LoadGroup reads density tables produced by the validation pipeline and
// tags them with a condition name.
func LoadGroup(condition string, paths []string) ([]Record, error) {
	var recs []Record
	for _, p := range paths {
		ms, _, err := cluster.ReadDensityCSV(p)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			recs = append(recs, Record{
				Condition: condition,
				Sample:    m.Sample,
				Cluster:   m.Cluster,
				Density:   m.Density,
			})
		}
	}
	return recs, nil
}

// LoadResolved reads density tables and assigns each row's condition from
// its sample name via resolve (typically config.Experiment.ConditionOf).  A
// sample resolve cannot place is an error: silently dropping it would bias
// the group it belonged to.
func LoadResolved(paths []string, resolve func(sampleName string) string) ([]Record, error) {
	var recs []Record
	for _, p := range paths {
		ms, _, err := cluster.ReadDensityCSV(p)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			cond := resolve(m.Sample)
			if cond == "" {
				return nil, errors.E(errors.Invalid,
					"sample", m.Sample, "in", p, "matches no configured condition")
			}
			recs = append(recs, Record{
				Condition: cond,
				Sample:    m.Sample,
				Cluster:   m.Cluster,
				Density:   m.Density,
			})
		}
	}
	return recs, nil
}

// WelchT runs Welch's unequal-variance t-test.  Returns the statistic, the
// Welch–Satterthwaite degrees of freedom, and the two-sided p-value.
func WelchT(a, b []float64) (t, df, p float64, err error) {
	if len(a) < 2 || len(b) < 2 {
		return 0, 0, 1, errors.E(errors.Invalid, "Welch t-test needs at least 2 observations per group")
	}
	ma, mb := stat.Mean(a, nil), stat.Mean(b, nil)
	va, vb := stat.Variance(a, nil), stat.Variance(b, nil)
	na, nb := float64(len(a)), float64(len(b))
	se2 := va/na + vb/nb
	if se2 == 0 {
		// Degenerate: identical constant groups.
		if ma == mb {
			return 0, na + nb - 2, 1, nil
		}
		return math.Inf(sign(mb - ma)), na + nb - 2, 0, nil
	}
	t = (mb - ma) / math.Sqrt(se2)
	df = se2 * se2 / ((va*va)/(na*na*(na-1)) + (vb*vb)/(nb*nb*(nb-1)))
	dist := distuv.StudentsT{Mu: 0, Sigma: 1, Nu: df}
	p = 2 * dist.CDF(-math.Abs(t))
	return t, df, p, nil
}

func sign(x float64) int {
	if x < 0 {
		return -1
	}
	return 1
}

// AnovaF runs a one-way ANOVA across the groups and returns the F statistic
// and p-value.
func AnovaF(groups [][]float64) (f, p float64, err error) {
	k := len(groups)
	if k < 2 {
		return 0, 1, errors.E(errors.Invalid, "ANOVA needs at least 2 groups")
	}
	n := 0
	var grand float64
	for _, g := range groups {
		if len(g) < 2 {
			return 0, 1, errors.E(errors.Invalid, "ANOVA needs at least 2 observations per group")
		}
		n += len(g)
		for _, x := range g {
			grand += x
		}
	}
	grand /= float64(n)
	var ssb, ssw float64
	for _, g := range groups {
		m := stat.Mean(g, nil)
		ssb += float64(len(g)) * (m - grand) * (m - grand)
		for _, x := range g {
			ssw += (x - m) * (x - m)
		}
	}
	dfb := float64(k - 1)
	dfw := float64(n - k)
	if ssw == 0 {
		if ssb == 0 {
			return 0, 1, nil
		}
		return math.Inf(1), 0, nil
	}
	f = (ssb / dfb) / (ssw / dfw)
	dist := distuv.F{D1: dfb, D2: dfw}
	p = 1 - dist.CDF(f)
	return f, p, nil
}

// HolmBonferroni adjusts p-values for multiple comparisons.  The result is
// in the input's order and monotone, clamped to 1.
func HolmBonferroni(ps []float64) []float64 {
	n := len(ps)
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	sort.Slice(idx, func(a, b int) bool { return ps[idx[a]] < ps[idx[b]] })
	adj := make([]float64, n)
	maxSoFar := 0.0
	for rank, i := range idx {
		v := float64(n-rank) * ps[i]
		if v > 1 {
			v = 1
		}
		if v < maxSoFar {
			v = maxSoFar
		}
		maxSoFar = v
		adj[i] = v
	}
	return adj
}
