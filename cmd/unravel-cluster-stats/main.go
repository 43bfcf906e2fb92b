package main

/*
unravel-cluster-stats compares per-cluster densities across experimental
conditions and reports which clusters survive.  Positional arguments are
density CSVs from unravel-cluster-validation, either tagged explicitly as
condition=path.csv or given bare, in which case each sample's condition is
resolved from the experiment config's conditions mapping.  The control group
is the first condition on the command line, or the first entry of
-conditions when bare paths are used.
*/

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/b-heifets/unravel/cluster/stats"
	"github.com/b-heifets/unravel/config"
)

var (
	configPath = flag.String("config", "exp_config.yaml", "Experiment config with the conditions mapping")
	condList   = flag.String("conditions", "", "Comma-separated condition order, first is control; required with bare CSV paths")
	alpha      = flag.Float64("alpha", 0.05, "Significance threshold")
	direction  = flag.String("direction", string(stats.TwoSided), "Expected effect direction: increase, decrease, or two-sided")
	outTSV     = flag.String("out", "cluster_stats.tsv", "Per-cluster statistics output")
	validOut   = flag.String("valid-out", "valid_clusters.txt", "Space-separated list of surviving cluster IDs")
)

func usage() {
	fmt.Fprintf(os.Stderr, `Usage: %s [OPTIONS] [condition=]densities.csv [[condition=]densities.csv ...]

Options:
`, os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	if flag.NArg() < 1 {
		log.Fatalf("need at least one density CSV argument")
	}
	tagged := map[string][]string{}
	var conditions, bare []string
	for _, arg := range flag.Args() {
		i := strings.IndexByte(arg, '=')
		if i < 0 {
			bare = append(bare, arg)
			continue
		}
		if i == 0 || i == len(arg)-1 {
			log.Fatalf("malformed argument %q, want condition=path.csv", arg)
		}
		cond, path := arg[:i], arg[i+1:]
		if _, ok := tagged[cond]; !ok {
			conditions = append(conditions, cond)
		}
		tagged[cond] = append(tagged[cond], path)
	}

	var recs []stats.Record
	for _, cond := range conditions {
		r, err := stats.LoadGroup(cond, tagged[cond])
		if err != nil {
			log.Fatalf("%v", err)
		}
		recs = append(recs, r...)
	}
	if len(bare) > 0 {
		exp, err := config.Load(*configPath)
		if err != nil {
			log.Fatalf("%v", err)
		}
		if len(exp.Conditions) == 0 {
			log.Fatalf("bare CSV paths need a conditions mapping in %s", *configPath)
		}
		r, err := stats.LoadResolved(bare, exp.ConditionOf)
		if err != nil {
			log.Fatalf("%v", err)
		}
		recs = append(recs, r...)
	}
	if *condList != "" {
		conditions = strings.Split(*condList, ",")
	} else if len(bare) > 0 {
		log.Fatalf("-conditions is required with bare CSV paths (the mapping is unordered)")
	}
	if len(conditions) < 2 {
		log.Fatalf("need at least two conditions, got %v", conditions)
	}

	tests, err := stats.Evaluate(recs, conditions, *alpha, stats.Direction(*direction))
	if err != nil {
		log.Fatalf("%v", err)
	}
	if err := stats.WriteTSV(ctx, *outTSV, tests); err != nil {
		log.Fatalf("%v", err)
	}
	if err := stats.WriteValidList(*validOut, tests); err != nil {
		log.Fatalf("%v", err)
	}
	valid := stats.ValidIDs(tests)
	log.Printf("cluster-stats: %d/%d clusters valid: %v", len(valid), len(tests), valid)
}
