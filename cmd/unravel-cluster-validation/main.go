package main

/*
unravel-cluster-validation warps an atlas-space cluster index into each
sample's native tissue space and measures cell or label density inside every
cluster, writing one density table per sample.  Samples with an existing
table are skipped, so an interrupted batch can simply be rerun.
*/

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/grailbio/base/grail"
	"github.com/grailbio/base/log"
	"github.com/grailbio/base/vcontext"

	"github.com/b-heifets/unravel/cluster"
	"github.com/b-heifets/unravel/config"
	"github.com/b-heifets/unravel/sample"
)

var (
	dirs         = flag.String("dirs", "", "Comma-separated list of sample directories; overrides -pattern")
	pattern      = flag.String("pattern", sample.DefaultPattern, "Glob for sample directories")
	expPaths     = flag.String("exp-paths", "", "Comma-separated experiment roots to scan for samples")
	expConfig    = flag.String("config", "exp_config.yaml", "Experiment config file (optional)")
	movingImg    = flag.String("moving-img", "", "Atlas-space cluster index (.nii.gz); required unless every sample has a cached native index")
	fixedImg     = flag.String("fixed-img", cluster.DefaultOpts.FixedImg, "Registration-resolution reference image, relative to the reg dir unless absolute")
	regDir       = flag.String("reg-dir", cluster.DefaultOpts.RegDirRel, "Registration outputs directory inside each sample")
	regPrefix    = flag.String("reg-prefix", cluster.DefaultOpts.RegPrefix, "Transform file name prefix")
	segPattern   = flag.String("seg", cluster.DefaultOpts.SegPattern, "Segmentation glob relative to each sample")
	clusterList  = flag.String("clusters", "all", "Comma-separated cluster IDs to validate, or 'all'")
	nativeIdx    = flag.String("native-idx", cluster.DefaultOpts.NativeIdxRel, "Cache path for the native-space index inside each sample; empty disables caching")
	outDir       = flag.String("out-dir", cluster.DefaultOpts.OutDirRel, "Output directory inside each sample")
	density      = flag.String("density", string(cluster.DefaultOpts.Mode), "Density mode: cell or label")
	connectivity = flag.Int("connectivity", cluster.DefaultOpts.Connectivity, "Connected-component connectivity for cell counting: 6, 18, or 26")
	parallelism  = flag.Int("parallelism", 0, "Maximum simultaneous per-cluster jobs; 0 = GOMAXPROCS")
	targetRes    = flag.Float64("reg-res", cluster.DefaultOpts.TargetResUM, "Registration resolution in microns")
	padFrac      = flag.Float64("pad-frac", cluster.DefaultOpts.PadFrac, "Per-side pad fraction used during registration prep")
	miracl       = flag.Bool("miracl", false, "Registration inputs used the MIRACL axis convention")
	warpTimeout  = flag.Duration("warp-timeout", 0, "Timeout per antsApplyTransforms invocation; 0 = none")
)

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n", os.Args[0])
	fmt.Fprintf(os.Stderr, "Validates clusters against cell segmentation, per sample.\n\nOptions:\n")
	flag.PrintDefaults()
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseClusters(s string) ([]int32, error) {
	if s == "" || s == "all" {
		return nil, nil
	}
	var ids []int32
	for _, p := range splitList(s) {
		id, err := strconv.ParseInt(p, 10, 32)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("bad cluster ID %q", p)
		}
		ids = append(ids, int32(id))
	}
	return ids, nil
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()
	ctx := vcontext.Background()

	exp, err := config.Load(*expConfig)
	if err != nil {
		log.Fatalf("%v", err)
	}

	opts := cluster.DefaultOpts
	opts.MovingImg = *movingImg
	opts.FixedImg = *fixedImg
	opts.RegDirRel = *regDir
	opts.RegPrefix = *regPrefix
	opts.SegPattern = *segPattern
	opts.NativeIdxRel = *nativeIdx
	opts.OutDirRel = *outDir
	opts.Mode = cluster.DensityMode(*density)
	opts.Connectivity = *connectivity
	opts.Parallelism = *parallelism
	opts.TargetResUM = *targetRes
	opts.PadFrac = *padFrac
	opts.Miracl = *miracl
	opts.WarpTimeout = *warpTimeout
	if exp.SegPattern != "" && *segPattern == cluster.DefaultOpts.SegPattern {
		opts.SegPattern = exp.SegPattern
	}
	if exp.RegResUM > 0 && *targetRes == cluster.DefaultOpts.TargetResUM {
		opts.TargetResUM = exp.RegResUM
	}
	if exp.Connectivity > 0 && *connectivity == cluster.DefaultOpts.Connectivity {
		opts.Connectivity = exp.Connectivity
	}
	if opts.Clusters, err = parseClusters(*clusterList); err != nil {
		log.Fatalf("%v", err)
	}

	samples, err := sample.Resolve(splitList(*dirs), *pattern, splitList(*expPaths))
	if err != nil {
		log.Fatalf("%v", err)
	}

	results, err := cluster.Validate(ctx, opts, samples)
	if err != nil {
		log.Fatalf("%v", err)
	}
	processed, skipped, failed := 0, 0, 0
	for _, r := range results {
		if r.Skipped {
			skipped++
			continue
		}
		processed++
		failed += len(r.Failed())
	}
	log.Printf("done: %d samples processed, %d skipped, %d cluster failures",
		processed, skipped, failed)
	if failed > 0 {
		os.Exit(1)
	}
}
