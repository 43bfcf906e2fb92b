package main

// unravel-commands prints the toolkit's command catalog, one line per
// command, so users can discover the pipeline stages without digging
// through docs.

import (
	"flag"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/grailbio/base/grail"
)

type command struct {
	name, stage, summary string
}

// Ordered by pipeline stage.
var commands = []command{
	{"unravel-metadata", "prep", "Record a sample's full-resolution image geometry sidecar"},
	{"unravel-warp", "register", "Move an image between native, fixed, and atlas space"},
	{"unravel-cluster-validation", "validate", "Measure per-cluster cell or label density in native space"},
	{"unravel-cluster-stats", "stats", "Compare cluster densities across conditions"},
	{"unravel-commands", "help", "Print this catalog"},
}

var stage = flag.String("stage", "", "Only list commands for this pipeline stage")

func usage() {
	fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS]\n\nOptions:\n", os.Args[0])
	flag.PrintDefaults()
}

func main() {
	flag.Usage = usage
	shutdown := grail.Init()
	defer shutdown()

	w := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	for _, c := range commands {
		if *stage != "" && c.stage != *stage {
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.name, c.stage, c.summary)
	}
	w.Flush()
}
