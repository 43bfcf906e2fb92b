// Package config loads the optional experiment configuration file.  Flags
// always win over the file; the file exists so a batch of commands run
// against one experiment does not repeat the same dozen flags.
package config

import (
	"os"

	"github.com/grailbio/base/errors"
	"gopkg.in/yaml.v3"
)

// Experiment is the on-disk configuration, conventionally exp_config.yaml at
// the experiment root.
type Experiment struct {
	// Conditions maps a condition name to the sample-name prefixes belonging
	// to it, e.g. saline: [sample01, sample02].
	Conditions map[string][]string `yaml:"conditions"`
	// RegResUM is the registration resolution in microns.
	RegResUM float64 `yaml:"reg_res_um"`
	// Atlas is the path to the reference atlas image.
	Atlas string `yaml:"atlas"`
	// Connectivity is the default connected-component connectivity for cell
	// counting.
	Connectivity int `yaml:"connectivity"`
	// SegPattern is the default segmentation glob relative to each sample.
	SegPattern string `yaml:"seg_pattern"`
}

// Load reads path.  A missing file is not an error: every field has a flag
// fallback, so the zero Experiment is returned instead.
func Load(path string) (Experiment, error) {
	var exp Experiment
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return exp, nil
		}
		return exp, errors.E(err, "reading experiment config:", path)
	}
	if err := yaml.Unmarshal(data, &exp); err != nil {
		return exp, errors.E(errors.Invalid, err, "parsing experiment config:", path)
	}
	return exp, nil
}

// ConditionOf returns the condition a sample name belongs to, or "" when the
// config does not place it.
func (e Experiment) ConditionOf(sampleName string) string {
	for cond, prefixes := range e.Conditions {
		for _, p := range prefixes {
			if len(sampleName) >= len(p) && sampleName[:len(p)] == p {
				return cond
			}
		}
	}
	return ""
}
