package plugin

import (
	"fmt"
	"strings"

	"go.uber.org/multierr"
)

//go:generate go tool go-enum --marshal --nocase --names --mustparse

// Stage is a point of the pipeline where plugins may run. Pre-compile runs
// on parsed sources before ICSS compilation, post-resolve on every module
// after all imports are resolved and post-bundle once on the merged bundle.
// ENUM(pre-compile=1, post-resolve, post-bundle)
type Stage int

// Stages lists all stages in pipeline order.
var Stages = []Stage{StagePreCompile, StagePostResolve, StagePostBundle}

// StageSet is a set of stages.
type StageSet uint8

const allStages = StageSet(1<<StagePreCompile | 1<<StagePostResolve | 1<<StagePostBundle)

// NewStageSet creates set from stages. Invalid stages are kept so
// validation can report them.
func NewStageSet(stages ...Stage) StageSet {
	var set StageSet
	for _, s := range stages {
		if s >= 0 && s < 8 {
			set |= 1 << s
		} else {
			set |= 1 // never a valid stage
		}
	}
	return set
}

// ParseStageSet converts stage names to a set. All unknown names are reported.
func ParseStageSet(names []string) (StageSet, error) {
	var (
		set StageSet
		err error
	)
	for _, name := range names {
		s, e := ParseStage(strings.TrimSpace(name))
		if e != nil {
			err = multierr.Append(err, fmt.Errorf("unknown stage, expected one of %s: %w", strings.Join(StageNames(), ", "), e))
			continue
		}
		set |= NewStageSet(s)
	}
	return set, err
}

// Has reports whether stage is in the set.
func (set StageSet) Has(s Stage) bool {
	return s.IsValid() && set&(1<<s) != 0
}

// Empty reports whether set has no stages.
func (set StageSet) Empty() bool {
	return set == 0
}

// Known reports whether set consists of known stages only.
func (set StageSet) Known() bool {
	return set&^allStages == 0
}

// Stages returns known stages of the set in pipeline order.
func (set StageSet) Stages() []Stage {
	var out []Stage
	for _, s := range Stages {
		if set.Has(s) {
			out = append(out, s)
		}
	}
	return out
}

// Union returns set containing stages of both sets.
func (set StageSet) Union(other StageSet) StageSet {
	return set | other
}

// Minus returns stages of set which are not in other.
func (set StageSet) Minus(other StageSet) StageSet {
	return set &^ other
}

func (set StageSet) String() string {
	if set.Empty() {
		return "none"
	}
	var parts []string
	for _, s := range set.Stages() {
		parts = append(parts, s.String())
	}
	if !set.Known() {
		parts = append(parts, "unknown")
	}
	return strings.Join(parts, ", ")
}
