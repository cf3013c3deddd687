// Package plugin applies external stylesheet transforms at the pipeline
// stages they were registered for.
package plugin

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssmc/css"
)

// TransformFunc transforms a stylesheet. It receives exclusive ownership of
// sheet and returns the stylesheet to pass on, which may be sheet itself.
// Transforms have no access to pipeline state besides their arguments.
type TransformFunc func(ctx context.Context, stage Stage, sheet *css.Stylesheet) (*css.Stylesheet, error)

// Descriptor registers a transform for a set of stages.
type Descriptor struct {
	Name      string
	Stages    StageSet
	Transform TransformFunc
}

// StageError reports a plugin which cannot be scheduled as requested. It
// is always returned before any file is processed.
type StageError struct {
	Plugin string
	Stages StageSet
	Reason string
}

func (e *StageError) Error() string {
	return fmt.Sprintf("plugin %q (stages: %s): %s", e.Plugin, e.Stages, e.Reason)
}

// RuntimeError reports transform failure.
type RuntimeError struct {
	Plugin string
	Stage  Stage
	Module string
	Err    error
}

func (e *RuntimeError) Error() string {
	return fmt.Sprintf("plugin %q failed at %s stage on %s: %v", e.Plugin, e.Stage, e.Module, e.Err)
}

func (e *RuntimeError) Unwrap() error {
	return e.Err
}

// Runner applies registered plugins. It is immutable after creation and
// safe for concurrent use as long as transforms are.
type Runner struct {
	log     *zap.Logger
	plugins []Descriptor
}

// NewRunner validates descriptors and creates runner keeping their order.
// All problems are reported together.
func NewRunner(log *zap.Logger, descriptors ...Descriptor) (*Runner, error) {
	if log == nil {
		log = zap.NewNop()
	}

	var (
		err  error
		seen = make(map[string]bool)
	)
	for _, d := range descriptors {
		switch {
		case d.Name == "":
			err = multierr.Append(err, &StageError{Plugin: d.Name, Stages: d.Stages, Reason: "plugin has no name"})
		case seen[d.Name]:
			err = multierr.Append(err, &StageError{Plugin: d.Name, Stages: d.Stages, Reason: "plugin is registered more than once"})
		}
		seen[d.Name] = true

		if d.Transform == nil {
			err = multierr.Append(err, &StageError{Plugin: d.Name, Stages: d.Stages, Reason: "plugin has no transform"})
		}
		switch {
		case d.Stages.Empty():
			err = multierr.Append(err, &StageError{Plugin: d.Name, Stages: d.Stages, Reason: "stage set is empty"})
		case !d.Stages.Known():
			err = multierr.Append(err, &StageError{Plugin: d.Name, Stages: d.Stages, Reason: "stage set contains unrecognized stages"})
		}
	}
	if err != nil {
		return nil, err
	}

	r := &Runner{log: log.Named("plugins"), plugins: append([]Descriptor(nil), descriptors...)}
	for _, d := range r.plugins {
		r.log.Debug("Plugin registered", zap.String("plugin", d.Name), zap.Stringer("stages", d.Stages))
	}
	return r, nil
}

// Scheduled returns names of plugins which run at stage, in order.
func (r *Runner) Scheduled(stage Stage) []string {
	var names []string
	for _, d := range r.plugins {
		if d.Stages.Has(stage) {
			names = append(names, d.Name)
		}
	}
	return names
}

// Stages returns union of stages plugins are registered for.
func (r *Runner) Stages() StageSet {
	var set StageSet
	for _, d := range r.plugins {
		set = set.Union(d.Stages)
	}
	return set
}

// Apply runs plugins registered for stage on sheet sequentially in
// registration order. module names the stylesheet in logs and errors.
func (r *Runner) Apply(ctx context.Context, stage Stage, module string, sheet *css.Stylesheet) (*css.Stylesheet, error) {
	if !stage.IsValid() {
		return nil, fmt.Errorf("unable to apply plugins: invalid stage %d", int(stage))
	}
	for _, d := range r.plugins {
		if !d.Stages.Has(stage) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		r.log.Debug("Applying plugin", zap.String("plugin", d.Name), zap.Stringer("stage", stage), zap.String("module", module))

		out, err := d.Transform(ctx, stage, sheet)
		if err != nil {
			return nil, &RuntimeError{Plugin: d.Name, Stage: stage, Module: module, Err: err}
		}
		if out == nil {
			return nil, &RuntimeError{Plugin: d.Name, Stage: stage, Module: module, Err: errors.New("transform returned no stylesheet")}
		}
		sheet = out
	}
	return sheet, nil
}
