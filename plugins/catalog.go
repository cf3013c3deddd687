// Package plugins holds the catalog of built-in stylesheet transforms.
package plugins

import (
	"fmt"
	"sort"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"cssmc/plugin"
)

// Factory creates transform configured with options.
type Factory func(log *zap.Logger, options map[string]string) (plugin.TransformFunc, error)

// Entry describes a plugin available by name.
type Entry struct {
	Name        string
	Description string
	// Stages the plugin is compatible with.
	Stages  plugin.StageSet
	Factory Factory
}

// Spec requests a catalog plugin at specific stages.
type Spec struct {
	Name    string
	Stages  []string
	Options map[string]string
}

// Catalog maps plugin names to entries.
type Catalog struct {
	log     *zap.Logger
	entries map[string]Entry
}

// NewCatalog returns catalog with all built-in plugins registered.
func NewCatalog(log *zap.Logger) *Catalog {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Catalog{log: log, entries: make(map[string]Entry)}
	for _, e := range []Entry{eachEntry, calcEntry, rewriteURLsEntry, bannerEntry} {
		if err := c.Register(e); err != nil {
			panic(err)
		}
	}
	return c
}

// Register adds entry to the catalog.
func (c *Catalog) Register(e Entry) error {
	if e.Name == "" || e.Factory == nil {
		return fmt.Errorf("catalog entry %q is incomplete", e.Name)
	}
	if e.Stages.Empty() || !e.Stages.Known() {
		return &plugin.StageError{Plugin: e.Name, Stages: e.Stages, Reason: "catalog entry has invalid stage set"}
	}
	if _, ok := c.entries[e.Name]; ok {
		return fmt.Errorf("catalog entry %q already registered", e.Name)
	}
	c.entries[e.Name] = e
	return nil
}

// Entry returns entry by name.
func (c *Catalog) Entry(name string) (Entry, bool) {
	e, ok := c.entries[name]
	return e, ok
}

// Names returns sorted entry names.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Descriptors binds specs to catalog entries keeping spec order. Unknown
// plugins, unknown or empty stage lists and stages the plugin does not
// support are all reported together.
func (c *Catalog) Descriptors(specs []Spec) ([]plugin.Descriptor, error) {
	var (
		out  []plugin.Descriptor
		errs error
	)
	for _, s := range specs {
		e, ok := c.entries[s.Name]
		if !ok {
			errs = multierr.Append(errs, &plugin.StageError{Plugin: s.Name, Reason: fmt.Sprintf("unknown plugin, available: %v", c.Names())})
			continue
		}
		set, err := plugin.ParseStageSet(s.Stages)
		if err != nil {
			errs = multierr.Append(errs, &plugin.StageError{Plugin: s.Name, Stages: set, Reason: err.Error()})
			continue
		}
		if set.Empty() {
			errs = multierr.Append(errs, &plugin.StageError{Plugin: s.Name, Stages: set, Reason: "no stages requested"})
			continue
		}
		if bad := set.Minus(e.Stages); !bad.Empty() {
			errs = multierr.Append(errs, &plugin.StageError{Plugin: s.Name, Stages: set,
				Reason: fmt.Sprintf("cannot run at %s, compatible stages: %s", bad, e.Stages)})
			continue
		}
		fn, err := e.Factory(c.log.Named(s.Name), s.Options)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("plugin %q: %w", s.Name, err))
			continue
		}
		out = append(out, plugin.Descriptor{Name: s.Name, Stages: set, Transform: fn})
	}
	if errs != nil {
		return nil, errs
	}
	return out, nil
}

func checkOptions(options map[string]string, known ...string) error {
	var errs error
	for k := range options {
		found := false
		for _, n := range known {
			if k == n {
				found = true
				break
			}
		}
		if !found {
			errs = multierr.Append(errs, fmt.Errorf("unknown option %q", k))
		}
	}
	return errs
}
