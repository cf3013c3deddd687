// Package build implements the build subcommand: it runs the stylesheet
// pipeline over a source tree and writes results to the destination
// directory.
package build

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	cli "github.com/urfave/cli/v3"
	"go.uber.org/zap"

	"cssmc/archive"
	"cssmc/config"
	"cssmc/pipeline"
	"cssmc/state"
	"cssmc/utils/debug"
)

func Run(ctx context.Context, cmd *cli.Command) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	env := state.EnvFromContext(ctx)
	log := env.Log.Named("build")

	src := cmd.Args().Get(0)
	if len(src) == 0 {
		return errors.New("no input source has been specified")
	}
	if src, err = filepath.Abs(src); err != nil {
		return err
	}

	dst := cmd.Args().Get(1)
	if len(dst) == 0 {
		if dst, err = os.Getwd(); err != nil {
			return fmt.Errorf("unable to get working directory: %w", err)
		}
	}
	if dst, err = filepath.Abs(dst); err != nil {
		return err
	}

	// command line overrides configuration
	if cmd.IsSet("bundle") {
		env.Cfg.Pipeline.Bundle = cmd.Bool("bundle")
	}
	if cmd.IsSet("mode") {
		if err := env.Cfg.Pipeline.Mode.UnmarshalText([]byte(cmd.String("mode"))); err != nil {
			return fmt.Errorf("unable to set scoping mode: %w", err)
		}
	}
	env.Overwrite = cmd.Bool("overwrite")

	log.Info("Processing starting", zap.String("source", src), zap.String("destination", dst))
	defer func(start time.Time) {
		log.Info("Processing completed", zap.Duration("elapsed", time.Since(start)))
	}(time.Now())

	var entries []string
	if cmd.Args().Len() > 2 {
		entries = cmd.Args().Slice()[2:]
	}
	return process(ctx, src, dst, entries, cmd.String("pattern"), env, log)
}

// process handles the core build logic independently of CLI framework.
// When no entries are given every file matching pattern is an entry.
func process(ctx context.Context, src, dst string, entries []string, pattern string, env *state.LocalEnv, log *zap.Logger) error {
	sources, err := archive.Open(src)
	if err != nil {
		return fmt.Errorf("unable to open sources: %w", err)
	}
	defer sources.Close()

	if len(entries) == 0 {
		if entries, err = sources.Entries(pattern); err != nil {
			return fmt.Errorf("unable to list sources: %w", err)
		}
		if len(entries) == 0 {
			return fmt.Errorf("no stylesheets matching %q found in %s", pattern, src)
		}
	} else {
		for i, e := range entries {
			if entries[i], err = sources.Rel(e); err != nil {
				return err
			}
		}
	}

	snapshotSources(env.Rpt, sources, pattern, log)

	runner, err := env.Runner()
	if err != nil {
		return fmt.Errorf("unable to prepare plugins: %w", err)
	}
	p, err := pipeline.New(log, sources.FS, runner, env.Cfg.Pipeline.Options())
	if err != nil {
		return fmt.Errorf("unable to prepare pipeline: %w", err)
	}

	res, err := p.Build(ctx, entries...)
	if err != nil {
		return err
	}
	storeDiagnostics(env.Rpt, res)

	outputs, err := render(res, &env.Cfg.Output, env.Cfg.Pipeline.BundleName)
	if err != nil {
		return err
	}
	return write(dst, outputs, env, log)
}

// output is a single file to be written, name is slash separated and
// relative to destination.
type output struct {
	name string
	data []byte
}

func render(res *pipeline.Result, conf *config.OutputConfig, bundleName string) ([]output, error) {
	var outputs []output

	if res.Bundle != nil {
		if bundleName == "" {
			bundleName = pipeline.DefaultBundleName
		}
		outputs = append(outputs, output{name: bundleName, data: []byte(res.Bundle.String())})
	} else {
		for _, a := range res.Modules {
			outputs = append(outputs, output{name: string(a.ID), data: []byte(a.Sheet.String())})
		}
	}

	if conf.ICSS {
		for _, a := range res.Modules {
			n, ok := res.Graph.Node(a.ID)
			if !ok {
				continue
			}
			outputs = append(outputs, output{name: string(a.ID) + ".icss", data: []byte(n.Module.ICSS().String())})
		}
	}

	data, err := json.MarshalIndent(res.Exports(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("unable to encode exports: %w", err)
	}
	outputs = append(outputs, output{name: conf.ExportsName, data: append(data, '\n')})
	return outputs, nil
}

// outputPath maps output name to file system path under dst.
func outputPath(dst, name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = config.CleanPathSegment(p)
	}
	return filepath.Join(append([]string{dst}, parts...)...)
}

// write stores outputs under dst. Existing files are checked before anything
// is written so a refused build leaves destination untouched.
func write(dst string, outputs []output, env *state.LocalEnv, log *zap.Logger) error {
	paths := make([]string, len(outputs))
	for i, o := range outputs {
		paths[i] = outputPath(dst, o.name)
		if _, err := os.Stat(paths[i]); err == nil {
			if !env.Overwrite {
				return fmt.Errorf("output file already exists: %s", paths[i])
			}
			log.Warn("Overwriting existing file", zap.String("file", paths[i]))
		} else if !os.IsNotExist(err) {
			return err
		}
	}

	for i, o := range outputs {
		if err := os.MkdirAll(filepath.Dir(paths[i]), 0755); err != nil {
			return fmt.Errorf("unable to create output directory: %w", err)
		}
		if err := os.WriteFile(paths[i], o.data, 0644); err != nil {
			return fmt.Errorf("unable to write output: %w", err)
		}
		log.Debug("Output written", zap.String("file", paths[i]), zap.Int("bytes", len(o.data)))

		// Store build result for debugging
		env.Rpt.Store("result/"+o.name, paths[i])
	}
	return nil
}

// snapshotSources puts stylesheets as they were at the start of the build
// into debug report. Failure here never fails the build.
func snapshotSources(rpt *config.Report, sources *archive.Sources, pattern string, log *zap.Logger) {
	if rpt == nil {
		return
	}
	names, err := sources.Entries(pattern)
	if err == nil {
		err = rpt.StoreSources("sources", sources.FS, names)
	}
	if err != nil {
		log.Warn("Unable to put sources into debug report", zap.Error(err))
	}
}

// storeDiagnostics puts module graph, processed modules with their export
// tables and compiled ICSS into debug report.
func storeDiagnostics(rpt *config.Report, res *pipeline.Result) {
	if rpt == nil {
		return
	}
	prefix := "build-" + res.BuildID.String() + "/"

	rpt.StoreData(prefix+"graph.txt", []byte(res.Graph.Dump()))

	tw := debug.NewTreeWriter()
	for _, a := range res.Modules {
		tw.Line(0, "%s", a.ID)
		tw.Verbatim(1, a.Sheet.String())
		tw.Line(1, "exports:")
		tw.Map(2, a.Symbols.ExportMap())
	}
	rpt.StoreData(prefix+"modules.txt", []byte(tw.String()))

	for _, id := range res.Graph.IDs() {
		if n, ok := res.Graph.Node(id); ok {
			rpt.StoreData(prefix+"icss/"+string(id), []byte(n.Module.ICSS().String()))
		}
	}
}
