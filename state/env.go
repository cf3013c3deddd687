// Package state defines shared program state.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"cssmc/config"
	"cssmc/plugin"
	"cssmc/plugins"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// used by build subcommand
	Overwrite bool
	Catalog   *plugins.Catalog

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

// Runner instantiates configured plugins in configured order. Catalog is
// created on first use, after logger is available.
func (e *LocalEnv) Runner() (*plugin.Runner, error) {
	log := e.Log
	if log == nil {
		log = zap.NewNop()
	}
	if e.Catalog == nil {
		e.Catalog = plugins.NewCatalog(log)
	}
	var specs []plugins.Spec
	if e.Cfg != nil {
		specs = e.Cfg.Pipeline.Specs()
	}
	descs, err := e.Catalog.Descriptors(specs)
	if err != nil {
		return nil, err
	}
	return plugin.NewRunner(log, descs...)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}
