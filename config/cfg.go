package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"os"

	validator "github.com/go-playground/validator/v10"
	yaml "gopkg.in/yaml.v3"

	"github.com/rupor-github/gencfg"

	"cssmc/icss"
	"cssmc/pipeline"
	"cssmc/plugin"
	"cssmc/plugins"
)

//go:embed config.yaml.tmpl
var ConfigTmpl []byte

type (
	TemplateFieldName string

	PluginConfig struct {
		Name    string            `yaml:"name" validate:"required"`
		Stages  []string          `yaml:"stages" validate:"required,min=1,dive,required"`
		Options map[string]string `yaml:"options,omitempty"`
	}

	PipelineConfig struct {
		Mode               icss.Mode      `yaml:"mode"`
		ScopedNameTemplate string         `yaml:"scoped_name_template"`
		HashContent        bool           `yaml:"hash_content"`
		Bundle             bool           `yaml:"bundle"`
		BundleName         string         `yaml:"bundle_name" validate:"excludes=/"`
		Parallelism        int            `yaml:"parallelism" validate:"gte=0"`
		IncludePaths       []string       `yaml:"include_paths" validate:"dive,required"`
		Plugins            []PluginConfig `yaml:"plugins" validate:"dive"`
	}

	OutputConfig struct {
		ExportsName string `yaml:"exports_name" validate:"required,excludes=/"`
		ICSS        bool   `yaml:"icss"`
	}

	Config struct {
		Version   int            `yaml:"version" validate:"eq=1"`
		Pipeline  PipelineConfig `yaml:"pipeline"`
		Output    OutputConfig   `yaml:"output"`
		Logging   LoggingConfig  `yaml:"logging"`
		Reporting ReporterConfig `yaml:"reporting"`
	}
)

const (
	// NOTE: must match yaml field name above
	ScopedNameTemplateFieldName TemplateFieldName = "scoped_name_template"
)

var requiredOptions = append([]func(*gencfg.ProcessingOptions){},
	gencfg.WithDoNotExpandField(string(ScopedNameTemplateFieldName)),
)

// Options converts pipeline section to build options.
func (conf *PipelineConfig) Options() pipeline.Options {
	return pipeline.Options{
		Mode:               conf.Mode,
		ScopedNameTemplate: conf.ScopedNameTemplate,
		HashContent:        conf.HashContent,
		Bundle:             conf.Bundle,
		BundleName:         conf.BundleName,
		Parallelism:        conf.Parallelism,
		IncludePaths:       conf.IncludePaths,
	}
}

// Specs converts configured plugins to catalog requests keeping their order.
func (conf *PipelineConfig) Specs() []plugins.Spec {
	specs := make([]plugins.Spec, 0, len(conf.Plugins))
	for _, p := range conf.Plugins {
		specs = append(specs, plugins.Spec{Name: p.Name, Stages: p.Stages, Options: p.Options})
	}
	return specs
}

// checkPipeline catches scheduling mistakes while configuration is loaded,
// so nothing is read from disk with unusable settings.
func checkPipeline(sl validator.StructLevel) {
	cfg := sl.Current().Interface().(Config)

	if _, err := icss.NewNamer(cfg.Pipeline.ScopedNameTemplate); err != nil {
		sl.ReportError(cfg.Pipeline.ScopedNameTemplate, "ScopedNameTemplate", "scoped_name_template", "template", "")
	}
	for i, p := range cfg.Pipeline.Plugins {
		set, err := plugin.ParseStageSet(p.Stages)
		if err != nil {
			sl.ReportError(p.Stages, fmt.Sprintf("Plugins[%d].Stages", i), "stages", "stage", p.Name)
			continue
		}
		if set.Has(plugin.StagePostBundle) && !cfg.Pipeline.Bundle {
			sl.ReportError(p.Stages, fmt.Sprintf("Plugins[%d].Stages", i), "stages", "bundle", p.Name)
		}
	}
}

func unmarshalConfig(data []byte, cfg *Config, process bool) (*Config, error) {
	// We want to use only fields we defined so we cannot use yaml.Unmarshal
	// directly here
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to decode configuration data: %w", err)
	}
	if process {
		// sanitize and validate what has been loaded
		if err := gencfg.Sanitize(cfg); err != nil {
			return nil, fmt.Errorf("failed to sanitize configuration: %w", err)
		}
		if err := gencfg.Validate(cfg, gencfg.WithAdditionalChecks(checkPipeline)); err != nil {
			return nil, fmt.Errorf("failed to validate configuration: %w", err)
		}
	}
	return cfg, nil
}

// LoadConfiguration reads the configuration from the file at the given path,
// superimposes its values on top of expanded configuration template to provide
// sane defaults and performs validation.
func LoadConfiguration(path string, options ...func(*gencfg.ProcessingOptions)) (*Config, error) {
	haveFile := len(path) > 0

	data, err := gencfg.Process(ConfigTmpl, append(requiredOptions, options...)...)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	cfg, err := unmarshalConfig(data, &Config{}, !haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration template: %w", err)
	}
	if !haveFile {
		return cfg, nil
	}

	// overwrite cfg values with values from the file
	data, err = os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err = unmarshalConfig(data, cfg, haveFile)
	if err != nil {
		return nil, fmt.Errorf("failed to process configuration file: %w", err)
	}
	return cfg, nil
}

// Prepare generates configuration file from template and returns it as a byte
// slice.
func Prepare() ([]byte, error) {
	return gencfg.Process(ConfigTmpl, requiredOptions...)
}

func Dump(cfg *Config) ([]byte, error) {
	data, err := yaml.Marshal(*cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal config to yaml: %v", err)
	}
	return data, nil
}
