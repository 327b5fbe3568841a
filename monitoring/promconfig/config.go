// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

// Copyright 2015 The Prometheus Authors
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package promconfig is a small, dependency-light subset of Prometheus configuration format, enough to
// generate scrape configuration for local networks.
package promconfig

import (
	"github.com/efficientgo/core/errors"
	"github.com/prometheus/common/model"
	"gopkg.in/yaml.v2"
)

// Config is the top-level configuration for Prometheus's config files.
type Config struct {
	GlobalConfig  GlobalConfig    `yaml:"global"`
	RuleFiles     []string        `yaml:"rule_files,omitempty"`
	ScrapeConfigs []*ScrapeConfig `yaml:"scrape_configs,omitempty"`
}

// GlobalConfig configures values that are used across other configuration objects.
type GlobalConfig struct {
	// How frequently to scrape targets by default.
	ScrapeInterval model.Duration `yaml:"scrape_interval,omitempty"`
	// The default timeout when scraping targets.
	ScrapeTimeout model.Duration `yaml:"scrape_timeout,omitempty"`
	// How frequently to evaluate rules by default.
	EvaluationInterval model.Duration `yaml:"evaluation_interval,omitempty"`
	// The labels to add to any timeseries that this Prometheus instance scrapes.
	ExternalLabels model.LabelSet `yaml:"external_labels,omitempty"`
}

// ScrapeConfig configures a scraping unit for Prometheus.
type ScrapeConfig struct {
	// The job name to which the job label is set by default.
	JobName string `yaml:"job_name"`
	// Indicator whether the scraped metrics should remain unmodified.
	HonorLabels bool `yaml:"honor_labels,omitempty"`
	// How frequently to scrape the targets of this scrape config.
	ScrapeInterval model.Duration `yaml:"scrape_interval,omitempty"`
	// The timeout for scraping targets of this config.
	ScrapeTimeout model.Duration `yaml:"scrape_timeout,omitempty"`
	// The HTTP resource path on which to fetch metrics from targets.
	MetricsPath string `yaml:"metrics_path,omitempty"`
	// The URL scheme with which to fetch metrics from targets.
	Scheme string `yaml:"scheme,omitempty"`

	// List of labeled target groups for this job.
	StaticConfigs []*Group `yaml:"static_configs,omitempty"`
	// List of file service discovery configurations.
	FileSDConfigs []*FileSDConfig `yaml:"file_sd_configs,omitempty"`

	// List of target relabel configurations.
	RelabelConfigs []*RelabelConfig `yaml:"relabel_configs,omitempty"`
}

// FileSDConfig is the configuration for file based discovery.
type FileSDConfig struct {
	Files           []string       `yaml:"files"`
	RefreshInterval model.Duration `yaml:"refresh_interval,omitempty"`
}

// RelabelConfig is the configuration for relabeling of target label sets.
type RelabelConfig struct {
	SourceLabels model.LabelNames `yaml:"source_labels,flow,omitempty"`
	Separator    string           `yaml:"separator,omitempty"`
	Regex        string           `yaml:"regex,omitempty"`
	TargetLabel  string           `yaml:"target_label,omitempty"`
	Replacement  string           `yaml:"replacement,omitempty"`
	Action       string           `yaml:"action,omitempty"`
}

// Group is a set of targets with a common label set (production, test, staging etc.).
type Group struct {
	// Targets is a list of targets identified by a label set. Each target is
	// uniquely identifiable in the group by its address label.
	Targets []model.LabelSet
	// Labels is a set of labels that is common across all targets in the group.
	Labels model.LabelSet
}

type group struct {
	Targets []string       `yaml:"targets"`
	Labels  model.LabelSet `yaml:"labels,omitempty"`
}

// NewGroup returns group for given addresses.
func NewGroup(labels model.LabelSet, addrs ...string) *Group {
	g := &Group{Labels: labels}
	for _, a := range addrs {
		g.Targets = append(g.Targets, model.LabelSet{model.AddressLabel: model.LabelValue(a)})
	}
	return g
}

// MarshalYAML implements the yaml.Marshaler interface.
func (tg Group) MarshalYAML() (interface{}, error) {
	g := &group{
		Targets: make([]string, 0, len(tg.Targets)),
		Labels:  tg.Labels,
	}
	for _, t := range tg.Targets {
		g.Targets = append(g.Targets, string(t[model.AddressLabel]))
	}
	return g, nil
}

// UnmarshalYAML implements the yaml.Unmarshaler interface.
func (tg *Group) UnmarshalYAML(unmarshal func(interface{}) error) error {
	g := group{}
	if err := unmarshal(&g); err != nil {
		return err
	}
	tg.Targets = make([]model.LabelSet, 0, len(g.Targets))
	for _, t := range g.Targets {
		tg.Targets = append(tg.Targets, model.LabelSet{
			model.AddressLabel: model.LabelValue(t),
		})
	}
	tg.Labels = g.Labels
	return nil
}

// Marshal returns the YAML form of the configuration, after validating it.
func (c Config) Marshal() ([]byte, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return yaml.Marshal(c)
}

// Validate checks the configuration the same way Prometheus would reject it on load.
func (c Config) Validate() error {
	jobs := map[string]struct{}{}
	for _, s := range c.ScrapeConfigs {
		if s == nil {
			return errors.New("empty scrape config")
		}
		if s.JobName == "" {
			return errors.New("job_name is empty")
		}
		if _, ok := jobs[s.JobName]; ok {
			return errors.Newf("found multiple scrape configs with job name %q", s.JobName)
		}
		jobs[s.JobName] = struct{}{}

		timeout, interval := s.ScrapeTimeout, s.ScrapeInterval
		if interval == 0 {
			interval = c.GlobalConfig.ScrapeInterval
		}
		if timeout != 0 && interval != 0 && timeout > interval {
			return errors.Newf("scrape timeout greater than scrape interval for scrape config with job name %q", s.JobName)
		}
		for _, g := range s.StaticConfigs {
			for _, t := range g.Targets {
				if t[model.AddressLabel] == "" {
					return errors.Newf("empty target address in scrape config with job name %q", s.JobName)
				}
			}
		}
	}
	return nil
}

// Load parses the YAML input s into a Config.
func Load(s []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.UnmarshalStrict(s, cfg); err != nil {
		return nil, errors.Wrap(err, "parse prometheus config")
	}
	return cfg, cfg.Validate()
}
