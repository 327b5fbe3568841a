// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package promconfig

import (
	"strings"
	"testing"
	"time"

	"github.com/efficientgo/core/testutil"
	"github.com/prometheus/common/model"
)

func TestConfig_MarshalAndLoad(t *testing.T) {
	cfg := Config{
		GlobalConfig: GlobalConfig{
			ScrapeInterval: model.Duration(5 * time.Second),
			ExternalLabels: model.LabelSet{"network": "net-1"},
		},
		ScrapeConfigs: []*ScrapeConfig{{
			JobName:       "nctl-nodes",
			MetricsPath:   "/metrics",
			StaticConfigs: []*Group{NewGroup(model.LabelSet{"node": "1"}, "localhost:14101")},
			RelabelConfigs: []*RelabelConfig{{
				SourceLabels: model.LabelNames{model.AddressLabel},
				Regex:        "^.+:80$",
				Action:       "drop",
			}},
		}},
	}

	b, err := cfg.Marshal()
	testutil.Ok(t, err)
	out := string(b)
	testutil.Assert(t, strings.HasPrefix(out, "global:\n  scrape_interval: 5s\n"), out)
	testutil.Assert(t, strings.Contains(out, "job_name: nctl-nodes"), out)
	testutil.Assert(t, strings.Contains(out, "source_labels: [__address__]"), out)
	testutil.Assert(t, !strings.Contains(out, "scrape_timeout"), out)
	testutil.Assert(t, !strings.Contains(out, "file_sd_configs"), out)

	loaded, err := Load(b)
	testutil.Ok(t, err)
	testutil.Equals(t, cfg, *loaded)
}

func TestConfig_Validate(t *testing.T) {
	for _, tcase := range []struct {
		name string
		cfg  Config
	}{
		{
			name: "empty job name",
			cfg:  Config{ScrapeConfigs: []*ScrapeConfig{{}}},
		},
		{
			name: "duplicated job",
			cfg:  Config{ScrapeConfigs: []*ScrapeConfig{{JobName: "a"}, {JobName: "a"}}},
		},
		{
			name: "timeout greater than global interval",
			cfg: Config{
				GlobalConfig:  GlobalConfig{ScrapeInterval: model.Duration(time.Second)},
				ScrapeConfigs: []*ScrapeConfig{{JobName: "a", ScrapeTimeout: model.Duration(2 * time.Second)}},
			},
		},
		{
			name: "empty target",
			cfg:  Config{ScrapeConfigs: []*ScrapeConfig{{JobName: "a", StaticConfigs: []*Group{NewGroup(nil, "")}}}},
		},
	} {
		t.Run(tcase.name, func(t *testing.T) {
			testutil.NotOk(t, tcase.cfg.Validate())
			_, err := tcase.cfg.Marshal()
			testutil.NotOk(t, err)
		})
	}

	testutil.Ok(t, Config{}.Validate())
}

func TestLoad_Strict(t *testing.T) {
	_, err := Load([]byte("global:\n  scrape_interval: 5s\nnot_a_field: true\n"))
	testutil.NotOk(t, err)
}
