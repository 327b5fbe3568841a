// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlmon

import (
	"bytes"
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/efficientgo/nctlci/monitoring/promconfig"
	"github.com/prometheus/common/model"
)

// Generator produces the content of Prometheus configuration file.
type Generator interface {
	Generate(ctx context.Context) ([]byte, error)
}

const (
	// DefaultRESTBasePort is the nctl base of node REST ports. Node n of network k listens on base + 100*k + n.
	DefaultRESTBasePort = 14000
	// NodesJobName is the scrape job name for network nodes.
	NodesJobName = "nctl-nodes"
)

var _ Generator = &NctlTargets{}

// NctlTargets generates configuration scraping metrics of every node of a local nctl network.
type NctlTargets struct {
	Nodes          int
	NetworkID      int
	Host           string
	RESTBasePort   int
	MetricsPath    string
	ScrapeInterval time.Duration
}

// NewNctlTargets returns generator for nodes 1..nodes of the given network, with nctl defaults.
func NewNctlTargets(nodes, networkID int) *NctlTargets {
	return &NctlTargets{
		Nodes:          nodes,
		NetworkID:      networkID,
		Host:           "localhost",
		RESTBasePort:   DefaultRESTBasePort,
		MetricsPath:    "/metrics",
		ScrapeInterval: 5 * time.Second,
	}
}

// NodeRESTEndpoint returns host:port of the REST server of the given node.
func (g *NctlTargets) NodeRESTEndpoint(node int) string {
	return fmt.Sprintf("%s:%d", g.Host, g.RESTBasePort+100*g.NetworkID+node)
}

func (g *NctlTargets) Config() (promconfig.Config, error) {
	if g.Nodes <= 0 {
		return promconfig.Config{}, errors.Newf("at least one node is required, got %d", g.Nodes)
	}
	if g.NetworkID <= 0 {
		return promconfig.Config{}, errors.Newf("network id has to be positive, got %d", g.NetworkID)
	}

	scfg := &promconfig.ScrapeConfig{
		JobName:     NodesJobName,
		MetricsPath: g.MetricsPath,
	}
	for n := 1; n <= g.Nodes; n++ {
		scfg.StaticConfigs = append(scfg.StaticConfigs, promconfig.NewGroup(model.LabelSet{
			"node": model.LabelValue(strconv.Itoa(n)),
		}, g.NodeRESTEndpoint(n)))
	}

	return promconfig.Config{
		GlobalConfig: promconfig.GlobalConfig{
			ScrapeInterval: model.Duration(g.ScrapeInterval),
			ExternalLabels: model.LabelSet{"network": model.LabelValue("net-" + strconv.Itoa(g.NetworkID))},
		},
		ScrapeConfigs: []*promconfig.ScrapeConfig{scfg},
	}, nil
}

func (g *NctlTargets) Generate(context.Context) ([]byte, error) {
	cfg, err := g.Config()
	if err != nil {
		return nil, err
	}
	return cfg.Marshal()
}

var _ Generator = &CommandGenerator{}

// CommandGenerator runs external generator and takes its stdout as the configuration.
type CommandGenerator struct {
	executor nctlci.Executor
	cmd      nctlci.Command
}

func NewCommandGenerator(e nctlci.Executor, cmd nctlci.Command) *CommandGenerator {
	return &CommandGenerator{executor: e, cmd: cmd}
}

func (g *CommandGenerator) Generate(ctx context.Context) ([]byte, error) {
	var out bytes.Buffer
	if err := g.executor.Exec(ctx, g.cmd, nctlci.WithExecOptionStdout(&out)); err != nil {
		return nil, errors.Wrap(err, "generate prometheus config")
	}
	return out.Bytes(), nil
}
