// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

// This module drives nctl based local network smoke tests in CI and launches Prometheus against such network.
// It is a small toolkit of fail-fast steps: host commands, shell sessions with sourced activation scripts,
// waits with readiness probing and metric assertions.
//
// See smoke and monitoring packages for the two entry points, and cmd/nctlci for the CLI.
