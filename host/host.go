// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package host

import (
	"bytes"
	"os"
	"runtime"
)

// OSPlatform returns the host's OS platform akin to `runtime.GOOS`, with
// added awareness of Windows Subsystem for Linux (WSL) 2 environments.
// The possible values are the same as `runtime.GOOS`, plus "WSL2".
func OSPlatform() string {
	if isWSL2("/proc/version") {
		return "WSL2"
	}
	return runtime.GOOS
}

// SupportsDockerHostNetwork tells if containers started with `--network host` share the network namespace
// with processes of the given platform. Docker Desktop (macOS, Windows, WSL2 integration) runs containers in a VM.
func SupportsDockerHostNetwork(platform string) bool {
	return platform == "linux"
}

func isWSL2(versionFile string) bool {
	if runtime.GOOS != "linux" {
		return false
	}
	version, err := os.ReadFile(versionFile)
	if err != nil {
		return false
	}
	return bytes.Contains(version, []byte("WSL2"))
}
