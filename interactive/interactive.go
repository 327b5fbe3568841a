// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlinteractive

import (
	"fmt"
	"os/exec"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci/host"
)

// OpenInBrowser opens url in the default browser of the host.
func OpenInBrowser(url string) error {
	fmt.Println("Opening", url, "in browser.")
	return openCommand(host.OSPlatform(), url).Run()
}

func openCommand(platform, url string) *exec.Cmd {
	switch platform {
	case "linux":
		return exec.Command("xdg-open", url)
	case "WSL2":
		return exec.Command("cmd.exe", "/c", "start", url)
	case "windows":
		return exec.Command("rundll32", "url.dll,FileProtocolHandler", url)
	case "darwin":
		return exec.Command("open", url)
	default:
		c := exec.Command("false")
		c.Err = errors.Newf("unsupported platform %v", platform)
		return c
	}
}
