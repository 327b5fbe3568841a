// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlinteractive

import (
	"testing"

	"github.com/efficientgo/core/testutil"
)

func TestOpenCommand(t *testing.T) {
	for _, tcase := range []struct {
		platform string
		args     []string
	}{
		{platform: "linux", args: []string{"xdg-open", "http://localhost:9090"}},
		{platform: "WSL2", args: []string{"cmd.exe", "/c", "start", "http://localhost:9090"}},
		{platform: "windows", args: []string{"rundll32", "url.dll,FileProtocolHandler", "http://localhost:9090"}},
		{platform: "darwin", args: []string{"open", "http://localhost:9090"}},
	} {
		t.Run(tcase.platform, func(t *testing.T) {
			testutil.Equals(t, tcase.args, openCommand(tcase.platform, "http://localhost:9090").Args)
		})
	}

	testutil.NotOk(t, openCommand("plan9", "http://localhost:9090").Run())
}
