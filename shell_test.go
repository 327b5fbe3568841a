// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"testing"

	"github.com/efficientgo/core/testutil"
)

func TestShellSession_Script(t *testing.T) {
	e := &recordingExecutor{}
	s := NewShellSession(e, "/drone/src", "utils/nctl/activate")
	testutil.Equals(t, "/drone/src/utils/nctl/activate", s.ActivateScript())

	testutil.Ok(t, s.Source(context.Background(), "/drone/src/utils/nctl/sh/scenarios/sync_test.sh", []string{"node=6", "timeout=500"}))
	testutil.Ok(t, s.Run(context.Background(), "nctl-compile"))

	testutil.Equals(t, 2, len(e.cmds))
	testutil.Equals(t, Command{
		Cmd: "bash",
		Args: []string{"-c", "set -e\nshopt -s expand_aliases\nsource /drone/src/utils/nctl/activate\n" +
			"source /drone/src/utils/nctl/sh/scenarios/sync_test.sh node=6 timeout=500\n"},
		Dir: "/drone/src",
	}, e.cmds[0])
	testutil.Equals(t, "set -e\nshopt -s expand_aliases\nsource /drone/src/utils/nctl/activate\nnctl-compile\n", e.cmds[1].Args[1])

	abs := NewShellSession(e, "/drone/src", "/opt/my nctl/activate", WithShell("/usr/local/bin/bash"))
	testutil.Equals(t, "/opt/my nctl/activate", abs.ActivateScript())
	testutil.Equals(t, "/usr/local/bin/bash", abs.Command().Cmd)
	testutil.Equals(t, "set -e\nshopt -s expand_aliases\nsource '/opt/my nctl/activate'\n", abs.Script())
}

func TestShellSession_Activate(t *testing.T) {
	dir := t.TempDir()
	e := &recordingExecutor{}
	s := NewShellSession(e, dir, "activate")

	// No script yet.
	testutil.NotOk(t, s.Activate(context.Background()))
	testutil.Equals(t, 0, len(e.cmds))

	// Root is not there.
	testutil.NotOk(t, NewShellSession(e, filepath.Join(dir, "missing"), "activate").Activate(context.Background()))
	testutil.Equals(t, 0, len(e.cmds))

	testutil.Ok(t, os.WriteFile(filepath.Join(dir, "activate"), []byte("alias nctl-hello='echo hello'\n"), 0600))
	testutil.Ok(t, s.Activate(context.Background()))
	testutil.Equals(t, 1, len(e.cmds))
	testutil.Equals(t, dir, e.cmds[0].Dir)
}

func TestShellSession_RealBash(t *testing.T) {
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash is required")
	}

	dir := t.TempDir()
	testutil.Ok(t, os.WriteFile(filepath.Join(dir, "activate"), []byte("alias nctl-hello='echo hello from'\n"), 0600))
	testutil.Ok(t, os.WriteFile(filepath.Join(dir, "scenario.sh"), []byte("echo \"$1 $2\"\n[ \"$3\" != fail ]\n"), 0600))

	s := NewShellSession(NewHostExecutor(NewLogger(io.Discard), false), dir, "activate")
	testutil.Ok(t, s.Activate(context.Background()))

	var out bytes.Buffer
	testutil.Ok(t, s.Run(context.Background(), "nctl-hello alias", WithExecOptionStdout(&out)))
	testutil.Equals(t, "hello from alias\n", out.String())

	out.Reset()
	testutil.Ok(t, s.Source(context.Background(), "scenario.sh", []string{"node=6", "timeout=500"}, WithExecOptionStdout(&out)))
	testutil.Equals(t, "node=6 timeout=500\n", out.String())

	// Arguments reach the script verbatim, nothing is expanded.
	out.Reset()
	testutil.Ok(t, s.Source(context.Background(), "scenario.sh", []string{"it's a node", "$HOME"}, WithExecOptionStdout(&out)))
	testutil.Equals(t, "it's a node $HOME\n", out.String())

	err := s.Source(context.Background(), "scenario.sh", []string{"node=6", "timeout=500", "fail"}, WithExecOptionStdout(io.Discard))
	testutil.NotOk(t, err)
	testutil.Equals(t, 1, ExitCode(err))
}
