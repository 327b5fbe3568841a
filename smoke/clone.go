// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlsmoke

import (
	"context"

	"github.com/efficientgo/core/errors"
	"github.com/efficientgo/nctlci"
	"github.com/go-git/go-git/v5"
)

// Cloner clones git repository into a local directory.
type Cloner interface {
	Clone(ctx context.Context, url, dir string) error
}

var _ Cloner = &GitCloner{}

// GitCloner clones with the pure Go git implementation, no git binary is needed.
type GitCloner struct {
	logger nctlci.Logger
}

func NewGitCloner(logger nctlci.Logger) *GitCloner {
	return &GitCloner{logger: logger}
}

// Clone clones url into dir, which must not exist or be empty.
func (c *GitCloner) Clone(ctx context.Context, url, dir string) error {
	if _, err := git.PlainCloneContext(ctx, dir, false, &git.CloneOptions{
		URL:      url,
		Progress: nctlci.NewLinePrefixLogger("git: ", c.logger),
	}); err != nil {
		return errors.Wrapf(err, "clone %v into %v", url, dir)
	}
	return nil
}
