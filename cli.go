// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package nctlci

import "sort"

// BuildArgs returns name=value arguments sorted by name, so the same flags always produce the same command line.
// Flags with empty value are passed as bare names.
func BuildArgs(flags map[string]string) []string {
	names := make([]string, 0, len(flags))
	for name := range flags {
		names = append(names, name)
	}
	sort.Strings(names)

	args := make([]string, 0, len(flags))
	for _, name := range names {
		if value := flags[name]; value != "" {
			args = append(args, name+"="+value)
		} else {
			args = append(args, name)
		}
	}

	return args
}
