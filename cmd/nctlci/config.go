// Copyright (c) The EfficientGo Authors.
// Licensed under the Apache License 2.0.

package main

import (
	"strings"

	"github.com/efficientgo/core/errors"
	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const envPrefix = "NCTLCI"

// newViper layers configuration for a command: flags set explicitly override NCTLCI_* environment variables,
// which override the config file, which overrides flag defaults. Flag names are the keys, e.g. --launcher-dir
// can be set with NCTLCI_LAUNCHER_DIR or `launcher-dir:` in the file.
func newViper(flags *pflag.FlagSet, configFile, envFile string) (*viper.Viper, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil {
			return nil, errors.Wrapf(err, "load env file %v", envFile)
		}
	}

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	if err := v.BindPFlags(flags); err != nil {
		return nil, errors.Wrap(err, "bind flags")
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "read config file %v", configFile)
		}
	}
	return v, nil
}
