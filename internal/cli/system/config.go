package system

import (
	stderrors "errors"
	"fmt"

	"github.com/julianstephens/horizon/internal/cli"
	"github.com/julianstephens/horizon/internal/config"
	"github.com/julianstephens/horizon/internal/errors"
	"github.com/julianstephens/horizon/internal/storage/postgres"
)

type ConfigCmd struct {
	Show ConfigShowCmd `cmd:"" default:"1" help:"Show the effective configuration."`
	Set  ConfigSetCmd  `cmd:"" help:"Set a configuration value and save the config file."`
}

type ConfigShowCmd struct{}

func (cmd *ConfigShowCmd) Run(ctx *cli.Context) error {
	fmt.Printf("Config file: %s\n\n", ctx.ConfigPath)
	for _, key := range config.Keys() {
		value, err := ctx.Config.Get(key)
		if err != nil {
			return err
		}
		if key == "database" && config.IsPostgresDSN(value) {
			value = postgres.MaskPassword(value)
		}
		fmt.Printf("%-30s %s\n", key, value)
	}
	return nil
}

type ConfigSetCmd struct {
	Key   string `arg:"" help:"Configuration key, e.g. timezone or achievements.first_completion."`
	Value string `arg:"" help:"New value."`
}

func (cmd *ConfigSetCmd) Run(ctx *cli.Context) error {
	if cmd.Key == "database" && config.IsPostgresDSN(cmd.Value) {
		if err := postgres.ValidateConnString(cmd.Value, false); err != nil {
			if stderrors.Is(err, postgres.ErrEmbeddedCredentials) {
				return errors.InvalidArgument("connection strings with passwords must be stored with 'keyring set', not in the config file")
			}
			return errors.InvalidArgument("%v", err)
		}
	}

	// start from the file so flag and environment overrides are not persisted
	cfg, err := config.Load(ctx.ConfigPath)
	if err != nil {
		return err
	}
	if err := cfg.Set(cmd.Key, cmd.Value); err != nil {
		return err
	}
	if err := config.Save(ctx.ConfigPath, cfg); err != nil {
		return err
	}

	fmt.Printf("✓ %s = %s\n", cmd.Key, cmd.Value)
	return nil
}
