package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/edumarques81/stellar-player/internal/config"
)

// globalFlags are shared by every command.
type globalFlags struct {
	configFiles []string
	envFile     string
}

func newRootCmd() *cobra.Command {
	g := &globalFlags{}

	// Without a sub-command the root runs the server.
	serve := newServeCmd(g)
	root := &cobra.Command{
		Use:          "stellar-player",
		Short:        "Album playlist server",
		Args:         cobra.NoArgs,
		RunE:         serve.RunE,
		SilenceUsage: true,
	}
	root.Flags().AddFlagSet(serve.Flags())
	root.PersistentFlags().StringSliceVarP(&g.configFiles, "config", "c", nil,
		"TOML config file, repeatable; later files win (default ~/.config/stellar-player/config.toml, ./config.toml)")
	root.PersistentFlags().StringVar(&g.envFile, "env-file", "", "dotenv file loaded before STELLAR_* variables (default .env)")

	root.AddCommand(serve, newGenerateCmd(), newVersionCmd())
	return root
}

// flagKeys maps a command's flag names to config keys. Only flags set on
// the command line override the lower layers.
type flagKeys map[string]string

func (g *globalFlags) load(cmd *cobra.Command, keys flagKeys) (*config.Config, error) {
	overrides := make(map[string]any)
	for name, key := range keys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if f.Value.Type() == "stringSlice" {
			v, err := cmd.Flags().GetStringSlice(name)
			if err != nil {
				return nil, err
			}
			overrides[key] = v
			continue
		}
		overrides[key] = f.Value.String()
	}

	cfg, err := config.Load(config.Options{
		Files:     g.configFiles,
		EnvFile:   g.envFile,
		Overrides: overrides,
	})
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}
