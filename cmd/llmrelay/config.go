package main

import (
	"github.com/HerbHall/llmrelay/internal/config"
	"github.com/spf13/cobra"
)

func newConfigCmd(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration",
		Long: `Print the configuration llmrelay would run with, after merging defaults,
the config file, LLMRELAY_* environment variables and flags. The API key
is redacted.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			v, err := loadConfig(cmd, opts)
			if err != nil {
				return err
			}
			if _, err := config.Decode(v); err != nil {
				return err
			}
			out, err := config.EffectiveYAML(v)
			if err != nil {
				return err
			}
			_, err = cmd.OutOrStdout().Write(out)
			return err
		},
	}
}
