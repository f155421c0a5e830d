package main

import (
	"fmt"
	"os"

	"github.com/HerbHall/llmrelay/internal/config"
	"github.com/HerbHall/llmrelay/internal/version"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// rootOptions holds the global flags.
type rootOptions struct {
	cfgFile string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "llmrelay",
		Short: "WebSocket relay for OpenAI chat completions",
		Long: `llmrelay accepts WebSocket connections and answers every text frame with
a chat completion from the OpenAI API. Each reply is either the model's
answer prefixed with "OpenAI: " or the fixed string "Error processing request".

Running llmrelay without a subcommand is the same as "llmrelay serve".`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, opts)
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVarP(&opts.cfgFile, "config", "c", "", "config file path (default: llmrelay.yaml in ., ./configs, /etc/llmrelay)")
	flags.String("host", "", "listen host (overrides server.host)")
	flags.Int("port", 0, "listen port (overrides server.port)")
	flags.String("log-level", "", "log level: debug, info, warn, error (overrides logging.level)")

	cmd.AddCommand(
		newServeCmd(opts),
		newVersionCmd(),
		newConfigCmd(opts),
	)
	return cmd
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "llmrelay:", err)
		os.Exit(1)
	}
}

// flagKeys maps persistent flags to the config keys they override.
var flagKeys = map[string]string{
	"host":      "server.host",
	"port":      "server.port",
	"log-level": "logging.level",
}

// loadConfig loads file and environment configuration, then applies any
// flags set on the command line.
func loadConfig(cmd *cobra.Command, opts *rootOptions) (*viper.Viper, error) {
	v, err := config.Load(opts.cfgFile)
	if err != nil {
		return nil, err
	}
	for name, key := range flagKeys {
		f := cmd.Flags().Lookup(name)
		if f == nil || !f.Changed {
			continue
		}
		if err := v.BindPFlag(key, f); err != nil {
			return nil, fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return v, nil
}
