package main

import (
	"fmt"

	"github.com/cozis/cozyfs/cfg"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	cfgFile      string
	bindErr      error
	rootConfig   cfg.Config
	configErr    error
	unmarshalErr error
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "cozyfsctl",
		Short: "Run a single operation against a buffer-backed CozyFS file",
		Long: `cozyfsctl runs exactly one operation against a file holding a
CozyFS buffer, then exits. It is a host program over the engine, not a
shell or a mount helper: every invocation formats, inspects, or mutates
the file once and returns.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if bindErr != nil {
				return bindErr
			}
			if configErr != nil {
				return configErr
			}
			return unmarshalErr
		},
	}

	root.PersistentFlags().StringVar(&cfgFile, "config-file", "", "Path to a YAML config file")
	bindErr = cfg.BindFlags(root.PersistentFlags())
	cobra.OnInitialize(initConfig)

	root.AddCommand(
		newInitCmd(),
		newMkdirCmd(),
		newRmdirCmd(),
		newLsCmd(),
		newStatCmd(),
		newCatCmd(),
		newWriteCmd(),
		newLinkCmd(),
		newUnlinkCmd(),
		newMkusrCmd(),
		newRmusrCmd(),
	)

	return root
}

func initConfig() {
	if cfgFile == "" {
		unmarshalErr = viper.Unmarshal(&rootConfig)
		return
	}
	viper.SetConfigFile(cfgFile)
	viper.SetConfigType("yaml")
	if err := viper.ReadInConfig(); err != nil {
		configErr = fmt.Errorf("reading config file: %w", err)
		return
	}
	unmarshalErr = viper.Unmarshal(&rootConfig)
}
