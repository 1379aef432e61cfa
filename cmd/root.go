// Package cmd provides the command line interface for nfops
/*
Copyright © 2025 Travis Lyons travis.lyons@gmail.com

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in
all copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
THE SOFTWARE.
*/
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/trly/nfops/internal/config"
	"github.com/trly/nfops/internal/log"
)

// RootCommand represents the root command for nfops CLI.
type RootCommand struct{}

// annotationNoApp marks commands that run without an App.
const annotationNoApp = "nfops/no-app"

var (
	cfg            *config.Settings
	configFilePath string
	verbose        bool
	dbPath         string
	stateFile      string
	descriptorDir  string
	runtimeName    string
	unitAddress    string
)

// GetCobraCommand returns the cobra root command for nfops CLI.
func (c *RootCommand) GetCobraCommand() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "nfops",
		Short: "nfops brings up OAI 5G network functions in dependency order.",
		Long: `nfops brings up OAI 5G network functions in dependency order.
Each unit waits for the data its relations provide, renders its workload
configuration, confirms activation from the workload logs and then publishes
its own endpoint to the units that depend on it.`,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			provider := config.NewDefaultConfigProvider()
			if configFilePath != "" {
				provider.SetConfigFilePath(configFilePath)
			}
			loaded, err := provider.InitConfig()
			if err != nil {
				return fmt.Errorf("failed to load configuration: %w", err)
			}
			applyFlagOverrides(loaded)
			cfg = loaded
			log.Init(cfg.Verbose)

			if verbose {
				fmt.Fprintf(cmd.ErrOrStderr(), "%s using config: %s\n\n", cmd.Root().Use, viper.GetViper().ConfigFileUsed())
			}

			if _, ok := cmd.Annotations[annotationNoApp]; ok {
				return nil
			}
			app, err := NewApp(log.GetLogger(), provider)
			if err != nil {
				return err
			}
			cmd.SetContext(withApp(cmd.Context(), app))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			if app, ok := cmd.Context().Value(appContextKey).(*App); ok {
				return app.Close()
			}
			return nil
		},
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&configFilePath, "config", "", "Path to the configuration file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db-path", "", "Path to the relation database")
	rootCmd.PersistentFlags().StringVar(&stateFile, "state-file", "", "Path to the controller state file")
	rootCmd.PersistentFlags().StringVar(&descriptorDir, "descriptor-dir", "", "Directory of unit descriptor overrides")
	rootCmd.PersistentFlags().StringVar(&runtimeName, "runtime", "", "Workload runtime (pebble, systemd or fake)")
	rootCmd.PersistentFlags().StringVar(&unitAddress, "address", "", "Address this host publishes to related units")

	rootCmd.AddCommand(
		(&ConfigCommand{}).GetCobraCommand(),
		(&ReconcileCommand{}).GetCobraCommand(),
		(&RunCommand{}).GetCobraCommand(),
		(&RelationCommand{}).GetCobraCommand(),
		(&StatusCommand{}).GetCobraCommand(),
		(&DescriptorCommand{}).GetCobraCommand(),
		(&SimulateCommand{}).GetCobraCommand(),
		(&TrustCommand{}).GetCobraCommand(),
		(&VersionCommand{}).GetCobraCommand(),
	)

	return rootCmd
}

func applyFlagOverrides(settings *config.Settings) {
	if verbose {
		settings.Verbose = true
	}
	if dbPath != "" {
		settings.DBPath = dbPath
	}
	if stateFile != "" {
		settings.StateFile = stateFile
	}
	if descriptorDir != "" {
		settings.DescriptorDir = descriptorDir
	}
	if runtimeName != "" {
		settings.Runtime = runtimeName
	}
	if unitAddress != "" {
		settings.UnitAddress = unitAddress
	}
}
