// Jitstub attaches to a process through a debugserver-style remote stub and
// answers its JIT memory requests.
//
// The target signals a request by executing "brk #0x69" with the wanted
// address in x0 and size in x1. jitstub prepares the region through the
// stub, steps the program counter past the trap and resumes, until the
// session is interrupted or the stub goes away.
//
// Usage:
//
//	jitstub run --pid 812 --stub 127.0.0.1:1234
//
// See 'jitstub --help' for the inspection, monitoring and config commands.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/stikjit/jitstub/internal/config"
	"github.com/stikjit/jitstub/internal/logging"
	"github.com/stikjit/jitstub/internal/version"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// Global flags
var (
	configPath string
	stubAddr   string
	logLevel   string
	keepAcks   bool
)

var rootCmd = &cobra.Command{
	Use:   "jitstub",
	Short: "JIT memory negotiation over the GDB remote protocol",
	Long: `jitstub attaches to a process through a debug stub (debugserver or a
proxy to it) and services the process's JIT memory requests.

A request is a "brk #0x69" trap with the region address in x0 and its size
in x1 (0 means 64 KB). Each region is prepared through the stub and the
thread is resumed after the trap. Other breakpoints are stepped over.

Set JITSTUB_LOG_LEVEL=debug (or pass --log-level) to trace every packet.`,
	Version: version.Version,
	Example: `  # Attach to pid 812 through a local debugserver proxy
  jitstub run --pid 812

  # Use a saved profile and publish the session monitor
  jitstub run --profile emu --monitor 127.0.0.1:8765 --advertise

  # Decode a stop reply by hand
  jitstub parse 'T05thread:1a03;00:0000001000000000;20:0040001000000000;metype:6;'`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logging.Initialize(logLevel)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
	},
}

func init() {
	// Disable automatic completion command generation
	rootCmd.CompletionOptions.DisableDefaultCmd = true

	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default: platform config dir)")
	rootCmd.PersistentFlags().StringVar(&stubAddr, "stub", "", "Debug stub address host:port (overrides config)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error); default from "+logging.LogLevelEnvVar)
	rootCmd.PersistentFlags().BoolVar(&keepAcks, "ack", false, "Keep +/- acknowledgements instead of negotiating no-ack mode")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig reads the config file and applies the global flag overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if configPath != "" {
		cfg, err = config.LoadFrom(configPath)
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, err
	}

	if cmd.Flags().Changed("stub") {
		cfg.Stub.Address = stubAddr
	}
	if cmd.Flags().Changed("ack") {
		cfg.Stub.AckMode = keepAcks
	}
	return cfg, nil
}

// saveConfig writes cfg back to wherever it was loaded from.
func saveConfig(cfg *config.Config) error {
	if configPath != "" {
		return cfg.SaveTo(configPath)
	}
	return cfg.Save()
}

func resolvedConfigPath() (string, error) {
	if configPath != "" {
		return configPath, nil
	}
	return config.GetConfigPath()
}

var versionJSON bool

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	RunE: func(cmd *cobra.Command, args []string) error {
		if versionJSON {
			return printJSON(cmd.OutOrStdout(), version.Info())
		}
		info := version.Info()
		fmt.Fprintf(cmd.OutOrStdout(), "jitstub %s (commit: %s, %s, %s)\n",
			info.Version, info.Commit, info.GoVersion, info.Platform)
		return nil
	},
}

func init() {
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "Print as JSON")
}
