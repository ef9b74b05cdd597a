package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/stikjit/jitstub/internal/config"
	"github.com/stikjit/jitstub/internal/ui"
)

// Config command flags
var (
	initForce          bool
	profilePID         int
	profileAddress     string
	profileDescription string
)

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.AddCommand(configShowCmd, configPathCmd, configInitCmd, configSetProfileCmd)

	configInitCmd.Flags().BoolVarP(&initForce, "force", "f", false, "Overwrite an existing file without asking")

	configSetProfileCmd.Flags().IntVar(&profilePID, "pid", 0, "Process id (required)")
	configSetProfileCmd.Flags().StringVar(&profileAddress, "address", "", "Stub address for this profile (default: stub.address)")
	configSetProfileCmd.Flags().StringVar(&profileDescription, "description", "", "Free-form note")
	_ = configSetProfileCmd.MarkFlagRequired("pid")
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage the jitstub configuration file",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration as YAML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		data, err := yaml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("failed to render config: %w", err)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return err
	},
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the config file location",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default configuration file",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		path, err := resolvedConfigPath()
		if err != nil {
			return err
		}

		if _, err := os.Stat(path); err == nil && !initForce {
			if !ui.ConfirmOverwrite(cmd.InOrStdin(), cmd.OutOrStdout(), path) {
				return errors.New("config init cancelled")
			}
		}

		if err := config.Default().SaveTo(path); err != nil {
			return err
		}
		r := ui.NewSuccessResult("Configuration written")
		r.AddDetail("Path", path)
		ui.NewPrinter(cmd.OutOrStdout()).PrintResult(r)
		return nil
	},
}

var configSetProfileCmd = &cobra.Command{
	Use:   "set-profile <name>",
	Short: "Add or replace a named target",
	Example: `  jitstub config set-profile emu --pid 812
  jitstub config set-profile device --pid 4410 --address 10.0.0.7:1234`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}

		name := args[0]
		_, replaced := cfg.Profiles[name]
		cfg.SetProfile(name, &config.Profile{
			Description: profileDescription,
			PID:         profilePID,
			Address:     profileAddress,
		})

		// Validation errors are usage errors, so usage stays on until here
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.SilenceUsage = true
		if err := saveConfig(cfg); err != nil {
			return err
		}

		title := "Profile added"
		if replaced {
			title = "Profile replaced"
		}
		r := ui.NewSuccessResult(title)
		r.AddDetail("Name", name)
		r.AddDetail("PID", fmt.Sprintf("%d", profilePID))
		r.AddDetail("Stub", cfg.StubAddress(cfg.Profiles[name]))
		ui.NewPrinter(cmd.OutOrStdout()).PrintResult(r)
		return nil
	},
}
