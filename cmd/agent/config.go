package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/vitaliisemenov/hostagent/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Generate or validate agent configuration files",
	}
	cmd.AddCommand(newConfigGenerateCmd())
	cmd.AddCommand(newConfigValidateCmd())
	return cmd
}

func newConfigGenerateCmd() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Write a fully-populated default configuration file and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			if output == "" {
				return &exitError{code: exitConfigError, err: fmt.Errorf("--output is required")}
			}
			if err := config.WriteDefault(output); err != nil {
				return &exitError{code: exitConfigError, err: fmt.Errorf("failed to write default config: %w", err)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote default configuration to %s\n", output)
			return nil
		},
	}
	cmd.Flags().StringVar(&output, "output", "", "path to write the generated configuration file")
	return cmd
}

func newConfigValidateCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Load and validate a configuration file without starting the agent",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				return &exitError{code: exitConfigError, err: fmt.Errorf("--config is required")}
			}
			if _, err := config.Load(configPath); err != nil {
				return &exitError{code: exitConfigError, err: fmt.Errorf("configuration invalid: %w", err)}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is valid\n", configPath)
			return nil
		},
	}
	cmd.Flags().StringVar(&configPath, "config", "", "path to the configuration file to validate")
	return cmd
}
