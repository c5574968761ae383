package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/danmuck/z21lan/internal/config"
)

func configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Create and check z21d config files",
	}
	cmd.AddCommand(configInitCmd(), configValidateCmd())
	return cmd
}

func configInitCmd() *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "init <path>",
		Short: "Write a starter config (.toml, .yaml or .yml)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.WriteTemplate(args[0], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "overwrite an existing file")
	return cmd
}

func configValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <path>",
		Short: "Load a config file and report the resolved settings",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "listen=%s admin=%q store=%s\n", cfg.Listen, cfg.AdminAddr, cfg.Store.Driver)
			fmt.Fprintf(out, "clients=%d window=%s eviction=%s layout=%t\n",
				cfg.Station.Session.Capacity,
				cfg.Station.Session.Window(),
				cfg.Station.Session.Eviction,
				cfg.Layout.Enabled,
			)
			return nil
		},
	}
}
