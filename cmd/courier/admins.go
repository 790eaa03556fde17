package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/vgrishin/courier/internal/config"
	"github.com/vgrishin/courier/internal/db"
	"github.com/vgrishin/courier/internal/registry"
)

func newAdminsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "admins",
		Short: "Manage the durable admin registry",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file (default: environment only)")

	cmd.AddCommand(newAdminsListCmd(&configPath))
	cmd.AddCommand(newAdminsAddCmd(&configPath))
	cmd.AddCommand(newAdminsRemoveCmd(&configPath))
	return cmd
}

// openRegistry loads config, connects and returns the admin registry.
func openRegistry(configPath string) (*registry.Registry, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := db.Connect(cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return registry.New(gormDB, cfg.RootAdmins), nil
}

func parseChatID(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid chat id %q: must be a number", arg)
	}
	return id, nil
}

func newAdminsListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List durable admins",
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			ids, err := reg.List()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(ids) == 0 {
				fmt.Fprintln(out, "No admins have been added.")
				return nil
			}
			for i, id := range ids {
				fmt.Fprintf(out, "%d. %d\n", i+1, id)
			}
			return nil
		},
	}
}

func newAdminsAddCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <chat-id>",
		Short: "Grant durable admin status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			reg, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			added, err := reg.Add(id)
			if err != nil {
				return err
			}
			if !added {
				fmt.Fprintf(cmd.OutOrStdout(), "%d is already an admin.\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d is now an admin.\n", id)
			return nil
		},
	}
}

func newAdminsRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <chat-id>",
		Short: "Revoke durable admin status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseChatID(args[0])
			if err != nil {
				return err
			}
			reg, err := openRegistry(*configPath)
			if err != nil {
				return err
			}
			removed, err := reg.Remove(id)
			if err != nil {
				return err
			}
			if !removed {
				fmt.Fprintf(cmd.OutOrStdout(), "%d is not an admin.\n", id)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d has been removed from the admin list.\n", id)
			return nil
		},
	}
}
