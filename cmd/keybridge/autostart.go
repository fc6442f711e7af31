package main

import (
	"fmt"
	"log/slog"
	"os"
	"runtime"

	"github.com/spf13/cobra"

	"keybridge/internal/autostart"
)

func newAutostartCommand(opts *options) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "autostart",
		Short: "Manage the macOS launch agent that keeps the proxy running",
		PersistentPreRunE: func(*cobra.Command, []string) error {
			if runtime.GOOS != "darwin" {
				return fmt.Errorf("autostart command is only supported on macOS")
			}
			return nil
		},
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	manager := autostart.NewManager("")

	cmd.AddCommand(&cobra.Command{
		Use:   "install",
		Short: "Install and start the launch agent",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if _, err := loadEnvFile(opts.envFile); err != nil {
				return err
			}
			if err := manager.Install(opts.configPath); err != nil {
				return err
			}
			status, _ := manager.Status()
			logger.Info("autostart installed", "label", manager.Label(), "plist_path", status.PlistPath)
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "uninstall",
		Short: "Stop and remove the launch agent",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := manager.Uninstall(); err != nil {
				return err
			}
			logger.Info("autostart uninstalled", "label", manager.Label())
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Show whether the launch agent is installed and loaded",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			status, err := manager.Status()
			if err != nil {
				return err
			}
			logger.Info(
				"autostart status",
				"label", status.Label,
				"installed", status.Installed,
				"loaded", status.Loaded,
				"plist_path", status.PlistPath,
			)
			return nil
		},
	})

	return cmd
}
