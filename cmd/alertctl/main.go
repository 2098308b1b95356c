// Command alertctl is the operator CLI: addon manifest install/list/
// validate/enable/disable, and password hashing for manual user
// creation, all against the same sqlite store the daemon uses.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nocalert/core/internal/addons"
	"github.com/nocalert/core/internal/auth"
	"github.com/nocalert/core/internal/config"
	"github.com/nocalert/core/internal/models"
	"github.com/nocalert/core/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "alertctl",
	Short: "Operator CLI for the alerting daemon",
}

func openStore(ctx context.Context) (*store.Store, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return store.Open(ctx, store.Config{DataDir: cfg.DataDir})
}

var addonCmd = &cobra.Command{
	Use:   "addon",
	Short: "Manage addon manifests",
}

var addonInstallCmd = &cobra.Command{
	Use:   "install <manifest.json>",
	Short: "Install or update an addon manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		m, err := models.ParseManifest(raw)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		registry := addons.New(s.Addons)
		if err := registry.Install(ctx, m, true); err != nil {
			return fmt.Errorf("install %s: %w", m.ID, err)
		}
		fmt.Printf("installed %s (%s)\n", m.ID, m.Name)
		return nil
	},
}

var addonValidateCmd = &cobra.Command{
	Use:   "validate <manifest.json>",
	Short: "Validate a manifest without installing it",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		raw, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("read manifest: %w", err)
		}
		m, err := models.ParseManifest(raw)
		if err != nil {
			return err
		}
		fmt.Printf("%s: valid (method=%s)\n", m.ID, m.Method)
		return nil
	},
}

var addonListCmd = &cobra.Command{
	Use:   "list",
	Short: "List enabled addons",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		registry := addons.New(s.Addons)
		if err := registry.Reload(ctx); err != nil {
			return err
		}
		for _, m := range registry.ListEnabled() {
			fmt.Printf("%s\t%s\t%s\n", m.ID, m.Method, m.Name)
		}
		return nil
	},
}

var addonUninstallCmd = &cobra.Command{
	Use:   "uninstall <addon-id>",
	Short: "Remove an installed addon manifest",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return addons.New(s.Addons).Uninstall(ctx, args[0])
	},
}

var addonEnableCmd = &cobra.Command{
	Use:   "enable <addon-id>",
	Short: "Enable an installed addon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return addons.New(s.Addons).Enable(ctx, args[0])
	},
}

var addonDisableCmd = &cobra.Command{
	Use:   "disable <addon-id>",
	Short: "Disable an installed addon",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		return addons.New(s.Addons).Disable(ctx, args[0])
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the database schema (idempotent; alertd also applies it on startup)",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		s, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()
		fmt.Println("schema applied")
		return nil
	},
}

var hashpwCmd = &cobra.Command{
	Use:   "hashpw <password>",
	Short: "Hash a password for manual insertion into the users table",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hash, err := auth.HashPassword(args[0])
		if err != nil {
			return err
		}
		fmt.Println(hash)
		return nil
	},
}

func init() {
	addonCmd.AddCommand(addonInstallCmd, addonValidateCmd, addonListCmd, addonEnableCmd, addonDisableCmd, addonUninstallCmd)
	rootCmd.AddCommand(addonCmd, hashpwCmd, migrateCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
