package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/pi-agent/pi-exthost/internal/api"
	"github.com/pi-agent/pi-exthost/internal/manager"
	"github.com/pi-agent/pi-exthost/internal/sessionstore"
	"github.com/spf13/cobra"
)

func loadCmd() *cobra.Command {
	var extensionID string

	cmd := &cobra.Command{
		Use:   "load <entry_path>",
		Short: "Load one extension and print its registration payload",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entryPath := args[0]
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			id := extensionID
			if id == "" {
				id = "cli-extension"
			}

			session, err := sessionstore.OpenHandle(cfg.SessionStore.Dir, cfg.SessionStore.MaxSegmentBytes)
			if err != nil {
				return fmt.Errorf("open session store: %w", err)
			}
			defer session.Close()

			mgr := manager.New(session, nil)
			loader := &api.ExtensionLoader{Manager: mgr, VFS: cfg.VFS, Runtime: cfg.Runtime}
			payload, err := loader.LoadFromPath(context.Background(), id, entryPath)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(payload)
		},
	}

	cmd.Flags().StringVar(&extensionID, "id", "", "Extension ID to register under (default: cli-extension)")
	return cmd
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the pi-exthost version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Println("pi-exthost dev")
			return nil
		},
	}
}
