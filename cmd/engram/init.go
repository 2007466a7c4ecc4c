package main

import (
	"fmt"
	"os"

	"github.com/4thel00z/engram/internal"
	"github.com/spf13/cobra"
)

func NewInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize a memory store",
		Long:  `Create the .engram directory, the notes-backed store and the default configuration.`,
		RunE:  runInit,
	}

	cmd.Flags().Bool("global", false, "Initialize global scope (~/.engram)")
	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	isGlobal, _ := cmd.Flags().GetBool("global")

	resolver := internal.NewScopeResolver()

	var scope internal.Scope
	if isGlobal {
		scope = resolver.Global()
	} else {
		var ok bool
		scope, ok = resolver.Project()
		if !ok {
			return fmt.Errorf("no git repository found; run inside a repository or use --global")
		}
	}

	if _, err := os.Stat(scope.ConfigPath()); err == nil {
		return fmt.Errorf("already initialized at %s", scope.EngramPath)
	}

	if err := os.MkdirAll(scope.LocksPath(), 0o755); err != nil {
		return fmt.Errorf("create locks directory: %w", err)
	}

	if scope.Type == internal.ScopeGlobal {
		if err := internal.InitRepository(scope); err != nil {
			return fmt.Errorf("init repository: %w", err)
		}
	}

	cfg := internal.DefaultConfig()
	if err := internal.SaveConfig(scope, cfg); err != nil {
		return fmt.Errorf("save config: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Initialized memory store at %s\n", scope.EngramPath)
	return nil
}
