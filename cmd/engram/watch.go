package main

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/cobra"
)

func NewWatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch for new memories and keep the index fresh",
		Long:  `Watch the repository's notes refs and run an incremental reindex whenever new memories land, for example after a fetch from a teammate.`,
		RunE:  runWatch,
	}

	cmd.Flags().Duration("debounce", 2*time.Second, "Debounce window for batching changes")
	return cmd
}

func runWatch(cmd *cobra.Command, _ []string) error {
	scopeHint, _ := cmd.Flags().GetString("scope")
	debounce, _ := cmd.Flags().GetDuration("debounce")

	eng, err := openEngine(scopeHint)
	if err != nil {
		return err
	}
	defer eng.Close()

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer watcher.Close()

	if err := addRefDirs(watcher, eng.scope.GitPath); err != nil {
		return fmt.Errorf("add watch dirs: %w", err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Watching %s for new memories...\n", eng.scope.GitPath)

	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false

	for {
		select {
		case <-cmd.Context().Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if shouldIgnoreEvent(event) {
				continue
			}
			if !pending {
				timer.Reset(debounce)
				pending = true
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "watch error: %v\n", err)
		case <-timer.C:
			pending = false
			stats, err := eng.syncService().Reindex(cmd.Context(), false)
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "reindex: %v\n", err)
				continue
			}
			if stats.Indexed > 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "Indexed %d new memories\n", stats.Indexed)
			}
		}
	}
}

// addRefDirs watches the parts of the git directory that change when
// notes refs move: the refs tree and packed-refs.
func addRefDirs(watcher *fsnotify.Watcher, gitPath string) error {
	if err := watcher.Add(gitPath); err != nil {
		return err
	}

	refsDir := filepath.Join(gitPath, "refs")
	return filepath.Walk(refsDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return nil
		}
		if info.IsDir() {
			return watcher.Add(path)
		}
		return nil
	})
}

func shouldIgnoreEvent(event fsnotify.Event) bool {
	base := filepath.Base(event.Name)
	if base != "packed-refs" && !strings.Contains(event.Name, string(filepath.Separator)+"refs"+string(filepath.Separator)) {
		return true
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0
}
