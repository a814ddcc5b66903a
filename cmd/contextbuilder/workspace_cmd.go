package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
)

// cmdWorkspaceReset deletes a workspace's claims/runs/registry/logs
// contents, leaving config/ untouched (the doc type catalog and prompts
// are configuration, not run state). Requires --force since this is
// destructive and irreversible.
func cmdWorkspaceReset(args []string) int {
	fs := flag.NewFlagSet("workspace reset", flag.ContinueOnError)
	workspaceID := fs.String("workspace-id", "default", "Workspace id")
	dryRun := fs.Bool("dry-run", false, "List what would be removed without removing it")
	force := fs.Bool("force", false, "Required to actually delete workspace state")
	configPath := fs.String("config", "", "Path to a JSON config file")
	if err := fs.Parse(args); err != nil {
		return exitUserErr
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "workspace reset:", err)
		return exitUserErr
	}
	cfg.WorkspaceID = *workspaceID
	root := cfg.ResolveWorkspaceRoot()

	dirs := []string{"claims", "runs", "registry", "logs"}
	if *dryRun {
		for _, d := range dirs {
			fmt.Println("would remove", filepath.Join(root, d))
		}
		return exitSuccess
	}
	if !*force {
		fmt.Fprintln(os.Stderr, "workspace reset: --force is required to delete workspace state")
		return exitUserErr
	}

	for _, d := range dirs {
		if err := os.RemoveAll(filepath.Join(root, d)); err != nil {
			fmt.Fprintln(os.Stderr, "workspace reset:", err)
			return exitFatal
		}
	}
	return exitSuccess
}
