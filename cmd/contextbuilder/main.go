// Command contextbuilder is the CLI façade over the pipeline engine
// (spec.md §6): `pipeline run|runs`, `workspace reset`.
package main

import (
	"fmt"
	"log/slog"
	"os"
)

// Exit codes (spec.md §6).
const (
	exitSuccess = 0
	exitUserErr = 2
	exitPartial = 3
	exitFatal   = 4
	exitCancel  = 5
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))

	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 2 {
		usage()
		return exitUserErr
	}

	group, sub, rest := args[0], args[1], args[2:]
	switch group {
	case "pipeline":
		switch sub {
		case "run":
			return cmdPipelineRun(rest)
		case "runs":
			return cmdPipelineRuns(rest)
		default:
			usage()
			return exitUserErr
		}
	case "workspace":
		switch sub {
		case "reset":
			return cmdWorkspaceReset(rest)
		default:
			usage()
			return exitUserErr
		}
	default:
		usage()
		return exitUserErr
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage:
  contextbuilder pipeline run --input <path> --workspace <id> [--claims <ids>] [--stages ingest,classify,extract] [--classifier-model M] [--extractor-model M] [--run-id ID] [--force] [--metrics/--no-metrics] [--dry-run]
  contextbuilder pipeline runs list --workspace <id>
  contextbuilder pipeline runs show --workspace <id> <run_id>
  contextbuilder workspace reset [--workspace-id X] [--dry-run] [--force]`)
}
