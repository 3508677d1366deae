package cmd

import (
	"fmt"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/abdul-hamid-achik/apitest/packages/core/config"
	"github.com/abdul-hamid-achik/apitest/packages/history"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var (
	historyDBFlag    string
	historyLimitFlag int
	historyPruneFlag int
)

var historyCmd = &cobra.Command{
	Use:   "history [run-id]",
	Short: "Show results of previous runs",
	Long: `Show runs recorded with 'apitest test --history' (or the history
setting in apitest.yaml). With a run ID (or a unique prefix) the tests of
that run are listed.

Examples:
  apitest history
  apitest history --limit 5
  apitest history 3f2a9c1e
  apitest history --prune 50`,
	Args: cobra.MaximumNArgs(1),
	RunE: historyCommand,
}

func init() {
	historyCmd.Flags().StringVar(&historyDBFlag, "db", getEnvString("APITEST_HISTORY", ""), "History database (default from config, then "+history.DefaultPath+") (env: APITEST_HISTORY)")
	historyCmd.Flags().IntVar(&historyLimitFlag, "limit", 20, "Number of runs to show")
	historyCmd.Flags().IntVar(&historyPruneFlag, "prune", -1, "Delete all but the N most recent runs")
}

func historyLocation() (string, error) {
	path := historyDBFlag
	if path == "" {
		fileConfig, err := config.FindAndLoadConfig(directoryFlag)
		if err != nil {
			return "", err
		}
		path = fileConfig.History
	}
	if path == "" {
		path = history.DefaultPath
	}
	if !filepath.IsAbs(path) && !strings.Contains(path, ":") {
		path = filepath.Join(directoryFlag, path)
	}
	return path, nil
}

func historyCommand(cmd *cobra.Command, args []string) error {
	path, err := historyLocation()
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}

	store, err := history.Open(path)
	if err != nil {
		return &exitError{code: ExitConfigError, err: err}
	}
	defer store.Close()

	ctx := cmdContext(cmd)
	out := cmd.OutOrStdout()

	if historyPruneFlag >= 0 {
		removed, err := store.Prune(ctx, historyPruneFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Removed %d runs\n", removed)
		return nil
	}

	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()

	if len(args) == 1 {
		id, tests, err := store.Tests(ctx, args[0])
		if err != nil {
			return err
		}

		fmt.Fprintf(out, "Run %s\n\n", id)
		for _, t := range tests {
			symbol := green("✓")
			switch t.Status {
			case history.StatusFailed, history.StatusError:
				symbol = red("✗")
			case history.StatusSkipped:
				symbol = yellow("-")
			}
			fmt.Fprintf(out, "  %s %s (%s:%d, %dms)\n", symbol, t.Name, t.File, t.Line, t.Duration.Milliseconds())
			if t.Message != "" {
				fmt.Fprintf(out, "      %s\n", t.Message)
			}
		}
		return nil
	}

	runs, err := store.Recent(ctx, historyLimitFlag)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		fmt.Fprintf(out, "No runs recorded in %s\n", path)
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSTARTED\tENV\tPASSED\tFAILED\tSKIPPED\tDURATION")
	for _, run := range runs {
		failed := fmt.Sprint(run.Failed)
		if run.Failed > 0 {
			failed = red(failed)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%d\t%s\n",
			run.ID[:8],
			run.StartedAt.Format(time.DateTime),
			run.Environment,
			run.Passed,
			failed,
			run.Skipped,
			run.Duration.Round(time.Millisecond))
	}
	return w.Flush()
}
