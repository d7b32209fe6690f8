package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"lexcheck/internal/model"
	"lexcheck/internal/verify"
)

var (
	batchCaseID string
	batchFollow bool
)

// batchCmd represents the batch command
var batchCmd = &cobra.Command{
	Use:   "batch <act-id>",
	Short: "Verify all pending citations for an Act as a resumable batch",
	Long: `Batch verifies every pending citation naming the Act, in checkpointed
groups. Progress survives interruption: a failed run records the group
it stopped at, and resume restarts exactly there.

Example:
  lexcheck batch 9c2d... --case case-42 --follow`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

// resumeCmd represents the resume command
var resumeCmd = &cobra.Command{
	Use:   "resume <batch-id>",
	Short: "Resume a failed or stalled batch run",
	Args:  cobra.ExactArgs(1),
	RunE:  runResume,
}

// statusCmd represents the status command
var statusCmd = &cobra.Command{
	Use:   "status <batch-id>",
	Short: "Show a batch run's progress and outcomes",
	Args:  cobra.ExactArgs(1),
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(batchCmd)
	rootCmd.AddCommand(resumeCmd)
	rootCmd.AddCommand(statusCmd)

	batchCmd.Flags().StringVar(&batchCaseID, "case", "", "case/matter id to tag the run with")
	batchCmd.Flags().BoolVar(&batchFollow, "follow", false, "print progress events while the run executes")
}

func runBatch(cmd *cobra.Command, args []string) error {
	actID := args[0]
	ctx := context.Background()

	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	act, err := a.repo.GetAct(ctx, actID)
	if err != nil {
		return fmt.Errorf("load act: %w", err)
	}
	pending, err := a.repo.ListPendingCitationsByAct(ctx, act.NormKey)
	if err != nil {
		return err
	}
	if len(pending) == 0 {
		fmt.Println("No pending citations for this act.")
		return nil
	}
	ids := make([]string, 0, len(pending))
	for _, c := range pending {
		ids = append(ids, c.ID)
	}

	if batchFollow {
		stop := followEvents(a, "")
		defer stop()
	}

	run, err := a.orch.RunBatch(ctx, actID, ids, batchCaseID)
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func runResume(cmd *cobra.Command, args []string) error {
	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if batchFollow {
		stop := followEvents(a, args[0])
		defer stop()
	}

	run, err := a.orch.ResumeBatch(context.Background(), args[0])
	if err != nil {
		return err
	}
	printRun(run)
	return nil
}

func runStatus(cmd *cobra.Command, args []string) error {
	a, err := newApp(loadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()
	run, err := a.repo.GetBatchRun(ctx, args[0])
	if err != nil {
		return err
	}
	printRun(run)

	ids, err := a.repo.BatchCitationIDs(ctx, run.ID)
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"#", "Citation", "Status", "Score", "Explanation"})
	for i, id := range ids {
		res, err := a.repo.GetResult(ctx, id)
		if err != nil {
			t.AppendRow(table.Row{i + 1, id, model.StatusPending, "", ""})
			continue
		}
		t.AppendRow(table.Row{i + 1, id, res.Status, res.Similarity, truncate(res.Explanation, 60)})
	}
	t.Render()
	return nil
}

func printRun(run model.BatchRun) {
	fmt.Printf("Batch:     %s\n", run.ID)
	fmt.Printf("Status:    %s\n", run.Status)
	fmt.Printf("Progress:  %d/%d\n", run.Completed, run.Total)
	if run.FailedAt != nil {
		fmt.Printf("Failed at: group %d\n", *run.FailedAt)
	}
}

func followEvents(a *app, batchID string) func() {
	events, cancel := a.orch.Bus().Subscribe(batchID)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for evt := range events {
			switch evt.Type {
			case verify.EventProgress:
				fmt.Fprintf(os.Stderr, "progress: %d/%d\n", evt.Progress.Verified, evt.Progress.Total)
			case verify.EventCitationVerified:
				fmt.Fprintf(os.Stderr, "citation %s: %s\n", evt.Citation.CitationID, evt.Citation.Status)
			case verify.EventBatchFailed:
				fmt.Fprintf(os.Stderr, "batch failed at %d/%d\n", evt.Progress.Verified, evt.Progress.Total)
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
