package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/workflow"
	"github.com/docsuite/docflow/pkg/notion"
)

var retryIncomplete bool

var processCmd = &cobra.Command{
	Use:   "process [file-id...]",
	Short: "Process a batch of uploaded files",
	Long:  "Downloads, classifies, extracts, and reconciles the given files, streaming progress to stdout.",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		fileIDs := args
		if retryIncomplete {
			incomplete, err := env.Store.ListIncompleteIDs(ctx)
			if err != nil {
				return eris.Wrap(err, "list incomplete documents")
			}
			if len(incomplete) == 0 {
				fmt.Println("Nothing to retry.")
				return nil
			}
			fmt.Printf("Retrying %d incomplete documents\n", len(incomplete))
			fileIDs = append(fileIDs, incomplete...)
		}
		if len(fileIDs) == 0 {
			return eris.New("no file ids given (pass ids or --retry-incomplete)")
		}

		handle, err := env.Workflow.Process(ctx, fileIDs)
		if err != nil {
			return err
		}

		for ev := range handle.Stream() {
			printEvent(ev)
		}

		results, err := handle.Wait(ctx)
		if err != nil {
			return eris.Wrap(err, "run failed")
		}

		printResults(results)

		if env.Notion != nil && cfg.Notion.ParentPage != "" {
			url, err := notion.PublishRunSummary(ctx, env.Notion, cfg.Notion.ParentPage, handle.RunID(), results)
			if err != nil {
				zap.L().Warn("notion export failed", zap.Error(err))
			} else {
				fmt.Printf("\nRun summary: %s\n", url)
			}
		}

		return nil
	},
}

func printEvent(ev workflow.Event) {
	switch e := ev.(type) {
	case workflow.StatusEvent:
		prefix := " "
		if e.Level == workflow.StatusError {
			prefix = "!"
		}
		if e.FileID != "" {
			fmt.Printf("%s [%s] %s\n", prefix, e.FileID, e.Message)
		} else {
			fmt.Printf("%s %s\n", prefix, e.Message)
		}
	case workflow.ProcessingCompleteEvent:
		fmt.Printf("✓ [%s] %s done\n", e.Result.FileID, e.Result.Filename)
	}
}

func printResults(results []model.ProcessingResult) {
	fmt.Printf("\nProcessed %d files:\n", len(results))
	for _, r := range results {
		line := fmt.Sprintf("  %-30s %-10s", r.Filename, r.Classification.Category)
		if r.MatchedContractID != "" {
			line += fmt.Sprintf(" contract=%s", r.MatchedContractID)
		}
		if len(r.Discrepancies) > 0 {
			line += fmt.Sprintf(" discrepancies=%d", len(r.Discrepancies))
		}
		if r.ReconciliationNotes != "" {
			line += fmt.Sprintf(" (%s)", r.ReconciliationNotes)
		}
		fmt.Println(line)
	}
}

func init() {
	processCmd.Flags().BoolVar(&retryIncomplete, "retry-incomplete", false, "re-run documents that failed or never finished")
	rootCmd.AddCommand(processCmd)
}
