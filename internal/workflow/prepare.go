package workflow

import (
	"context"
	"fmt"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
)

// prepareReconciliation is the first barrier: it waits for one
// ExtractionFinished event per ingested file, finalizes everything that
// needs no reconciliation (skips and contracts), then re-fans-out one
// ReconcileInvoiceEvent per pending invoice, including invoices left
// unmatched by earlier runs. The run's expected count is extended to the
// new total BEFORE any of those events are emitted, so the downstream
// barrier can never release against a stale count.
func (w *Workflow) prepareReconciliation(ctx context.Context, rc *RunContext, ev Event) error {
	events, err := rc.Collector(stepPrepare).Collect(ev, rc.Expected)
	if err != nil {
		return err
	}
	if events == nil {
		return nil
	}

	log := zap.L().With(zap.String("run_id", rc.RunID()))
	rc.Publish(info("", "Extraction complete. Preparing reconciliation..."))

	var completed []model.ProcessingResult
	for _, collected := range events {
		finished := collected.(ExtractionFinishedEvent)
		switch {
		case finished.Status == ExtractionSkipped:
			if finished.Result != nil {
				completed = append(completed, *finished.Result)
			}
		case finished.Status == ExtractionSuccess && finished.Category == model.CategoryContract:
			completed = append(completed, model.ProcessingResult{
				FileID:              finished.FileID,
				Filename:            finished.Filename,
				Classification:      finished.Classification,
				ReconciliationNotes: "Contract indexed.",
			})
		}
	}

	// Pending invoices from the store, not just this batch: extraction
	// output from earlier runs that never matched a contract is
	// re-surfaced here.
	pending, err := w.store.ListPendingInvoices(ctx)
	if err != nil {
		return fatal(eris.Wrap(err, "workflow: list pending invoices"))
	}

	var reconciles []ReconcileInvoiceEvent
	for _, inv := range pending {
		data, err := model.InvoiceDataFrom(inv.ExtractedData)
		if err != nil {
			log.Warn("workflow: unreadable invoice data, skipping",
				zap.String("file_id", inv.ID), zap.Error(err))
			rc.Publish(errStatus(inv.ID, fmt.Sprintf("Invoice data unreadable: %s", err)))
			continue
		}
		reconciles = append(reconciles, ReconcileInvoiceEvent{
			FileID:   inv.ID,
			Filename: inv.Filename,
			Classification: model.Classification{
				FileType:   model.FileTypePDF,
				Category:   model.CategoryInvoice,
				Confidence: 1.0,
			},
			Invoice: data,
		})
	}

	if len(completed)+len(reconciles) == 0 {
		// Nothing reached a terminal state and no invoice is pending; a
		// zero-count barrier would never release.
		rc.Send(StopEvent{Results: []model.ProcessingResult{}})
		return nil
	}

	// The new total must be visible to the finalize barrier before any of
	// the events it counts are emitted.
	rc.SetExpected(len(completed) + len(reconciles))
	log.Info("workflow: reconciliation prepared",
		zap.Int("finalized", len(completed)),
		zap.Int("pending_invoices", len(reconciles)),
	)

	for _, result := range completed {
		done := ProcessingCompleteEvent{Result: result}
		rc.Publish(done)
		rc.Send(done)
	}
	for _, reconcile := range reconciles {
		rc.Send(reconcile)
	}
	return nil
}
