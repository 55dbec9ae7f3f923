package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

// reconcile matches one invoice against the current contract list. Cached
// reconciliation notes short-circuit the collaborator call, except when
// the previous attempt found no match, since a matching contract may have
// been indexed since. Failure still emits a ProcessingComplete carrying the
// failure note, so the finalize barrier count stays correct.
func (w *Workflow) reconcile(ctx context.Context, rc *RunContext, ev Event) error {
	invoice := ev.(ReconcileInvoiceEvent)
	log := zap.L().With(zap.String("run_id", rc.RunID()), zap.String("file_id", invoice.FileID))

	doc, err := w.store.GetCachedDocument(ctx, invoice.FileID, model.CacheFieldReconciliationNotes)
	if err != nil {
		log.Warn("workflow: reconciliation cache lookup failed", zap.Error(err))
	}
	if doc != nil && !strings.Contains(doc.ReconciliationNotes, "No matching contract") {
		rc.Publish(info(invoice.FileID, "Using cached reconciliation results..."))
		rc.Send(ProcessingCompleteEvent{Result: model.ProcessingResult{
			FileID:              invoice.FileID,
			Filename:            invoice.Filename,
			Classification:      invoice.Classification,
			MatchedContractID:   doc.MatchedContractID(),
			ExtractedData:       invoice.Invoice.Map(),
			ReconciliationNotes: doc.ReconciliationNotes,
			Discrepancies:       doc.Discrepancies,
		}})
		return nil
	}

	rc.Publish(info(invoice.FileID, "Reconciling..."))

	outcome, err := w.reconcileAgainstContracts(ctx, invoice.Invoice)
	if err != nil {
		log.Error("workflow: reconciliation failed", zap.Error(err))
		rc.Publish(errStatus(invoice.FileID, fmt.Sprintf("Reconciliation error: %s", err)))

		notes := fmt.Sprintf("Reconciliation failed: %s", err)
		if updErr := w.store.UpdateDocument(ctx, invoice.FileID, store.DocumentUpdate{
			ReconciliationNotes: &notes,
		}); updErr != nil {
			log.Warn("workflow: persist reconciliation failure", zap.Error(updErr))
		}

		rc.Send(ProcessingCompleteEvent{Result: model.ProcessingResult{
			FileID:              invoice.FileID,
			Filename:            invoice.Filename,
			Classification:      invoice.Classification,
			ExtractedData:       invoice.Invoice.Map(),
			ReconciliationNotes: notes,
		}})
		return nil
	}

	finalData := invoice.Invoice.Map()
	if outcome.MatchedContractID != "" {
		finalData["matched_contract_id"] = outcome.MatchedContractID
	}

	update := store.DocumentUpdate{
		ExtractedData:       finalData,
		ReconciliationNotes: &outcome.Notes,
		Discrepancies:       outcome.Discrepancies,
	}
	if update.Discrepancies == nil {
		update.Discrepancies = []model.Discrepancy{}
	}
	if outcome.MatchedContractID != "" {
		update.ContractID = &outcome.MatchedContractID
	}
	if err := w.store.UpdateDocument(ctx, invoice.FileID, update); err != nil {
		log.Error("workflow: persist reconciliation failed", zap.Error(err))
		rc.Publish(errStatus(invoice.FileID, fmt.Sprintf("Reconciliation error: %s", err)))
	}

	msg := "Match confirmed."
	if len(outcome.Discrepancies) > 0 {
		msg = fmt.Sprintf("%d discrepancies.", len(outcome.Discrepancies))
	}
	rc.Publish(info(invoice.FileID, msg))

	done := ProcessingCompleteEvent{Result: model.ProcessingResult{
		FileID:              invoice.FileID,
		Filename:            invoice.Filename,
		Classification:      invoice.Classification,
		MatchedContractID:   outcome.MatchedContractID,
		ExtractedData:       finalData,
		ReconciliationNotes: outcome.Notes,
		Discrepancies:       outcome.Discrepancies,
	}}
	rc.Publish(done)
	rc.Send(done)
	return nil
}

func (w *Workflow) reconcileAgainstContracts(ctx context.Context, invoice model.InvoiceData) (*model.MatchOutcome, error) {
	contracts, err := w.store.ListContracts(ctx)
	if err != nil {
		return nil, err
	}
	return w.reconciler.Reconcile(ctx, invoice, contracts)
}
