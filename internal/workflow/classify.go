package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

// classify sends the whole batch to the classification collaborator in one
// call, then fans out: classifiable files continue to extraction, while
// failures and unsupported categories short-circuit with a synthetic
// skipped event. Every file in the batch produces exactly one downstream
// event; the extraction barrier depends on that.
func (w *Workflow) classify(ctx context.Context, rc *RunContext, ev Event) error {
	batch := ev.(BatchIngestedEvent)
	log := zap.L().With(zap.String("run_id", rc.RunID()))

	rc.Publish(info("", fmt.Sprintf("Classifying batch of %d files...", len(batch.Files))))
	for _, f := range batch.Files {
		rc.Publish(info(f.FileID, "Classifying..."))
	}

	results, err := w.classifier.ClassifyBatch(ctx, batch.Files)
	if err != nil {
		// Partial results may still be usable; unresolved ids fail below.
		log.Error("workflow: batch classification error", zap.Error(err))
		rc.Publish(errStatus("", fmt.Sprintf("Batch classification error: %s", err)))
	}

	for _, f := range batch.Files {
		cls, ok := results[f.FileID]
		if !ok {
			w.skipUnclassified(ctx, rc, f)
			continue
		}

		rc.Publish(info(f.FileID, fmt.Sprintf("Classified as %s (%s)", cls.Category, cls.FileType)))

		if err := w.store.UpdateDocument(ctx, f.FileID, store.DocumentUpdate{Category: &cls.Category}); err != nil {
			log.Error("workflow: persist classification failed", zap.String("file_id", f.FileID), zap.Error(err))
			w.skipUnclassified(ctx, rc, f)
			continue
		}

		if cls.Category == model.CategoryOther {
			notes := "Skipped: Unsupported category."
			category := model.CategoryOther
			if err := w.store.UpdateDocument(ctx, f.FileID, store.DocumentUpdate{
				Category:            &category,
				ReconciliationNotes: &notes,
			}); err != nil {
				log.Warn("workflow: persist skip note failed", zap.String("file_id", f.FileID), zap.Error(err))
			}
			rc.Send(ExtractionFinishedEvent{
				FileID: f.FileID,
				Status: ExtractionSkipped,
				Result: &model.ProcessingResult{
					FileID:              f.FileID,
					Filename:            f.Filename,
					Classification:      cls,
					ReconciliationNotes: notes,
				},
			})
			continue
		}

		rc.Send(FileClassifiedEvent{File: f, Classification: cls})
	}
	return nil
}

// skipUnclassified marks a file failed and emits the synthetic terminal
// event that keeps the downstream count correct.
func (w *Workflow) skipUnclassified(ctx context.Context, rc *RunContext, f model.FileUnit) {
	rc.Publish(errStatus(f.FileID, "Classification failed."))

	category := model.CategoryFailed
	notes := "Classification failed."
	if err := w.store.UpdateDocument(ctx, f.FileID, store.DocumentUpdate{
		Category:            &category,
		ReconciliationNotes: &notes,
	}); err != nil {
		zap.L().Warn("workflow: persist classification failure",
			zap.String("file_id", f.FileID), zap.Error(err))
	}

	rc.Send(ExtractionFinishedEvent{
		FileID:   f.FileID,
		Filename: f.Filename,
		Status:   ExtractionSkipped,
		Result: &model.ProcessingResult{
			FileID:              f.FileID,
			Filename:            f.Filename,
			Classification:      model.UnknownClassification(),
			ReconciliationNotes: "Skipped: Classification failed.",
		},
	})
}
