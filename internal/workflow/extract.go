package workflow

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

// extract parses one classified file, with a cache check first: if the
// durable record already holds the relevant field (parsed text for
// contracts, structured data for invoices) the collaborator is never
// called and the cached value is reused. Every input event produces
// exactly one ExtractionFinished event, success or skip.
func (w *Workflow) extract(ctx context.Context, rc *RunContext, ev Event) error {
	classified := ev.(FileClassifiedEvent)
	f, cls := classified.File, classified.Classification
	log := zap.L().With(zap.String("run_id", rc.RunID()), zap.String("file_id", f.FileID))

	cacheField := model.CacheFieldExtractedData
	if cls.Category == model.CategoryContract {
		cacheField = model.CacheFieldTextContent
	}

	if doc, err := w.store.GetCachedDocument(ctx, f.FileID, cacheField); err != nil {
		log.Warn("workflow: cache lookup failed", zap.Error(err))
	} else if doc != nil {
		rc.Publish(info(f.FileID, "Using cached data..."))
		rc.Send(ExtractionFinishedEvent{
			FileID:         f.FileID,
			Filename:       f.Filename,
			Status:         ExtractionSuccess,
			Classification: cls,
			Category:       cls.Category,
			Data:           doc.ExtractedData,
		})
		return nil
	}

	rc.Publish(info(f.FileID, "Extracting content..."))

	extraction, err := w.extractor.Extract(ctx, f.FilePath, cls)
	if err == nil {
		update := store.DocumentUpdate{ExtractedData: extraction.Data}
		if cls.Category == model.CategoryContract {
			update.TextContent = &extraction.TextContent
		}
		err = w.store.UpdateDocument(ctx, f.FileID, update)
	}
	if err != nil {
		log.Error("workflow: extraction failed", zap.Error(err))
		rc.Publish(errStatus(f.FileID, fmt.Sprintf("Extraction error: %s", err)))

		notes := fmt.Sprintf("Extraction failed: %s", err)
		category := model.CategoryFailed
		if updErr := w.store.UpdateDocument(ctx, f.FileID, store.DocumentUpdate{
			Category:            &category,
			ReconciliationNotes: &notes,
		}); updErr != nil {
			log.Warn("workflow: persist extraction failure", zap.Error(updErr))
		}

		rc.Send(ExtractionFinishedEvent{
			FileID:   f.FileID,
			Filename: f.Filename,
			Status:   ExtractionSkipped,
			Result: &model.ProcessingResult{
				FileID:              f.FileID,
				Filename:            f.Filename,
				Classification:      cls,
				ReconciliationNotes: notes,
			},
		})
		return nil
	}

	rc.Send(ExtractionFinishedEvent{
		FileID:         f.FileID,
		Filename:       f.Filename,
		Status:         ExtractionSuccess,
		Classification: cls,
		Category:       cls.Category,
		Data:           extraction.Data,
	})
	return nil
}
