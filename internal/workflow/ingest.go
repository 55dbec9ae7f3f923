package workflow

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/docsuite/docflow/internal/model"
)

// ingestConcurrency bounds parallel downloads within one batch.
const ingestConcurrency = 4

// ingest downloads every file in the batch, creates the durable record for
// each, and sets the run's expected count to the number of successful
// downloads. Files that fail to download are dropped from the batch with an
// error status; they are never counted. A batch with zero survivors ends
// the run immediately with an empty result.
func (w *Workflow) ingest(ctx context.Context, rc *RunContext, ev Event) error {
	uploaded := ev.(UploadedEvent)
	log := zap.L().With(zap.String("run_id", rc.RunID()))

	rc.Publish(info("", fmt.Sprintf("Starting processing for %d files", len(uploaded.FileIDs))))

	var mu sync.Mutex
	var files []model.FileUnit

	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(ingestConcurrency)
	for _, fileID := range uploaded.FileIDs {
		g.Go(func() error {
			unit, err := w.ingestor.Download(gCtx, fileID)
			if err != nil {
				log.Warn("workflow: download failed", zap.String("file_id", fileID), zap.Error(err))
				rc.Publish(errStatus(fileID, fmt.Sprintf("Download failed: %s", err)))
				return nil
			}
			if _, err := w.store.UpsertDocument(gCtx, unit.FileID, unit.Filename); err != nil {
				log.Warn("workflow: create document failed", zap.String("file_id", fileID), zap.Error(err))
				rc.Publish(errStatus(fileID, fmt.Sprintf("Download failed: %s", err)))
				return nil
			}
			rc.Publish(info(fileID, fmt.Sprintf("Downloaded %s", unit.Filename)))
			mu.Lock()
			files = append(files, *unit)
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		// Download failures are swallowed per file; this is only context
		// cancellation.
		return err
	}

	if len(files) == 0 {
		rc.Send(StopEvent{Results: []model.ProcessingResult{}})
		return nil
	}

	rc.SetExpected(len(files))
	rc.Send(BatchIngestedEvent{Files: files})
	return nil
}
