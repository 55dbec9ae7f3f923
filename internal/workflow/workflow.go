// Package workflow implements the document processing pipeline: an
// event-driven step runtime that ingests a batch of uploaded files,
// classifies them, extracts structured data with bounded parallelism, and
// reconciles invoices against contracts, streaming progress to observers
// and producing exactly one result per file.
package workflow

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

// Step names. The two barrier steps key their collectors by these.
const (
	stepIngest    = "ingest"
	stepClassify  = "classify"
	stepExtract   = "extract"
	stepPrepare   = "prepare_reconciliation"
	stepReconcile = "reconcile"
	stepFinalize  = "finalize"
)

// Ingestor downloads one uploaded file to a local path.
type Ingestor interface {
	Download(ctx context.Context, fileID string) (*model.FileUnit, error)
}

// Classifier classifies a whole batch in one call. Partial results are
// allowed: ids missing from the map are treated as failed, and a non-nil
// map may accompany a non-nil error.
type Classifier interface {
	ClassifyBatch(ctx context.Context, files []model.FileUnit) (map[string]model.Classification, error)
}

// Extractor parses a file according to its classification.
type Extractor interface {
	Extract(ctx context.Context, path string, cls model.Classification) (*model.Extraction, error)
}

// Reconciler matches one invoice against the full contract list.
type Reconciler interface {
	Reconcile(ctx context.Context, invoice model.InvoiceData, contracts []model.ContractRef) (*model.MatchOutcome, error)
}

// Workflow wires the six pipeline steps to the runtime and to the external
// collaborators. One Workflow serves many runs.
type Workflow struct {
	cfg        config.WorkflowConfig
	store      store.Store
	ingestor   Ingestor
	classifier Classifier
	extractor  Extractor
	reconciler Reconciler
	rt         *Runtime
}

// New constructs a Workflow with all dependencies and registers the steps.
func New(
	cfg config.WorkflowConfig,
	st store.Store,
	ingestor Ingestor,
	classifier Classifier,
	extractor Extractor,
	reconciler Reconciler,
) (*Workflow, error) {
	w := &Workflow{
		cfg:        cfg,
		store:      st,
		ingestor:   ingestor,
		classifier: classifier,
		extractor:  extractor,
		reconciler: reconciler,
	}

	rt := NewRuntime(
		WithTimeout(time.Duration(cfg.TimeoutSecs)*time.Second),
		WithStreamBuffer(cfg.StreamBuffer),
	)

	registrations := []struct {
		name    string
		kind    Kind
		workers int
		fn      Handler
	}{
		{stepIngest, KindUploaded, 1, w.ingest},
		{stepClassify, KindBatchIngested, 1, w.classify},
		{stepExtract, KindFileClassified, cfg.ExtractWorkers, w.extract},
		{stepPrepare, KindExtractionFinished, 1, w.prepareReconciliation},
		{stepReconcile, KindReconcileInvoice, cfg.ReconcileWorkers, w.reconcile},
		{stepFinalize, KindProcessingComplete, 1, w.finalize},
	}
	for _, reg := range registrations {
		if err := rt.Register(reg.name, reg.kind, reg.workers, reg.fn); err != nil {
			return nil, eris.Wrapf(err, "workflow: register %s", reg.name)
		}
	}

	w.rt = rt
	return w, nil
}

// Process starts a run over the given file ids and returns its handle.
func (w *Workflow) Process(ctx context.Context, fileIDs []string) (*RunHandle, error) {
	if len(fileIDs) == 0 {
		return nil, eris.New("workflow: no file ids to process")
	}
	return w.rt.Submit(ctx, UploadedEvent{FileIDs: fileIDs})
}
