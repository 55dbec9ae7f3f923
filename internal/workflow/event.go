package workflow

import "github.com/docsuite/docflow/internal/model"

// Kind tags the payload variant of an Event. Each registered step consumes
// exactly one kind.
type Kind string

const (
	KindUploaded           Kind = "uploaded"
	KindBatchIngested      Kind = "batch_ingested"
	KindFileClassified     Kind = "file_classified"
	KindExtractionFinished Kind = "extraction_finished"
	KindReconcileInvoice   Kind = "reconcile_invoice"
	KindProcessingComplete Kind = "processing_complete"
	KindStatus             Kind = "status"
	KindStop               Kind = "stop"
)

// Event is one unit of work flowing through the runtime. Events are
// immutable once emitted; steps act on the payload alone, re-reading
// upstream state only through the store's cache fields.
type Event interface {
	Kind() Kind
}

// UploadedEvent starts a run: the ids of the files to process.
type UploadedEvent struct {
	FileIDs []string `json:"file_ids"`
}

func (UploadedEvent) Kind() Kind { return KindUploaded }

// BatchIngestedEvent carries the files that downloaded successfully.
type BatchIngestedEvent struct {
	Files []model.FileUnit `json:"files"`
}

func (BatchIngestedEvent) Kind() Kind { return KindBatchIngested }

// FileClassifiedEvent continues the pipeline for one classified file.
type FileClassifiedEvent struct {
	File           model.FileUnit       `json:"file"`
	Classification model.Classification `json:"classification"`
}

func (FileClassifiedEvent) Kind() Kind { return KindFileClassified }

// ExtractionStatus distinguishes real extraction output from synthetic
// events emitted to keep barrier counts correct.
type ExtractionStatus string

const (
	ExtractionSuccess ExtractionStatus = "success"
	ExtractionSkipped ExtractionStatus = "skipped"
)

// ExtractionFinishedEvent is the unified per-file outcome of the extraction
// phase. Exactly one is emitted per file in the ingested batch, success or
// not; the downstream barrier depends on that invariant.
type ExtractionFinishedEvent struct {
	FileID         string                  `json:"file_id"`
	Filename       string                  `json:"filename,omitempty"`
	Status         ExtractionStatus        `json:"status"`
	Classification model.Classification    `json:"classification,omitempty"`
	Category       model.Category          `json:"category,omitempty"`
	Data           map[string]any          `json:"data,omitempty"`
	Result         *model.ProcessingResult `json:"result,omitempty"` // pre-filled on skip
}

func (ExtractionFinishedEvent) Kind() Kind { return KindExtractionFinished }

// ReconcileInvoiceEvent schedules one invoice for contract matching.
type ReconcileInvoiceEvent struct {
	FileID         string               `json:"file_id"`
	Filename       string               `json:"filename"`
	Classification model.Classification `json:"classification"`
	Invoice        model.InvoiceData    `json:"invoice_data"`
}

func (ReconcileInvoiceEvent) Kind() Kind { return KindReconcileInvoice }

// ProcessingCompleteEvent carries the final result for one file.
type ProcessingCompleteEvent struct {
	Result model.ProcessingResult `json:"result"`
}

func (ProcessingCompleteEvent) Kind() Kind { return KindProcessingComplete }

// StatusLevel grades progress messages.
type StatusLevel string

const (
	StatusInfo  StatusLevel = "info"
	StatusError StatusLevel = "error"
)

// StatusEvent is a progress message for observers. It is stream-only: no
// step consumes it.
type StatusEvent struct {
	FileID  string      `json:"file_id,omitempty"`
	Message string      `json:"message"`
	Level   StatusLevel `json:"level"`
}

func (StatusEvent) Kind() Kind { return KindStatus }

// StopEvent terminates the run, carrying the final result sequence.
type StopEvent struct {
	Results []model.ProcessingResult `json:"results"`
}

func (StopEvent) Kind() Kind { return KindStop }

// info builds an info-level status event.
func info(fileID, message string) StatusEvent {
	return StatusEvent{FileID: fileID, Message: message, Level: StatusInfo}
}

// errStatus builds an error-level status event.
func errStatus(fileID, message string) StatusEvent {
	return StatusEvent{FileID: fileID, Message: message, Level: StatusError}
}
