package model

import "time"

// Category is the lifecycle category of a stored document.
type Category string

const (
	CategoryProcessing Category = "processing"
	CategoryInvoice    Category = "invoice"
	CategoryContract   Category = "contract"
	CategoryOther      Category = "other"
	CategoryFailed     Category = "failed"
	CategoryUnknown    Category = "unknown"
)

// CacheField names a document column that acts as an idempotency marker:
// when the field is already populated, the step that would compute it is
// skipped and the stored value reused.
type CacheField string

const (
	CacheFieldExtractedData       CacheField = "extracted_data"
	CacheFieldTextContent         CacheField = "text_content"
	CacheFieldReconciliationNotes CacheField = "reconciliation_notes"
)

// Document is the durable record for a single processed file. The id matches
// the upstream file id. ContractID is set only on invoices that matched a
// contract; contracts themselves never carry it.
type Document struct {
	ID                  string         `json:"id"`
	Filename            string         `json:"filename"`
	Category            Category       `json:"category"`
	ExtractedData       map[string]any `json:"extracted_data,omitempty"`
	TextContent         string         `json:"text_content,omitempty"`
	Discrepancies       []Discrepancy  `json:"discrepancies,omitempty"`
	ReconciliationNotes string         `json:"reconciliation_notes,omitempty"`
	ContractID          string         `json:"contract_id,omitempty"`
	CreatedAt           time.Time      `json:"created_at"`
}

// MatchedContractID returns the contract an invoice was reconciled against,
// or "" for contracts and unmatched invoices.
func (d *Document) MatchedContractID() string {
	if d.Category == CategoryContract {
		return ""
	}
	if d.ContractID != "" {
		return d.ContractID
	}
	if d.ExtractedData != nil {
		if id, ok := d.ExtractedData["matched_contract_id"].(string); ok {
			return id
		}
	}
	return ""
}

// ContractRef is the slice of a contract document handed to the
// reconciliation collaborator for matching.
type ContractRef struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Text     string `json:"text"`
}
