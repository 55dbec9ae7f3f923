package model

// ProcessingResult is the immutable per-file snapshot returned to the caller
// when a run finishes. Exactly one result is produced per submitted or
// rediscovered file.
type ProcessingResult struct {
	FileID              string         `json:"file_id"`
	Filename            string         `json:"filename"`
	Classification      Classification `json:"classification"`
	MatchedContractID   string         `json:"matched_contract_id,omitempty"`
	ExtractedData       map[string]any `json:"extracted_data,omitempty"`
	ReconciliationNotes string         `json:"reconciliation_notes,omitempty"`
	Discrepancies       []Discrepancy  `json:"discrepancies,omitempty"`
}
