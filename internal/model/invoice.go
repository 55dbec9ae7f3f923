package model

import (
	"encoding/json"

	"github.com/rotisserie/eris"
)

// LineItem is a single billed line on an invoice.
type LineItem struct {
	Description string  `json:"description,omitempty"`
	Quantity    float64 `json:"quantity,omitempty"`
	UnitPrice   float64 `json:"unit_price,omitempty"`
	Amount      float64 `json:"amount,omitempty"`
}

// InvoiceData is the structured payload extracted from an invoice.
type InvoiceData struct {
	VendorName          string     `json:"vendor_name,omitempty"`
	InvoiceNumber       string     `json:"invoice_number,omitempty"`
	TotalAmount         float64    `json:"total_amount,omitempty"`
	Date                string     `json:"date,omitempty"`
	PurchaseOrderNumber string     `json:"purchase_order_number,omitempty"`
	PaymentTerms        string     `json:"payment_terms,omitempty"`
	LineItems           []LineItem `json:"line_items,omitempty"`
}

// ContractData is the structured payload extracted from a contract.
type ContractData struct {
	VendorName     string `json:"vendor_name,omitempty"`
	ContractNumber string `json:"contract_number,omitempty"`
	EffectiveDate  string `json:"effective_date,omitempty"`
	ExpirationDate string `json:"expiration_date,omitempty"`
	PaymentTerms   string `json:"payment_terms,omitempty"`
}

// Discrepancy records one field-level mismatch between an invoice and the
// contract it matched.
type Discrepancy struct {
	Field         string `json:"field"`
	InvoiceValue  string `json:"invoice_value"`
	ContractValue string `json:"contract_value"`
	Issue         string `json:"issue"`
}

// MatchOutcome is what the reconciliation collaborator returns for one
// invoice. MatchedContractID is "" when no plausible contract was found.
type MatchOutcome struct {
	MatchedContractID string        `json:"matched_contract_id,omitempty"`
	Notes             string        `json:"notes"`
	Discrepancies     []Discrepancy `json:"discrepancies,omitempty"`
}

// Map converts structured invoice data to the loose map shape persisted in
// the extracted_data column.
func (d InvoiceData) Map() map[string]any {
	raw, err := json.Marshal(d)
	if err != nil {
		return map[string]any{}
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return map[string]any{}
	}
	return m
}

// InvoiceDataFrom parses persisted extracted_data back into structured form.
// Unknown keys (matched_contract_id among them) are dropped.
func InvoiceDataFrom(m map[string]any) (InvoiceData, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return InvoiceData{}, eris.Wrap(err, "model: marshal extracted data")
	}
	var d InvoiceData
	if err := json.Unmarshal(raw, &d); err != nil {
		return InvoiceData{}, eris.Wrap(err, "model: unmarshal invoice data")
	}
	return d, nil
}
