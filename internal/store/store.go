package store

import (
	"context"

	"github.com/docsuite/docflow/internal/model"
)

// DocumentUpdate is a partial update of a document record. Nil fields are
// left untouched. One update is applied in one transaction; either every
// named field commits or none do.
type DocumentUpdate struct {
	Category            *model.Category
	ExtractedData       map[string]any
	TextContent         *string
	ReconciliationNotes *string
	Discrepancies       []model.Discrepancy
	ContractID          *string
}

// IsZero reports whether the update names no fields.
func (u DocumentUpdate) IsZero() bool {
	return u.Category == nil &&
		u.ExtractedData == nil &&
		u.TextContent == nil &&
		u.ReconciliationNotes == nil &&
		u.Discrepancies == nil &&
		u.ContractID == nil
}

// Store defines the persistence interface for the document pipeline. It is
// the only cross-run shared resource; the workflow never deletes records.
type Store interface {
	// UpsertDocument creates the record (category=processing) if the
	// filename is new, otherwise returns the existing record.
	UpsertDocument(ctx context.Context, fileID, filename string) (*model.Document, error)
	GetDocument(ctx context.Context, fileID string) (*model.Document, error)
	// GetCachedDocument returns the record only when the given cache field
	// is populated. Returns (nil, nil) otherwise.
	GetCachedDocument(ctx context.Context, fileID string, field model.CacheField) (*model.Document, error)
	UpdateDocument(ctx context.Context, fileID string, update DocumentUpdate) error

	// ListContracts returns every contract with its parsed text, for
	// reconciliation matching.
	ListContracts(ctx context.Context) ([]model.ContractRef, error)
	// ListPendingInvoices returns invoices that were extracted but never
	// matched to a contract, across all prior runs.
	ListPendingInvoices(ctx context.Context) ([]model.Document, error)
	ListDocuments(ctx context.Context) ([]model.Document, error)
	// ListIncompleteIDs returns ids of documents that are failed, stuck in
	// processing, unclassifiable, or unmatched invoices.
	ListIncompleteIDs(ctx context.Context) ([]string, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

// GroupByContract organizes documents for dashboard-style views: top-level
// contracts (plus anything unmatched) and invoices grouped under the
// contract they reconciled against.
func GroupByContract(docs []model.Document) (toplevel []model.Document, invoicesByContract map[string][]model.Document) {
	contracts := make(map[string]bool, len(docs))
	for _, d := range docs {
		if d.Category == model.CategoryContract {
			contracts[d.ID] = true
		}
	}

	invoicesByContract = make(map[string][]model.Document, len(contracts))
	for id := range contracts {
		invoicesByContract[id] = nil
	}

	for _, d := range docs {
		matched := d.MatchedContractID()
		if matched != "" && contracts[matched] {
			invoicesByContract[matched] = append(invoicesByContract[matched], d)
		} else {
			toplevel = append(toplevel, d)
		}
	}
	return toplevel, invoicesByContract
}
