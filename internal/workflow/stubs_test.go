package workflow

import (
	"context"
	"sync"

	"github.com/rotisserie/eris"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
)

// fakeStore is an in-memory Store for pipeline tests.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string]*model.Document
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string]*model.Document)}
}

func (s *fakeStore) seed(doc model.Document) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d := doc
	s.docs[d.ID] = &d
}

func (s *fakeStore) doc(id string) model.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[id]; ok {
		return *d
	}
	return model.Document{}
}

func (s *fakeStore) UpsertDocument(_ context.Context, fileID, filename string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range s.docs {
		if d.Filename == filename {
			dup := *d
			return &dup, nil
		}
	}
	d := &model.Document{ID: fileID, Filename: filename, Category: model.CategoryProcessing}
	s.docs[fileID] = d
	dup := *d
	return &dup, nil
}

func (s *fakeStore) GetDocument(_ context.Context, fileID string) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.docs[fileID]; ok {
		dup := *d
		return &dup, nil
	}
	return nil, nil
}

func (s *fakeStore) GetCachedDocument(_ context.Context, fileID string, field model.CacheField) (*model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[fileID]
	if !ok {
		return nil, nil
	}
	populated := false
	switch field {
	case model.CacheFieldExtractedData:
		populated = len(d.ExtractedData) > 0
	case model.CacheFieldTextContent:
		populated = d.TextContent != ""
	case model.CacheFieldReconciliationNotes:
		populated = d.ReconciliationNotes != ""
	}
	if !populated {
		return nil, nil
	}
	dup := *d
	return &dup, nil
}

func (s *fakeStore) UpdateDocument(ctx context.Context, fileID string, update store.DocumentUpdate) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[fileID]
	if !ok {
		return eris.Errorf("no document %s", fileID)
	}
	if update.Category != nil {
		d.Category = *update.Category
	}
	if update.ExtractedData != nil {
		d.ExtractedData = update.ExtractedData
	}
	if update.TextContent != nil {
		d.TextContent = *update.TextContent
	}
	if update.ReconciliationNotes != nil {
		d.ReconciliationNotes = *update.ReconciliationNotes
	}
	if update.Discrepancies != nil {
		d.Discrepancies = update.Discrepancies
	}
	if update.ContractID != nil {
		d.ContractID = *update.ContractID
	}
	return nil
}

func (s *fakeStore) ListContracts(_ context.Context) ([]model.ContractRef, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.ContractRef
	for _, d := range s.docs {
		if d.Category == model.CategoryContract {
			out = append(out, model.ContractRef{ID: d.ID, Filename: d.Filename, Text: d.TextContent})
		}
	}
	return out, nil
}

func (s *fakeStore) ListPendingInvoices(_ context.Context) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Document
	for _, d := range s.docs {
		if d.Category == model.CategoryInvoice && len(d.ExtractedData) > 0 && d.ContractID == "" {
			out = append(out, *d)
		}
	}
	return out, nil
}

func (s *fakeStore) ListDocuments(_ context.Context) ([]model.Document, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Document, 0, len(s.docs))
	for _, d := range s.docs {
		out = append(out, *d)
	}
	return out, nil
}

func (s *fakeStore) ListIncompleteIDs(_ context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []string
	for id, d := range s.docs {
		switch {
		case d.Category == model.CategoryProcessing || d.Category == model.CategoryFailed:
			out = append(out, id)
		case d.Category == model.CategoryInvoice && d.ContractID == "":
			out = append(out, id)
		}
	}
	return out, nil
}

func (s *fakeStore) Migrate(context.Context) error { return nil }
func (s *fakeStore) Close() error                  { return nil }

// --- collaborator stubs ---

type stubIngestor struct {
	fn    func(ctx context.Context, fileID string) (*model.FileUnit, error)
	calls counter
}

func (s *stubIngestor) Download(ctx context.Context, fileID string) (*model.FileUnit, error) {
	s.calls.inc()
	if s.fn != nil {
		return s.fn(ctx, fileID)
	}
	return &model.FileUnit{FileID: fileID, FilePath: "/tmp/" + fileID, Filename: fileID + ".pdf"}, nil
}

type stubClassifier struct {
	fn    func(ctx context.Context, files []model.FileUnit) (map[string]model.Classification, error)
	calls counter
}

func (s *stubClassifier) ClassifyBatch(ctx context.Context, files []model.FileUnit) (map[string]model.Classification, error) {
	s.calls.inc()
	return s.fn(ctx, files)
}

type stubExtractor struct {
	fn    func(ctx context.Context, path string, cls model.Classification) (*model.Extraction, error)
	calls counter
}

func (s *stubExtractor) Extract(ctx context.Context, path string, cls model.Classification) (*model.Extraction, error) {
	s.calls.inc()
	return s.fn(ctx, path, cls)
}

type stubReconciler struct {
	fn    func(ctx context.Context, invoice model.InvoiceData, contracts []model.ContractRef) (*model.MatchOutcome, error)
	calls counter
}

func (s *stubReconciler) Reconcile(ctx context.Context, invoice model.InvoiceData, contracts []model.ContractRef) (*model.MatchOutcome, error) {
	s.calls.inc()
	return s.fn(ctx, invoice, contracts)
}

type counter struct {
	mu sync.Mutex
	n  int
}

func (c *counter) inc() {
	c.mu.Lock()
	c.n++
	c.mu.Unlock()
}

func (c *counter) value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}
