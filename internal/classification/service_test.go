package classification

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/pkg/anthropic"
)

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func newTestService(llm *mockLLM, ocrMock *mockOCR, st *mockStore) *Service {
	return New(llm, ocrMock, st, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"})
}

func TestClassifyBatch_XLSXRule(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, "f1").Return(nil, nil)

	svc := newTestService(new(mockLLM), new(mockOCR), st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "f1", FilePath: "/tmp/items.xlsx", Filename: "items.xlsx"},
	})
	require.NoError(t, err)
	require.Contains(t, out, "f1")
	assert.Equal(t, model.CategoryInvoice, out["f1"].Category)
	assert.Equal(t, model.FileTypeXLSX, out["f1"].FileType)
	assert.Equal(t, 1.0, out["f1"].Confidence)
}

func TestClassifyBatch_UnsupportedExtension(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, "f1").Return(nil, nil)

	svc := newTestService(new(mockLLM), new(mockOCR), st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "f1", FilePath: "/tmp/notes.txt", Filename: "notes.txt"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryOther, out["f1"].Category)
	assert.Equal(t, model.FileTypeUnknown, out["f1"].FileType)
	assert.Zero(t, out["f1"].Confidence)
}

func TestClassifyBatch_PDFsViaModel(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, mock.Anything).Return(nil, nil)

	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/a.pdf").Return("MASTER SERVICES AGREEMENT", nil)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/b.pdf").Return("INVOICE #42", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`[
		{"file_id": "a", "document_category": "contract", "confidence": 0.95, "summary": "MSA"},
		{"file_id": "b", "document_category": "invoice", "confidence": 0.9, "summary": "Invoice 42"}
	]`), nil)

	svc := newTestService(llm, ocrMock, st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "a", FilePath: "/tmp/a.pdf", Filename: "a.pdf"},
		{FileID: "b", FilePath: "/tmp/b.pdf", Filename: "b.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryContract, out["a"].Category)
	assert.Equal(t, model.CategoryInvoice, out["b"].Category)
	assert.Equal(t, model.FileTypePDF, out["a"].FileType)

	// one model call for the whole batch
	llm.AssertNumberOfCalls(t, "CreateMessage", 1)
}

func TestClassifyBatch_CachedCategory(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, "a").Return(&model.Document{
		ID: "a", Category: model.CategoryContract,
	}, nil)

	llm := new(mockLLM)
	svc := newTestService(llm, new(mockOCR), st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "a", FilePath: "/tmp/a.pdf", Filename: "a.pdf"},
	})
	require.NoError(t, err)
	assert.Equal(t, model.CategoryContract, out["a"].Category)
	llm.AssertNotCalled(t, "CreateMessage")
}

func TestClassifyBatch_ModelErrorReturnsPartial(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, mock.Anything).Return(nil, nil)

	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/a.pdf").Return("text", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))

	svc := newTestService(llm, ocrMock, st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "a", FilePath: "/tmp/a.pdf", Filename: "a.pdf"},
		{FileID: "x", FilePath: "/tmp/x.xlsx", Filename: "x.xlsx"},
	})
	require.Error(t, err)
	// the xlsx rule still classified its file
	assert.Contains(t, out, "x")
	assert.NotContains(t, out, "a")
}

func TestClassifyBatch_OCRFailureSkipsFile(t *testing.T) {
	st := new(mockStore)
	st.On("GetDocument", mock.Anything, mock.Anything).Return(nil, nil)

	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/bad.pdf").Return("", errors.New("corrupt pdf"))
	ocrMock.On("ExtractText", mock.Anything, "/tmp/good.pdf").Return("INVOICE", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`[
		{"file_id": "good", "document_category": "invoice", "confidence": 0.9}
	]`), nil)

	svc := newTestService(llm, ocrMock, st)

	out, err := svc.ClassifyBatch(context.Background(), []model.FileUnit{
		{FileID: "bad", FilePath: "/tmp/bad.pdf", Filename: "bad.pdf"},
		{FileID: "good", FilePath: "/tmp/good.pdf", Filename: "good.pdf"},
	})
	require.Error(t, err)
	assert.NotContains(t, out, "bad")
	assert.Contains(t, out, "good")
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, model.CategoryInvoice, parseCategory(" Invoice "))
	assert.Equal(t, model.CategoryContract, parseCategory("contract"))
	assert.Equal(t, model.CategoryOther, parseCategory("receipt"))
	assert.Equal(t, model.CategoryOther, parseCategory(""))
}
