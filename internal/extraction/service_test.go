package extraction

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/pkg/anthropic"
)

func textResponse(body string) *anthropic.MessageResponse {
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: body}},
	}
}

func newTestService(llm *mockLLM, ocrMock *mockOCR) *Service {
	return New(llm, ocrMock, config.AnthropicConfig{Model: "claude-haiku-4-5-20251001"})
}

func writeXLSX(t *testing.T, rows [][]string) string {
	t.Helper()
	f := xlsx.NewFile()
	sheet, err := f.AddSheet("Sheet1")
	require.NoError(t, err)
	for _, rowData := range rows {
		row := sheet.AddRow()
		for _, cellData := range rowData {
			row.AddCell().SetString(cellData)
		}
	}
	path := filepath.Join(t.TempDir(), "items.xlsx")
	require.NoError(t, f.Save(path))
	return path
}

func TestExtract_Spreadsheet(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"Description", "Qty", "Unit Price", "Amount"},
		{"Widgets", "10", "$2.50", "25.00"},
		{"Gadgets", "3", "5.00", ""},
		{"", "", "", ""},
	})

	svc := newTestService(new(mockLLM), new(mockOCR))
	ex, err := svc.Extract(context.Background(), path, model.Classification{
		FileType: model.FileTypeXLSX,
		Category: model.CategoryInvoice,
	})
	require.NoError(t, err)

	inv, err := model.InvoiceDataFrom(ex.Data)
	require.NoError(t, err)
	assert.Equal(t, "Spreadsheet Import", inv.VendorName)
	require.Len(t, inv.LineItems, 2)
	assert.Equal(t, 25.0, inv.LineItems[0].Amount)
	// amount backfilled from qty * unit price
	assert.Equal(t, 15.0, inv.LineItems[1].Amount)
	assert.Equal(t, 40.0, inv.TotalAmount)
}

func TestExtract_SpreadsheetNoRecognizableColumns(t *testing.T) {
	path := writeXLSX(t, [][]string{
		{"foo", "bar"},
		{"1", "2"},
	})

	svc := newTestService(new(mockLLM), new(mockOCR))
	_, err := svc.Extract(context.Background(), path, model.Classification{FileType: model.FileTypeXLSX})
	assert.Error(t, err)
}

func TestExtract_InvoicePDF(t *testing.T) {
	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/inv.pdf").Return("INVOICE #42 from Acme", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"vendor_name": "Acme Corp",
		"invoice_number": "42",
		"total_amount": 1200.50,
		"payment_terms": "Net 30"
	}`), nil)

	svc := newTestService(llm, ocrMock)
	ex, err := svc.Extract(context.Background(), "/tmp/inv.pdf", model.Classification{
		FileType: model.FileTypePDF,
		Category: model.CategoryInvoice,
	})
	require.NoError(t, err)
	assert.Equal(t, "INVOICE #42 from Acme", ex.TextContent)
	assert.Equal(t, "Acme Corp", ex.Data["vendor_name"])
	assert.Equal(t, 1200.50, ex.Data["total_amount"])
}

func TestExtract_ContractPDF(t *testing.T) {
	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, "/tmp/msa.pdf").Return("MASTER SERVICES AGREEMENT", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(textResponse(`{
		"vendor_name": "Acme Corp",
		"contract_number": "MSA-7",
		"payment_terms": "Net 45"
	}`), nil)

	svc := newTestService(llm, ocrMock)
	ex, err := svc.Extract(context.Background(), "/tmp/msa.pdf", model.Classification{
		FileType: model.FileTypePDF,
		Category: model.CategoryContract,
	})
	require.NoError(t, err)
	assert.Equal(t, "MASTER SERVICES AGREEMENT", ex.TextContent)
	assert.Equal(t, "MSA-7", ex.Data["contract_number"])
}

func TestExtract_EmptyText(t *testing.T) {
	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, mock.Anything).Return("   \n", nil)

	svc := newTestService(new(mockLLM), ocrMock)
	_, err := svc.Extract(context.Background(), "/tmp/blank.pdf", model.Classification{
		FileType: model.FileTypePDF,
		Category: model.CategoryInvoice,
	})
	assert.Error(t, err)
}

func TestExtract_ModelFailure(t *testing.T) {
	ocrMock := new(mockOCR)
	ocrMock.On("ExtractText", mock.Anything, mock.Anything).Return("INVOICE", nil)

	llm := new(mockLLM)
	llm.On("CreateMessage", mock.Anything, mock.Anything).Return(nil, errors.New("api down"))

	svc := newTestService(llm, ocrMock)
	_, err := svc.Extract(context.Background(), "/tmp/inv.pdf", model.Classification{
		FileType: model.FileTypePDF,
		Category: model.CategoryInvoice,
	})
	assert.Error(t, err)
}

func TestMapHeaderColumns_Synonyms(t *testing.T) {
	cols := mapHeaderColumns([]string{"Item", "Units", "Rate", "Line Total"})
	assert.Equal(t, 0, cols.description)
	assert.Equal(t, 1, cols.quantity)
	assert.Equal(t, 2, cols.unitPrice)
	assert.Equal(t, 3, cols.amount)
}
