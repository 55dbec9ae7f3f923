// Package extraction parses structured data out of classified documents.
package extraction

import (
	"context"
	"encoding/json"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/fetcher"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/ocr"
	"github.com/docsuite/docflow/internal/resilience"
	"github.com/docsuite/docflow/pkg/anthropic"
)

// spreadsheetVendor labels line items imported from XLSX files, which carry
// no vendor metadata of their own.
const spreadsheetVendor = "Spreadsheet Import"

const invoiceSystemPrompt = `You extract structured data from invoice text.
Respond with a JSON object only, using this shape:
{"vendor_name": "...", "invoice_number": "...", "total_amount": 0.0, "date": "YYYY-MM-DD", "purchase_order_number": "...", "payment_terms": "...", "line_items": [{"description": "...", "quantity": 0.0, "unit_price": 0.0, "amount": 0.0}]}
Omit fields that are not present in the document.`

const contractSystemPrompt = `You extract structured data from contract text.
Respond with a JSON object only, using this shape:
{"vendor_name": "...", "contract_number": "...", "effective_date": "YYYY-MM-DD", "expiration_date": "YYYY-MM-DD", "payment_terms": "..."}
Omit fields that are not present in the document.`

// Service implements the workflow's Extractor contract.
type Service struct {
	llm       anthropic.Client
	ocr       ocr.Extractor
	model     string
	maxTokens int64
}

// New creates an extraction Service.
func New(llm anthropic.Client, extractor ocr.Extractor, cfg config.AnthropicConfig) *Service {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	return &Service{
		llm:       llm,
		ocr:       extractor,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

// Extract parses one file according to its classification. Spreadsheets are
// read directly; PDFs go through text extraction and then the model.
func (s *Service) Extract(ctx context.Context, path string, cls model.Classification) (*model.Extraction, error) {
	if cls.FileType == model.FileTypeXLSX || strings.EqualFold(filepath.Ext(path), ".xlsx") {
		return s.extractSpreadsheet(path)
	}

	text, err := s.ocr.ExtractText(ctx, path)
	if err != nil {
		return nil, eris.Wrapf(err, "extraction: extract text %s", path)
	}
	if strings.TrimSpace(text) == "" {
		return nil, eris.Errorf("extraction: no text content in %s", path)
	}

	switch cls.Category {
	case model.CategoryContract:
		return s.extractContract(ctx, text)
	case model.CategoryInvoice:
		return s.extractInvoice(ctx, text)
	}
	return nil, eris.Errorf("extraction: unsupported category %q", cls.Category)
}

// extractSpreadsheet maps XLSX rows to invoice line items by matching header
// names against known synonyms.
func (s *Service) extractSpreadsheet(path string) (*model.Extraction, error) {
	rows, err := fetcher.ReadXLSX(path, fetcher.XLSXOptions{})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("extraction: empty spreadsheet %s", path)
	}

	cols := mapHeaderColumns(rows[0])
	if cols.description < 0 && cols.amount < 0 {
		return nil, eris.Errorf("extraction: no recognizable columns in %s", path)
	}

	var items []model.LineItem
	var total float64
	for _, row := range rows[1:] {
		item := model.LineItem{
			Description: cellAt(row, cols.description),
			Quantity:    numberAt(row, cols.quantity),
			UnitPrice:   numberAt(row, cols.unitPrice),
			Amount:      numberAt(row, cols.amount),
		}
		if item.Amount == 0 && item.Quantity != 0 && item.UnitPrice != 0 {
			item.Amount = item.Quantity * item.UnitPrice
		}
		if item.Description == "" && item.Amount == 0 {
			continue
		}
		items = append(items, item)
		total += item.Amount
	}

	inv := model.InvoiceData{
		VendorName:  spreadsheetVendor,
		TotalAmount: total,
		LineItems:   items,
	}
	return &model.Extraction{Data: inv.Map()}, nil
}

func (s *Service) extractInvoice(ctx context.Context, text string) (*model.Extraction, error) {
	var inv model.InvoiceData
	if err := s.askModel(ctx, invoiceSystemPrompt, text, "invoice_extraction", &inv); err != nil {
		return nil, err
	}
	return &model.Extraction{TextContent: text, Data: inv.Map()}, nil
}

func (s *Service) extractContract(ctx context.Context, text string) (*model.Extraction, error) {
	var contract model.ContractData
	if err := s.askModel(ctx, contractSystemPrompt, text, "contract_extraction", &contract); err != nil {
		return nil, err
	}

	raw, err := json.Marshal(contract)
	if err != nil {
		return nil, eris.Wrap(err, "extraction: marshal contract data")
	}
	data := map[string]any{}
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, eris.Wrap(err, "extraction: unmarshal contract data")
	}
	return &model.Extraction{TextContent: text, Data: data}, nil
}

func (s *Service) askModel(ctx context.Context, system, text, phase string, out any) error {
	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", phase)

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			System:    []anthropic.SystemBlock{{Text: system}},
			Messages:  []anthropic.Message{{Role: "user", Content: text}},
		})
	})
	if err != nil {
		return eris.Wrapf(err, "extraction: %s model call", phase)
	}
	resp.Usage.LogCost(s.model, phase)

	if err := anthropic.DecodeJSON(resp.Text(), out); err != nil {
		zap.L().Warn("extraction: unparseable model response", zap.String("phase", phase))
		return eris.Wrapf(err, "extraction: parse %s response", phase)
	}
	return nil
}

// headerColumns holds the resolved column index for each line item field,
// or -1 when the sheet has no matching header.
type headerColumns struct {
	description int
	quantity    int
	unitPrice   int
	amount      int
}

var headerSynonyms = map[string][]string{
	"description": {"description", "desc", "item", "item description"},
	"quantity":    {"quantity", "qty", "units"},
	"unit_price":  {"unit_price", "unit price", "price", "rate"},
	"amount":      {"amount", "total", "line total", "subtotal"},
}

func mapHeaderColumns(header []string) headerColumns {
	cols := headerColumns{description: -1, quantity: -1, unitPrice: -1, amount: -1}
	for i, raw := range header {
		name := strings.ToLower(strings.TrimSpace(raw))
		switch {
		case cols.description < 0 && matches(name, headerSynonyms["description"]):
			cols.description = i
		case cols.quantity < 0 && matches(name, headerSynonyms["quantity"]):
			cols.quantity = i
		case cols.unitPrice < 0 && matches(name, headerSynonyms["unit_price"]):
			cols.unitPrice = i
		case cols.amount < 0 && matches(name, headerSynonyms["amount"]):
			cols.amount = i
		}
	}
	return cols
}

func matches(name string, synonyms []string) bool {
	for _, s := range synonyms {
		if name == s {
			return true
		}
	}
	return false
}

func cellAt(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[idx])
}

func numberAt(row []string, idx int) float64 {
	raw := cellAt(row, idx)
	if raw == "" {
		return 0
	}
	raw = strings.NewReplacer("$", "", ",", "", " ", "").Replace(raw)
	n, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0
	}
	return n
}
