// Package classification assigns a document category to each file in a
// batch, using one LLM call for the whole batch.
package classification

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/ocr"
	"github.com/docsuite/docflow/internal/resilience"
	"github.com/docsuite/docflow/internal/store"
	"github.com/docsuite/docflow/pkg/anthropic"
)

// maxTextPerFile caps how much OCR'd text each file contributes to the
// batch prompt.
const maxTextPerFile = 4000

const systemPrompt = `You classify business documents for an accounts payable pipeline.
For each file you receive, decide whether it is an "invoice", a "contract", or "other".
Respond with a JSON array only. Each element must have the shape:
{"file_id": "...", "document_category": "invoice|contract|other", "confidence": 0.0-1.0, "summary": "...", "reasoning": "..."}
Include exactly one element per file, in any order.`

// Service implements the workflow's Classifier contract.
type Service struct {
	llm       anthropic.Client
	ocr       ocr.Extractor
	store     store.Store
	model     string
	maxTokens int64
}

// New creates a classification Service.
func New(llm anthropic.Client, extractor ocr.Extractor, st store.Store, cfg config.AnthropicConfig) *Service {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	return &Service{
		llm:       llm,
		ocr:       extractor,
		store:     st,
		model:     cfg.Model,
		maxTokens: maxTokens,
	}
}

type classifiedItem struct {
	FileID     string  `json:"file_id"`
	Category   string  `json:"document_category"`
	Confidence float64 `json:"confidence"`
	Summary    string  `json:"summary"`
	Reasoning  string  `json:"reasoning"`
}

type candidate struct {
	file model.FileUnit
	text string
}

// ClassifyBatch classifies every file in one pass. Spreadsheets are
// invoices by convention and skip the model entirely, as do files whose
// durable record already carries a category from an earlier run. Files
// absent from the returned map failed to classify; a partial map may
// accompany a non-nil error.
func (s *Service) ClassifyBatch(ctx context.Context, files []model.FileUnit) (map[string]model.Classification, error) {
	out := make(map[string]model.Classification, len(files))
	var pending []candidate
	var firstErr error

	for _, f := range files {
		ext := strings.ToLower(filepath.Ext(f.Filename))

		if cls, ok := s.cachedClassification(ctx, f, ext); ok {
			out[f.FileID] = cls
			continue
		}

		switch ext {
		case ".xlsx":
			out[f.FileID] = model.Classification{
				FileType:   model.FileTypeXLSX,
				Category:   model.CategoryInvoice,
				Confidence: 1.0,
				Summary:    "Spreadsheet invoice import",
			}
		case ".pdf":
			text, err := s.ocr.ExtractText(ctx, f.FilePath)
			if err != nil {
				zap.L().Warn("classification: text extraction failed",
					zap.String("file_id", f.FileID), zap.Error(err))
				if firstErr == nil {
					firstErr = eris.Wrapf(err, "classification: extract text %s", f.FileID)
				}
				continue
			}
			pending = append(pending, candidate{file: f, text: truncate(text, maxTextPerFile)})
		default:
			out[f.FileID] = model.Classification{
				FileType:   model.FileTypeUnknown,
				Category:   model.CategoryOther,
				Confidence: 0,
				Summary:    fmt.Sprintf("Unsupported file type %q", ext),
			}
		}
	}

	if len(pending) == 0 {
		return out, firstErr
	}

	items, err := s.classifyWithModel(ctx, pending)
	if err != nil {
		if firstErr == nil {
			firstErr = err
		}
		return out, firstErr
	}

	byID := make(map[string]classifiedItem, len(items))
	for _, item := range items {
		byID[item.FileID] = item
	}
	for _, c := range pending {
		item, ok := byID[c.file.FileID]
		if !ok {
			continue
		}
		out[c.file.FileID] = model.Classification{
			FileType:   model.FileTypePDF,
			Category:   parseCategory(item.Category),
			Confidence: item.Confidence,
			Summary:    item.Summary,
			Reasoning:  item.Reasoning,
		}
	}

	return out, firstErr
}

// cachedClassification reuses the category persisted by a previous run.
func (s *Service) cachedClassification(ctx context.Context, f model.FileUnit, ext string) (model.Classification, bool) {
	doc, err := s.store.GetDocument(ctx, f.FileID)
	if err != nil || doc == nil {
		return model.Classification{}, false
	}
	switch doc.Category {
	case model.CategoryInvoice, model.CategoryContract, model.CategoryOther:
		fileType := model.FileTypePDF
		if ext == ".xlsx" {
			fileType = model.FileTypeXLSX
		}
		return model.Classification{
			FileType:   fileType,
			Category:   doc.Category,
			Confidence: 1.0,
			Summary:    "Previously classified",
		}, true
	}
	return model.Classification{}, false
}

func (s *Service) classifyWithModel(ctx context.Context, pending []candidate) ([]classifiedItem, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Classify these %d files.\n", len(pending))
	for i, c := range pending {
		fmt.Fprintf(&sb, "\n--- File %d: file_id=%s filename=%s ---\n%s\n",
			i+1, c.file.FileID, c.file.Filename, c.text)
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "classify_batch")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			System:    []anthropic.SystemBlock{{Text: systemPrompt}},
			Messages:  []anthropic.Message{{Role: "user", Content: sb.String()}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "classification: batch model call")
	}
	resp.Usage.LogCost(s.model, "classification")

	var items []classifiedItem
	if err := anthropic.DecodeJSON(resp.Text(), &items); err != nil {
		return nil, eris.Wrap(err, "classification: parse model response")
	}
	return items, nil
}

func parseCategory(raw string) model.Category {
	switch model.Category(strings.ToLower(strings.TrimSpace(raw))) {
	case model.CategoryInvoice:
		return model.CategoryInvoice
	case model.CategoryContract:
		return model.CategoryContract
	default:
		return model.CategoryOther
	}
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
