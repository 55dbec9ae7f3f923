// Package reconciliation matches extracted invoices against the indexed
// contract corpus.
package reconciliation

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/docsuite/docflow/internal/config"
	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/resilience"
	"github.com/docsuite/docflow/pkg/anthropic"
)

// maxContractChars caps how much of each contract's text goes into the
// matching prompt.
const maxContractChars = 2000

const systemPrompt = `You reconcile invoices against contracts for an accounts payable pipeline.
Given one invoice and a numbered list of contracts, decide which contract (if any) the invoice bills against,
and list field-level discrepancies between the invoice and that contract.
Respond with a JSON object only:
{"is_match": true|false, "matched_contract_index": 1-based index or 0, "match_confidence": 0.0-1.0, "match_rationale": "...", "contract_payment_terms": "...", "discrepancies": [{"field": "...", "invoice_value": "...", "contract_value": "...", "issue": "..."}]}`

// Service implements the workflow's Reconciler contract.
type Service struct {
	llm       anthropic.Client
	model     string
	maxTokens int64
}

// New creates a reconciliation Service.
func New(llm anthropic.Client, cfg config.AnthropicConfig) *Service {
	maxTokens := cfg.MaxTokens
	if maxTokens == 0 {
		maxTokens = 2048
	}
	return &Service{llm: llm, model: cfg.Model, maxTokens: maxTokens}
}

type matchResult struct {
	IsMatch              bool                `json:"is_match"`
	MatchedContractIndex int                 `json:"matched_contract_index"`
	MatchConfidence      float64             `json:"match_confidence"`
	MatchRationale       string              `json:"match_rationale"`
	ContractPaymentTerms string              `json:"contract_payment_terms"`
	Discrepancies        []model.Discrepancy `json:"discrepancies"`
}

// Reconcile asks the model to match one invoice against the contract list.
// An empty contract list and a confident non-match both produce a
// no-match outcome rather than an error.
func (s *Service) Reconcile(ctx context.Context, invoice model.InvoiceData, contracts []model.ContractRef) (*model.MatchOutcome, error) {
	if len(contracts) == 0 {
		return &model.MatchOutcome{Notes: "No contracts available for matching."}, nil
	}

	prompt, err := buildPrompt(invoice, contracts)
	if err != nil {
		return nil, err
	}

	retryCfg := resilience.DefaultRetryConfig()
	retryCfg.OnRetry = resilience.RetryLogger("anthropic", "reconcile")

	resp, err := resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.llm.CreateMessage(ctx, anthropic.MessageRequest{
			Model:     s.model,
			MaxTokens: s.maxTokens,
			System:    []anthropic.SystemBlock{{Text: systemPrompt}},
			Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
		})
	})
	if err != nil {
		return nil, eris.Wrap(err, "reconciliation: model call")
	}
	resp.Usage.LogCost(s.model, "reconciliation")

	var result matchResult
	if err := anthropic.DecodeJSON(resp.Text(), &result); err != nil {
		return nil, eris.Wrap(err, "reconciliation: parse model response")
	}

	idx := result.MatchedContractIndex - 1
	if !result.IsMatch || idx < 0 || idx >= len(contracts) {
		return &model.MatchOutcome{Notes: "No matching contract found."}, nil
	}

	return &model.MatchOutcome{
		MatchedContractID: contracts[idx].ID,
		Notes:             fmt.Sprintf("Match (%.2f): %s", result.MatchConfidence, result.MatchRationale),
		Discrepancies:     result.Discrepancies,
	}, nil
}

func buildPrompt(invoice model.InvoiceData, contracts []model.ContractRef) (string, error) {
	invoiceJSON, err := json.MarshalIndent(invoice, "", "  ")
	if err != nil {
		return "", eris.Wrap(err, "reconciliation: marshal invoice")
	}

	var sb strings.Builder
	sb.WriteString("Invoice:\n")
	sb.Write(invoiceJSON)
	fmt.Fprintf(&sb, "\n\nContracts (%d):\n", len(contracts))
	for i, c := range contracts {
		text := c.Text
		if len(text) > maxContractChars {
			text = text[:maxContractChars]
		}
		fmt.Fprintf(&sb, "\n--- Contract %d: %s ---\n%s\n", i+1, c.Filename, text)
	}
	return sb.String(), nil
}
