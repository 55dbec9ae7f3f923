package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchedContractID(t *testing.T) {
	contract := Document{ID: "c1", Category: CategoryContract, ContractID: "bogus"}
	assert.Empty(t, contract.MatchedContractID(), "contracts never match other contracts")

	invoice := Document{Category: CategoryInvoice, ContractID: "c1"}
	assert.Equal(t, "c1", invoice.MatchedContractID())

	legacy := Document{
		Category:      CategoryInvoice,
		ExtractedData: map[string]any{"matched_contract_id": "c2"},
	}
	assert.Equal(t, "c2", legacy.MatchedContractID())

	unmatched := Document{Category: CategoryInvoice}
	assert.Empty(t, unmatched.MatchedContractID())

	badType := Document{
		Category:      CategoryInvoice,
		ExtractedData: map[string]any{"matched_contract_id": 42},
	}
	assert.Empty(t, badType.MatchedContractID())
}

func TestInvoiceDataRoundTrip(t *testing.T) {
	data := InvoiceData{
		VendorName:    "Acme Corp",
		InvoiceNumber: "INV-001",
		TotalAmount:   1250.50,
		Date:          "2025-03-01",
		PaymentTerms:  "Net 30",
		LineItems: []LineItem{
			{Description: "Widgets", Quantity: 10, UnitPrice: 125.05, Amount: 1250.50},
		},
	}

	m := data.Map()
	assert.Equal(t, "Acme Corp", m["vendor_name"])
	assert.Equal(t, 1250.50, m["total_amount"])

	back, err := InvoiceDataFrom(m)
	require.NoError(t, err)
	assert.Equal(t, data, back)
}

func TestInvoiceDataFrom_DropsUnknownKeys(t *testing.T) {
	back, err := InvoiceDataFrom(map[string]any{
		"vendor_name":         "Acme",
		"matched_contract_id": "c1",
	})
	require.NoError(t, err)
	assert.Equal(t, "Acme", back.VendorName)
}

func TestInvoiceDataFrom_BadShape(t *testing.T) {
	_, err := InvoiceDataFrom(map[string]any{"total_amount": "twelve"})
	require.Error(t, err)
}

func TestUnknownClassification(t *testing.T) {
	cls := UnknownClassification()
	assert.Equal(t, FileTypeUnknown, cls.FileType)
	assert.Equal(t, CategoryOther, cls.Category)
	assert.Zero(t, cls.Confidence)
}
