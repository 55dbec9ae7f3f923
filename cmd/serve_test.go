package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/docsuite/docflow/internal/model"
	"github.com/docsuite/docflow/internal/store"
	"github.com/docsuite/docflow/internal/workflow"
)

type mockStore struct {
	mock.Mock
}

func (m *mockStore) UpsertDocument(ctx context.Context, fileID, filename string) (*model.Document, error) {
	args := m.Called(ctx, fileID, filename)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) GetDocument(ctx context.Context, fileID string) (*model.Document, error) {
	args := m.Called(ctx, fileID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) GetCachedDocument(ctx context.Context, fileID string, field model.CacheField) (*model.Document, error) {
	args := m.Called(ctx, fileID, field)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Document), args.Error(1)
}

func (m *mockStore) UpdateDocument(ctx context.Context, fileID string, update store.DocumentUpdate) error {
	return m.Called(ctx, fileID, update).Error(0)
}

func (m *mockStore) ListContracts(ctx context.Context) ([]model.ContractRef, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.ContractRef), args.Error(1)
}

func (m *mockStore) ListPendingInvoices(ctx context.Context) ([]model.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *mockStore) ListDocuments(ctx context.Context) ([]model.Document, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Document), args.Error(1)
}

func (m *mockStore) ListIncompleteIDs(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *mockStore) Migrate(ctx context.Context) error { return m.Called(ctx).Error(0) }
func (m *mockStore) Close() error                      { return m.Called().Error(0) }

func TestHealthz(t *testing.T) {
	env := &appEnv{}
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestCreateRun_BadRequest(t *testing.T) {
	env := &appEnv{}
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Post(srv.URL+"/runs", "application/json", strings.NewReader("not json"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, err = http.Post(srv.URL+"/runs", "application/json", strings.NewReader(`{"file_ids": []}`))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestListDocuments_GroupsInvoices(t *testing.T) {
	st := new(mockStore)
	st.On("ListDocuments", mock.Anything).Return([]model.Document{
		{ID: "c1", Filename: "msa.pdf", Category: model.CategoryContract},
		{ID: "i1", Filename: "inv.pdf", Category: model.CategoryInvoice, ContractID: "c1"},
		{ID: "o1", Filename: "memo.pdf", Category: model.CategoryOther},
	}, nil)

	env := &appEnv{Store: st}
	srv := httptest.NewServer(newRouter(env))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/documents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Documents []struct {
			Document model.Document   `json:"document"`
			Invoices []model.Document `json:"invoices"`
		} `json:"documents"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))

	require.Len(t, body.Documents, 2)
	byID := map[string][]model.Document{}
	for _, g := range body.Documents {
		byID[g.Document.ID] = g.Invoices
	}
	require.Contains(t, byID, "c1")
	require.Len(t, byID["c1"], 1)
	assert.Equal(t, "i1", byID["c1"][0].ID)
	assert.Contains(t, byID, "o1")
}

func TestStreamLine(t *testing.T) {
	line := streamLine(workflow.StatusEvent{FileID: "f1", Message: "Classifying...", Level: workflow.StatusInfo})
	assert.Equal(t, "status", line["kind"])
	assert.Equal(t, "Classifying...", line["message"])

	line = streamLine(workflow.StopEvent{Results: []model.ProcessingResult{{FileID: "f1"}}})
	assert.Equal(t, "stop", line["kind"])
}
