package mcp

import (
	"context"

	"github.com/custodia-labs/knowledge-server/internal/core/domain"
)

// mockSearchService is a mock implementation of driving.SearchService.
type mockSearchService struct {
	results []domain.SearchResult
	err     error

	query   string
	filters domain.SearchFilters
	opts    domain.SearchOptions
}

func (m *mockSearchService) Search(
	_ context.Context,
	query string,
	filters domain.SearchFilters,
	opts domain.SearchOptions,
) ([]domain.SearchResult, error) {
	m.query, m.filters, m.opts = query, filters, opts
	return m.results, m.err
}

// mockDocumentService is a mock implementation of driving.DocumentService
// keyed by store key.
type mockDocumentService struct {
	documents map[string]*domain.Document
	listed    []domain.Document
	err       error

	lastList domain.ListParams
}

func (m *mockDocumentService) Get(_ context.Context, ct domain.ContentType, id string) (*domain.Document, error) {
	if m.err != nil {
		return nil, m.err
	}
	key, err := domain.StoreKey(ct, id)
	if err != nil {
		return nil, err
	}
	doc, ok := m.documents[key]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

func (m *mockDocumentService) List(_ context.Context, params domain.ListParams) (*domain.DocumentPage, error) {
	m.lastList = params
	if m.err != nil {
		return nil, m.err
	}
	var docs []domain.Document
	for _, d := range m.listed {
		if params.ContentType == "" || d.ContentType == params.ContentType {
			docs = append(docs, d)
		}
	}
	return &domain.DocumentPage{Documents: docs, Total: len(docs), Limit: params.Limit}, nil
}

func newPorts() (*Ports, *mockSearchService, *mockDocumentService) {
	search := &mockSearchService{}
	docs := &mockDocumentService{documents: map[string]*domain.Document{}}
	return &Ports{Search: search, Document: docs}, search, docs
}

func (m *mockDocumentService) add(doc *domain.Document) {
	key, err := doc.Key()
	if err != nil {
		panic(err)
	}
	m.documents[key] = doc
	m.listed = append(m.listed, *doc)
}
