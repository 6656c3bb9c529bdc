// Package mocks holds testify mocks for the provider interfaces.
package mocks

import (
	"context"
	"iter"

	"github.com/stretchr/testify/mock"

	"ollama-proxy/internal/models"
)

// MockProvider is a mock implementation of provider.Provider.
type MockProvider struct {
	mock.Mock
}

// NewMockProvider creates a MockProvider whose expectations are asserted when
// the test finishes.
func NewMockProvider(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockProvider {
	m := &MockProvider{}
	m.Mock.Test(t)
	t.Cleanup(func() { m.AssertExpectations(t) })
	return m
}

func (m *MockProvider) Name() string {
	args := m.Called()
	return args.String(0)
}

func (m *MockProvider) ListModels() []models.Model {
	args := m.Called()
	if list, ok := args.Get(0).([]models.Model); ok {
		return list
	}
	return nil
}

func (m *MockProvider) ModelDetails(name string) (*models.ModelDocument, error) {
	args := m.Called(name)
	doc, _ := args.Get(0).(*models.ModelDocument)
	return doc, args.Error(1)
}

func (m *MockProvider) Chat(ctx context.Context, messages []models.Message, options models.ChatOptions) (*models.ChatResponse, error) {
	args := m.Called(ctx, messages, options)
	resp, _ := args.Get(0).(*models.ChatResponse)
	return resp, args.Error(1)
}

func (m *MockProvider) ChatStream(ctx context.Context, messages []models.Message, options models.ChatOptions) iter.Seq2[*models.ChatResponse, error] {
	args := m.Called(ctx, messages, options)
	if seq, ok := args.Get(0).(iter.Seq2[*models.ChatResponse, error]); ok {
		return seq
	}
	return func(func(*models.ChatResponse, error) bool) {}
}

// Sequence builds a stream that yields the given responses in order and, when
// err is non-nil, ends with it.
func Sequence(err error, responses ...*models.ChatResponse) iter.Seq2[*models.ChatResponse, error] {
	return func(yield func(*models.ChatResponse, error) bool) {
		for _, resp := range responses {
			if !yield(resp, nil) {
				return
			}
		}
		if err != nil {
			yield(nil, err)
		}
	}
}
