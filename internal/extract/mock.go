package extract

import "context"

// MockProvider satisfies Provider for tests and local development.
type MockProvider struct {
	Name_        string
	CompleteFunc func(ctx context.Context, req CompletionRequest) (string, error)
}

func (m *MockProvider) Name() string {
	if m.Name_ == "" {
		return "mock"
	}
	return m.Name_
}

func (m *MockProvider) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return `{"findings": []}`, nil
}

var _ Provider = (*MockProvider)(nil)
