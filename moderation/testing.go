package moderation

import (
	"context"
	"sync"
)

var _ ImageLabeler = (*MockLabeler)(nil)
var _ TextVerifier = (*MockVerifier)(nil)

// In-process ImageLabeler returning canned results by URL. URLs with no configured result fail. Records every call.
type MockLabeler struct {
	Results map[string]ExtractionResult

	mu    sync.Mutex
	calls []string
}

func NewMockLabeler() *MockLabeler {
	return &MockLabeler{
		Results: make(map[string]ExtractionResult),
	}
}

func (m *MockLabeler) GetLabels(ctx context.Context, url string) ExtractionResult {
	m.mu.Lock()
	m.calls = append(m.calls, url)
	m.mu.Unlock()

	res, ok := m.Results[url]
	if !ok {
		return ExtractionResult{Success: false}
	}
	return res
}

// URLs passed to GetLabels, in call order (which is not deterministic across concurrent calls)
func (m *MockLabeler) Calls() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.calls))
	copy(out, m.calls)
	return out
}

type VerifyCall struct {
	Title       string
	Description string
	Labels      []string
}

// In-process TextVerifier returning a fixed result, and recording every call.
type MockVerifier struct {
	Result VerificationResult

	mu    sync.Mutex
	calls []VerifyCall
}

func (m *MockVerifier) Verify(ctx context.Context, title, description string, labels []string) VerificationResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, VerifyCall{
		Title:       title,
		Description: description,
		Labels:      append([]string{}, labels...),
	})
	return m.Result
}

func (m *MockVerifier) Calls() []VerifyCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]VerifyCall, len(m.calls))
	copy(out, m.calls)
	return out
}

// Checker wired to a fresh MockLabeler and a MockVerifier returning the given result, using the default config
func CheckerTestFixture(verify VerificationResult) (*Checker, *MockLabeler, *MockVerifier) {
	labeler := NewMockLabeler()
	verifier := &MockVerifier{Result: verify}
	return NewChecker(labeler, verifier, DefaultConfig(), nil), labeler, verifier
}
