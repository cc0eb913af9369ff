package advise

import (
	"context"
	"sync"
)

// MockAdvisor is a configurable Advisor for tests. It records every
// request and returns a fixed recommendation or error.
type MockAdvisor struct {
	mu sync.Mutex

	// Rec is returned from Recommend when Err is nil.
	Rec Recommendation

	// Err, when non-nil, is returned from Recommend.
	Err error

	// Delay, when set, is waited before responding, honoring ctx.
	Delay func(ctx context.Context) error

	requests []Request
}

// Recommend implements Advisor.
func (m *MockAdvisor) Recommend(ctx context.Context, req Request) (Recommendation, error) {
	m.mu.Lock()
	m.requests = append(m.requests, req)
	m.mu.Unlock()

	if m.Delay != nil {
		if err := m.Delay(ctx); err != nil {
			return Recommendation{}, err
		}
	}
	if m.Err != nil {
		return Recommendation{}, m.Err
	}
	return m.Rec, nil
}

// Requests returns a copy of all requests seen so far.
func (m *MockAdvisor) Requests() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.requests...)
}
