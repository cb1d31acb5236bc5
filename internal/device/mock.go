package device

import (
	"context"
	"sync"
)

// MockDriver records every Set call. Used in tests and `hardware { mock = true }`.
type MockDriver struct {
	mu     sync.Mutex
	writes []bool
	Err    error // returned from Set when not nil, write is still recorded
	OnSet  func(on bool)
}

func (m *MockDriver) Set(on bool) error {
	m.mu.Lock()
	m.writes = append(m.writes, on)
	err, fun := m.Err, m.OnSet
	m.mu.Unlock()
	if fun != nil {
		fun(on)
	}
	return err
}

func (m *MockDriver) SetErr(err error) {
	m.mu.Lock()
	m.Err = err
	m.mu.Unlock()
}

func (m *MockDriver) Writes() []bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]bool(nil), m.writes...)
}

// Last written value, false if never written.
func (m *MockDriver) Last() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.writes) == 0 {
		return false
	}
	return m.writes[len(m.writes)-1]
}

// SourceFunc adapts plain function into Source.
type SourceFunc struct {
	Fs []Field
	F  func(ctx context.Context) (Values, error)
}

func (s SourceFunc) Fields() []Field                          { return s.Fs }
func (s SourceFunc) Read(ctx context.Context) (Values, error) { return s.F(ctx) }
