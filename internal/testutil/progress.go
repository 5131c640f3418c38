// Package testutil provides test utilities for progress tracking.
package testutil

// MockTracker is a mock progress tracker for testing.
type MockTracker struct {
	UpdateCalled   bool
	CompleteCalled bool
	ErrorCalled    bool
	BytesDone      int64
	BytesTotal     int64
	LastError      error
	Updates        []ProgressUpdate // For detailed tracking
}

// ProgressUpdate represents a single progress update event.
type ProgressUpdate struct {
	Done  int64
	Total int64
}

// Update records a progress update.
func (m *MockTracker) Update(bytesDone, bytesTotal int64) {
	m.UpdateCalled = true
	m.BytesDone = bytesDone
	m.BytesTotal = bytesTotal
	m.Updates = append(m.Updates, ProgressUpdate{
		Done:  bytesDone,
		Total: bytesTotal,
	})
}

// Complete marks the operation as complete.
func (m *MockTracker) Complete() {
	m.CompleteCalled = true
}

// Error records an error.
func (m *MockTracker) Error(err error) {
	m.ErrorCalled = true
	m.LastError = err
}

// Reset clears the mock tracker state.
func (m *MockTracker) Reset() {
	m.UpdateCalled = false
	m.CompleteCalled = false
	m.ErrorCalled = false
	m.BytesDone = 0
	m.BytesTotal = 0
	m.LastError = nil
	m.Updates = nil
}
