package gpio

import "sync"

// FakeLine is an in-memory Line for tests.
type FakeLine struct {
	mu sync.Mutex

	// Level is the current logical value.
	Level int

	// Writes records every value passed to SetValue.
	Writes []int

	// Stuck keeps Level unchanged on SetValue, simulating a welded relay.
	Stuck bool

	ReadError  error
	WriteError error
	Closed     bool
}

func (f *FakeLine) Value() (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ReadError != nil {
		return 0, f.ReadError
	}
	return f.Level, nil
}

func (f *FakeLine) SetValue(value int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.WriteError != nil {
		return f.WriteError
	}
	f.Writes = append(f.Writes, value)
	if !f.Stuck {
		f.Level = value
	}
	return nil
}

func (f *FakeLine) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}
