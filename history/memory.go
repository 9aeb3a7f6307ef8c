package history

import (
	"context"
	"fmt"
	"sync"
)

type memoryStore struct {
	entries []Entry
	session int
	mu      sync.RWMutex
}

// NewMemoryStore creates a Store kept entirely in process memory.
func NewMemoryStore() Store {
	return &memoryStore{}
}

func (s *memoryStore) Begin(_ context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session++
	return s.session, nil
}

func (s *memoryStore) Session() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.session
}

func (s *memoryStore) Append(_ context.Context, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == 0 {
		return ErrNoSession
	}
	entry.Session = s.session

	if n := len(s.entries); n > 0 {
		last := s.entries[n-1]
		if last.Session == entry.Session && last.Line >= entry.Line {
			return fmt.Errorf("%w: line %d after %d", ErrOutOfOrder, entry.Line, last.Line)
		}
	}

	s.entries = append(s.entries, cloneEntry(entry))
	return nil
}

func (s *memoryStore) Range(_ context.Context, session, start, stop int) ([]Entry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	target := resolveSession(s.session, session)
	var out []Entry
	for _, e := range s.entries {
		if e.Session != target || e.Line < start {
			continue
		}
		if stop > 0 && e.Line >= stop {
			continue
		}
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (s *memoryStore) Tail(_ context.Context, n int) ([]Entry, error) {
	if n < 0 {
		return nil, fmt.Errorf("%w: negative tail length %d", ErrInvalidQuery, n)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	from := max(len(s.entries)-n, 0)
	out := make([]Entry, 0, len(s.entries)-from)
	for _, e := range s.entries[from:] {
		out = append(out, cloneEntry(e))
	}
	return out, nil
}

func (s *memoryStore) Search(_ context.Context, pattern string, raw bool) ([]Entry, error) {
	re, err := compileGlob(pattern)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Entry
	for _, e := range s.entries {
		if re.MatchString(e.Input(raw)) {
			out = append(out, cloneEntry(e))
		}
	}
	return out, nil
}

func (s *memoryStore) Len(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, e := range s.entries {
		if e.Session == s.session {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) Close() error {
	return nil
}

func cloneEntry(e Entry) Entry {
	if e.Output != nil {
		out := *e.Output
		e.Output = &out
	}
	return e
}
