package engine

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Hook runs around an execution. A hook that returns an error (or panics)
// is removed from its set after the failure is reported.
type Hook func(ctx context.Context) error

// Handle identifies a registered hook.
type Handle struct {
	id  uint64
	Tag string
}

// HookFailure describes a hook that failed and was pruned.
type HookFailure struct {
	Tag string
	Err error
}

type hookEntry struct {
	handle Handle
	fn     Hook
}

// HookSet is an ordered set of hooks with invoke-and-prune semantics.
type HookSet struct {
	hooks  []hookEntry
	nextID uint64
	mu     sync.Mutex
}

// NewHookSet creates an empty set.
func NewHookSet() *HookSet {
	return &HookSet{}
}

// Register appends a hook and returns its handle.
func (s *HookSet) Register(tag string, fn Hook) Handle {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	h := Handle{id: s.nextID, Tag: tag}
	s.hooks = append(s.hooks, hookEntry{handle: h, fn: fn})
	return h
}

// Remove unregisters a hook. It reports whether the hook was present.
func (s *HookSet) Remove(h Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	before := len(s.hooks)
	s.hooks = slices.DeleteFunc(s.hooks, func(e hookEntry) bool { return e.handle.id == h.id })
	return len(s.hooks) != before
}

// Len returns the number of registered hooks.
func (s *HookSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.hooks)
}

// Tags returns hook tags in registration order.
func (s *HookSet) Tags() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	tags := make([]string, len(s.hooks))
	for i, e := range s.hooks {
		tags[i] = e.handle.Tag
	}
	return tags
}

// Run invokes every hook in registration order and prunes the ones that
// fail. Hooks run without the set locked, so they may register others.
func (s *HookSet) Run(ctx context.Context) []HookFailure {
	s.mu.Lock()
	hooks := slices.Clone(s.hooks)
	s.mu.Unlock()

	var failures []HookFailure
	for _, e := range hooks {
		if err := invoke(ctx, e.fn); err != nil {
			s.Remove(e.handle)
			failures = append(failures, HookFailure{Tag: e.handle.Tag, Err: err})
		}
	}
	return failures
}

func invoke(ctx context.Context, fn Hook) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &ExecError{Name: "Panic", Value: fmt.Sprint(r)}
		}
	}()
	return fn(ctx)
}
