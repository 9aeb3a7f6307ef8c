// Package history records executed inputs and their outputs and answers the
// range, tail and search queries of history_request.
//
// Entries are keyed by (session, line): session is the ordinal of one kernel
// run and line is the execution counter value of the input. Only the
// execution engine appends; everything else reads through the query methods.
package history

import "context"

// Entry is one recorded input. Source is the input after transformation,
// SourceRaw what the frontend sent. Output is nil when nothing was echoed.
type Entry struct {
	Session   int
	Line      int
	Source    string
	SourceRaw string
	Output    *string
}

// Input returns the raw or transformed source.
func (e Entry) Input(raw bool) string {
	if raw {
		return e.SourceRaw
	}
	return e.Source
}

// Store is an append-only, queryable history. Implementations must be safe
// for concurrent use.
type Store interface {
	// Begin opens a new session and returns its ordinal.
	Begin(ctx context.Context) (int, error)
	// Session returns the live session ordinal, 0 before Begin.
	Session() int
	// Append records an entry in the live session. Lines must increase.
	Append(ctx context.Context, entry Entry) error
	// Range returns entries of session with start <= line < stop in line
	// order. session 0 is the live session, negative values count back from
	// it, positive values are absolute. stop <= 0 means no upper bound.
	Range(ctx context.Context, session, start, stop int) ([]Entry, error)
	// Tail returns the last n entries across all sessions, oldest first.
	Tail(ctx context.Context, n int) ([]Entry, error)
	// Search returns entries whose input matches a glob pattern (* and ?),
	// oldest first.
	Search(ctx context.Context, pattern string, raw bool) ([]Entry, error)
	// Len returns the number of entries in the live session.
	Len(ctx context.Context) (int, error)
	// Close releases backing resources.
	Close() error
}

func resolveSession(live, session int) int {
	if session <= 0 {
		return live + session
	}
	return session
}
