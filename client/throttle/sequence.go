package throttle

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

type ctxKey int

const (
	sequenceKey ctxKey = iota + 1
)

// sequence counts the requests issued while one logical operation,
// such as provisioning a single VM, is in progress.
type sequence struct {
	id uuid.UUID

	mu     sync.Mutex
	active bool
	count  int
}

// BeginSequence returns a context carrying a new, zeroed request sequence.
// Requests whose context derives from the returned context are counted.
// A sequence already carried by ctx is shadowed, not reset, so workers
// fanned out from a sequenced parent each get their own counter and the
// parent's count is left alone.
func BeginSequence(ctx context.Context) context.Context {
	return context.WithValue(ctx, sequenceKey, &sequence{id: uuid.New(), active: true})
}

// EndSequence stops counting for the sequence carried by ctx. Sequences
// carried by parent contexts stay active. It is a no-op when ctx has none.
func EndSequence(ctx context.Context) {
	s, ok := ctx.Value(sequenceKey).(*sequence)
	if !ok {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.count = 0
}

// CurrentSequenceLength reports how many requests completed in the active
// sequence carried by ctx. ok is false when no sequence is active.
func CurrentSequenceLength(ctx context.Context) (n int, ok bool) {
	s, ok := ctx.Value(sequenceKey).(*sequence)
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, false
	}

	return s.count, true
}

// SequenceID returns the identifier of the active sequence carried by ctx.
func SequenceID(ctx context.Context) (string, bool) {
	s, ok := ctx.Value(sequenceKey).(*sequence)
	if !ok {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return "", false
	}

	return s.id.String(), true
}

// incrementSequence counts one completed request. Requests outside
// any active sequence are not counted.
func incrementSequence(ctx context.Context) (int, bool) {
	s, ok := ctx.Value(sequenceKey).(*sequence)
	if !ok {
		return 0, false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, false
	}

	s.count++
	return s.count, true
}
