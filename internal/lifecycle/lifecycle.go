// Package lifecycle owns the creation and deletion of stores. It hands out
// collision-resistant names for ephemeral stores and keeps the set of stores
// whose deletion had to be deferred, retrying them once when the hosting
// process shuts down.
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// DefaultPrefix starts every ephemeral store name.
const DefaultPrefix = "vdb"

// Deletion results reported to the deletion hook.
const (
	ResultImmediate = "immediate"
	ResultDeferred  = "deferred"
	ResultDrained   = "drained"
	ResultFailed    = "failed"
)

// Deleter is the subset of rag.VectorStore the lifecycle needs.
type Deleter interface {
	Delete(ctx context.Context, id string) bool
}

// Outcome is the immediate result of a deletion request.
type Outcome struct {
	// Requested is always true: deletion requests are accepted unconditionally.
	Requested bool `json:"requested"`
	// ImmediateSuccess is false when the store was queued for a retry at
	// shutdown.
	ImmediateSuccess bool `json:"immediate_success"`
}

// Option configures a Manager.
type Option func(*Manager)

// WithDeletionHook registers fn to be called with one of the Result*
// constants after every deletion attempt.
func WithDeletionHook(fn func(result string)) Option {
	return func(m *Manager) { m.hook = fn }
}

// Manager tracks deferred deletions. It is safe for concurrent use.
type Manager struct {
	store  Deleter
	prefix string
	log    *slog.Logger
	hook   func(string)

	mu      sync.Mutex
	pending map[string]struct{}
	drained bool
}

// New returns a Manager deleting through store. An empty prefix selects
// DefaultPrefix.
func New(store Deleter, prefix string, log *slog.Logger, opts ...Option) (*Manager, error) {
	if store == nil {
		return nil, fmt.Errorf("lifecycle: store must not be nil")
	}
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if log == nil {
		log = slog.Default()
	}
	m := &Manager{
		store:   store,
		prefix:  prefix,
		log:     log,
		hook:    func(string) {},
		pending: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// NewEphemeralName returns "{prefix}_{sanitised docID}_{32 hex chars}".
// Two calls for the same document never return the same name.
func (m *Manager) NewEphemeralName(docID string) string {
	return m.prefix + "_" + Sanitize(docID) + "_" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Sanitize replaces every rune outside [A-Za-z0-9_-] with an underscore.
func Sanitize(s string) string {
	if s == "" {
		return "doc"
	}
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '_', r == '-':
			return r
		default:
			return '_'
		}
	}, s)
}

// Delete tries to remove id immediately. On failure the id joins the pending
// set and the call still returns without blocking; a later success removes
// it from the set. Once Drain has run nothing would retry the id, so a
// failure is reported as ResultFailed instead of being queued.
func (m *Manager) Delete(ctx context.Context, id string) Outcome {
	log := m.log.With(slog.String("store_id", id))
	if m.store.Delete(ctx, id) {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		m.hook(ResultImmediate)
		log.Info("lifecycle: store deleted")
		return Outcome{Requested: true, ImmediateSuccess: true}
	}

	m.mu.Lock()
	if m.drained {
		m.mu.Unlock()
		m.hook(ResultFailed)
		log.Warn("lifecycle: store could not be deleted after shutdown drain, not retried")
		return Outcome{Requested: true, ImmediateSuccess: false}
	}
	m.pending[id] = struct{}{}
	n := len(m.pending)
	m.mu.Unlock()
	m.hook(ResultDeferred)
	log.Warn("lifecycle: store deletion deferred to shutdown", slog.Int("pending", n))
	return Outcome{Requested: true, ImmediateSuccess: false}
}

// Pending returns the ids awaiting deletion in sorted order.
func (m *Manager) Pending() []string {
	m.mu.Lock()
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	slices.Sort(ids)
	return ids
}

// PendingCount returns the size of the pending set.
func (m *Manager) PendingCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pending)
}

// Drain retries every pending deletion once and clears the set. Residual
// failures are logged, never returned. Only the first call does any work.
func (m *Manager) Drain(ctx context.Context) {
	m.mu.Lock()
	if m.drained {
		m.mu.Unlock()
		return
	}
	m.drained = true
	ids := make([]string, 0, len(m.pending))
	for id := range m.pending {
		ids = append(ids, id)
	}
	clear(m.pending)
	m.mu.Unlock()

	slices.Sort(ids)
	failed := 0
	for _, id := range ids {
		if m.store.Delete(ctx, id) {
			m.hook(ResultDrained)
			continue
		}
		failed++
		m.hook(ResultFailed)
		m.log.Warn("lifecycle: store could not be deleted at shutdown", slog.String("store_id", id))
	}
	m.log.Info("lifecycle: pending deletions drained",
		slog.Int("attempted", len(ids)),
		slog.Int("failed", failed),
	)
}
