package internal

import (
	"context"
	"sync"
	"time"

	"github.com/lychee-technology/datamodel"
	"go.uber.org/zap"
)

// CircuitBreaker is a lightweight in-memory circuit breaker.
type CircuitBreaker struct {
	mu           sync.Mutex
	failures     []time.Time
	threshold    int
	window       time.Duration
	openUntil    time.Time
	openDuration time.Duration
	now          func() time.Time
}

// NewCircuitBreaker creates a breaker that opens for openDuration once threshold failures
// fall inside window.
func NewCircuitBreaker(threshold int, window, openDuration time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		threshold:    threshold,
		window:       window,
		openDuration: openDuration,
		failures:     make([]time.Time, 0, threshold),
		now:          time.Now,
	}
}

// RecordFailure records a failure occurrence and opens the breaker if threshold exceeded.
func (cb *CircuitBreaker) RecordFailure() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := cb.now()
	cutoff := now.Add(-cb.window)
	i := 0
	for ; i < len(cb.failures); i++ {
		if cb.failures[i].After(cutoff) {
			break
		}
	}
	if i > 0 {
		cb.failures = append([]time.Time{}, cb.failures[i:]...)
	}
	cb.failures = append(cb.failures, now)

	if len(cb.failures) >= cb.threshold {
		cb.openUntil = now.Add(cb.openDuration)
	}
}

// RecordSuccess resets failure history when operations succeed.
func (cb *CircuitBreaker) RecordSuccess() {
	if cb == nil {
		return
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.failures = cb.failures[:0]
	cb.openUntil = time.Time{}
}

// IsOpen returns true if the breaker is currently open.
func (cb *CircuitBreaker) IsOpen() bool {
	if cb == nil {
		return false
	}
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.now().Before(cb.openUntil)
}

// GuardedSchemaStore fails fast while a remote store keeps returning provider errors.
// Not-found answers count as success.
type GuardedSchemaStore struct {
	next    datamodel.SchemaStore
	breaker *CircuitBreaker
}

var _ datamodel.SchemaStore = (*GuardedSchemaStore)(nil)

func NewGuardedSchemaStore(next datamodel.SchemaStore, breaker *CircuitBreaker) *GuardedSchemaStore {
	return &GuardedSchemaStore{next: next, breaker: breaker}
}

func (g *GuardedSchemaStore) allow(path string) error {
	if g.breaker.IsOpen() {
		return &datamodel.SchemaError{
			Type:    datamodel.SchemaErrorTypeProviderError,
			Path:    path,
			Message: "schema store temporarily unavailable",
		}
	}
	return nil
}

func (g *GuardedSchemaStore) record(err error) {
	if err == nil || datamodel.IsNotFound(err) {
		g.breaker.RecordSuccess()
		return
	}
	if datamodel.IsSchemaError(err, datamodel.SchemaErrorTypeProviderError) {
		g.breaker.RecordFailure()
		if g.breaker.IsOpen() {
			zap.S().Warnw("schema store circuit opened", "error", err)
		}
	}
}

func (g *GuardedSchemaStore) Read(ctx context.Context, path string) (string, error) {
	if err := g.allow(path); err != nil {
		return "", err
	}
	content, err := g.next.Read(ctx, path)
	g.record(err)
	return content, err
}

func (g *GuardedSchemaStore) Write(ctx context.Context, path string, content string) error {
	if err := g.allow(path); err != nil {
		return err
	}
	err := g.next.Write(ctx, path, content)
	g.record(err)
	return err
}

func (g *GuardedSchemaStore) Delete(ctx context.Context, path string) error {
	if err := g.allow(path); err != nil {
		return err
	}
	err := g.next.Delete(ctx, path)
	g.record(err)
	return err
}

func (g *GuardedSchemaStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := g.allow(prefix); err != nil {
		return nil, err
	}
	paths, err := g.next.List(ctx, prefix)
	g.record(err)
	return paths, err
}
