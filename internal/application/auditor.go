package application

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ericfisherdev/keyledger/internal/domain/model"
	"github.com/ericfisherdev/keyledger/internal/domain/port/driven"
	"github.com/ericfisherdev/keyledger/internal/metrics"
)

const (
	// DefaultAuditBuffer is the AsyncAuditor queue capacity used when none is given.
	DefaultAuditBuffer = 1024
	// DefaultAuditTimeout bounds a single audit write.
	DefaultAuditTimeout = 5 * time.Second
)

// AuditRecorder accepts audit entries on behalf of the lifecycle service.
// Record never fails and never blocks on the audit log's durability.
type AuditRecorder interface {
	Record(ctx context.Context, entry model.AuditEntry)
}

// SyncAuditor appends each entry directly and swallows failures. Write errors
// go only to the logger and the audit failure counter.
type SyncAuditor struct {
	log     driven.AuditLog
	timeout time.Duration
	logger  *slog.Logger
}

// NewSyncAuditor creates a SyncAuditor.
func NewSyncAuditor(log driven.AuditLog, timeout time.Duration, logger *slog.Logger) *SyncAuditor {
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	return &SyncAuditor{log: log, timeout: timeout, logger: logger}
}

// Record appends entry, detached from ctx cancellation so a client hanging up
// does not lose its audit entry.
func (a *SyncAuditor) Record(ctx context.Context, entry model.AuditEntry) {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), a.timeout)
	defer cancel()
	writeAudit(writeCtx, a.log, entry, a.logger)
}

// AsyncAuditor enqueues entries on a bounded queue drained by one worker.
// Record never blocks; entries are dropped when the queue is full.
type AsyncAuditor struct {
	log     driven.AuditLog
	timeout time.Duration
	logger  *slog.Logger

	mu      sync.RWMutex // Guards queue sends against close.
	queue   chan model.AuditEntry
	once    sync.Once
	stopped bool
	dropped atomic.Uint64

	wg sync.WaitGroup
}

// NewAsyncAuditor creates an AsyncAuditor. Call Start before recording and
// Stop during shutdown to flush the queue.
func NewAsyncAuditor(log driven.AuditLog, buffer int, timeout time.Duration, logger *slog.Logger) *AsyncAuditor {
	if buffer <= 0 {
		buffer = DefaultAuditBuffer
	}
	if timeout <= 0 {
		timeout = DefaultAuditTimeout
	}
	return &AsyncAuditor{
		log:     log,
		timeout: timeout,
		logger:  logger,
		queue:   make(chan model.AuditEntry, buffer),
	}
}

// Start launches the worker goroutine. Calling Start more than once is a no-op.
func (a *AsyncAuditor) Start() {
	a.once.Do(func() {
		a.wg.Add(1)
		go a.run()
	})
}

// Stop closes the queue and waits for queued entries to be written or for
// ctx to expire.
func (a *AsyncAuditor) Stop(ctx context.Context) error {
	a.mu.Lock()
	if a.stopped {
		a.mu.Unlock()
		return nil
	}
	a.stopped = true
	close(a.queue)
	a.mu.Unlock()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("audit stop: %w", ctx.Err())
	}
}

// Dropped returns the number of entries discarded so far.
func (a *AsyncAuditor) Dropped() uint64 {
	return a.dropped.Load()
}

// Record enqueues entry without blocking.
func (a *AsyncAuditor) Record(_ context.Context, entry model.AuditEntry) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if a.stopped {
		a.drop(entry, "auditor stopped")
		return
	}

	select {
	case a.queue <- entry:
	default:
		a.drop(entry, "audit queue full")
	}
}

func (a *AsyncAuditor) drop(entry model.AuditEntry, reason string) {
	a.dropped.Add(1)
	metrics.RecordAuditDropped()
	a.logger.Warn("audit entry dropped",
		"reason", reason,
		"audit_id", entry.ID,
		"event", entry.EventType,
		"outcome", entry.Outcome,
	)
}

func (a *AsyncAuditor) run() {
	defer a.wg.Done()

	for entry := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		writeAudit(ctx, a.log, entry, a.logger)
		cancel()
	}
}

func writeAudit(ctx context.Context, log driven.AuditLog, entry model.AuditEntry, logger *slog.Logger) {
	if err := log.Append(ctx, entry); err != nil {
		metrics.RecordAuditFailure()
		logger.Error("audit write failed",
			"error", err,
			"audit_id", entry.ID,
			"event", entry.EventType,
			"outcome", entry.Outcome,
			"endpoint", entry.Endpoint,
		)
	}
}
