// Package approval implements the human approval gate: pending
// requests correlated by session id, resolved or rejected over HTTP,
// raced against a global timeout by the waiting workflow.
package approval

import (
	"context"
	"sync"
	"time"

	"github.com/grovetools/bridge/errors"
	"github.com/grovetools/bridge/logging"
	"github.com/sirupsen/logrus"
)

// DefaultTimeout bounds how long an approval may stay pending.
const DefaultTimeout = 30 * time.Minute

// Decision is the outcome of a resolved approval request.
type Decision struct {
	Approved bool
	Feedback string
}

type outcome struct {
	decision Decision
	err      error
}

type pendingRequest struct {
	sessionID string
	createdAt time.Time
	done      chan outcome
	once      sync.Once
}

// complete delivers the outcome into the buffer-one done channel at
// most once, so the send never blocks. Returns false when an outcome
// was already delivered.
func (r *pendingRequest) complete(out outcome) bool {
	delivered := false
	r.once.Do(func() {
		r.done <- out
		delivered = true
	})
	return delivered
}

// Broker owns pending approval requests. One request may be pending per
// session at a time; a request lives until resolved, rejected, timed
// out, or the broker shuts down.
type Broker struct {
	mu       sync.Mutex
	pending  map[string]*pendingRequest
	timeout  time.Duration
	shutdown bool
	logger   *logrus.Entry
}

// NewBroker returns a broker with the given pending timeout. A zero
// timeout selects DefaultTimeout.
func NewBroker(timeout time.Duration) *Broker {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Broker{
		pending: make(map[string]*pendingRequest),
		timeout: timeout,
		logger:  logging.NewLogger("approval"),
	}
}

// Register creates a pending approval request for a session. A second
// registration while one is pending replaces the first, rejecting it.
func (b *Broker) Register(sessionID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.shutdown {
		return errors.ApprovalShutdown(sessionID)
	}

	if old, ok := b.pending[sessionID]; ok {
		old.complete(outcome{err: errors.New(errors.ErrCodeApprovalRejected,
			"approval request superseded by a newer request")})
	}

	b.pending[sessionID] = &pendingRequest{
		sessionID: sessionID,
		createdAt: time.Now(),
		done:      make(chan outcome, 1),
	}
	b.logger.WithField("session", sessionID).Info("Registered approval request")
	return nil
}

// Resolve completes a pending request with the human's decision. The
// decision is delivered exactly once; a second resolution of the same
// request fails rather than blocking.
func (b *Broker) Resolve(sessionID string, approved bool, feedback string) error {
	req, err := b.lookup(sessionID)
	if err != nil {
		return err
	}
	if !req.complete(outcome{decision: Decision{Approved: approved, Feedback: feedback}}) {
		return errors.New(errors.ErrCodeInvalidInput,
			"approval request already resolved")
	}
	b.logger.WithFields(logrus.Fields{
		"session":  sessionID,
		"approved": approved,
	}).Info("Resolved approval request")
	return nil
}

// Reject fails a pending request with an explicit reason.
func (b *Broker) Reject(sessionID string, reason error) error {
	req, err := b.lookup(sessionID)
	if err != nil {
		return err
	}
	if !req.complete(outcome{err: reason}) {
		return errors.New(errors.ErrCodeInvalidInput,
			"approval request already resolved")
	}
	b.logger.WithField("session", sessionID).Info("Rejected approval request")
	return nil
}

// Wait blocks until the session's pending request is resolved,
// rejected, times out, or ctx is done. The request is purged on every
// exit path.
func (b *Broker) Wait(ctx context.Context, sessionID string) (Decision, error) {
	b.mu.Lock()
	req, ok := b.pending[sessionID]
	b.mu.Unlock()
	if !ok {
		return Decision{}, errors.SessionNotFound(sessionID)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case out := <-req.done:
		b.remove(sessionID, req)
		return out.decision, out.err
	case <-timer.C:
		b.remove(sessionID, req)
		return Decision{}, errors.ApprovalTimeout(sessionID, b.timeout.String())
	case <-ctx.Done():
		b.remove(sessionID, req)
		return Decision{}, errors.Wrap(ctx.Err(), errors.ErrCodeApprovalRejected,
			"approval wait cancelled")
	}
}

// Pending reports whether a session has an outstanding request and how
// long it has been pending.
func (b *Broker) Pending(sessionID string) (time.Duration, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[sessionID]
	if !ok {
		return 0, false
	}
	return time.Since(req.createdAt), true
}

// PurgeExpired drops requests older than the timeout that nothing is
// waiting on. Returns the number purged.
func (b *Broker) PurgeExpired() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	purged := 0
	cutoff := time.Now().Add(-b.timeout)
	for id, req := range b.pending {
		if req.createdAt.Before(cutoff) {
			req.complete(outcome{err: errors.New(errors.ErrCodeApprovalExpired,
				"approval request expired")})
			delete(b.pending, id)
			purged++
		}
	}
	return purged
}

// Shutdown rejects every pending request and refuses new registrations.
func (b *Broker) Shutdown() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.shutdown = true
	for id, req := range b.pending {
		req.complete(outcome{err: errors.ApprovalShutdown(id)})
		delete(b.pending, id)
	}
	b.logger.Info("Approval broker shut down")
}

func (b *Broker) lookup(sessionID string) (*pendingRequest, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	req, ok := b.pending[sessionID]
	if !ok {
		return nil, errors.SessionNotFound(sessionID)
	}
	return req, nil
}

func (b *Broker) remove(sessionID string, req *pendingRequest) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if cur, ok := b.pending[sessionID]; ok && cur == req {
		delete(b.pending, sessionID)
	}
}
