package arena

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

type Status int

const (
	StatusPending Status = iota
	StatusOK
	StatusError
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusError:
		return "error"
	default:
		return "pending"
	}
}

const defaultPollInterval = 3 * time.Second

// StatusChecker tracks one in-flight BankID confirmation. It polls the
// ticket endpoint every few seconds and, once the user has approved on
// their device, runs the final saml exchange. It reaches at most one
// terminal state over its lifetime; a cancelled checker stays pending
// forever and schedules no further polls.
type StatusChecker struct {
	client   *Client
	pollUrl  string
	loginUrl string
	interval time.Duration

	mu        sync.Mutex
	status    Status
	reason    error
	cancelled bool

	done   chan struct{}
	cancel context.CancelFunc
}

func newStatusChecker(client *Client, pollUrl, loginUrl string) *StatusChecker {
	return newStatusCheckerWithInterval(client, pollUrl, loginUrl, defaultPollInterval)
}

func newStatusCheckerWithInterval(client *Client, pollUrl, loginUrl string, interval time.Duration) *StatusChecker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &StatusChecker{
		client:   client,
		pollUrl:  pollUrl,
		loginUrl: loginUrl,
		interval: interval,
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go s.run(ctx)
	return s
}

// a checker that is born terminal, used for the already-authenticated
// short-circuit
func newResolvedChecker(status Status) *StatusChecker {
	s := &StatusChecker{
		status: status,
		done:   make(chan struct{}),
		cancel: func() {},
	}
	close(s.done)
	return s
}

// NewResolvedChecker returns a checker that reaches the given terminal
// state after a delay, without touching the network. Callers that
// bypass the real BankID flow use it to keep the same state
// transitions.
func NewResolvedChecker(status Status, delay time.Duration) *StatusChecker {
	if delay <= 0 {
		return newResolvedChecker(status)
	}
	s := &StatusChecker{
		done:   make(chan struct{}),
		cancel: func() {},
	}
	go func() {
		time.Sleep(delay)
		s.terminate(status, nil)
	}()
	return s
}

func (s *StatusChecker) Status() (Status, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.reason
}

// Done is closed exactly once, when the checker reaches ok or error.
// It is never closed after Cancel.
func (s *StatusChecker) Done() <-chan struct{} {
	return s.done
}

// Wait blocks until the checker is terminal or ctx expires.
func (s *StatusChecker) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-s.done:
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.status == StatusError {
		return s.reason
	}
	return nil
}

// Cancel suppresses all future polls. It does not emit a terminal
// state and it does not abort an http request already on the wire.
func (s *StatusChecker) Cancel() {
	s.mu.Lock()
	s.cancelled = true
	s.mu.Unlock()
	s.cancel()
}

func (s *StatusChecker) terminate(status Status, reason error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancelled || s.status != StatusPending {
		return
	}
	s.status = status
	s.reason = reason
	close(s.done)
}

func (s *StatusChecker) run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		s.mu.Lock()
		cancelled := s.cancelled
		s.mu.Unlock()
		if cancelled {
			return
		}

		poll, err := s.client.pollStatus(ctx, s.pollUrl)
		if err != nil {
			s.terminate(StatusError, err)
			return
		}

		switch {
		case poll.isError:
			slog.DebugContext(ctx, "bankid confirmation rejected", "diagnostic", poll.diagnostic)
			s.terminate(StatusError, fmt.Errorf("arena: bankid confirmation failed: %s", poll.diagnostic))
			return
		case poll.keepPolling:
			slog.DebugContext(ctx, "bankid still pending, polling again")
			timer.Reset(s.interval)
		default:
			// confirmed on the other device, consume the assertion
			err := s.client.completeLogin(ctx, s.loginUrl)
			if err != nil {
				s.terminate(StatusError, err)
				return
			}
			s.terminate(StatusOK, nil)
			return
		}
	}
}
