package session

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/smartcall/gateway/internal/metrics"
	"github.com/smartcall/gateway/internal/realtime"
	"github.com/smartcall/gateway/internal/store"
)

// CustomerInfo is what the customer-side client supplies on call initiation.
type CustomerInfo struct {
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Defaults for an anonymous caller; the phone is always stored masked.
const (
	defaultCustomerName  = "ゲストユーザー"
	defaultCustomerPhone = "050-****-****"
)

// Store is the durable session store. Accept/Reject/End are atomic
// conditional updates: they return false when the session was not in the
// required source state, which callers treat as already-handled.
type Store interface {
	CreateSession(ctx context.Context, customerName, customerPhone string) (*store.Session, error)
	GetSession(ctx context.Context, id string) (*store.Session, error)
	AcceptSession(ctx context.Context, id, operatorID string) (bool, error)
	RejectSession(ctx context.Context, id string) (bool, error)
	EndSession(ctx context.Context, id string) (bool, error)
	ExpireRinging(ctx context.Context, maxAge time.Duration) ([]string, error)
}

// Broadcaster publishes change-feed events on a session's realtime channel.
type Broadcaster interface {
	Publish(sessionID, event string, payload any)
}

// Service owns the call session lifecycle: ringing → active → ended, with
// ringing → ended for rejected calls. No transition leaves ended. Every
// committed transition is published to the session channel in commit order.
type Service struct {
	store Store
	hub   Broadcaster
}

// NewService creates a session service.
func NewService(st Store, hub Broadcaster) *Service {
	return &Service{store: st, hub: hub}
}

// Initiate creates a new session in ringing state. Store failure is returned
// to the caller without retry; no session row exists afterwards.
func (s *Service) Initiate(ctx context.Context, info CustomerInfo) (*store.Session, error) {
	name := info.Name
	if name == "" {
		name = defaultCustomerName
	}
	phone := info.Phone
	if phone == "" {
		phone = defaultCustomerPhone
	}

	sess, err := s.store.CreateSession(ctx, name, phone)
	if err != nil {
		metrics.Errors.WithLabelValues("session", "create").Inc()
		return nil, fmt.Errorf("create session: %w", err)
	}

	metrics.SessionsTotal.Inc()
	metrics.SessionsActive.Inc()
	slog.Info("call initiated", "session_id", sess.ID, "customer_name", sess.CustomerName)

	s.publish(sess)
	return sess, nil
}

// Get returns the current state of a session.
func (s *Service) Get(ctx context.Context, id string) (*store.Session, error) {
	return s.store.GetSession(ctx, id)
}

// Accept moves a ringing session to active and assigns the operator. When two
// operators race, the store's conditional update lets exactly one win; the
// loser re-reads and observes the session as already accepted, not an error.
// Accepting a session in any other state is an idempotent no-op that returns
// the current state.
func (s *Service) Accept(ctx context.Context, id, operatorID string) (*store.Session, error) {
	won, err := s.store.AcceptSession(ctx, id, operatorID)
	if err != nil {
		return nil, fmt.Errorf("accept session: %w", err)
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !won {
		slog.Info("accept was a no-op", "session_id", id, "status", sess.Status)
		return sess, nil
	}

	metrics.Transitions.WithLabelValues("accept").Inc()
	slog.Info("call accepted", "session_id", id, "operator_id", operatorID)

	s.publish(sess)
	return sess, nil
}

// Reject moves a ringing session straight to ended with no operator assigned.
// Rejecting a non-ringing session is a no-op.
func (s *Service) Reject(ctx context.Context, id string) (*store.Session, error) {
	won, err := s.store.RejectSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("reject session: %w", err)
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !won {
		return sess, nil
	}

	metrics.Transitions.WithLabelValues("reject").Inc()
	metrics.SessionsActive.Dec()
	slog.Info("call rejected", "session_id", id)

	s.publish(sess)
	return sess, nil
}

// End moves an active session to ended. Either side may call it; the second
// caller's update is an idempotent no-op and ended_at keeps its first value.
func (s *Service) End(ctx context.Context, id string) (*store.Session, error) {
	won, err := s.store.EndSession(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("end session: %w", err)
	}

	sess, err := s.store.GetSession(ctx, id)
	if err != nil {
		return nil, err
	}

	if !won {
		slog.Info("end was a no-op", "session_id", id, "status", sess.Status)
		return sess, nil
	}

	metrics.Transitions.WithLabelValues("end").Inc()
	metrics.SessionsActive.Dec()
	slog.Info("call ended", "session_id", id)

	s.publish(sess)
	return sess, nil
}

// RunRingTimeout periodically ends ringing sessions older than maxAge and
// publishes the transition for each. It blocks until ctx is cancelled.
// Disabled by default; runs only when RING_TIMEOUT_SECONDS is set.
func (s *Service) RunRingTimeout(ctx context.Context, maxAge time.Duration) {
	ticker := time.NewTicker(maxAge / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			ids, err := s.store.ExpireRinging(ctx, maxAge)
			if err != nil {
				slog.Error("expire ringing sessions", "error", err)
				continue
			}
			for _, id := range ids {
				metrics.Transitions.WithLabelValues("ring_timeout").Inc()
				metrics.SessionsActive.Dec()
				slog.Info("ringing session timed out", "session_id", id)
				if sess, getErr := s.store.GetSession(ctx, id); getErr == nil {
					s.publish(sess)
				}
			}
		}
	}
}

func (s *Service) publish(sess *store.Session) {
	s.hub.Publish(sess.ID, realtime.EventSessionUpdate, sess)
}
