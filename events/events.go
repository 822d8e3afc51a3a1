// Package events delivers fire-and-forget notifications about account activity.
package events

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

const (
	CustomerAuthenticationBefore = "customer_authentication_before"
	CustomerAuthenticated        = "customer_authenticated"
	CustomerAuthenticationAfter  = "customer_authentication_after"
	CustomerRegisterSuccess      = "customer_register_success"
	CustomerConfirmed            = "customer_account_confirmed"
	CustomerConfirmationResend   = "customer_confirmation_resend"
	CustomerLogout               = "customer_logout"
	CustomerPasswordResetRequest = "customer_password_reset_requested"
	CustomerPasswordReset        = "customer_password_reset"
	CustomerMagicLinkRequest     = "customer_magic_link_requested"
	CustomerProfileUpdated       = "customer_profile_updated"
)

// Publisher accepts an event and never reports delivery back to the caller.
type Publisher interface {
	Publish(ctx context.Context, name string, payload any)
}

// Handler reacts to an event delivered in process.
type Handler func(ctx context.Context, payload any)

// Bus runs in-process handlers synchronously and forwards every event to an
// optional downstream publisher. A panicking handler is logged and skipped.
type Bus struct {
	mu         sync.RWMutex
	handlers   map[string][]Handler
	downstream Publisher
	logger     *zap.Logger
}

func NewBus(downstream Publisher, logger *zap.Logger) *Bus {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Bus{handlers: make(map[string][]Handler), downstream: downstream, logger: logger}
}

func (b *Bus) Subscribe(name string, h Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handlers[name] = append(b.handlers[name], h)
}

func (b *Bus) Publish(ctx context.Context, name string, payload any) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.handlers[name]...)
	b.mu.RUnlock()

	for _, h := range handlers {
		b.run(ctx, name, h, payload)
	}
	if b.downstream != nil {
		b.downstream.Publish(ctx, name, payload)
	}
}

func (b *Bus) run(ctx context.Context, name string, h Handler, payload any) {
	defer func() {
		if r := recover(); r != nil {
			b.logger.Error("event handler panicked", zap.String("event", name), zap.Any("panic", r))
		}
	}()
	h(ctx, payload)
}

// LogPublisher writes events to the log. It is the downstream when no broker is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, name string, _ any) {
	p.logger.Debug("event published", zap.String("event", name))
}

// Recorder keeps published events in memory.
type Recorder struct {
	mu     sync.Mutex
	Events []Recorded
}

type Recorded struct {
	Name    string
	Payload any
}

func (r *Recorder) Publish(_ context.Context, name string, payload any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Events = append(r.Events, Recorded{Name: name, Payload: payload})
}

// Names returns the recorded event names in publish order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.Events))
	for _, e := range r.Events {
		names = append(names, e.Name)
	}
	return names
}

func (r *Recorder) Last(name string) (Recorded, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.Events) - 1; i >= 0; i-- {
		if r.Events[i].Name == name {
			return r.Events[i], true
		}
	}
	return Recorded{}, false
}
