// Package notify wraps the push notification collaborator. Delivery is
// fire-and-forget: the core never learns whether a push arrived.
package notify

import (
	"context"
	"sync"
)

// Notifier sends a push notification to a device token.
type Notifier interface {
	SendPush(ctx context.Context, token, title, body string, data map[string]string) error
}

// Recorded is a Notifier that records calls, for tests.
type Recorded struct {
	mu    sync.Mutex
	Err   error
	calls []Push
}

// Push is one recorded notification.
type Push struct {
	Token string
	Title string
	Body  string
	Data  map[string]string
}

func (r *Recorded) SendPush(_ context.Context, token, title, body string, data map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, Push{Token: token, Title: title, Body: body, Data: data})
	return r.Err
}

// Calls returns a copy of the recorded pushes.
func (r *Recorded) Calls() []Push {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Push, len(r.calls))
	copy(out, r.calls)
	return out
}
