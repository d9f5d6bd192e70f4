// Package notifier delivers ingestion events to external collaborators.
// Delivery is best effort: callers log failures and never abort on them.
package notifier

import (
	"context"
	"errors"
)

// Broadcaster publishes one event.
type Broadcaster interface {
	Notify(ctx context.Context, eventType string, payload any) error
}

// BroadcasterFunc adapts a function to Broadcaster.
type BroadcasterFunc func(ctx context.Context, eventType string, payload any) error

func (f BroadcasterFunc) Notify(ctx context.Context, eventType string, payload any) error {
	return f(ctx, eventType, payload)
}

// Nop discards every event.
var Nop Broadcaster = BroadcasterFunc(func(context.Context, string, any) error { return nil })

type multi []Broadcaster

// Multi fans an event out to every broadcaster. Every broadcaster is
// tried; their errors are joined.
func Multi(broadcasters ...Broadcaster) Broadcaster {
	var m multi
	for _, b := range broadcasters {
		if b != nil {
			m = append(m, b)
		}
	}
	return m
}

func (m multi) Notify(ctx context.Context, eventType string, payload any) error {
	var errs []error
	for _, b := range m {
		if err := b.Notify(ctx, eventType, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
