// Package notify delivers best-effort messages to guild members. Delivery
// failures are returned to the caller, which only logs them.
package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

type Notifier interface {
	Notify(ctx context.Context, actorID, subject, body string) error
}

type Nop struct{}

func (Nop) Notify(context.Context, string, string, string) error { return nil }

// Log writes each notification to the operator log.
type Log struct {
	Logger zerolog.Logger
}

func (l Log) Notify(_ context.Context, actorID, subject, body string) error {
	l.Logger.Info().
		Str("actor_id", actorID).
		Str("subject", subject).
		Str("body", body).
		Msg("notification")
	return nil
}

// Multi fans a notification out to every notifier and joins their errors.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, actorID, subject, body string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, actorID, subject, body); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
