// Package notify provides a stand-in notification sender: email and SMS
// delivery are external collaborators simulated here with latency and a
// log line.
package notify

import (
	"context"
	"log/slog"
	"time"
)

type Fake struct {
	log *slog.Logger
}

func NewFake(log *slog.Logger) *Fake {
	return &Fake{log: log}
}

func (f *Fake) SendEmail(ctx context.Context, userID, message string) error {
	return f.send(ctx, "email", userID, message, time.Second)
}

func (f *Fake) SendSMS(ctx context.Context, userID, message string) error {
	return f.send(ctx, "sms", userID, message, 500*time.Millisecond)
}

func (f *Fake) send(ctx context.Context, channel, userID, message string, latency time.Duration) error {
	select {
	case <-time.After(latency):
	case <-ctx.Done():
		return ctx.Err()
	}
	f.log.InfoContext(ctx, "notification delivered", "channel", channel, "user_id", userID, "message", message)
	return nil
}
