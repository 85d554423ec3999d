package auth

import "log/slog"

// Mailer delivers reset passwords. Delivery is an external collaborator, so
// deployments plug in their own implementation.
type Mailer interface {
	SendPasswordReset(email, newPassword string) error
}

// LogMailer is the default mailer for deployments without an smtp relay; it
// records the reset event without the password itself.
type LogMailer struct{}

func (LogMailer) SendPasswordReset(email, newPassword string) error {
	slog.Info("password reset generated", "email", email)
	return nil
}
