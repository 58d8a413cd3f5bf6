// Package notify delivers the account emails triggered by the auth flows:
// email verification, password reset and password-changed confirmation.
// Delivery is either direct through a Mailer or via a RabbitMQ queue drained
// by Consumer.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Kind names the email a notification turns into.
type Kind string

const (
	KindEmailVerification Kind = "email_verification"
	KindPasswordReset     Kind = "password_reset"
	KindPasswordChanged   Kind = "password_changed"
)

// ErrUnknownKind is returned when a notification cannot be rendered.
var ErrUnknownKind = errors.New("notify: unknown notification kind")

// Notification is the queue payload.  Token and Link are empty for
// password_changed.
type Notification struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	To        string    `json:"to"`
	Name      string    `json:"name"`
	Token     string    `json:"token,omitempty"`
	Link      string    `json:"link,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// New stamps a notification with a fresh id and the current time.
func New(kind Kind, to, name, token, link string) Notification {
	return Notification{
		ID:        uuid.NewString(),
		Kind:      kind,
		To:        to,
		Name:      name,
		Token:     token,
		Link:      link,
		CreatedAt: time.Now().UTC(),
	}
}

// Dispatcher hands a notification off for delivery.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// MailDispatcher renders and mails notifications in-process.
type MailDispatcher struct {
	Mailer  Mailer
	AppName string
}

func NewMailDispatcher(m Mailer) *MailDispatcher {
	return &MailDispatcher{Mailer: m, AppName: "FitBack"}
}

func (d *MailDispatcher) Dispatch(ctx context.Context, n Notification) error {
	msg, err := Render(n, d.AppName)
	if err != nil {
		return err
	}
	return d.Mailer.Send(ctx, msg)
}
