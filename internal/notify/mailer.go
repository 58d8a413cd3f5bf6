package notify

import (
	"context"
	"fmt"
	"strings"

	"github.com/iliyamo/fitback/internal/logging"
)

// Message is a rendered plain-text email.
type Message struct {
	To      string
	Subject string
	Text    string
}

// Mailer sends one rendered message.
type Mailer interface {
	Send(ctx context.Context, m Message) error
}

// LogMailer writes messages to the log instead of sending them.  It is the
// default driver for local development.
type LogMailer struct {
	Log logging.Logger
}

func (m LogMailer) Send(ctx context.Context, msg Message) error {
	m.Log.Info(ctx, "mail (log driver)", "to", msg.To, "subject", msg.Subject, "body", msg.Text)
	return nil
}

// Render turns a notification into the email for its kind.
func Render(n Notification, app string) (Message, error) {
	name := n.Name
	if name == "" {
		name = n.To
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hola %s,\n\n", name)

	var subject string
	switch n.Kind {
	case KindEmailVerification:
		subject = fmt.Sprintf("Verifica tu email - %s", app)
		fmt.Fprintf(&b, "Gracias por registrarte en %s. Confirma tu dirección de email abriendo este enlace:\n\n%s\n\n", app, n.Link)
		b.WriteString("El enlace caduca en 24 horas.\n")
	case KindPasswordReset:
		subject = fmt.Sprintf("Restablece tu contraseña - %s", app)
		b.WriteString("Recibimos una solicitud para restablecer tu contraseña. Usa este código:\n\n")
		fmt.Fprintf(&b, "%s\n\nen %s\n\n", n.Token, n.Link)
		b.WriteString("El código caduca en 1 hora. Si no lo solicitaste, ignora este mensaje.\n")
	case KindPasswordChanged:
		subject = fmt.Sprintf("Tu contraseña ha cambiado - %s", app)
		fmt.Fprintf(&b, "Tu contraseña se cambió el %s (UTC).\n", n.CreatedAt.Format("02/01/2006 15:04"))
		b.WriteString("Si no fuiste tú, restablece tu contraseña de inmediato.\n")
	default:
		return Message{}, fmt.Errorf("%w: %q", ErrUnknownKind, n.Kind)
	}
	fmt.Fprintf(&b, "\nEl equipo de %s\n", app)
	return Message{To: n.To, Subject: subject, Text: b.String()}, nil
}
