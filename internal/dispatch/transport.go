package dispatch

import (
	"context"
	"errors"
	"fmt"
	"net/smtp"
	"slices"

	"gopkg.in/gomail.v2"

	"github.com/nhle/sheet-mailer/internal/model"
)

var (
	// ErrSessionClose marks a failure to close the SMTP session after the
	// message was accepted.
	ErrSessionClose = errors.New("closing smtp session")

	// ErrPlaintextSession is returned when credentials are configured but
	// the server offered neither implicit TLS nor STARTTLS.
	ErrPlaintextSession = errors.New("smtp server did not offer TLS")
)

// Transport delivers a single composed message.
type Transport interface {
	Send(ctx context.Context, msg *gomail.Message) error
}

// SMTPTransport opens a fresh authenticated session for every message.
type SMTPTransport struct {
	dialer *gomail.Dialer
}

// NewSMTPTransport creates a transport for the configured server. The
// password must already be resolved. Port 465 or ssl: true selects
// implicit TLS; otherwise the session is upgraded with STARTTLS. With a
// username set, a session that could not be encrypted is refused
// before any credentials are sent.
func NewSMTPTransport(cfg model.SMTPConfig, password string) *SMTPTransport {
	d := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, password)
	if cfg.SSL {
		d.SSL = true
	}
	if cfg.Username != "" {
		d.Auth = &tlsOnlyAuth{host: cfg.Host, username: cfg.Username, password: password}
	}
	return &SMTPTransport{dialer: d}
}

// Host returns the SMTP server host.
func (t *SMTPTransport) Host() string {
	return t.dialer.Host
}

// Send dials, authenticates, transmits msg and closes the session.
func (t *SMTPTransport) Send(ctx context.Context, msg *gomail.Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s, err := t.dialer.Dial()
	if err != nil {
		return fmt.Errorf("connecting to SMTP %s:%d: %w", t.dialer.Host, t.dialer.Port, err)
	}

	if err := gomail.Send(s, msg); err != nil {
		_ = s.Close()
		return fmt.Errorf("sending message: %w", err)
	}

	if err := s.Close(); err != nil {
		return fmt.Errorf("%w: %w", ErrSessionClose, err)
	}
	return nil
}

// tlsOnlyAuth picks a mechanism the server offers, and only once the
// connection is encrypted.
type tlsOnlyAuth struct {
	host     string
	username string
	password string

	next smtp.Auth
}

func (a *tlsOnlyAuth) Start(server *smtp.ServerInfo) (string, []byte, error) {
	if !server.TLS {
		return "", nil, ErrPlaintextSession
	}

	switch {
	case slices.Contains(server.Auth, "CRAM-MD5"):
		a.next = smtp.CRAMMD5Auth(a.username, a.password)
	case slices.Contains(server.Auth, "LOGIN") && !slices.Contains(server.Auth, "PLAIN"):
		a.next = &loginAuth{username: a.username, password: a.password}
	default:
		a.next = smtp.PlainAuth("", a.username, a.password, a.host)
	}
	return a.next.Start(server)
}

func (a *tlsOnlyAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	return a.next.Next(fromServer, more)
}

// loginAuth implements the LOGIN mechanism some providers still require.
type loginAuth struct {
	username string
	password string
}

func (a *loginAuth) Start(*smtp.ServerInfo) (string, []byte, error) {
	return "LOGIN", nil, nil
}

func (a *loginAuth) Next(fromServer []byte, more bool) ([]byte, error) {
	if !more {
		return nil, nil
	}
	switch string(fromServer) {
	case "Username:":
		return []byte(a.username), nil
	case "Password:":
		return []byte(a.password), nil
	default:
		return nil, fmt.Errorf("unexpected LOGIN challenge %q", fromServer)
	}
}
