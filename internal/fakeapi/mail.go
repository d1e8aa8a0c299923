package fakeapi

import (
	"log/slog"
	"sync"
)

// Mailer delivers verification and reset links
type Mailer interface {
	SendVerificationEmail(to, token string) error
	SendPasswordResetEmail(to, token string) error
}

// ConsoleMailer logs emails instead of sending them
type ConsoleMailer struct {
	Logger *slog.Logger
}

func (c *ConsoleMailer) logger() *slog.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return slog.Default()
}

func (c *ConsoleMailer) SendVerificationEmail(to, token string) error {
	c.logger().Info("EMAIL: Verify your email address", "to", to, "token", token)
	return nil
}

func (c *ConsoleMailer) SendPasswordResetEmail(to, token string) error {
	c.logger().Info("EMAIL: Reset your password", "to", to, "token", token)
	return nil
}

// Mail is one message caught by an Outbox
type Mail struct {
	To    string
	Kind  TokenType
	Token string
}

// Outbox records emails so tests can follow the links
type Outbox struct {
	mu   sync.Mutex
	mail []Mail
}

func (o *Outbox) SendVerificationEmail(to, token string) error {
	o.add(Mail{To: to, Kind: TokenTypeEmailVerification, Token: token})
	return nil
}

func (o *Outbox) SendPasswordResetEmail(to, token string) error {
	o.add(Mail{To: to, Kind: TokenTypePasswordReset, Token: token})
	return nil
}

func (o *Outbox) add(m Mail) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mail = append(o.mail, m)
}

// Last returns the most recent mail of kind sent to to
func (o *Outbox) Last(to string, kind TokenType) (Mail, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.mail) - 1; i >= 0; i-- {
		if o.mail[i].To == to && o.mail[i].Kind == kind {
			return o.mail[i], true
		}
	}
	return Mail{}, false
}
