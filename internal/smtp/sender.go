package smtp

import (
	"bytes"
	"fmt"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
)

// Sender delivers composed messages over SMTP. One connection per send; the
// reply pipeline's volume does not justify connection reuse.
type Sender struct {
	address  string
	username string
	password string
	startTLS bool
}

type SenderConfig struct {
	Address  string
	Username string
	Password string
	StartTLS bool
}

// NewSender creates an SMTP sender.
func NewSender(cfg SenderConfig) *Sender {
	return &Sender{
		address:  cfg.Address,
		username: cfg.Username,
		password: cfg.Password,
		startTLS: cfg.StartTLS,
	}
}

// Send submits a raw RFC 5322 message. The raw bytes already carry the
// Message-Id, In-Reply-To, and References headers, so replies thread
// correctly in any client.
func (s *Sender) Send(from string, to []string, raw []byte) error {
	if len(to) == 0 {
		return fmt.Errorf("no recipients provided")
	}

	var c *smtp.Client
	var err error

	if s.startTLS {
		c, err = smtp.DialStartTLS(s.address, nil)
	} else {
		c, err = smtp.Dial(s.address)
	}
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer func() { _ = c.Close() }()

	if ok, _ := c.Extension("AUTH"); ok && s.username != "" {
		auth := sasl.NewPlainClient("", s.username, s.password)
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("failed to authenticate: %w", err)
		}
	}

	if err := c.SendMail(from, to, bytes.NewReader(raw)); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}

	return c.Quit()
}
