package imap

import (
	"fmt"
	"net"
	"time"

	"github.com/emersion/go-imap/client"
)

// connectTimeout bounds the TCP/TLS dial so a dead server cannot stall the
// supervisor past its backoff schedule.
const connectTimeout = 10 * time.Second

// Connect dials the IMAP server.
// useTLS: true for production, false for tests (in-memory server).
func Connect(address string, useTLS bool) (*client.Client, error) {
	dialer := &net.Dialer{
		Timeout: connectTimeout,
	}

	if useTLS {
		c, err := client.DialWithDialerTLS(dialer, address, nil)
		if err != nil {
			return nil, fmt.Errorf("failed to dial with TLS: %w", err)
		}
		return c, nil
	}

	c, err := client.DialWithDialer(dialer, address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial: %w", err)
	}

	return c, nil
}

// Login authenticates with the IMAP server.
func Login(c *client.Client, username, password string) error {
	if err := c.Login(username, password); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}

	return nil
}
