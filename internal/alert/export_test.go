package alert

import (
	"crypto/tls"
	"io"

	"github.com/hazz-dev/portwatch/internal/config"
)

// WriteMessage renders the message Mailer would send for ep.
func (m *Mailer) WriteMessage(w io.Writer, ep config.Endpoint, kind Kind) error {
	msg, err := m.message(ep, kind)
	if err != nil {
		return err
	}
	_, err = msg.WriteTo(w)
	return err
}

// SetTLSConfig replaces the STARTTLS configuration, e.g. to trust a test
// server's self-signed certificate.
func (m *Mailer) SetTLSConfig(c *tls.Config) {
	m.tlsConfig = c
}
