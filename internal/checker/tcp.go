package checker

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/hazz-dev/portwatch/internal/config"
)

// TCPProber opens and immediately closes a TCP connection. There are no
// retries; the scheduler interval is the retry policy.
type TCPProber struct {
	timeout time.Duration
}

// NewTCPProber returns a prober bounding each connect attempt by timeout.
func NewTCPProber(timeout time.Duration) *TCPProber {
	return &TCPProber{timeout: timeout}
}

func (p *TCPProber) Probe(ctx context.Context, ep config.Endpoint) Result {
	start := time.Now()
	result := Result{
		Endpoint:  ep,
		CheckedAt: start,
	}

	dialer := &net.Dialer{Timeout: p.timeout}
	conn, err := dialer.DialContext(ctx, "tcp", ep.String())
	result.ResponseTime = time.Since(start)
	if err != nil {
		var dnsErr *net.DNSError
		result.DNSFailure = errors.As(err, &dnsErr)
		result.Status = StatusDown
		result.Error = fmt.Sprintf("dial tcp %s: %v", ep, err)
		return result
	}
	conn.Close()
	result.Status = StatusUp
	return result
}
