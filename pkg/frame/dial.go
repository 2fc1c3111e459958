package frame

import (
	"context"
	"net"
	"time"

	"github.com/grafana/dskit/backoff"
	"github.com/pkg/errors"
)

var dialBackoff = backoff.Config{
	MinBackoff: 100 * time.Millisecond,
	MaxBackoff: 2 * time.Second,
	MaxRetries: 10,
}

// Dial connects to addr with retries and wraps the connection.
func Dial(ctx context.Context, addr string, chunkSize int) (*Conn, error) {
	var (
		d       net.Dialer
		lastErr error
	)
	b := backoff.New(ctx, dialBackoff)
	for b.Ongoing() {
		conn, err := d.DialContext(ctx, "tcp", addr)
		if err == nil {
			return New(conn, chunkSize), nil
		}
		lastErr = err
		b.Wait()
	}
	if lastErr == nil {
		lastErr = b.Err()
	}
	return nil, errors.Wrapf(lastErr, "dialing %s", addr)
}
