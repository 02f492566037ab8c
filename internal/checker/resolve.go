package checker

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"
)

// Resolver looks up hostnames. *net.Resolver satisfies it.
type Resolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

const resolveTimeout = 5 * time.Second

// ResolveAll verifies that every host resolves to at least one address.
// All failures are reported together.
func ResolveAll(ctx context.Context, r Resolver, hosts []string) error {
	var errs error
	for _, host := range hosts {
		errs = multierr.Append(errs, resolveOne(ctx, r, host))
	}
	return errs
}

func resolveOne(ctx context.Context, r Resolver, host string) error {
	ctx, cancel := context.WithTimeout(ctx, resolveTimeout)
	defer cancel()

	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return fmt.Errorf("cannot resolve %q: %w", host, err)
	}
	if len(addrs) == 0 {
		return fmt.Errorf("cannot resolve %q: no addresses", host)
	}
	return nil
}
