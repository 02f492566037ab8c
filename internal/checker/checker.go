package checker

import (
	"context"

	"github.com/hazz-dev/portwatch/internal/config"
)

// Prober performs a single reachability check against one endpoint.
type Prober interface {
	Probe(ctx context.Context, ep config.Endpoint) Result
}

// ProberFunc adapts a function to the Prober interface.
type ProberFunc func(ctx context.Context, ep config.Endpoint) Result

func (f ProberFunc) Probe(ctx context.Context, ep config.Endpoint) Result {
	return f(ctx, ep)
}
