package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/hazz-dev/portwatch/internal/alert"
	"github.com/hazz-dev/portwatch/internal/checker"
	"github.com/hazz-dev/portwatch/internal/config"
	"github.com/hazz-dev/portwatch/internal/gate"
	"github.com/hazz-dev/portwatch/internal/storage"
)

// Store defines the failure-state operations required by the scheduler.
type Store interface {
	Get(ctx context.Context, ep config.Endpoint) (*storage.FailureRecord, error)
	RecordFailure(ctx context.Context, ep config.Endpoint) (int, error)
	Clear(ctx context.Context, ep config.Endpoint) error
}

// Options configures a Scheduler.
type Options struct {
	Endpoints []config.Endpoint
	// Hostnames are checked against the resolver before the first cycle.
	Hostnames []string
	Interval  time.Duration
	Threshold int
	// Concurrency bounds parallel probes within a cycle. 1 probes the
	// endpoints one after another in configuration order.
	Concurrency int
}

// Scheduler polls every endpoint once per cycle, forever.
type Scheduler struct {
	opts     Options
	prober   checker.Prober
	store    Store
	notifier alert.Notifier
	resolver  checker.Resolver
	validated bool
	logger    *slog.Logger
}

// CycleSummary reports what one cycle did.
type CycleSummary struct {
	ID       string
	Checked  int
	Down     int
	Alerts   int
	Errors   int
	Duration time.Duration
}

// New creates a new Scheduler. Pass nil logger to use the default logger.
func New(opts Options, prober checker.Prober, store Store, notifier alert.Notifier, logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Concurrency < 1 {
		opts.Concurrency = 1
	}
	return &Scheduler{
		opts:     opts,
		prober:   prober,
		store:    store,
		notifier: notifier,
		logger:   logger,
	}
}

// SetResolver sets the resolver used to validate hostnames when Run starts.
// Without one, validation is skipped.
func (s *Scheduler) SetResolver(r checker.Resolver) {
	s.resolver = r
}

// Validate checks that every configured hostname resolves. It is a no-op
// without a resolver or once validation has passed.
func (s *Scheduler) Validate(ctx context.Context) error {
	if s.resolver == nil || s.validated {
		return nil
	}
	if err := checker.ResolveAll(ctx, s.resolver, s.opts.Hostnames); err != nil {
		return fmt.Errorf("validating hostnames: %w", err)
	}
	s.validated = true
	return nil
}

// Run validates the configured hostnames, then runs a cycle immediately and
// again after every interval until ctx is cancelled. It returns an error only
// if validation fails; cancellation returns nil.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Validate(ctx); err != nil {
		return err
	}

	s.logger.Info("scheduler started",
		"endpoints", len(s.opts.Endpoints),
		"interval", s.opts.Interval,
		"threshold", s.opts.Threshold,
		"concurrency", s.opts.Concurrency,
	)

	for {
		s.RunCycle(ctx)

		// The interval is measured from the end of a cycle, so a slow cycle
		// pushes the next one back.
		timer := time.NewTimer(s.opts.Interval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("scheduler stopped")
			return nil
		case <-timer.C:
		}
	}
}

type endpointOutcome struct {
	down    bool
	alerted bool
	failed  bool
	skipped bool
}

// RunCycle checks every endpoint once. Each endpoint is handled by exactly
// one goroutine, so no two mutations of the same record can overlap.
func (s *Scheduler) RunCycle(ctx context.Context) CycleSummary {
	start := time.Now()
	summary := CycleSummary{ID: uuid.NewString()}
	log := s.logger.With("cycle_id", summary.ID)

	outcomes := make([]endpointOutcome, len(s.opts.Endpoints))
	var g errgroup.Group
	g.SetLimit(s.opts.Concurrency)
	for i, ep := range s.opts.Endpoints {
		g.Go(func() error {
			outcomes[i] = s.checkEndpoint(ctx, ep, log)
			return nil
		})
	}
	_ = g.Wait()

	for _, o := range outcomes {
		if o.skipped {
			continue
		}
		summary.Checked++
		if o.down {
			summary.Down++
		}
		if o.alerted {
			summary.Alerts++
		}
		if o.failed {
			summary.Errors++
		}
	}
	summary.Duration = time.Since(start)

	log.Debug("cycle complete",
		"checked", summary.Checked,
		"down", summary.Down,
		"alerts", summary.Alerts,
		"errors", summary.Errors,
		"duration", summary.Duration,
	)
	return summary
}

func (s *Scheduler) checkEndpoint(ctx context.Context, ep config.Endpoint, log *slog.Logger) endpointOutcome {
	log = log.With("endpoint", ep.String())
	log.Debug("checking endpoint")

	result := s.prober.Probe(ctx, ep)
	// A probe cut short by shutdown says nothing about the endpoint.
	if ctx.Err() != nil {
		return endpointOutcome{skipped: true}
	}
	// Once the outcome is accepted, the state change and its alert complete
	// even if shutdown starts; the notifier bounds its own send time.
	ctx = context.WithoutCancel(ctx)
	out := endpointOutcome{down: result.Status == checker.StatusDown}

	rec, err := s.store.Get(ctx, ep)
	if err != nil {
		log.Error("reading failure record", "error", err)
		out.failed = true
		return out
	}
	prev := 0
	if rec != nil {
		prev = rec.ConsecutiveFailures
	}

	d := gate.Decide(prev, result.Status, s.opts.Threshold)

	switch d.State {
	case gate.StateRecordFailure:
		n, err := s.store.RecordFailure(ctx, ep)
		if err != nil {
			// Not persisted: skip the alert so the same decision is made
			// again next cycle.
			log.Error("recording failure", "error", err)
			out.failed = true
			return out
		}
		if n != d.NewCount {
			log.Warn("stored failure count differs from decision", "expected", d.NewCount, "stored", n)
			d = gate.Decide(n-1, result.Status, s.opts.Threshold)
		}
	case gate.StateClear:
		if err := s.store.Clear(ctx, ep); err != nil {
			log.Error("clearing failure record", "error", err)
			out.failed = true
			return out
		}
	}

	if out.down {
		log.Error("endpoint down",
			"consecutive_failures", d.NewCount,
			"threshold", s.opts.Threshold,
			"error", result.Error,
			"dns_failure", result.DNSFailure,
		)
	} else {
		log.Info("endpoint up", "response_time", result.ResponseTime)
	}

	var notifyErr error
	switch d.Alert {
	case gate.AlertDown:
		notifyErr = s.notifier.NotifyDown(ctx, ep)
	case gate.AlertRecovered:
		notifyErr = s.notifier.NotifyRecovered(ctx, ep)
	default:
		return out
	}
	if notifyErr != nil {
		// Dropped: the state change is already persisted.
		log.Error("sending notification", "alert", d.Alert.String(), "error", notifyErr)
		out.failed = true
		return out
	}
	log.Info("notification sent", "alert", d.Alert.String())
	out.alerted = true
	return out
}
