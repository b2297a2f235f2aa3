package rollup

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/sethvargo/go-retry"
	"go.uber.org/atomic"

	"github.com/wartime-penguins/notary/model/rollup"
	"github.com/wartime-penguins/notary/module"
	"github.com/wartime-penguins/notary/module/irrecoverable"
)

// Handler processes a single request and decides the status reported back to
// the rollup server.
type Handler interface {
	Handle(ctx context.Context, req *rollup.Request) (rollup.Status, error)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(ctx context.Context, req *rollup.Request) (rollup.Status, error)

func (f HandlerFunc) Handle(ctx context.Context, req *rollup.Request) (rollup.Status, error) {
	return f(ctx, req)
}

// Server is the part of the rollup server used by the driver to exchange
// statuses for requests.
type Server interface {
	Finish(ctx context.Context, status rollup.Status) (*rollup.Request, error)
}

// Config configures the polling and dispatch behaviour of the driver.
type Config struct {
	// RequestTimeout bounds the time a handler may spend on a request. Zero
	// disables the limit.
	RequestTimeout time.Duration
	// PollRetries is the number of times a failed poll is retried before the
	// driver gives up.
	PollRetries uint64
	// PollRetryBase is the initial delay of the exponential poll backoff.
	PollRetryBase time.Duration
	// FailFast makes handler errors fatal instead of reporting them as rejects.
	FailFast bool
}

// DefaultConfig returns a driver configuration that retries failed polls five
// times and rejects requests whose handler fails.
func DefaultConfig() Config {
	return Config{
		RequestTimeout: 0,
		PollRetries:    5,
		PollRetryBase:  100 * time.Millisecond,
		FailFast:       false,
	}
}

// Driver polls the rollup server for requests, dispatches them to the advance
// and inspect handlers and reports their outcome on the following poll.
type Driver struct {
	log     zerolog.Logger
	server  Server
	advance Handler
	inspect Handler
	metrics module.NotaryMetrics
	config  Config

	handled  *atomic.Uint64
	rejected *atomic.Uint64
	done     chan struct{}
}

// NewDriver returns a driver polling server and dispatching to the advance and
// inspect handlers.
func NewDriver(
	log zerolog.Logger,
	server Server,
	advance Handler,
	inspect Handler,
	metrics module.NotaryMetrics,
	config Config,
) *Driver {
	return &Driver{
		log:      log.With().Str("component", "rollup_driver").Logger(),
		server:   server,
		advance:  advance,
		inspect:  inspect,
		metrics:  metrics,
		config:   config,
		handled:  atomic.NewUint64(0),
		rejected: atomic.NewUint64(0),
		done:     make(chan struct{}),
	}
}

// Start runs the driver loop in a goroutine. Any error other than the
// cancellation of ctx is thrown to the signaler.
func (d *Driver) Start(ctx irrecoverable.SignalerContext) {
	go func() {
		defer close(d.done)

		err := d.Run(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			ctx.Throw(err)
		}
	}()
}

// Done returns a channel closed once the loop started by Start has exited.
func (d *Driver) Done() <-chan struct{} {
	return d.done
}

// Handled returns the number of requests dispatched so far.
func (d *Driver) Handled() uint64 {
	return d.handled.Load()
}

// Rejected returns the number of requests that ended with a reject status.
func (d *Driver) Rejected() uint64 {
	return d.rejected.Load()
}

// Run polls the rollup server until ctx is cancelled or the server becomes
// unreachable. The first poll reports accept. Each following poll reports the
// status of the request handled before it.
func (d *Driver) Run(ctx context.Context) error {
	status := rollup.StatusAccept

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := d.poll(ctx, status)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			if rollup.IsMalformedRequestError(err) {
				d.log.Warn().Err(err).Msg("received malformed request, rejecting")
				status = rollup.StatusReject
				d.handled.Inc()
				d.rejected.Inc()
				continue
			}
			return fmt.Errorf("could not poll rollup server: %w", err)
		}

		if req == nil {
			d.log.Debug().Msg("no pending rollup request, trying again")
			continue
		}

		status, err = d.Dispatch(ctx, req)
		if err != nil {
			if d.config.FailFast {
				return fmt.Errorf("could not handle %s request: %w", req.Kind, err)
			}
			d.log.Error().Err(err).Str("kind", req.Kind.String()).Msg("request failed, rejecting")
		}
	}
}

// poll reports status and fetches the next request, retrying transport
// failures with exponential backoff.
func (d *Driver) poll(ctx context.Context, status rollup.Status) (*rollup.Request, error) {
	backoff := retry.WithMaxRetries(d.config.PollRetries, retry.NewExponential(d.config.PollRetryBase))

	var req *rollup.Request
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		next, err := d.server.Finish(ctx, status)
		if err != nil {
			if !IsTransportError(err) || ctx.Err() != nil {
				return err
			}
			d.metrics.PollFailed()
			d.log.Warn().Err(err).Msg("could not reach rollup server, retrying")
			return retry.RetryableError(err)
		}
		req = next
		return nil
	})
	if err != nil {
		return nil, err
	}

	return req, nil
}

// Dispatch routes req to the handler for its kind. Requests of unknown kind
// are rejected without invoking any handler. A handler error always results
// in a reject status, and the error is returned alongside it.
func (d *Driver) Dispatch(ctx context.Context, req *rollup.Request) (rollup.Status, error) {
	log := d.log.With().Str("kind", req.RequestType).Logger()
	start := time.Now()

	var handler Handler
	switch req.Kind {
	case rollup.KindAdvance:
		handler = d.advance
	case rollup.KindInspect:
		handler = d.inspect
	default:
		log.Warn().Msg("unknown request type, rejecting")
		d.record(req.Kind, rollup.StatusReject, start)
		return rollup.StatusReject, nil
	}

	if d.config.RequestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.config.RequestTimeout)
		defer cancel()
	}

	log.Info().Msg("received request")

	status, err := handler.Handle(ctx, req)
	if err != nil {
		d.metrics.RequestFailed(req.Kind.String())
		d.record(req.Kind, rollup.StatusReject, start)
		return rollup.StatusReject, err
	}

	log.Info().
		Str("status", status.String()).
		Dur("duration", time.Since(start)).
		Msg("request handled")

	d.record(req.Kind, status, start)
	return status, nil
}

func (d *Driver) record(kind rollup.Kind, status rollup.Status, start time.Time) {
	d.handled.Inc()
	if status == rollup.StatusReject {
		d.rejected.Inc()
	}
	d.metrics.RequestHandled(kind.String(), status.String(), time.Since(start))
}
