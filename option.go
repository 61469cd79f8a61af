package ringio

import (
	"time"

	"github.com/brickingsoft/errors"
	"github.com/brickingsoft/ringio/pkg/aio"
)

type Options struct {
	SQEntries       uint32
	CQEntries       uint32
	SingleProducer  bool
	SingleIssuer    bool
	SubmitBatch     uint32
	FileSlots       uint32
	BufferSlots     uint32
	RequestPoolIncr uint32
	RequestPoolMax  uint32
	BoundWorkers    uint32
	WorkerIdle      time.Duration
	WaitCurve       aio.Curve
}

// AsAioOptions lowers the validated options onto the engine's option set.
func (options *Options) AsAioOptions() []aio.Option {
	opts := make([]aio.Option, 0, 8)
	if n := options.SQEntries; n > 0 {
		opts = append(opts, aio.WithSQEntries(n))
	}
	if n := options.CQEntries; n > 0 {
		opts = append(opts, aio.WithCQEntries(n))
	}
	if options.SingleProducer {
		opts = append(opts, aio.WithSingleProducer())
	}
	if options.SingleIssuer {
		opts = append(opts, aio.WithSingleIssuer())
	}
	if n := options.SubmitBatch; n > 0 {
		opts = append(opts, aio.WithSubmitBatch(n))
	}
	if n := options.FileSlots; n > 0 {
		opts = append(opts, aio.WithFileSlots(n))
	}
	if n := options.BufferSlots; n > 0 {
		opts = append(opts, aio.WithBufferSlots(n))
	}
	if options.RequestPoolIncr > 0 || options.RequestPoolMax > 0 {
		opts = append(opts, aio.WithRequestPool(options.RequestPoolIncr, options.RequestPoolMax))
	}
	if n := options.BoundWorkers; n > 0 {
		opts = append(opts, aio.WithBoundWorkers(n))
	}
	if d := options.WorkerIdle; d > 0 {
		opts = append(opts, aio.WithWorkerIdle(d))
	}
	if len(options.WaitCurve) > 0 {
		opts = append(opts, aio.WithWaitCurve(options.WaitCurve))
	}
	return opts
}

type Option func(options *Options) (err error)

// WithEntries sets the submission ring capacity; the completion ring gets
// twice that unless WithCQEntries overrides it. Capacities round up to
// powers of two.
func WithEntries(n uint32) Option {
	return func(options *Options) error {
		if n == 0 {
			return errors.From(ErrInvalidArgument, errors.WithWrap(errors.New("entries must be positive")))
		}
		options.SQEntries = n
		return nil
	}
}

func WithCQEntries(n uint32) Option {
	return func(options *Options) error {
		if n == 0 {
			return errors.From(ErrInvalidArgument, errors.WithWrap(errors.New("cq entries must be positive")))
		}
		options.CQEntries = n
		return nil
	}
}

// WithSingleProducer promises one enqueueing goroutine and drops the enqueue
// lock.
func WithSingleProducer() Option {
	return func(options *Options) error {
		options.SingleProducer = true
		return nil
	}
}

// WithSingleIssuer funnels all completion publishing through the engine
// goroutine; the completion side then runs lock free.
func WithSingleIssuer() Option {
	return func(options *Options) error {
		options.SingleIssuer = true
		return nil
	}
}

func WithSubmitBatch(n uint32) Option {
	return func(options *Options) error {
		options.SubmitBatch = n
		return nil
	}
}

func WithFileSlots(n uint32) Option {
	return func(options *Options) error {
		options.FileSlots = n
		return nil
	}
}

func WithBufferSlots(n uint32) Option {
	return func(options *Options) error {
		options.BufferSlots = n
		return nil
	}
}

// WithRequestPool sets the arena refill batch and hard cap. Saturation
// back-pressures submission instead of allocating past the cap.
func WithRequestPool(incr uint32, max uint32) Option {
	return func(options *Options) error {
		if max > 0 && incr > max {
			return errors.From(ErrInvalidArgument, errors.WithWrap(errors.New("pool incr exceeds max")))
		}
		options.RequestPoolIncr = incr
		options.RequestPoolMax = max
		return nil
	}
}

func WithBoundWorkers(n uint32) Option {
	return func(options *Options) error {
		options.BoundWorkers = n
		return nil
	}
}

func WithWorkerIdle(d time.Duration) Option {
	return func(options *Options) error {
		if d < 1 {
			return errors.From(ErrInvalidArgument, errors.WithWrap(errors.New("idle duration must be positive")))
		}
		options.WorkerIdle = d
		return nil
	}
}

// WithWaitCurve tunes how long the engine sleeps against recent throughput.
func WithWaitCurve(curve aio.Curve) Option {
	return func(options *Options) error {
		options.WaitCurve = curve
		return nil
	}
}
