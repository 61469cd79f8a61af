package aio

import (
	"runtime"
	"time"

	"github.com/brickingsoft/rxp"
)

const (
	defaultSQEntries       = 256
	defaultCQFactor        = 2
	defaultSubmitBatch     = 64
	defaultBoundWorkers    = 4
	defaultWorkerIdle      = 15 * time.Second
	defaultFileSlots       = 1024
	defaultBufferSlots     = 1024
	defaultRequestPoolMax  = 4096
	defaultRequestPoolIncr = 64
)

type Options struct {
	// SQEntries and CQEntries are rounded up to powers of two.
	SQEntries uint32
	CQEntries uint32
	// SingleProducer skips the enqueue lock, callers promise one producer.
	SingleProducer bool
	// SingleIssuer funnels every completion through the engine goroutine and
	// publishes without the completion lock.
	SingleIssuer bool
	SubmitBatch  uint32
	FileSlots    uint32
	BufferSlots  uint32
	// RequestPoolMax bounds the request arena, zero means default.
	RequestPoolMax  uint32
	RequestPoolIncr uint32
	BoundWorkers    uint32
	WorkerIdle      time.Duration
	WaitCurve       Curve
	// Executors runs unbound work, required.
	Executors rxp.Executors
}

type Option func(*Options)

func WithSQEntries(n uint32) Option {
	return func(o *Options) {
		o.SQEntries = n
	}
}

func WithCQEntries(n uint32) Option {
	return func(o *Options) {
		o.CQEntries = n
	}
}

func WithSingleProducer() Option {
	return func(o *Options) {
		o.SingleProducer = true
	}
}

func WithSingleIssuer() Option {
	return func(o *Options) {
		o.SingleIssuer = true
	}
}

func WithSubmitBatch(n uint32) Option {
	return func(o *Options) {
		o.SubmitBatch = n
	}
}

func WithFileSlots(n uint32) Option {
	return func(o *Options) {
		o.FileSlots = n
	}
}

func WithBufferSlots(n uint32) Option {
	return func(o *Options) {
		o.BufferSlots = n
	}
}

func WithRequestPool(incr uint32, max uint32) Option {
	return func(o *Options) {
		o.RequestPoolIncr = incr
		o.RequestPoolMax = max
	}
}

func WithBoundWorkers(n uint32) Option {
	return func(o *Options) {
		o.BoundWorkers = n
	}
}

func WithWorkerIdle(d time.Duration) Option {
	return func(o *Options) {
		o.WorkerIdle = d
	}
}

func WithWaitCurve(curve Curve) Option {
	return func(o *Options) {
		o.WaitCurve = curve
	}
}

func WithExecutors(execs rxp.Executors) Option {
	return func(o *Options) {
		o.Executors = execs
	}
}

func (o *Options) normalize() {
	if o.SQEntries == 0 {
		o.SQEntries = defaultSQEntries
	}
	o.SQEntries = RoundupPow2(o.SQEntries)
	if o.CQEntries == 0 {
		o.CQEntries = o.SQEntries * defaultCQFactor
	}
	o.CQEntries = RoundupPow2(o.CQEntries)
	if o.SubmitBatch == 0 {
		o.SubmitBatch = defaultSubmitBatch
	}
	if o.FileSlots == 0 {
		o.FileSlots = defaultFileSlots
	}
	if o.BufferSlots == 0 {
		o.BufferSlots = defaultBufferSlots
	}
	if o.RequestPoolMax == 0 {
		o.RequestPoolMax = defaultRequestPoolMax
	}
	if o.RequestPoolIncr == 0 {
		o.RequestPoolIncr = defaultRequestPoolIncr
	}
	if o.BoundWorkers == 0 {
		n := uint32(runtime.NumCPU())
		if n > defaultBoundWorkers {
			n = defaultBoundWorkers
		}
		if n == 0 {
			n = 1
		}
		o.BoundWorkers = n
	}
	if o.WorkerIdle <= 0 {
		o.WorkerIdle = defaultWorkerIdle
	}
	if len(o.WaitCurve) == 0 {
		o.WaitCurve = defaultCurve
	}
}
